// Package classifier maps captured requests onto catalog signatures.
package classifier

import (
	"net/url"
	"strings"

	"github.com/v0xg/pixellens/internal/pixel"
	"github.com/v0xg/pixellens/internal/signature"
)

// Classifier is stateless apart from its catalog and safe for concurrent use.
type Classifier struct {
	catalog *signature.Catalog
}

func New(catalog *signature.Catalog) *Classifier {
	return &Classifier{catalog: catalog}
}

// Catalog returns the catalog the classifier matches against.
func (c *Classifier) Catalog() *signature.Catalog { return c.catalog }

// Classify returns req paired with at most one signature. Requests whose URL
// cannot be parsed come back unclassified; this never fails.
func (c *Classifier) Classify(req pixel.Request) pixel.Pixel {
	in, ok := buildInput(req)
	if !ok {
		return pixel.Pixel{Request: req}
	}
	sig := c.catalog.Match(in)
	if sig == nil {
		return pixel.Pixel{Request: req}
	}
	return pixel.Pixel{Request: req, Signature: sig, Keys: sig.KeyValues(in)}
}

// IsTracking reports whether req matches any signature.
func (c *Classifier) IsTracking(req pixel.Request) bool {
	return c.Classify(req).Classified()
}

func buildInput(req pixel.Request) (*signature.Input, bool) {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || u.Host == "" {
		return nil, false
	}
	query := req.Query
	if query == nil {
		// Malformed pairs are skipped; the well-formed ones are kept.
		query, _ = url.ParseQuery(u.RawQuery)
	}
	// Beacons posted as form bodies carry their parameters there. Batched
	// beacons put one hit per line; the first hit classifies the request.
	if line := firstLine(req.Body); line != "" && isFormBody(line) {
		form, _ := url.ParseQuery(line)
		merged := make(url.Values, len(query)+len(form))
		for k, v := range query {
			merged[k] = v
		}
		for k, v := range form {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
		query = merged
	}
	method := req.Method
	if method == "" {
		method = "GET"
	}
	return &signature.Input{
		Host:   u.Hostname(),
		Path:   u.Path,
		Method: method,
		Query:  query,
		Body:   req.Body,
	}, true
}

func firstLine(body string) string {
	body = strings.TrimSpace(body)
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

func isFormBody(body string) bool {
	b := strings.TrimSpace(body)
	if b == "" || b[0] == '{' || b[0] == '[' {
		return false
	}
	return strings.Contains(b, "=") && !strings.ContainsAny(b, " \n")
}
