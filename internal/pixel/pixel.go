// Package pixel defines captured network requests and their classification.
package pixel

import (
	"net/url"
	"strings"
	"time"

	"github.com/v0xg/pixellens/internal/signature"
)

// Request is one outbound HTTP request observed in a browsing session.
// Status and ErrorText are filled in when the response (or failure) arrives
// and are diagnostic only.
type Request struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Method       string     `json:"method"`
	Query        url.Values `json:"query,omitempty"`
	Body         string     `json:"body,omitempty"`
	ResourceType string     `json:"resourceType,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	Window       string     `json:"window,omitempty"`
	Status       int        `json:"status,omitempty"`
	Failed       bool       `json:"failed,omitempty"`
	ErrorText    string     `json:"errorText,omitempty"`
}

// Pixel is a request paired with the signature it matched, if any.
type Pixel struct {
	Request   Request              `json:"request"`
	Signature *signature.Signature `json:"-"`
	Keys      []string             `json:"keys,omitempty"`
	Count     int                  `json:"count,omitempty"` // duplicates collapsed into this pixel
}

// Classified reports whether the request matched a signature.
func (p Pixel) Classified() bool { return p.Signature != nil }

// Label is the matched signature's label, or "" when unclassified.
func (p Pixel) Label() string {
	if p.Signature == nil {
		return ""
	}
	return p.Signature.Label
}

// Platform is the matched signature's platform, or "" when unclassified.
func (p Pixel) Platform() string {
	if p.Signature == nil {
		return ""
	}
	return p.Signature.Platform
}

// DedupKey identifies pixels that are the same event fired twice: same
// label and same key parameter values.
func (p Pixel) DedupKey() string {
	if p.Signature == nil {
		return ""
	}
	return p.Signature.Label + "\x00" + strings.Join(p.Keys, "\x00")
}

// Labels returns the distinct labels of ps in first-seen order.
func Labels(ps []Pixel) []string {
	seen := make(map[string]bool, len(ps))
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		l := p.Label()
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
