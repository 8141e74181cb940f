// Package signature holds the catalog of tracking-request shapes and the
// matcher that maps a request onto a platform/event identity.
package signature

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Signature identifies one tracking platform event by the shape of the
// request that reports it.
type Signature struct {
	Platform  string   `yaml:"platform" json:"platform"`
	Event     string   `yaml:"event" json:"event"`
	Label     string   `yaml:"label" json:"label"`
	KeyParams []string `yaml:"key_params,omitempty" json:"keyParams,omitempty"`
	Match     Matcher  `yaml:"match" json:"match"`
}

// Matcher describes a request shape. Every non-empty condition must hold.
type Matcher struct {
	Host       string      `yaml:"host,omitempty" json:"host,omitempty"`             // hostname or parent domain
	HostRegex  string      `yaml:"host_regex,omitempty" json:"hostRegex,omitempty"`   // regex over the hostname
	Path       string      `yaml:"path,omitempty" json:"path,omitempty"`             // exact, trailing slash ignored
	PathPrefix string      `yaml:"path_prefix,omitempty" json:"pathPrefix,omitempty"` // prefix of the path
	PathRegex  string      `yaml:"path_regex,omitempty" json:"pathRegex,omitempty"`   // regex over the path
	Method     string      `yaml:"method,omitempty" json:"method,omitempty"`
	Query      []ParamRule `yaml:"query,omitempty" json:"query,omitempty"`
	Body       *BodyRule   `yaml:"body,omitempty" json:"body,omitempty"`
}

// ParamRule requires a query parameter, optionally with an exact value or a
// value matching a regex.
type ParamRule struct {
	Name   string `yaml:"name" json:"name"`
	Equals string `yaml:"equals,omitempty" json:"equals,omitempty"`
	Regex  string `yaml:"regex,omitempty" json:"regex,omitempty"`
}

// BodyRule inspects the request body. JSONPath uses gjson syntax; a leading
// "$." is accepted and stripped.
type BodyRule struct {
	Contains  string `yaml:"contains,omitempty" json:"contains,omitempty"`
	Regex     string `yaml:"regex,omitempty" json:"regex,omitempty"`
	JSONPath  string `yaml:"json_path,omitempty" json:"jsonPath,omitempty"`
	JSONValue string `yaml:"json_value,omitempty" json:"jsonValue,omitempty"`
}

// Input is the request shape a signature is evaluated against.
type Input struct {
	Host   string
	Path   string
	Method string
	Query  url.Values
	Body   string
}

// compiled is a signature with its patterns compiled once at catalog load.
type compiled struct {
	sig    *Signature
	hostRe *regexp.Regexp
	pathRe *regexp.Regexp
	query  []compiledParam
	bodyRe *regexp.Regexp
}

type compiledParam struct {
	rule ParamRule
	re   *regexp.Regexp
}

func (c *compiled) matches(in *Input) bool {
	m := &c.sig.Match

	if m.Host != "" && !hostMatches(in.Host, m.Host) {
		return false
	}
	if c.hostRe != nil && !c.hostRe.MatchString(in.Host) {
		return false
	}
	if m.Path != "" && trimSlash(in.Path) != trimSlash(m.Path) {
		return false
	}
	if m.PathPrefix != "" && !strings.HasPrefix(in.Path, m.PathPrefix) {
		return false
	}
	if c.pathRe != nil && !c.pathRe.MatchString(in.Path) {
		return false
	}
	if m.Method != "" && !strings.EqualFold(in.Method, m.Method) {
		return false
	}
	for _, p := range c.query {
		if !in.Query.Has(p.rule.Name) {
			return false
		}
		v := in.Query.Get(p.rule.Name)
		if p.rule.Equals != "" && v != p.rule.Equals {
			return false
		}
		if p.re != nil && !p.re.MatchString(v) {
			return false
		}
	}
	if b := m.Body; b != nil {
		if b.Contains != "" && !strings.Contains(in.Body, b.Contains) {
			return false
		}
		if c.bodyRe != nil && !c.bodyRe.MatchString(in.Body) {
			return false
		}
		if b.JSONPath != "" {
			v, ok := jsonPath(in.Body, b.JSONPath)
			if !ok || (b.JSONValue != "" && v != b.JSONValue) {
				return false
			}
		}
	}
	return true
}

// KeyValues returns the values of the signature's key parameters for in,
// looked up in the query first and then as a JSON path into the body.
func (s *Signature) KeyValues(in *Input) []string {
	if len(s.KeyParams) == 0 {
		return nil
	}
	out := make([]string, len(s.KeyParams))
	for i, name := range s.KeyParams {
		if in.Query.Has(name) {
			out[i] = in.Query.Get(name)
			continue
		}
		if v, ok := jsonPath(in.Body, name); ok {
			out[i] = v
		}
	}
	return out
}

func hostMatches(host, want string) bool {
	host = strings.ToLower(host)
	want = strings.ToLower(want)
	return host == want || strings.HasSuffix(host, "."+want)
}

func trimSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}

func jsonPath(body, path string) (string, bool) {
	if body == "" || path == "" || !gjson.Valid(body) {
		return "", false
	}
	res := gjson.Get(body, strings.TrimPrefix(path, "$."))
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}
