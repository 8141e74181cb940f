package signature

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/v0xg/pixellens/internal/errx"
)

// Catalog is an ordered, immutable set of signatures. Matching is
// first-match-wins, so specific entries must precede general ones.
type Catalog struct {
	entries   []*compiled
	byLabel   map[string]*Signature
	platforms map[string]bool
}

// NewCatalog validates and compiles sigs. Every failure is a config error:
// empty or duplicate labels, signatures without a host or path locator, and
// patterns that do not compile.
func NewCatalog(sigs []Signature) (*Catalog, error) {
	c := &Catalog{
		entries:   make([]*compiled, 0, len(sigs)),
		byLabel:   make(map[string]*Signature, len(sigs)),
		platforms: make(map[string]bool),
	}
	for i := range sigs {
		s := sigs[i]
		if s.Label == "" && s.Platform != "" && s.Event != "" {
			s.Label = s.Platform + " " + s.Event
		}
		s.Label = strings.TrimSpace(s.Label)
		if s.Label == "" {
			return nil, errx.Newf(errx.KindConfig, "signature %d: empty label", i)
		}
		if _, dup := c.byLabel[s.Label]; dup {
			return nil, errx.Newf(errx.KindConfig, "duplicate signature label %q", s.Label)
		}
		entry, err := compile(&s)
		if err != nil {
			return nil, errx.Wrap(errx.KindConfig, err, fmt.Sprintf("signature %q", s.Label))
		}
		c.entries = append(c.entries, entry)
		c.byLabel[s.Label] = entry.sig
		if s.Platform != "" {
			c.platforms[s.Platform] = true
		}
	}
	return c, nil
}

// MustCatalog is NewCatalog for statically known signature sets.
func MustCatalog(sigs []Signature) *Catalog {
	c, err := NewCatalog(sigs)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the builtin catalog.
func Default() *Catalog { return MustCatalog(Builtin()) }

func compile(s *Signature) (*compiled, error) {
	m := &s.Match
	if m.Host == "" && m.HostRegex == "" && m.Path == "" && m.PathPrefix == "" && m.PathRegex == "" {
		return nil, fmt.Errorf("no host or path condition")
	}
	c := &compiled{sig: s}
	var err error
	if c.hostRe, err = compileOpt(m.HostRegex); err != nil {
		return nil, fmt.Errorf("host_regex: %w", err)
	}
	if c.pathRe, err = compileOpt(m.PathRegex); err != nil {
		return nil, fmt.Errorf("path_regex: %w", err)
	}
	for _, p := range m.Query {
		if p.Name == "" {
			return nil, fmt.Errorf("query rule without name")
		}
		re, err := compileOpt(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("query %q regex: %w", p.Name, err)
		}
		c.query = append(c.query, compiledParam{rule: p, re: re})
	}
	if m.Body != nil {
		if c.bodyRe, err = compileOpt(m.Body.Regex); err != nil {
			return nil, fmt.Errorf("body regex: %w", err)
		}
	}
	return c, nil
}

func compileOpt(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// Match returns the first signature matching in, or nil.
func (c *Catalog) Match(in *Input) *Signature {
	for _, e := range c.entries {
		if e.matches(in) {
			return e.sig
		}
	}
	return nil
}

// Lookup finds a signature by label.
func (c *Catalog) Lookup(label string) (*Signature, bool) {
	s, ok := c.byLabel[label]
	return s, ok
}

// HasPlatform reports whether any signature belongs to platform.
func (c *Catalog) HasPlatform(platform string) bool { return c.platforms[platform] }

// Platforms returns the distinct platforms in catalog order.
func (c *Catalog) Platforms() []string {
	seen := make(map[string]bool, len(c.platforms))
	var out []string
	for _, e := range c.entries {
		if p := e.sig.Platform; p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Labels returns every label in catalog order.
func (c *Catalog) Labels() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.sig.Label
	}
	return out
}

// Signatures returns copies of the catalog entries in order.
func (c *Catalog) Signatures() []Signature {
	out := make([]Signature, len(c.entries))
	for i, e := range c.entries {
		out[i] = *e.sig
	}
	return out
}

func (c *Catalog) Len() int { return len(c.entries) }
