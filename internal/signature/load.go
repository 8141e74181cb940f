package signature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/v0xg/pixellens/internal/errx"
)

type fileFormat struct {
	Signatures []Signature `yaml:"signatures"`
}

// LoadFile reads additional signatures from a YAML document of the form
//
//	signatures:
//	  - platform: Acme
//	    event: signup
//	    match: {host: collect.acme.io, path: /e, query: [{name: ev, equals: signup}]}
func LoadFile(path string) ([]Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errx.Wrap(errx.KindConfig, err, "read signatures")
	}
	return Parse(data)
}

// Parse decodes a signature YAML document.
func Parse(data []byte) ([]Signature, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errx.Wrap(errx.KindConfig, err, "parse signatures")
	}
	if len(f.Signatures) == 0 {
		return nil, errx.New(errx.KindConfig, "signature file defines no signatures")
	}
	return f.Signatures, nil
}

// Load builds the catalog: custom signatures from paths, in order and
// skipping empty ones, ahead of the builtin ones, so a custom entry can
// shadow a general builtin pattern.
func Load(paths ...string) (*Catalog, error) {
	var sigs []Signature
	for _, p := range paths {
		if p == "" {
			continue
		}
		custom, err := LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		sigs = append(sigs, custom...)
	}
	return NewCatalog(append(sigs, Builtin()...))
}
