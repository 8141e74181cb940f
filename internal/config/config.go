// Package config loads test suites from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/runner"
	"github.com/v0xg/pixellens/internal/signature"
	"github.com/v0xg/pixellens/internal/step"
)

// Defaults are the suite-wide settings from default_config.
type Defaults struct {
	Timeout            time.Duration
	Headless           bool
	WaitForNetworkIdle bool
	StepDelay          time.Duration
}

// BuiltinDefaults apply when neither the suite file nor the command line
// says otherwise.
func BuiltinDefaults() Defaults {
	return Defaults{
		Timeout:            30 * time.Second,
		Headless:           true,
		WaitForNetworkIdle: true,
		StepDelay:          2 * time.Second,
	}
}

// Suite is a parsed suite file.
type Suite struct {
	Path       string
	Defaults   Defaults
	Signatures string // extra signature file, resolved against the suite's directory
	Cases      []runner.Case
}

// StepOptions turns the suite defaults into step executor options.
func (s *Suite) StepOptions() step.Options {
	opts := step.DefaultOptions()
	opts.Timeout = s.Defaults.Timeout
	opts.SettleDelay = s.Defaults.StepDelay
	opts.WaitNetworkIdle = s.Defaults.WaitForNetworkIdle
	return opts
}

// CaseNames lists the case names in file order.
func (s *Suite) CaseNames() []string {
	out := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		out[i] = c.Name
	}
	return out
}

// Load reads and parses the suite at path.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errx.Wrap(errx.KindConfig, err, "read suite")
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.Path = path
	if s.Signatures != "" && !filepath.IsAbs(s.Signatures) {
		s.Signatures = filepath.Join(filepath.Dir(path), s.Signatures)
	}
	return s, nil
}

type rawSuite struct {
	DefaultConfig *rawDefaults `yaml:"default_config"`
	Signatures    string       `yaml:"signatures"`
	TestCases     yaml.Node    `yaml:"test_cases"`
}

type rawDefaults struct {
	Timeout            *Seconds `yaml:"timeout"`
	Headless           *bool    `yaml:"headless"`
	WaitForNetworkIdle *bool    `yaml:"wait_for_network_idle"`
	StepDelay          *Seconds `yaml:"step_delay"`
}

type rawCase struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	StartURL    string    `yaml:"start_url"`
	Steps       []rawStep `yaml:"steps"`
}

type rawStep struct {
	Name               string       `yaml:"name"`
	Action             string       `yaml:"action"`
	ExpectPixels       Expectations `yaml:"expect_pixels"`
	Timeout            *Seconds     `yaml:"timeout"`
	SettleDelay        *Seconds     `yaml:"settle_delay"`
	WaitForNetworkIdle *bool        `yaml:"wait_for_network_idle"`
}

// Parse decodes a suite document. test_cases may be a mapping keyed by case
// name (file order is kept) or a sequence of cases carrying a name field.
func Parse(data []byte) (*Suite, error) {
	var raw rawSuite
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errx.Wrap(errx.KindConfig, err, "parse suite")
	}

	s := &Suite{Defaults: BuiltinDefaults(), Signatures: raw.Signatures}
	if d := raw.DefaultConfig; d != nil {
		if d.Timeout != nil {
			s.Defaults.Timeout = d.Timeout.Duration()
		}
		if d.Headless != nil {
			s.Defaults.Headless = *d.Headless
		}
		if d.WaitForNetworkIdle != nil {
			s.Defaults.WaitForNetworkIdle = *d.WaitForNetworkIdle
		}
		if d.StepDelay != nil {
			s.Defaults.StepDelay = d.StepDelay.Duration()
		}
	}

	cases, err := decodeCases(&raw.TestCases)
	if err != nil {
		return nil, err
	}
	for _, rc := range cases {
		c := runner.Case{Name: rc.Name, Description: rc.Description, StartURL: strings.TrimSpace(rc.StartURL)}
		for i, rs := range rc.Steps {
			name := strings.TrimSpace(rs.Name)
			if name == "" {
				name = fmt.Sprintf("step %d", i+1)
			}
			def := step.Definition{
				Name:            name,
				Action:          strings.TrimSpace(rs.Action),
				Expect:          rs.ExpectPixels,
				WaitNetworkIdle: rs.WaitForNetworkIdle,
			}
			if rs.Timeout != nil {
				def.Timeout = rs.Timeout.Duration()
			}
			if rs.SettleDelay != nil {
				def.SettleDelay = rs.SettleDelay.Duration()
			}
			c.Steps = append(c.Steps, def)
		}
		s.Cases = append(s.Cases, c)
	}
	return s, nil
}

func decodeCases(n *yaml.Node) ([]rawCase, error) {
	var out []rawCase
	switch n.Kind {
	case 0:
		return nil, errx.New(errx.KindConfig, "suite has no test_cases")
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			var rc rawCase
			if err := n.Content[i+1].Decode(&rc); err != nil {
				return nil, errx.Wrap(errx.KindConfig, err, fmt.Sprintf("test case %q", n.Content[i].Value))
			}
			rc.Name = n.Content[i].Value
			out = append(out, rc)
		}
	case yaml.SequenceNode:
		if err := n.Decode(&out); err != nil {
			return nil, errx.Wrap(errx.KindConfig, err, "test_cases")
		}
	default:
		return nil, errx.New(errx.KindConfig, "test_cases must be a mapping or a list")
	}
	return out, nil
}

// Validate checks the suite against the catalog. All problems are reported
// together as a single config error.
func (s *Suite) Validate(cat *signature.Catalog) error {
	var problems []string
	if len(s.Cases) == 0 {
		problems = append(problems, "no test cases defined")
	}
	seen := make(map[string]bool)
	for _, c := range s.Cases {
		if c.Name == "" {
			problems = append(problems, "test case without a name")
		} else if seen[c.Name] {
			problems = append(problems, fmt.Sprintf("duplicate test case %q", c.Name))
		}
		seen[c.Name] = true

		if c.StartURL == "" {
			problems = append(problems, fmt.Sprintf("%s: missing start_url", c.Name))
		} else if u, err := url.Parse(c.StartURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s: start_url %q is not an http(s) URL", c.Name, c.StartURL))
		}
		if len(c.Steps) == 0 {
			problems = append(problems, fmt.Sprintf("%s: no steps", c.Name))
		}
		for _, st := range c.Steps {
			if st.Action == "" {
				problems = append(problems, fmt.Sprintf("%s/%s: missing action", c.Name, st.Name))
			}
			for _, label := range st.Expect {
				if _, ok := cat.Lookup(label); !ok && !cat.HasPlatform(label) {
					problems = append(problems, fmt.Sprintf("%s/%s: unknown pixel %q", c.Name, st.Name, label))
				}
			}
		}
	}
	if len(problems) > 0 {
		return errx.New(errx.KindConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Seconds is a duration written either as a number of seconds or as a Go
// duration string such as "1500ms".
type Seconds time.Duration

func (s Seconds) Duration() time.Duration { return time.Duration(s) }

func (s *Seconds) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", n.Line)
	}
	if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
		*s = Seconds(f * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
	}
	*s = Seconds(d)
	return nil
}

// Expectations is the expect_pixels list. It accepts a sequence of labels, a
// sequence of {label: ...} mappings, or a mapping whose keys are labels. A
// platform name such as "GA4" stands for any pixel of that platform.
type Expectations []string

func (e *Expectations) UnmarshalYAML(n *yaml.Node) error {
	var out []string
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag != "!!null" && n.Value != "" {
			out = append(out, n.Value)
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				out = append(out, item.Value)
			case yaml.MappingNode:
				var m struct {
					Label string `yaml:"label"`
					Name  string `yaml:"name"`
				}
				if err := item.Decode(&m); err != nil {
					return err
				}
				label := m.Label
				if label == "" {
					label = m.Name
				}
				if label == "" {
					return fmt.Errorf("line %d: expectation without label", item.Line)
				}
				out = append(out, label)
			default:
				return fmt.Errorf("line %d: unsupported expectation", item.Line)
			}
		}
	case yaml.MappingNode:
		for i := 0; i < len(n.Content); i += 2 {
			out = append(out, n.Content[i].Value)
		}
	default:
		return fmt.Errorf("line %d: expect_pixels must be a list or mapping", n.Line)
	}
	*e = out
	return nil
}
