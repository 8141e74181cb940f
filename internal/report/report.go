// Package report renders suite results as JSON, Excel and console text.
package report

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/v0xg/pixellens/internal/capture"
	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/runner"
	"github.com/v0xg/pixellens/internal/step"
)

// Document is the saved form of a suite run.
type Document struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Success       bool      `json:"success"`
	Passed        int       `json:"passed"`
	Total         int       `json:"total"`
	ExecutionTime float64   `json:"execution_time"`
	TestCases     []CaseDoc `json:"test_cases"`
}

type CaseDoc struct {
	TestCase      string      `json:"test_case"`
	Description   string      `json:"description,omitempty"`
	URL           string      `json:"url"`
	Success       bool        `json:"success"`
	ExecutionTime float64     `json:"execution_time"`
	Error         *string     `json:"error"`
	ErrorKind     string      `json:"error_kind,omitempty"`
	Steps         []StepDoc   `json:"steps"`
	Summary       *SummaryDoc `json:"summary,omitempty"`
	Journey       string      `json:"journey,omitempty"`
}

type StepDoc struct {
	StepName       string     `json:"step_name"`
	Action         string     `json:"action"`
	Status         string     `json:"status"`
	Success        bool       `json:"success"`
	ExecutionTime  float64    `json:"execution_time"`
	ExpectedPixels []string   `json:"expected_pixels"`
	DetectedPixels []string   `json:"detected_pixels"`
	PassedPixels   []string   `json:"passed_pixels"`
	FailedPixels   []string   `json:"failed_pixels"`
	ExtraPixels    []string   `json:"extra_pixels"`
	Requests       int        `json:"requests"`
	Pixels         []PixelDoc `json:"pixels,omitempty"`
	Error          *string    `json:"error"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	Screenshot     string     `json:"screenshot,omitempty"`
}

type PixelDoc struct {
	Label  string   `json:"label"`
	URL    string   `json:"url"`
	Method string   `json:"method"`
	Status int      `json:"status,omitempty"`
	Count  int      `json:"count"`
	Keys   []string `json:"keys,omitempty"`
}

type SummaryDoc struct {
	TotalRequests    int                     `json:"total_requests"`
	TrackingRequests int                     `json:"tracking_requests"`
	PixelsByVendor   map[string]int          `json:"pixels_by_vendor"`
	Timeline         []capture.TimelineEntry `json:"timeline"`
}

// Build converts a suite result into its saved form.
func Build(s runner.SuiteResult) Document {
	doc := Document{
		RunID:         s.RunID,
		StartedAt:     s.StartedAt,
		Success:       s.Success,
		Passed:        s.Passed(),
		Total:         len(s.Cases),
		ExecutionTime: s.Duration.Seconds(),
		TestCases:     make([]CaseDoc, 0, len(s.Cases)),
	}
	for _, c := range s.Cases {
		cd := CaseDoc{
			TestCase:      c.Name,
			Description:   c.Description,
			URL:           c.StartURL,
			Success:       c.Success,
			ExecutionTime: c.Duration.Seconds(),
			Error:         optional(c.Error),
			ErrorKind:     string(c.ErrorKind),
			Steps:         make([]StepDoc, 0, len(c.Steps)),
			Journey:       c.Journey,
		}
		for _, st := range c.Steps {
			cd.Steps = append(cd.Steps, buildStep(st))
		}
		if n := c.Network; n != nil {
			cd.Summary = &SummaryDoc{
				TotalRequests:    n.TotalRequests,
				TrackingRequests: n.TrackingRequests,
				PixelsByVendor:   n.ByPlatform,
				Timeline:         n.Timeline,
			}
		}
		doc.TestCases = append(doc.TestCases, cd)
	}
	return doc
}

func buildStep(r step.Result) StepDoc {
	sd := StepDoc{
		StepName:       r.Name,
		Action:         r.Action,
		Status:         string(r.Status),
		Success:        r.Success,
		ExecutionTime:  r.Duration.Seconds(),
		ExpectedPixels: nonNil(r.Expected),
		DetectedPixels: nonNil(r.Detected),
		PassedPixels:   nonNil(r.Passed),
		FailedPixels:   nonNil(r.Failed),
		ExtraPixels:    nonNil(r.Extra),
		Requests:       r.Requests,
		Error:          optional(r.Error),
		ErrorKind:      string(r.ErrorKind),
		Screenshot:     r.Screenshot,
	}
	for _, p := range r.Pixels {
		sd.Pixels = append(sd.Pixels, PixelDoc{
			Label:  p.Label(),
			URL:    p.Request.URL,
			Method: p.Request.Method,
			Status: p.Request.Status,
			Count:  max(p.Count, 1),
			Keys:   p.Keys,
		})
	}
	return sd
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, s runner.SuiteResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Build(s))
}

// Save writes the suite result to path. The format follows the extension:
// .xlsx for a workbook, .json otherwise.
func Save(path string, s runner.SuiteResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errx.Wrap(errx.KindConfig, err, "create report directory")
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteExcel(path, s)
	case ".json", "":
		f, err := os.Create(path)
		if err != nil {
			return errx.Wrap(errx.KindConfig, err, "create report")
		}
		if err := WriteJSON(f, s); err != nil {
			f.Close()
			return errx.Wrap(errx.KindInternal, err, "write report")
		}
		return f.Close()
	default:
		return errx.Newf(errx.KindConfig, "unsupported report format %q (use .json or .xlsx)", filepath.Ext(path))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
