package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"

	"github.com/v0xg/pixellens/internal/capture"
	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/pixel"
	"github.com/v0xg/pixellens/internal/report"
	"github.com/v0xg/pixellens/internal/runner"
	"github.com/v0xg/pixellens/internal/step"
)

func sampleSuite() runner.SuiteResult {
	return runner.SuiteResult{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:  12 * time.Second,
		Cases: []runner.CaseResult{
			{
				Name:     "checkout",
				StartURL: "https://shop.example/",
				Success:  false,
				Duration: 9 * time.Second,
				Steps: []step.Result{
					{
						Name: "load", Action: "load page", Status: step.StatusPassed, Success: true,
						Duration: 3 * time.Second,
						Expected: []string{"GA4 page_view"},
						Detected: []string{"GA4 page_view", "Hotjar"},
						Passed:   []string{"GA4 page_view"},
						Failed:   []string{},
						Extra:    []string{"Hotjar"},
						Requests: 14,
						Pixels: []pixel.Pixel{{
							Request: pixel.Request{URL: "https://www.google-analytics.com/g/collect?en=page_view", Method: "POST", Status: 204},
							Count:   2,
						}},
					},
					{
						Name: "add to cart", Action: "click add to cart", Status: step.StatusFailed,
						Duration: 4 * time.Second,
						Expected: []string{"GA4 add_to_cart"},
						Detected: []string{},
						Passed:   []string{},
						Failed:   []string{"GA4 add_to_cart"},
						Extra:    []string{},
					},
				},
				Network: &capture.Summary{
					TotalRequests:    40,
					TrackingRequests: 3,
					ByPlatform:       map[string]int{"GA4": 2, "Hotjar": 1},
				},
			},
			{
				Name:      "blog",
				StartURL:  "https://blog.example/",
				Duration:  time.Second,
				ErrorKind: errx.KindSession,
				Error:     "launch browser session: no chrome",
			},
		},
	}
}

func TestBuild(t *testing.T) {
	doc := report.Build(sampleSuite())

	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, 0, doc.Passed)
	assert.Equal(t, 2, doc.Total)
	assert.InDelta(t, 12.0, doc.ExecutionTime, 0.001)
	require.Len(t, doc.TestCases, 2)

	checkout := doc.TestCases[0]
	assert.Nil(t, checkout.Error)
	require.Len(t, checkout.Steps, 2)
	assert.Equal(t, []string{"Hotjar"}, checkout.Steps[0].ExtraPixels)
	assert.Equal(t, "PASSED", checkout.Steps[0].Status)
	require.Len(t, checkout.Steps[0].Pixels, 1)
	assert.Equal(t, 2, checkout.Steps[0].Pixels[0].Count)
	assert.Equal(t, []string{"GA4 add_to_cart"}, checkout.Steps[1].FailedPixels)
	require.NotNil(t, checkout.Summary)
	assert.Equal(t, 3, checkout.Summary.TrackingRequests)

	blog := doc.TestCases[1]
	require.NotNil(t, blog.Error)
	assert.Equal(t, "launch browser session: no chrome", *blog.Error)
	assert.Equal(t, "SESSION_ERROR", blog.ErrorKind)
	assert.NotNil(t, blog.Steps)
	assert.Nil(t, blog.Summary)
}

func TestSaveJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")
	require.NoError(t, report.Save(path, sampleSuite()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(data))

	doc := gjson.ParseBytes(data)
	assert.Equal(t, "run-1", doc.Get("run_id").String())
	assert.Equal(t, "checkout", doc.Get("test_cases.0.test_case").String())
	assert.Equal(t, "load", doc.Get("test_cases.0.steps.0.step_name").String())
	assert.Equal(t, "GA4 page_view", doc.Get("test_cases.0.steps.0.passed_pixels.0").String())
	assert.True(t, doc.Get("test_cases.0.steps.1.error").Type == gjson.Null)
	assert.Equal(t, int64(2), doc.Get("test_cases.0.summary.pixels_by_vendor.GA4").Int())
	assert.Equal(t, "[]", doc.Get("test_cases.1.steps").Raw)
}

func TestSaveExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, report.Save(path, sampleSuite()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Steps", "Summary"}, f.GetSheetList())

	v, err := f.GetCellValue("Steps", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Test case", v)

	v, _ = f.GetCellValue("Steps", "B3")
	assert.Equal(t, "add to cart", v)
	v, _ = f.GetCellValue("Steps", "H3")
	assert.Equal(t, "GA4 add_to_cart", v)
	v, _ = f.GetCellValue("Steps", "L4")
	assert.Equal(t, "launch browser session: no chrome", v, "aborted case gets a row")

	v, _ = f.GetCellValue("Summary", "C2")
	assert.Equal(t, "FAILED", v)
	v, _ = f.GetCellValue("Summary", "A8")
	assert.Equal(t, "Test cases passed: 0/2", v)
}

func TestSaveRejectsUnknownFormat(t *testing.T) {
	err := report.Save(filepath.Join(t.TempDir(), "results.csv"), sampleSuite())
	assert.True(t, errx.Is(err, errx.KindConfig))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := report.NewPrinter(&buf, false)
	s := sampleSuite()

	p.Step("checkout", s.Cases[0].Steps[1])
	p.Case(s.Cases[1])
	p.Summary(s)

	out := buf.String()
	assert.Contains(t, out, "✗ checkout › add to cart (4.0s)")
	assert.Contains(t, out, "missing: GA4 add_to_cart")
	assert.Contains(t, out, "✗ blog: FAILED (launch browser session: no chrome)")
	assert.Contains(t, out, "Summary: 0/2 test cases passed")
	assert.Contains(t, out, "2 test cases failed")
	assert.NotContains(t, out, "\033[")
}
