package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/runner"
)

const (
	stepsSheet   = "Steps"
	summarySheet = "Summary"

	patternType    = "pattern"
	patternValue   = 1
	errorBgColor   = "FF5900"
	warningBgColor = "FFEB9C"
	headerBgColor  = "D9D9D9"
)

var stepHeaders = []string{
	"Test case", "Step", "Action", "Status", "Expected pixels", "Detected pixels",
	"Passed pixels", "Failed pixels", "Extra pixels", "Requests", "Time (s)", "Error", "Screenshot",
}

var colWidths = []float64{20, 20, 40, 12, 30, 30, 30, 30, 30, 10, 10, 40, 30}

// WriteExcel writes a workbook with one row per step and a per-case summary.
// Failed steps are filled red; passing steps that fired unexpected pixels
// are filled yellow.
func WriteExcel(path string, s runner.SuiteResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", stepsSheet); err != nil {
		return errx.Wrap(errx.KindInternal, err, "create steps sheet")
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return errx.Wrap(errx.KindInternal, err, "create summary sheet")
	}

	styles, err := newStyles(f)
	if err != nil {
		return errx.Wrap(errx.KindInternal, err, "create styles")
	}
	if err := writeSteps(f, s, styles); err != nil {
		return errx.Wrap(errx.KindInternal, err, "write steps")
	}
	if err := writeCaseSummary(f, s, styles); err != nil {
		return errx.Wrap(errx.KindInternal, err, "write summary")
	}

	if err := f.SaveAs(path); err != nil {
		return errx.Wrap(errx.KindConfig, err, "save workbook")
	}
	return nil
}

type styles struct {
	header, failed, warning int
}

func newStyles(f *excelize.File) (styles, error) {
	fill := func(color string, bold bool) (int, error) {
		return f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: bold},
			Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{color}},
		})
	}
	var st styles
	var err error
	if st.header, err = fill(headerBgColor, true); err != nil {
		return st, err
	}
	if st.failed, err = fill(errorBgColor, false); err != nil {
		return st, err
	}
	st.warning, err = fill(warningBgColor, false)
	return st, err
}

func writeRow(f *excelize.File, sheet string, row int, values []any, style int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	if style == 0 || len(values) == 0 {
		return nil
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(values), row)
	return f.SetCellStyle(sheet, first, last, style)
}

func writeSteps(f *excelize.File, s runner.SuiteResult, st styles) error {
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(stepsSheet, col, col, w); err != nil {
			return err
		}
	}
	header := make([]any, len(stepHeaders))
	for i, h := range stepHeaders {
		header[i] = h
	}
	if err := writeRow(f, stepsSheet, 1, header, st.header); err != nil {
		return err
	}

	row := 2
	for _, c := range s.Cases {
		if len(c.Steps) == 0 {
			// Aborted before any step ran.
			if err := writeRow(f, stepsSheet, row, []any{c.Name, "", "", "ERRORED", "", "", "", "", "", 0, 0.0, c.Error, ""}, st.failed); err != nil {
				return err
			}
			row++
			continue
		}
		for _, r := range c.Steps {
			style := 0
			switch {
			case !r.Success:
				style = st.failed
			case len(r.Extra) > 0:
				style = st.warning
			}
			values := []any{
				c.Name, r.Name, r.Action, string(r.Status),
				join(r.Expected), join(r.Detected), join(r.Passed), join(r.Failed), join(r.Extra),
				r.Requests, round(r.Duration.Seconds()), r.Error, r.Screenshot,
			}
			if err := writeRow(f, stepsSheet, row, values, style); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func writeCaseSummary(f *excelize.File, s runner.SuiteResult, st styles) error {
	for col, w := range map[string]float64{"A": 24, "B": 40, "C": 10, "D": 10, "E": 12, "F": 16, "G": 40} {
		if err := f.SetColWidth(summarySheet, col, col, w); err != nil {
			return err
		}
	}
	if err := writeRow(f, summarySheet, 1, []any{
		"Test case", "URL", "Result", "Steps", "Time (s)", "Tracking requests", "Error",
	}, st.header); err != nil {
		return err
	}

	for i, c := range s.Cases {
		result, style := "PASSED", 0
		if !c.Success {
			result, style = "FAILED", st.failed
		}
		tracking := 0
		if c.Network != nil {
			tracking = c.Network.TrackingRequests
		}
		if err := writeRow(f, summarySheet, i+2, []any{
			c.Name, c.StartURL, result, len(c.Steps), round(c.Duration.Seconds()), tracking, c.Error,
		}, style); err != nil {
			return err
		}
	}

	row := len(s.Cases) + 3
	lines := []string{
		"Run " + s.RunID,
		"Started: " + s.StartedAt.Format("2006-01-02 15:04:05"),
		fmt.Sprintf("Total time: %.2fs", s.Duration.Seconds()),
		fmt.Sprintf("Test cases passed: %d/%d", s.Passed(), len(s.Cases)),
	}
	for i, l := range lines {
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row+i), l); err != nil {
			return err
		}
	}
	return nil
}

func join(labels []string) string {
	return strings.Join(labels, "\n")
}

func round(sec float64) float64 {
	return float64(int64(sec*100+0.5)) / 100
}
