package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/v0xg/pixellens/internal/runner"
	"github.com/v0xg/pixellens/internal/step"
)

const (
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// Printer writes human-readable progress and summaries. Lines from
// concurrent cases never interleave.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + reset
}

// Step prints one step verdict, with the missing and unexpected pixels.
func (p *Printer) Step(caseName string, r step.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark := p.paint(green, "✓")
	if !r.Success {
		mark = p.paint(red, "✗")
	}
	fmt.Fprintf(p.w, "  %s %s › %s (%.1fs)\n", mark, caseName, r.Name, r.Duration.Seconds())
	if len(r.Failed) > 0 {
		fmt.Fprintf(p.w, "      missing: %s\n", p.paint(red, strings.Join(r.Failed, ", ")))
	}
	if len(r.Extra) > 0 {
		fmt.Fprintf(p.w, "      extra:   %s\n", p.paint(yellow, strings.Join(r.Extra, ", ")))
	}
	if r.Error != "" {
		fmt.Fprintf(p.w, "      error:   %s [%s]\n", r.Error, r.ErrorKind)
	}
}

// Case prints one case verdict.
func (p *Printer) Case(c runner.CaseResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.Success {
		fmt.Fprintf(p.w, "%s %s: PASSED\n", p.paint(green, "✓"), c.Name)
		return
	}
	fmt.Fprintf(p.w, "%s %s: FAILED", p.paint(red, "✗"), c.Name)
	if c.Error != "" {
		fmt.Fprintf(p.w, " (%s)", c.Error)
	}
	fmt.Fprintln(p.w)
}

// Summary prints the suite totals.
func (p *Printer) Summary(s runner.SuiteResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	passed, total := s.Passed(), len(s.Cases)
	fmt.Fprintf(p.w, "\nSummary: %d/%d test cases passed (%.1fs)\n", passed, total, s.Duration.Seconds())
	if passed == total && total > 0 {
		fmt.Fprintln(p.w, p.paint(green, "All test cases passed"))
		return
	}
	fmt.Fprintln(p.w, p.paint(red, fmt.Sprintf("%d test cases failed", total-passed)))
}
