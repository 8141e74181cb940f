// Package step drives a single journey step: trigger the action, let the
// page settle, then reconcile the pixels captured in the step's window
// against what the step expects.
package step

import (
	"context"
	"strings"
	"time"

	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/pixel"
)

// LoadPage is the action that navigates to the case's start URL directly
// instead of going through the action delegate.
const LoadPage = "load page"

// Status is a step's lifecycle state. Only PASSED, FAILED and ERRORED are
// ever reported.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusActing     Status = "ACTING"
	StatusSettling   Status = "SETTLING"
	StatusEvaluating Status = "EVALUATING"
	StatusPassed     Status = "PASSED"
	StatusFailed     Status = "FAILED"
	StatusErrored    Status = "ERRORED"
)

// Definition is one step of a test case.
type Definition struct {
	Name   string
	Action string
	Expect []string

	// Zero values fall back to the executor's Options.
	Timeout         time.Duration
	SettleDelay     time.Duration
	WaitNetworkIdle *bool
}

// IsLoadPage reports whether the action is the page-load sentinel. Both
// "load page" and "load_page" are accepted, in any case.
func (d Definition) IsLoadPage() bool {
	a := strings.ToLower(strings.TrimSpace(d.Action))
	return a == LoadPage || a == "load_page"
}

// Result is the verdict for one step.
type Result struct {
	Name       string
	Action     string
	Status     Status
	Success    bool
	Duration   time.Duration
	Expected   []string
	Detected   []string
	Passed     []string // expected and detected
	Failed     []string // expected but not detected
	Extra      []string // detected but not expected; never affects success
	ErrorKind  errx.Kind
	Error      string
	Requests   int
	Pixels     []pixel.Pixel
	Screenshot string
}

// Errored builds an ERRORED result for a step that could not run at all.
func Errored(def Definition, err error) Result {
	return Result{
		Name:      def.Name,
		Action:    def.Action,
		Status:    StatusErrored,
		Expected:  dedupe(def.Expect),
		Failed:    dedupe(def.Expect),
		ErrorKind: errx.KindOf(err),
		Error:     err.Error(),
	}
}

// Reconcile splits the expectations into passed and failed and the detected
// labels not expected into extra. An expectation is met by a detected pixel
// with that label or, when it names a platform, by any pixel of that
// platform. Passed and failed keep the order of expected; extra keeps the
// order of detection.
func Reconcile(expected []string, detected []pixel.Pixel) (passed, failed, extra []string) {
	labels := make(map[string]bool, len(detected))
	platforms := make(map[string]bool, len(detected))
	for _, p := range detected {
		if !p.Classified() {
			continue
		}
		labels[p.Label()] = true
		platforms[p.Platform()] = true
	}
	want := make(map[string]bool, len(expected))
	passed, failed = []string{}, []string{}
	for _, e := range dedupe(expected) {
		want[e] = true
		if labels[e] || platforms[e] {
			passed = append(passed, e)
		} else {
			failed = append(failed, e)
		}
	}
	extra = []string{}
	seen := make(map[string]bool, len(detected))
	for _, p := range detected {
		l := p.Label()
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		if !want[l] && !want[p.Platform()] {
			extra = append(extra, l)
		}
	}
	return passed, failed, extra
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Session is the part of the browsing session a step drives directly.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitNetworkIdle(ctx context.Context, quiet time.Duration) error
}

// ActionExecutor performs a natural-language instruction on the current page
// and returns once it considers the action complete.
type ActionExecutor interface {
	Execute(ctx context.Context, instruction string) error
}

// Monitor is the capture side of a step: one window per step.
type Monitor interface {
	BeginWindow(name string) error
	EndWindow()
	Drain() ([]pixel.Pixel, error)
	WindowRequests() ([]pixel.Request, error)
}
