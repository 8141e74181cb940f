// Package runner executes test cases, each in a fresh browsing session, and
// assembles the suite verdict.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/v0xg/pixellens/internal/capture"
	"github.com/v0xg/pixellens/internal/classifier"
	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/logger"
	"github.com/v0xg/pixellens/internal/step"
)

// Session is one isolated browsing session.
type Session interface {
	step.Session
	capture.Source
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher starts browsing sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// LauncherFunc adapts a plain function to Launcher.
type LauncherFunc func(ctx context.Context) (Session, error)

func (f LauncherFunc) Launch(ctx context.Context) (Session, error) { return f(ctx) }

// AgentFactory builds the action delegate bound to a session.
type AgentFactory func(Session) (step.ActionExecutor, error)

// Recorder receives a screenshot after every step and may persist it.
type Recorder interface {
	// Record stores the post-step screenshot and returns the path of any
	// file written for it.
	Record(caseName string, res step.Result, png []byte) (string, error)
	// Flush finishes a case and returns the path of any journey artifact.
	Flush(caseName string) (string, error)
}

// Case is one test case: a start URL and ordered steps.
type Case struct {
	Name        string
	Description string
	StartURL    string
	Steps       []step.Definition
}

// CaseResult is the verdict for one case.
type CaseResult struct {
	Name        string
	Description string
	StartURL    string
	Steps       []step.Result
	Success     bool
	Duration    time.Duration
	ErrorKind   errx.Kind
	Error       string
	Network     *capture.Summary
	Journey     string
}

// SuiteResult is the verdict for a whole run.
type SuiteResult struct {
	RunID     string
	StartedAt time.Time
	Cases     []CaseResult
	Success   bool
	Duration  time.Duration
}

// Passed counts successful cases.
func (s SuiteResult) Passed() int {
	n := 0
	for _, c := range s.Cases {
		if c.Success {
			n++
		}
	}
	return n
}

// Options tunes a Runner.
type Options struct {
	Step     step.Options
	Parallel int // cases run concurrently; <= 1 is sequential
	Recorder Recorder
	OnStep   func(caseName string, res step.Result) // may be called concurrently when Parallel > 1
	OnCase   func(res CaseResult)
}

type Runner struct {
	launcher   Launcher
	agents     AgentFactory
	classifier *classifier.Classifier
	opts       Options
	log        logger.Logger
}

func New(launcher Launcher, agents AgentFactory, c *classifier.Classifier, opts Options, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{launcher: launcher, agents: agents, classifier: c, opts: opts, log: log}
}

// RunSuite runs every case, or only the one named only. An unknown name is
// a config error; every other failure is reported inside the result.
func (r *Runner) RunSuite(ctx context.Context, cases []Case, only string) (SuiteResult, error) {
	selected := cases
	if only != "" {
		selected = nil
		for _, c := range cases {
			if c.Name == only {
				selected = []Case{c}
				break
			}
		}
		if selected == nil {
			return SuiteResult{}, errx.Newf(errx.KindConfig, "test case %q not found", only)
		}
	}

	suite := SuiteResult{RunID: uuid.NewString(), StartedAt: time.Now()}
	r.log.Info("suite started", "run", suite.RunID, "cases", len(selected), "parallel", r.opts.Parallel)

	results := make([]CaseResult, len(selected))
	if r.opts.Parallel <= 1 {
		for i, c := range selected {
			results[i] = r.RunCase(ctx, c)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Parallel)
		for i, c := range selected {
			i, c := i, c
			g.Go(func() error {
				results[i] = r.RunCase(gctx, c)
				return nil // failures live in the result
			})
		}
		_ = g.Wait()
	}

	suite.Cases = results
	suite.Success = len(results) > 0
	for _, c := range results {
		suite.Success = suite.Success && c.Success
	}
	suite.Duration = time.Since(suite.StartedAt)
	r.log.Info("suite finished", "run", suite.RunID, "passed", suite.Passed(), "total", len(results),
		"durationMs", suite.Duration.Milliseconds())
	return suite, nil
}

// RunCase runs c's steps in order in a fresh session. Steps run even after
// earlier ones fail; the case succeeds only if every step does. Session and
// capture are always released.
func (r *Runner) RunCase(ctx context.Context, c Case) (res CaseResult) {
	start := time.Now()
	log := r.log.With("case", c.Name)
	res = CaseResult{Name: c.Name, Description: c.Description, StartURL: c.StartURL}
	defer func() {
		res.Duration = time.Since(start)
		if r.opts.OnCase != nil {
			r.opts.OnCase(res)
		}
	}()

	session, err := r.launcher.Launch(ctx)
	if err != nil {
		r.abort(&res, errx.Wrap(errx.KindSession, err, "launch browser session"), log)
		return res
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("session close failed", "error", err.Error())
		}
	}()

	mon := capture.New(r.classifier, capture.WithLogger(log))
	stop, err := mon.Start(session)
	if err != nil {
		r.abort(&res, errx.Wrap(errx.KindSession, err, "subscribe to network events"), log)
		return res
	}
	defer stop()

	var agent step.ActionExecutor
	if r.agents != nil {
		a, err := r.agents(session)
		if err != nil {
			log.Err(err, "action executor unavailable")
			agent = unavailable{err: err}
		} else {
			agent = a
		}
	}

	exec := step.New(step.Config{
		Session:  session,
		Monitor:  mon,
		Agent:    agent,
		StartURL: c.StartURL,
		Options:  r.opts.Step,
		Logger:   log,
	})

	log.Info("case started", "url", c.StartURL, "steps", len(c.Steps))
	res.Success = true
	for _, def := range c.Steps {
		sr := r.runStep(ctx, exec, mon, def)
		r.record(ctx, session, c.Name, &sr, log)
		if r.opts.OnStep != nil {
			r.opts.OnStep(c.Name, sr)
		}
		res.Steps = append(res.Steps, sr)
		res.Success = res.Success && sr.Success
	}

	summary := mon.Summary()
	res.Network = &summary
	if r.opts.Recorder != nil {
		path, err := r.opts.Recorder.Flush(c.Name)
		if err != nil {
			log.Warn("journey not saved", "error", err.Error())
		}
		res.Journey = path
	}
	log.Info("case finished", "success", res.Success, "steps", len(res.Steps))
	return res
}

func (r *Runner) abort(res *CaseResult, err error, log logger.Logger) {
	res.Success = false
	res.ErrorKind = errx.KindOf(err)
	res.Error = err.Error()
	log.Err(err, "case aborted")
}

// runStep turns a panic anywhere in the step into an ERRORED result and
// leaves the monitor ready for the next step.
func (r *Runner) runStep(ctx context.Context, exec *step.Executor, mon *capture.Monitor, def step.Definition) (res step.Result) {
	defer func() {
		if p := recover(); p != nil {
			mon.EndWindow()
			res = step.Errored(def, errx.Newf(errx.KindInternal, "step panicked: %v", p))
			r.log.Error("step panicked", "step", def.Name, "panic", fmt.Sprint(p))
		}
	}()
	return exec.Run(ctx, def)
}

func (r *Runner) record(ctx context.Context, session Session, caseName string, sr *step.Result, log logger.Logger) {
	if r.opts.Recorder == nil {
		return
	}
	png, err := session.Screenshot(ctx)
	if err != nil {
		log.Warn("screenshot failed", "step", sr.Name, "error", err.Error())
		return
	}
	path, err := r.opts.Recorder.Record(caseName, *sr, png)
	if err != nil {
		log.Warn("screenshot not saved", "step", sr.Name, "error", err.Error())
		return
	}
	sr.Screenshot = path
}

// unavailable stands in for an action delegate that could not be built, so
// the affected steps error while "load page" steps still run.
type unavailable struct{ err error }

func (u unavailable) Execute(context.Context, string) error {
	return errx.Wrap(errx.KindAction, u.err, "action executor unavailable")
}
