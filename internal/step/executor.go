package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/logger"
	"github.com/v0xg/pixellens/internal/pixel"
)

// Options holds the defaults applied to steps that do not override them.
type Options struct {
	Timeout         time.Duration // whole step bound
	SettleDelay     time.Duration // fixed wait after the action
	WaitNetworkIdle bool
	IdleQuiet       time.Duration // quiet period that counts as idle
	IdleTimeout     time.Duration // give up waiting for idle after this
	Grace           time.Duration // how long a cancelled action may take to return
}

// DefaultOptions mirrors the defaults of a suite file without default_config.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		SettleDelay:     2 * time.Second,
		WaitNetworkIdle: true,
		IdleQuiet:       500 * time.Millisecond,
		IdleTimeout:     10 * time.Second,
		Grace:           2 * time.Second,
	}
}

// Config wires an Executor to one test case's session.
type Config struct {
	Session  Session
	Monitor  Monitor
	Agent    ActionExecutor
	StartURL string
	Options  Options
	Logger   logger.Logger
}

// Executor runs the steps of one test case, one at a time. It is not safe
// for concurrent use: the page belongs to the current step.
type Executor struct {
	cfg Config
	log logger.Logger
	now func() time.Time
}

func New(cfg Config) *Executor {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{cfg: cfg, log: log, now: time.Now}
}

// Run executes def and always returns a terminal result. Action, navigation
// and timeout failures yield ERRORED with whatever was captured so far still
// drained and evaluated.
func (e *Executor) Run(ctx context.Context, def Definition) Result {
	start := e.now()
	res := Result{Name: def.Name, Action: def.Action, Expected: dedupe(def.Expect)}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Options.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e.transition(def, StatusPending, StatusActing)
	if err := e.cfg.Monitor.BeginWindow(def.Name); err != nil {
		res = Errored(def, errx.Wrap(errx.KindInternal, err, "open capture window"))
		res.Duration = e.now().Sub(start)
		return res
	}

	state := StatusActing
	stepErr := e.act(ctx, def)
	if stepErr == nil {
		e.transition(def, state, StatusSettling)
		state = StatusSettling
		stepErr = e.settle(ctx, def)
	}

	e.cfg.Monitor.EndWindow()
	e.transition(def, state, StatusEvaluating)

	pixels, err := e.cfg.Monitor.Drain()
	if err != nil && stepErr == nil {
		stepErr = errx.Wrap(errx.KindInternal, err, "drain capture window")
	}
	if reqs, err := e.cfg.Monitor.WindowRequests(); err == nil {
		res.Requests = len(reqs)
	}
	res.Pixels = pixels
	res.Detected = pixel.Labels(pixels)
	res.Passed, res.Failed, res.Extra = Reconcile(res.Expected, pixels)

	switch {
	case stepErr != nil:
		res.Status = StatusErrored
		res.ErrorKind = errx.KindOf(stepErr)
		res.Error = stepErr.Error()
	case len(res.Failed) == 0:
		res.Status = StatusPassed
		res.Success = true
	default:
		res.Status = StatusFailed
	}
	res.Duration = e.now().Sub(start)
	e.transition(def, StatusEvaluating, res.Status)

	fields := []any{"step", def.Name, "status", res.Status, "detected", res.Detected, "missing", res.Failed,
		"durationMs", res.Duration.Milliseconds()}
	if stepErr != nil {
		e.log.Err(stepErr, "step errored", fields...)
	} else {
		e.log.Info("step finished", fields...)
	}
	return res
}

func (e *Executor) transition(def Definition, from, to Status) {
	e.log.Debug("step transition", "step", def.Name, "from", from, "to", to)
}

// act runs the action in its own goroutine so a delegate that ignores
// cancellation cannot hold the step past its deadline for longer than Grace.
func (e *Executor) act(ctx context.Context, def Definition) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errx.Newf(errx.KindInternal, "action panicked: %v", r)
			}
		}()
		done <- e.dispatch(ctx, def)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() != nil {
			return ctxError(ctx, "action")
		}
		return err
	case <-ctx.Done():
		grace := e.cfg.Options.Grace
		select {
		case <-done:
		case <-time.After(grace):
			e.log.Warn("action still running after cancellation", "step", def.Name, "graceMs", grace.Milliseconds())
		}
		return ctxError(ctx, "action")
	}
}

func (e *Executor) dispatch(ctx context.Context, def Definition) error {
	if def.IsLoadPage() {
		if err := e.cfg.Session.Navigate(ctx, e.cfg.StartURL); err != nil {
			return errx.Wrap(errx.KindNavigation, err, "navigate to "+e.cfg.StartURL)
		}
		return nil
	}
	if e.cfg.Agent == nil {
		return errx.New(errx.KindAction, "no action executor configured")
	}
	if err := e.cfg.Agent.Execute(ctx, def.Action); err != nil {
		var coded *errx.Error
		if errors.As(err, &coded) {
			return err
		}
		return errx.Wrap(errx.KindAction, err, "execute action")
	}
	return nil
}

// settle waits the fixed delay and then, best effort, for network idle.
// Not reaching idle is logged, not an error; only the step deadline is.
func (e *Executor) settle(ctx context.Context, def Definition) error {
	delay := def.SettleDelay
	if delay <= 0 {
		delay = e.cfg.Options.SettleDelay
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctxError(ctx, "settle delay")
		}
	}

	waitIdle := e.cfg.Options.WaitNetworkIdle
	if def.WaitNetworkIdle != nil {
		waitIdle = *def.WaitNetworkIdle
	}
	if !waitIdle {
		return nil
	}
	idleCtx := ctx
	if e.cfg.Options.IdleTimeout > 0 {
		var cancel context.CancelFunc
		idleCtx, cancel = context.WithTimeout(ctx, e.cfg.Options.IdleTimeout)
		defer cancel()
	}
	if err := e.cfg.Session.WaitNetworkIdle(idleCtx, e.cfg.Options.IdleQuiet); err != nil {
		if ctx.Err() != nil {
			return ctxError(ctx, "network idle wait")
		}
		e.log.Warn("network did not go idle", "step", def.Name, "error", err.Error())
	}
	return nil
}

func ctxError(ctx context.Context, phase string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errx.Wrap(errx.KindTimeout, ctx.Err(), fmt.Sprintf("step timed out during %s", phase))
	}
	return errx.Wrap(errx.KindCancelled, ctx.Err(), fmt.Sprintf("step cancelled during %s", phase))
}
