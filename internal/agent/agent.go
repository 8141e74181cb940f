// Package agent performs natural-language step actions by asking a language
// model for browser actions and running them.
package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/v0xg/pixellens/internal/browser"
	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/executor"
	"github.com/v0xg/pixellens/internal/logger"
	"github.com/v0xg/pixellens/internal/runner"
	"github.com/v0xg/pixellens/internal/step"
)

// PageSource describes the current page.
type PageSource interface {
	PageMap(ctx context.Context, opts browser.MapOptions) (*browser.PageMap, error)
}

// Options tunes an Agent.
type Options struct {
	MaxIterations int           // model round trips per instruction
	BaseDelay     time.Duration // pause after actions that carry no wait of their own
	Map           browser.MapOptions
	Logger        logger.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxIterations: 5,
		BaseDelay:     300 * time.Millisecond,
		Map:           browser.DefaultMapOptions(),
	}
}

// Agent performs one instruction at a time against a single page.
type Agent struct {
	provider Provider
	page     PageSource
	driver   executor.Driver
	limiter  *rate.Limiter
	opts     Options
	log      logger.Logger
}

// New builds an Agent. limiter is shared between agents that use the same
// provider account; nil means unlimited.
func New(p Provider, page PageSource, d executor.Driver, limiter *rate.Limiter, opts Options) *Agent {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Agent{provider: p, page: page, driver: d, limiter: limiter, opts: opts, log: log}
}

// NewLimiter allows perMinute model calls per minute with a small burst.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 2)
}

// NewFactory binds agents to rod-backed browser sessions.
func NewFactory(p Provider, limiter *rate.Limiter, opts Options) runner.AgentFactory {
	return func(s runner.Session) (step.ActionExecutor, error) {
		bs, ok := s.(*browser.Session)
		if !ok {
			return nil, fmt.Errorf("agent needs a browser session, got %T", s)
		}
		return New(p, bs, executor.NewRodDriver(bs.Page()), limiter, opts), nil
	}
}

// Execute performs instruction on the current page. It re-reads the page
// after every checkpoint and asks the model to continue, up to
// MaxIterations round trips. It fails when the model cannot be reached or
// none of its actions could be performed.
func (a *Agent) Execute(ctx context.Context, instruction string) error {
	pm, err := a.page.PageMap(ctx, a.opts.Map)
	if err != nil {
		return a.fail(ctx, err, "read page")
	}
	origin := pm.URL

	prompt, err := buildUserPrompt(pm, instruction)
	if err != nil {
		return errx.Wrap(errx.KindInternal, err, "build prompt")
	}
	actions, err := a.ask(ctx, prompt)
	if err != nil {
		return a.fail(ctx, err, "generate actions")
	}
	if len(actions) == 0 {
		return errx.Newf(errx.KindAction, "no actions generated for %q", instruction)
	}

	var completed []executor.Action
	var failures []executor.Failure
	for iter := 1; iter <= a.opts.MaxIterations && len(actions) > 0; iter++ {
		actions = a.confine(actions, origin)
		a.log.Debug("executing actions", "iteration", iter, "count", len(actions))

		res, err := executor.ExecuteBatch(ctx, a.driver, actions, executor.Options{
			BaseDelay: a.opts.BaseDelay,
			Logger:    a.log,
		})
		completed = append(completed, res.Completed...)
		failures = append(failures, res.Failed...)
		if err != nil {
			return err
		}
		if !res.HitCheckpoint || iter == a.opts.MaxIterations {
			break
		}

		if pm, err = a.page.PageMap(ctx, a.opts.Map); err != nil {
			return a.fail(ctx, err, "re-read page")
		}
		if prompt, err = buildContinuePrompt(pm, instruction, completed); err != nil {
			return errx.Wrap(errx.KindInternal, err, "build prompt")
		}
		if actions, err = a.ask(ctx, prompt); err != nil {
			return a.fail(ctx, err, "continue actions")
		}
	}

	if len(completed) == 0 {
		msg := "no action could be performed"
		if len(failures) > 0 {
			msg += ": " + failures[0].Err.Error()
		}
		return errx.New(errx.KindAction, msg)
	}
	if len(failures) > 0 {
		a.log.Warn("some actions failed", "instruction", instruction, "failed", len(failures), "completed", len(completed))
	}
	return nil
}

func (a *Agent) ask(ctx context.Context, prompt string) ([]executor.Action, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	text, err := a.provider.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	actions, err := parseActions(text)
	if err != nil {
		a.log.Debug("unparseable model response", "provider", a.provider.Name(), "response", text)
		return nil, err
	}
	return actions, nil
}

// fail keeps context errors intact so the step can report a timeout.
func (a *Agent) fail(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errx.Wrap(errx.KindAction, err, msg)
}

// confine drops navigate actions that would leave the site under test and
// makes relative targets absolute.
func (a *Agent) confine(actions []executor.Action, origin string) []executor.Action {
	out := actions[:0:0]
	for _, act := range actions {
		if act.Type == "navigate" {
			target, ok := onSite(origin, act.URL)
			if !ok {
				a.log.Warn("dropping off-site navigation", "from", origin, "to", act.URL)
				continue
			}
			act.URL = target
		}
		out = append(out, act)
	}
	return out
}

// SameSite reports whether target, resolved against origin, stays on
// origin's host or one of its subdomains. A leading "www." is ignored.
func SameSite(origin, target string) bool {
	_, ok := onSite(origin, target)
	return ok
}

func onSite(origin, target string) (string, bool) {
	base, err := url.Parse(origin)
	if err != nil || base.Host == "" {
		return "", false
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	site := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	host := strings.ToLower(u.Hostname())
	if host != site && !strings.HasSuffix(host, "."+site) {
		return "", false
	}
	return u.String(), true
}
