// Package executor performs browser actions produced by the agent.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/v0xg/pixellens/internal/logger"
)

// Driver performs primitive actions on a page.
type Driver interface {
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Select(ctx context.Context, selector, option string) error
	Press(ctx context.Context, key string) error
	Scroll(ctx context.Context, dx, dy int) error
	Hover(ctx context.Context, selector string) error
	Navigate(ctx context.Context, url string) error
}

// Options configures execution behavior
type Options struct {
	BaseDelay time.Duration // pause after each action without its own wait
	Logger    logger.Logger
}

// Failure is an action that could not be performed.
type Failure struct {
	Action Action
	Err    error
}

// Result holds the outcome of executing a batch of actions
type Result struct {
	Completed       []Action
	Failed          []Failure
	HitCheckpoint   bool
	CheckpointIndex int // index of the checkpoint action that was hit, -1 if none
}

// ExecuteBatch runs actions until a checkpoint is hit or all actions
// complete. A failed action is recorded and skipped. The only error returned
// is ctx's.
func ExecuteBatch(ctx context.Context, d Driver, actions []Action, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	result := &Result{CheckpointIndex: -1}

	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := perform(ctx, d, action); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			log.Debug("action failed", "index", i+1, "of", len(actions), "action", action.String(), "error", err.Error())
			result.Failed = append(result.Failed, Failure{Action: action, Err: err})
			continue
		}
		log.Debug("action done", "index", i+1, "of", len(actions), "action", action.String(), "checkpoint", action.Checkpoint)
		result.Completed = append(result.Completed, action)

		wait := opts.BaseDelay
		if action.Duration > 0 && action.Type != "wait" {
			wait = time.Duration(action.Duration) * time.Millisecond
		}
		if err := sleep(ctx, wait); err != nil {
			return result, err
		}

		// A checkpoint means the page changed; stop so it can be re-read.
		if action.Checkpoint {
			result.HitCheckpoint = true
			result.CheckpointIndex = i
			break
		}
	}
	return result, nil
}

func perform(ctx context.Context, d Driver, a Action) error {
	switch a.Type {
	case "click":
		return d.Click(ctx, a.Selector)
	case "type":
		return d.Type(ctx, a.Selector, a.Text)
	case "select":
		return d.Select(ctx, a.Selector, a.Text)
	case "press":
		return d.Press(ctx, a.Text)
	case "scroll":
		return d.Scroll(ctx, a.X, a.Y)
	case "hover":
		return d.Hover(ctx, a.Selector)
	case "wait":
		return sleep(ctx, time.Duration(a.Duration)*time.Millisecond)
	case "navigate":
		if a.URL == "" {
			return fmt.Errorf("navigate without url")
		}
		return d.Navigate(ctx, a.URL)
	default:
		return fmt.Errorf("unknown action type: %s", a.Type)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
