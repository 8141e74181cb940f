package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver performs actions on a rod page.
type RodDriver struct {
	page *rod.Page
	// ElementTimeout bounds the wait for a selector to appear.
	ElementTimeout time.Duration
}

func NewRodDriver(page *rod.Page) *RodDriver {
	return &RodDriver{page: page, ElementTimeout: 5 * time.Second}
}

func (r *RodDriver) element(ctx context.Context, selector string) (*rod.Element, error) {
	if selector == "" {
		return nil, fmt.Errorf("missing selector")
	}
	el, err := r.page.Context(ctx).Timeout(r.ElementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s", selector)
	}
	// Drop the lookup timeout so it does not cut the action itself short.
	el = el.CancelTimeout().Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return nil, err
	}
	return el, nil
}

func (r *RodDriver) Click(ctx context.Context, selector string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (r *RodDriver) Type(ctx context.Context, selector, text string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (r *RodDriver) Select(ctx context.Context, selector, option string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Select([]string{option}, true, rod.SelectorTypeText)
}

var keys = map[string]input.Key{
	"enter":     input.Enter,
	"tab":       input.Tab,
	"escape":    input.Escape,
	"esc":       input.Escape,
	"space":     input.Space,
	"backspace": input.Backspace,
	"arrowdown": input.ArrowDown,
	"arrowup":   input.ArrowUp,
}

func (r *RodDriver) Press(ctx context.Context, key string) error {
	k, ok := keys[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("unsupported key: %s", key)
	}
	return r.page.Context(ctx).Keyboard.Type(k)
}

func (r *RodDriver) Scroll(ctx context.Context, dx, dy int) error {
	return r.page.Context(ctx).Mouse.Scroll(float64(dx), float64(dy), 10)
}

func (r *RodDriver) Hover(ctx context.Context, selector string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Hover()
}

func (r *RodDriver) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}
