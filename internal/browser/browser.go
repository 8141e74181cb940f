// Package browser runs isolated Chromium sessions through rod and exposes
// them as navigable, observable pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/pixellens/internal/capture"
	"github.com/v0xg/pixellens/internal/logger"
)

// Options configures launched sessions
type Options struct {
	Headless   bool
	Width      int
	Height     int
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
	Bin        string // browser binary; looked up when empty
	UserAgent  string
}

// Launcher starts one browser process per session so cases never share
// cookies, storage or in-flight requests.
type Launcher struct {
	opts Options
	log  logger.Logger
}

func NewLauncher(opts Options, log logger.Logger) *Launcher {
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 720
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Launcher{opts: opts, log: log}
}

// Launch starts a browser and opens a blank page in it.
func (l *Launcher) Launch(ctx context.Context) (*Session, error) {
	bin := l.opts.Bin
	if bin == "" {
		bin, _ = launcher.LookPath()
	}
	lc := launcher.New().Context(ctx).Headless(l.opts.Headless)
	if bin != "" {
		lc = lc.Bin(bin)
	}
	if l.opts.ProfileDir != "" {
		lc = lc.UserDataDir(l.opts.ProfileDir)
	}

	u, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	// The launcher context only bounds startup; the process lives until Close.
	lc = lc.Context(context.Background())

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		lc.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		lc.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             l.opts.Width,
		Height:            l.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err == nil && l.opts.UserAgent != "" {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.opts.UserAgent})
	}
	if err != nil {
		_ = b.Close()
		lc.Kill()
		return nil, fmt.Errorf("configure page: %w", err)
	}

	l.log.Debug("browser session started", "controlURL", u, "headless", l.opts.Headless)
	return &Session{browser: b, page: page, launcher: lc, keepProfile: l.opts.ProfileDir != "", log: l.log}, nil
}

// Session wraps the rod browser and its single page
type Session struct {
	browser     *rod.Browser
	page        *rod.Page
	launcher    *launcher.Launcher
	keepProfile bool
	log         logger.Logger
}

// Page returns the underlying rod page
func (s *Session) Page() *rod.Page {
	return s.page
}

// Navigate loads url and waits for the load event. Network-level failures
// such as DNS errors are returned as errors.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

// WaitNetworkIdle blocks until no request has been in flight for quiet, or
// ctx ends. Long-lived connections can keep a page busy forever, so callers
// bound ctx.
func (s *Session) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	wait := s.page.Context(ctx).WaitRequestIdle(quiet, nil, nil, nil)
	wait()
	return ctx.Err()
}

// Subscribe enables the Network domain and forwards request, response and
// failure events to fn, in order, on one goroutine.
func (s *Session) Subscribe(fn func(capture.Event)) (func(), error) {
	p, cancel := s.page.WithCancel()
	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		cancel()
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	wait := p.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			ev := capture.Event{
				Kind:         capture.EventRequest,
				RequestID:    string(e.RequestID),
				ResourceType: string(e.Type),
			}
			if e.Request != nil {
				ev.URL = e.Request.URL
				ev.Method = e.Request.Method
				ev.Body = e.Request.PostData
			}
			fn(ev)
		},
		func(e *proto.NetworkResponseReceived) {
			ev := capture.Event{Kind: capture.EventResponse, RequestID: string(e.RequestID)}
			if e.Response != nil {
				ev.Status = e.Response.Status
			}
			fn(ev)
		},
		func(e *proto.NetworkLoadingFailed) {
			fn(capture.Event{Kind: capture.EventFailed, RequestID: string(e.RequestID), ErrorText: e.ErrorText})
		},
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close cleans up browser resources
func (s *Session) Close() error {
	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.launcher != nil {
		s.launcher.Kill()
		if !s.keepProfile {
			s.launcher.Cleanup()
		}
	}
	s.log.Debug("browser session closed")
	return errors.Join(errs...)
}
