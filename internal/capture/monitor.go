// Package capture records a browsing session's network traffic and hands it
// out in step-scoped windows.
package capture

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/v0xg/pixellens/internal/classifier"
	"github.com/v0xg/pixellens/internal/logger"
	"github.com/v0xg/pixellens/internal/pixel"
)

var (
	ErrWindowOpen = errors.New("capture window already open")
	ErrNoWindow   = errors.New("no closed capture window")
	ErrNotStarted = errors.New("monitor not started")
)

// EventKind distinguishes the network events a Source delivers.
type EventKind int

const (
	EventRequest EventKind = iota
	EventResponse
	EventFailed
)

// Event is one network event from the browsing session.
type Event struct {
	Kind         EventKind
	RequestID    string
	URL          string
	Method       string
	Body         string
	ResourceType string
	Status       int
	ErrorText    string
}

// Source delivers network events to a single subscriber, in order, until
// stop is called.
type Source interface {
	Subscribe(fn func(Event)) (stop func(), err error)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now for request and window timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the monitor's logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

type window struct {
	seq   int
	name  string
	start time.Time
	end   time.Time
	open  bool
}

// Monitor owns an append-only buffer of captured requests. Recording never
// blocks on classification: requests are classified only when a closed
// window is drained.
type Monitor struct {
	classifier *classifier.Classifier
	log        logger.Logger
	now        func() time.Time

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	requests  []pixel.Request
	windowOf  []int // window seq per request, 0 outside any window
	index     map[string]int
	win       *window
	seq       int
}

func New(c *classifier.Classifier, opts ...Option) *Monitor {
	m := &Monitor{
		classifier: c,
		log:        logger.Nop(),
		now:        time.Now,
		index:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to src. The returned stop is idempotent; after it runs,
// late events are ignored.
func (m *Monitor) Start(src Source) (func(), error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil, errors.New("monitor already started")
	}
	m.started = true
	m.startedAt = m.now()
	m.mu.Unlock()

	unsubscribe, err := src.Subscribe(m.Record)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			m.mu.Lock()
			m.stopped = true
			m.mu.Unlock()
		})
	}, nil
}

// Record appends or correlates one network event.
func (m *Monitor) Record(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if !m.started {
		m.started = true
		m.startedAt = m.now()
	}

	switch ev.Kind {
	case EventRequest:
		req := pixel.Request{
			ID:           ev.RequestID,
			URL:          ev.URL,
			Method:       ev.Method,
			Body:         ev.Body,
			ResourceType: ev.ResourceType,
			Timestamp:    m.now(),
		}
		seq := 0
		if m.win != nil && m.win.open {
			req.Window = m.win.name
			seq = m.win.seq
		}
		m.requests = append(m.requests, req)
		m.windowOf = append(m.windowOf, seq)
		if ev.RequestID != "" {
			m.index[ev.RequestID] = len(m.requests) - 1
		}
	case EventResponse:
		if i, ok := m.index[ev.RequestID]; ok {
			m.requests[i].Status = ev.Status
		}
	case EventFailed:
		if i, ok := m.index[ev.RequestID]; ok {
			m.requests[i].Failed = true
			m.requests[i].ErrorText = ev.ErrorText
		}
	}
}

// BeginWindow opens a named capture window. Windows never overlap: a request
// belongs to the window that was open when it was recorded, or to none.
func (m *Monitor) BeginWindow(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.win != nil && m.win.open {
		return ErrWindowOpen
	}
	m.seq++
	m.win = &window{seq: m.seq, name: name, start: m.now(), open: true}
	m.log.Debug("capture window opened", "window", name, "buffered", len(m.requests))
	return nil
}

// EndWindow closes the open window. Closing an already closed window is a
// no-op so a timed-out step can force-close unconditionally.
func (m *Monitor) EndWindow() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.win == nil || !m.win.open {
		return
	}
	m.win.end = m.now()
	m.win.open = false
	m.log.Debug("capture window closed", "window", m.win.name,
		"elapsedMs", m.win.end.Sub(m.win.start).Milliseconds())
}

// Drain classifies the requests of the last closed window and returns the
// tracking pixels among them, duplicates collapsed, in capture order.
func (m *Monitor) Drain() ([]pixel.Pixel, error) {
	reqs, err := m.WindowRequests()
	if err != nil {
		return nil, err
	}

	var out []pixel.Pixel
	seen := make(map[string]int)
	for _, r := range reqs {
		p := m.classifier.Classify(r)
		if !p.Classified() {
			continue
		}
		key := p.DedupKey()
		if i, dup := seen[key]; dup {
			out[i].Count++
			continue
		}
		p.Count = 1
		seen[key] = len(out)
		out = append(out, p)
	}
	return out, nil
}

// WindowRequests returns every request recorded while the last closed
// window was open, classified or not.
func (m *Monitor) WindowRequests() ([]pixel.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.win == nil {
		return nil, ErrNoWindow
	}
	if m.win.open {
		return nil, ErrWindowOpen
	}
	var out []pixel.Request
	for i, r := range m.requests {
		if m.windowOf[i] == m.win.seq {
			out = append(out, r)
		}
	}
	return out, nil
}

// History returns every captured request with its classification.
func (m *Monitor) History() []pixel.Pixel {
	m.mu.Lock()
	reqs := make([]pixel.Request, len(m.requests))
	copy(reqs, m.requests)
	m.mu.Unlock()

	out := make([]pixel.Pixel, len(reqs))
	for i, r := range reqs {
		out[i] = m.classifier.Classify(r)
	}
	return out
}

// Summary describes all traffic captured so far.
type Summary struct {
	TotalRequests    int             `json:"totalRequests"`
	TrackingRequests int             `json:"trackingRequests"`
	ByPlatform       map[string]int  `json:"pixelsByPlatform"`
	Timeline         []TimelineEntry `json:"timeline"`
}

// TimelineEntry is one tracking request relative to the start of capture.
type TimelineEntry struct {
	OffsetMS int64  `json:"offsetMs"`
	Window   string `json:"window,omitempty"`
	Label    string `json:"label"`
	URL      string `json:"url"`
	Status   int    `json:"status,omitempty"`
	Failed   bool   `json:"failed,omitempty"`
}

func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	startedAt := m.startedAt
	m.mu.Unlock()

	all := m.History()
	s := Summary{TotalRequests: len(all), ByPlatform: make(map[string]int)}
	for _, p := range all {
		if !p.Classified() {
			continue
		}
		s.TrackingRequests++
		s.ByPlatform[p.Platform()]++
		s.Timeline = append(s.Timeline, TimelineEntry{
			OffsetMS: p.Request.Timestamp.Sub(startedAt).Milliseconds(),
			Window:   p.Request.Window,
			Label:    p.Label(),
			URL:      p.Request.URL,
			Status:   p.Request.Status,
			Failed:   p.Request.Failed,
		})
	}
	sort.SliceStable(s.Timeline, func(i, j int) bool { return s.Timeline[i].OffsetMS < s.Timeline[j].OffsetMS })
	return s
}
