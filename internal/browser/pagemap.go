package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// PageMap is the interactive surface of the current page, handed to the
// action agent.
type PageMap struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Elements   []Element `json:"elements"`
	Navigation []NavItem `json:"navigation"`
	IsSPA      bool      `json:"isSPA"`
}

// Element is one visible interactive element.
type Element struct {
	Selector    string `json:"selector"`
	Type        string `json:"type"` // button, link, select, checkbox, radio or an input type
	Text        string `json:"text,omitempty"`
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
}

// NavItem is a link inside the page's navigation.
type NavItem struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Href     string `json:"href"`
}

// MapOptions bounds how long PageMap waits for the page to settle.
type MapOptions struct {
	IdleQuiet   time.Duration
	IdleTimeout time.Duration
	RenderWait  time.Duration
	MaxElements int
}

func DefaultMapOptions() MapOptions {
	return MapOptions{
		IdleQuiet:   500 * time.Millisecond,
		IdleTimeout: 5 * time.Second,
		RenderWait:  5 * time.Second,
		MaxElements: 150,
	}
}

// PageMap extracts the current page structure. It waits briefly for pending
// requests and client-side rendering, neither of which is required to finish.
func (s *Session) PageMap(ctx context.Context, opts MapOptions) (*PageMap, error) {
	page := s.page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for load: %w", err)
	}

	idle, cancel := context.WithTimeout(ctx, opts.IdleTimeout)
	_ = s.WaitNetworkIdle(idle, opts.IdleQuiet)
	cancel()

	if err := waitForInteractiveElements(ctx, page, opts.RenderWait); err != nil {
		return nil, err
	}

	info, err := page.Eval(`() => ({url: window.location.href, title: document.title})`)
	if err != nil {
		return nil, fmt.Errorf("read page info: %w", err)
	}
	spa, err := page.Eval(detectSPAJS)
	if err != nil {
		return nil, fmt.Errorf("detect framework: %w", err)
	}
	elements, err := extractElements(page, opts.MaxElements)
	if err != nil {
		return nil, err
	}
	nav, err := extractNavigation(page)
	if err != nil {
		return nil, err
	}

	return &PageMap{
		URL:        info.Value.Get("url").String(),
		Title:      info.Value.Get("title").String(),
		Elements:   elements,
		Navigation: nav,
		IsSPA:      spa.Value.Bool(),
	}, nil
}

const countVisibleJS = `() => {
	let visible = 0;
	document.querySelectorAll('button, [role="button"], input:not([type="hidden"]), textarea, a[href]')
		.forEach(el => { if (el.offsetParent) visible++; });
	return visible;
}`

// waitForInteractiveElements polls until something clickable is visible.
// Running out of time is not an error; the page may simply be static.
func waitForInteractiveElements(ctx context.Context, page *rod.Page, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for time.Now().Before(deadline) {
		res, err := page.Eval(countVisibleJS)
		if err != nil {
			return fmt.Errorf("count elements: %w", err)
		}
		if res.Value.Int() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

const detectSPAJS = `() => {
	if (window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || document.querySelector('[data-reactroot], #__next')) return true;
	if (window.__VUE__ || document.querySelector('[data-v-app]')) return true;
	if (window.ng || document.querySelector('[ng-version], app-root')) return true;
	return !!document.querySelector('[class*="svelte-"]');
}`

const extractElementsJS = `(limit) => {
	const out = [];
	const seen = new Set();
	const plain = s => !!s && !/^-?[0-9]/.test(s) && !/[.:#\[\]()>~+*\/\\]/.test(s);

	function selectorFor(el) {
		if (el.id && plain(el.id)) return '#' + el.id;
		if (el.name) return el.tagName.toLowerCase() + '[name="' + el.name + '"]';
		if (typeof el.className === 'string') {
			const cls = el.className.trim().split(/\s+/).filter(plain).slice(0, 2);
			if (cls.length) {
				const sel = el.tagName.toLowerCase() + '.' + cls.join('.');
				try { if (document.querySelectorAll(sel).length === 1) return sel; } catch (e) {}
			}
		}
		const parent = el.parentElement;
		if (!parent) return el.tagName.toLowerCase();
		const idx = Array.from(parent.children).indexOf(el) + 1;
		return selectorFor(parent) + ' > ' + el.tagName.toLowerCase() + ':nth-child(' + idx + ')';
	}

	function labelFor(el) {
		const aria = el.getAttribute('aria-label');
		if (aria) return aria.trim();
		if (el.labels && el.labels.length) return el.labels[0].textContent.trim();
		return '';
	}

	const groups = [
		['button, [role="button"], input[type="submit"], input[type="button"]', () => 'button'],
		['input[type="checkbox"], input[type="radio"]', el => el.type],
		['input:not([type="hidden"]):not([type="submit"]):not([type="button"]), textarea', el => el.type || 'text'],
		['select', () => 'select'],
		['a[href]', () => 'link'],
	];
	for (const [query, kind] of groups) {
		for (const el of document.querySelectorAll(query)) {
			if (out.length >= limit) return out;
			if (!el.offsetParent) continue;
			const href = el.getAttribute('href');
			if (href && (href.startsWith('#') || href.startsWith('javascript:'))) continue;
			const selector = selectorFor(el);
			if (seen.has(selector)) continue;
			seen.add(selector);
			out.push({
				selector,
				type: kind(el),
				text: (el.textContent || el.value || '').trim().slice(0, 60),
				label: labelFor(el).slice(0, 60),
				placeholder: el.placeholder || '',
				name: el.name || '',
				id: el.id || '',
			});
		}
	}
	return out;
}`

func extractElements(page *rod.Page, limit int) ([]Element, error) {
	res, err := page.Eval(extractElementsJS, limit)
	if err != nil {
		return nil, fmt.Errorf("extract elements: %w", err)
	}
	var elements []Element
	for _, v := range res.Value.Arr() {
		elements = append(elements, Element{
			Selector:    v.Get("selector").String(),
			Type:        v.Get("type").String(),
			Text:        v.Get("text").String(),
			Label:       v.Get("label").String(),
			Placeholder: v.Get("placeholder").String(),
			Name:        v.Get("name").String(),
			ID:          v.Get("id").String(),
		})
	}
	return elements, nil
}

const extractNavigationJS = `() => {
	const out = [];
	const seen = new Set();
	document.querySelectorAll('nav a, header a, [role="navigation"] a').forEach(el => {
		const href = el.getAttribute('href');
		if (!el.offsetParent || !href || href === '#' || href.startsWith('javascript:') || seen.has(href)) return;
		seen.add(href);
		out.push({
			selector: el.id ? '#' + el.id : 'a[href="' + href + '"]',
			text: (el.textContent || '').trim().slice(0, 30),
			href,
		});
	});
	return out;
}`

func extractNavigation(page *rod.Page) ([]NavItem, error) {
	res, err := page.Eval(extractNavigationJS)
	if err != nil {
		return nil, fmt.Errorf("extract navigation: %w", err)
	}
	var items []NavItem
	for _, v := range res.Value.Arr() {
		items = append(items, NavItem{
			Selector: v.Get("selector").String(),
			Text:     v.Get("text").String(),
			Href:     v.Get("href").String(),
		})
	}
	return items, nil
}
