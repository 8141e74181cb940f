package executor

import "fmt"

// Action represents a single browser automation action
type Action struct {
	Type       string `json:"action"`               // click, type, select, press, scroll, hover, wait, navigate
	Selector   string `json:"selector,omitempty"`   // CSS selector for the target element
	Text       string `json:"text,omitempty"`       // text to type, option to select or key to press
	X          int    `json:"x,omitempty"`          // horizontal scroll offset
	Y          int    `json:"y,omitempty"`          // vertical scroll offset
	URL        string `json:"url,omitempty"`        // URL for navigate action
	Duration   int    `json:"wait,omitempty"`       // wait duration in ms after action
	Checkpoint bool   `json:"checkpoint,omitempty"` // page changes after this action; re-read it before continuing
}

func (a Action) String() string {
	switch a.Type {
	case "type":
		return fmt.Sprintf("type %q into %s", a.Text, a.Selector)
	case "select":
		return fmt.Sprintf("select %q in %s", a.Text, a.Selector)
	case "press":
		return "press " + a.Text
	case "scroll":
		return fmt.Sprintf("scroll by %d,%d", a.X, a.Y)
	case "wait":
		return fmt.Sprintf("wait %dms", a.Duration)
	case "navigate":
		return "navigate to " + a.URL
	default:
		return a.Type + " " + a.Selector
	}
}
