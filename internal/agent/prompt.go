package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/v0xg/pixellens/internal/browser"
	"github.com/v0xg/pixellens/internal/executor"
)

const systemPrompt = `You drive a web browser for an analytics QA tool. Each request describes ONE user interaction (for example "click the first product", "add the item to the cart", "search for shoes"). The tool watches which tracking pixels fire while you perform it, so do exactly what was asked and nothing more.

You will receive:
1. A page map containing the URL, title and the visible interactive elements (buttons, inputs, links, selects)
2. The interaction to perform

Output a JSON array of actions. Each action has:
- "action": one of "click", "type", "select", "press", "scroll", "hover", "wait", "navigate"
- "selector": CSS selector for the target element (required for click, type, select, hover)
- "text": text to type, option label to select, or key to press ("Enter", "Tab", "Escape")
- "x", "y": offsets in pixels for scroll
- "url": URL for navigate, only when the request explicitly asks to go to a page
- "wait": milliseconds to wait after the action
- "checkpoint": true if this action changes the page significantly (see below)

Rules:
- Stay on the current website. Never navigate to another domain.
- Perform only the requested interaction. Do not explore, dismiss unrelated popups, or continue a funnel beyond what was asked.
- Use only selectors from the provided page map.
- Never enter real payment details. Use obvious test data when a form must be filled.

Checkpoints:
Set "checkpoint": true on actions that load new content: clicks that open modals, drawers or menus, links or buttons that change routes, form submissions, and navigate actions. Only generate actions up to and including the FIRST checkpoint; the page will be re-analyzed and you may be asked to continue.

Example (needs a checkpoint):
[
  {"action": "click", "selector": "a.product-card", "wait": 1500, "checkpoint": true}
]

Example (no checkpoint needed):
[
  {"action": "type", "selector": "#search", "text": "shoes", "wait": 100},
  {"action": "press", "text": "Enter", "wait": 1500, "checkpoint": true}
]

Respond ONLY with the JSON array, no explanation or markdown.`

const continuePrompt = `You are continuing the same interaction. The page has changed since the last actions were executed.

Previously completed actions:
%s

Requested interaction: %s

Generate the NEXT batch of actions using only selectors from the NEW page map, following the same rules and stopping at the first checkpoint.

If the requested interaction is complete, you MUST return an empty array: []
Do not add waits or clicks just to have something to do.

Respond ONLY with the JSON array, no explanation or markdown.`

func buildUserPrompt(pm *browser.PageMap, instruction string) (string, error) {
	data, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal page map: %w", err)
	}
	return "Page map:\n" + string(data) + "\n\nInteraction: " + instruction, nil
}

func buildContinuePrompt(pm *browser.PageMap, instruction string, completed []executor.Action) (string, error) {
	data, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal page map: %w", err)
	}
	return "Page map:\n" + string(data) + "\n\n" + fmt.Sprintf(continuePrompt, formatCompleted(completed), instruction), nil
}

func formatCompleted(actions []executor.Action) string {
	if len(actions) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, a := range actions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseActions extracts the JSON array from a response that may wrap it in
// prose or a code fence.
func parseActions(response string) ([]executor.Action, error) {
	var actions []executor.Action
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &actions); err == nil {
		return actions, nil
	}

	start := strings.Index(response, "[")
	if start == -1 {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	depth, end := 0, -1
	inString, escaped := false, false
scan:
	for i := start; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				end = i + 1
				break scan
			}
		}
	}
	if end == -1 {
		return nil, fmt.Errorf("no matching closing bracket found")
	}

	if err := json.Unmarshal([]byte(response[start:end]), &actions); err != nil {
		return nil, fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return actions, nil
}
