package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider turns a system and user prompt into a model completion.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewProvider creates a provider by name. An empty name uses
// PIXELLENS_DEFAULT_PROVIDER, then claude.
func NewProvider(name, model string) (Provider, error) {
	if name == "" {
		name = os.Getenv("PIXELLENS_DEFAULT_PROVIDER")
	}
	switch strings.ToLower(name) {
	case "", "claude", "anthropic":
		return NewClaudeProvider(model)
	case "openai", "gpt":
		return NewOpenAIProvider(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}

func envKey(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
