// Package cloud implements the ordered cloud fallback used when the local
// backend cannot serve a chat request.
package cloud

import (
	"context"
	"net/http"
	"strings"

	"llmvisor/pkg/types"
)

// Completion is a provider's answer to one chat request.
type Completion struct {
	Model        string
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is one cloud vendor.
type Provider interface {
	Name() string
	Chat(ctx context.Context, apiKey, model string, messages []types.Message) (*Completion, error)
}

// Base URLs for OpenAI-compatible vendors.
var compatibleBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"together":   "https://api.together.xyz/v1",
}

// DefaultProviders returns every built-in provider keyed by name. hc may be
// nil to use http.DefaultClient.
func DefaultProviders(hc *http.Client) map[string]Provider {
	out := map[string]Provider{
		"anthropic": NewAnthropic("", hc),
	}
	for name, base := range compatibleBaseURLs {
		out[name] = NewOpenAICompatible(name, base, hc)
	}
	return out
}

// DefaultEnvKey is the credential variable used when a chain entry names none.
func DefaultEnvKey(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}
