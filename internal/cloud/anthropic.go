package cloud

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"llmvisor/pkg/types"
)

const anthropicMaxTokens = 4096

// Anthropic talks to the Messages API through the official SDK.
type Anthropic struct {
	baseURL string
	hc      *http.Client
}

// NewAnthropic returns a provider for baseURL; empty means the SDK default.
func NewAnthropic(baseURL string, hc *http.Client) *Anthropic {
	return &Anthropic{baseURL: baseURL, hc: hc}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Chat(ctx context.Context, apiKey, model string, messages []types.Message) (*Completion, error) {
	// The fallback chain is the retry policy; the SDK must not add its own.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	if a.hc != nil {
		opts = append(opts, option.WithHTTPClient(a.hc))
	}
	client := anthropic.NewClient(opts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			// System prompts travel in a dedicated field.
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := &Completion{
		Model:        string(msg.Model),
		Content:      text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}
