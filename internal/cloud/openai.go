package cloud

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"llmvisor/pkg/types"
)

// OpenAICompatible talks to OpenAI or any vendor exposing the same
// chat completions API.
type OpenAICompatible struct {
	name    string
	baseURL string
	hc      *http.Client
}

func NewOpenAICompatible(name, baseURL string, hc *http.Client) *OpenAICompatible {
	return &OpenAICompatible{name: name, baseURL: baseURL, hc: hc}
}

func (p *OpenAICompatible) Name() string { return p.name }

func (p *OpenAICompatible) Chat(ctx context.Context, apiKey, model string, messages []types.Message) (*Completion, error) {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = p.baseURL
	if p.hc != nil {
		config.HTTPClient = p.hc
	}
	client := openai.NewClientWithConfig(config)

	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat completion failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices returned", p.name)
	}
	out := &Completion{
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}
