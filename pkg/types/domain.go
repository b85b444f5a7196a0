package types

import "time"

// Message is one chat turn in the Ollama/OpenAI shape.
type Message struct {
	// example: user
	Role string `json:"role" example:"user"`
	// example: Summarize this paragraph.
	Content string `json:"content" example:"Summarize this paragraph."`
}

// CostEntry is one priced cloud completion. Entries are append-only.
type CostEntry struct {
	// example: anthropic
	Provider string `json:"provider" example:"anthropic"`
	// example: claude-3-5-haiku-latest
	Model        string    `json:"model" example:"claude-3-5-haiku-latest"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// AlertKindGuardianExhausted marks a service whose restart budget ran out.
const AlertKindGuardianExhausted = "guardian_exhausted"

// Alert is a persisted operator notification. Alerts are append-only.
type Alert struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}
