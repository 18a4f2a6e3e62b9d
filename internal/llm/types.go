package llm

import "context"

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a single text-generation request. System prompt, token limit
// and temperature are optional; providers apply their own defaults.
type Request struct {
	Model        string    `json:"model,omitempty"`
	Messages     []Message `json:"messages"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
}

// Provider is one configured LLM backend. Cancellation and timeouts are the
// provider's responsibility; callers pass a plain context.
type Provider interface {
	ID() string
	Name() string
	Generate(ctx context.Context, req *Request) (string, error)
}

// Client is the generation contract consumed by the pipeline components.
// The Router satisfies it, as does any single Provider wrapped by it.
type Client interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// Config holds settings for a provider instance.
type Config struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // "anthropic" or "openai"
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}
