package openai

import (
	"encoding/json"

	"github.com/nulzo/streamchat/internal/llm"
	"github.com/nulzo/streamchat/pkg/api"
)

const (
	DeepSeekEndpoint = "https://api.deepseek.com/v1/chat/completions"
	OpenAIEndpoint   = "https://api.openai.com/v1/chat/completions"
)

func init() {
	llm.Register(NewAdapter(llm.Spec{ID: api.DeepSeek, Endpoint: DeepSeekEndpoint, MaxTokens: 4000}))
	llm.Register(NewAdapter(llm.Spec{ID: api.OpenAI, Endpoint: OpenAIEndpoint, MaxTokens: 2000}))
}

// Adapter speaks the OpenAI chat completions protocol. DeepSeek exposes the
// same protocol, so both are served by this type with different specs.
type Adapter struct {
	spec llm.Spec
}

func NewAdapter(spec llm.Spec) *Adapter {
	return &Adapter{spec: spec}
}

// ChatRequest is the chat completions request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []api.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// StreamChunk is one chat.completion.chunk event.
type StreamChunk struct {
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (a *Adapter) Spec() llm.Spec { return a.spec }

func (a *Adapter) Endpoint(api.Settings) string { return a.spec.Endpoint }

func (a *Adapter) Credential(s api.Settings) llm.Credential {
	return llm.Credential{Field: "apiKey", Value: s.APIKey}
}

func (a *Adapter) Headers(key string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + key,
	}
}

// BuildRequest keeps the system message inline as the first entry.
func (a *Adapter) BuildRequest(messages []api.Message, s api.Settings, opts llm.RequestOptions) (interface{}, error) {
	if err := llm.RequireStream(opts); err != nil {
		return nil, err
	}
	return &ChatRequest{
		Model:       llm.ModelFor(a.spec, s),
		Messages:    messages,
		Temperature: s.Temperature,
		MaxTokens:   a.spec.MaxTokens,
		Stream:      true,
	}, nil
}

func (a *Adapter) ParseChunk(payload []byte) (string, error) {
	return ParseChunk(payload)
}

// ParseChunk returns choices[0].delta.content, or "" when any part of that
// path is absent.
func ParseChunk(payload []byte) (string, error) {
	var chunk StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", err
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

var _ llm.Provider = (*Adapter)(nil)
