package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/nulzo/streamchat/internal/llm"
	"github.com/nulzo/streamchat/pkg/api"
)

const (
	Endpoint = "https://api.anthropic.com/v1/messages"
	Version  = "2023-06-01"

	eventContentBlockDelta = "content_block_delta"
)

func init() {
	llm.Register(NewAdapter())
}

type Adapter struct {
	spec llm.Spec
}

func NewAdapter() *Adapter {
	return &Adapter{spec: llm.Spec{ID: api.Anthropic, Endpoint: Endpoint, MaxTokens: 2000}}
}

type Message struct {
	Role    api.Role `json:"role"`
	Content string   `json:"content"`
}

// Request is the messages API body. The system prompt travels out of band.
type Request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type StreamEvent struct {
	Type  string `json:"type"`
	Delta *Delta `json:"delta,omitempty"`
}

type Delta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (a *Adapter) Spec() llm.Spec { return a.spec }

func (a *Adapter) Endpoint(api.Settings) string { return a.spec.Endpoint }

func (a *Adapter) Credential(s api.Settings) llm.Credential {
	return llm.Credential{Field: "apiKey", Value: s.APIKey}
}

func (a *Adapter) Headers(key string) map[string]string {
	return map[string]string{
		"x-api-key":         key,
		"anthropic-version": Version,
	}
}

// BuildRequest moves system messages into the top-level system field and
// keeps only user and assistant turns in the list.
func (a *Adapter) BuildRequest(messages []api.Message, s api.Settings, opts llm.RequestOptions) (interface{}, error) {
	if err := llm.RequireStream(opts); err != nil {
		return nil, err
	}

	req := &Request{
		Model:       llm.ModelFor(a.spec, s),
		Temperature: s.Temperature,
		MaxTokens:   a.spec.MaxTokens,
		Stream:      true,
		Messages:    make([]Message, 0, len(messages)),
	}

	var system []string
	for _, m := range messages {
		if m.Role == api.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, Message{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")

	return req, nil
}

// ParseChunk only reads text from content_block_delta events.
func (a *Adapter) ParseChunk(payload []byte) (string, error) {
	var event StreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", err
	}
	if event.Type != eventContentBlockDelta || event.Delta == nil {
		return "", nil
	}
	return event.Delta.Text, nil
}

var _ llm.Provider = (*Adapter)(nil)
