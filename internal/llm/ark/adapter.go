package ark

import (
	"strings"

	"github.com/nulzo/streamchat/internal/llm"
	"github.com/nulzo/streamchat/internal/llm/openai"
	"github.com/nulzo/streamchat/pkg/api"
)

const (
	Endpoint = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	Model    = "doubao-seed-1-6-250615"
)

func init() {
	llm.Register(NewAdapter())
}

// Adapter targets the Volcengine Ark chat API. Ark is OpenAI compatible but
// pins the model and authenticates with its own key.
type Adapter struct {
	spec llm.Spec
}

func NewAdapter() *Adapter {
	return &Adapter{spec: llm.Spec{ID: api.Ark, Endpoint: Endpoint, MaxTokens: 4096, Model: Model}}
}

func (a *Adapter) Spec() llm.Spec { return a.spec }

// Endpoint honours a configured base URL such as
// "https://ark.cn-beijing.volces.com/api/v3".
func (a *Adapter) Endpoint(s api.Settings) string {
	if s.ArkBaseURL != "" {
		return strings.TrimRight(s.ArkBaseURL, "/") + "/chat/completions"
	}
	return a.spec.Endpoint
}

func (a *Adapter) Credential(s api.Settings) llm.Credential {
	return llm.Credential{Field: "arkApiKey", Value: s.ArkAPIKey}
}

func (a *Adapter) Headers(key string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + key,
	}
}

func (a *Adapter) BuildRequest(messages []api.Message, s api.Settings, opts llm.RequestOptions) (interface{}, error) {
	if err := llm.RequireStream(opts); err != nil {
		return nil, err
	}
	return &openai.ChatRequest{
		Model:       a.spec.Model,
		Messages:    messages,
		Temperature: s.Temperature,
		MaxTokens:   a.spec.MaxTokens,
		Stream:      true,
	}, nil
}

func (a *Adapter) ParseChunk(payload []byte) (string, error) {
	return openai.ParseChunk(payload)
}

var _ llm.Provider = (*Adapter)(nil)
