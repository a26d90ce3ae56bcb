package api

// ProviderID identifies an upstream LLM API.
type ProviderID string

const (
	DeepSeek  ProviderID = "deepseek"
	OpenAI    ProviderID = "openai"
	Anthropic ProviderID = "anthropic"
	Ark       ProviderID = "ark"
)

// Providers returns every supported provider in a stable order.
func Providers() []ProviderID {
	return []ProviderID{DeepSeek, OpenAI, Anthropic, Ark}
}

// Valid reports whether p is one of the supported providers.
func (p ProviderID) Valid() bool {
	switch p {
	case DeepSeek, OpenAI, Anthropic, Ark:
		return true
	}
	return false
}

func (p ProviderID) String() string {
	return string(p)
}
