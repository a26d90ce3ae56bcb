package api

// Settings is the user-facing LLM configuration. It is read fresh for every
// streaming call so that provider or key changes apply to the next message.
type Settings struct {
	Provider    ProviderID `json:"provider" mapstructure:"provider" validate:"required,provider"`
	Model       string     `json:"model" mapstructure:"model"`
	APIKey      string     `json:"apiKey" mapstructure:"apiKey"`
	Temperature float64    `json:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	ArkAPIKey   string     `json:"arkApiKey" mapstructure:"arkApiKey"`
	ArkBaseURL  string     `json:"arkBaseUrl" mapstructure:"arkBaseUrl" validate:"omitempty,url"`
}

// DefaultSettings mirrors the values used when nothing has been saved yet.
func DefaultSettings() Settings {
	return Settings{
		Provider:    DeepSeek,
		Model:       "deepseek-chat",
		Temperature: 0.7,
	}
}

// Redacted returns a copy safe to hand back to clients.
func (s Settings) Redacted() Settings {
	s.APIKey = redact(s.APIKey)
	s.ArkAPIKey = redact(s.ArkAPIKey)
	return s
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}
