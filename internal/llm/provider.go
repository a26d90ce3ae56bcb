package llm

import (
	"github.com/nulzo/streamchat/pkg/api"
)

// Spec is the static registry entry for one provider.
type Spec struct {
	ID       api.ProviderID
	Endpoint string
	// MaxTokens is the default cap on output tokens sent with every request.
	MaxTokens int
	// Model, when set, is always used regardless of the configured model.
	Model string
}

// Credential names the settings key a provider authenticates with.
type Credential struct {
	Field string
	Value string
}

// RequestOptions carries per-call switches for BuildRequest.
type RequestOptions struct {
	Stream bool
}

// Provider bundles everything needed to talk to one upstream API: its
// registry entry, header builder, request body builder and chunk parser.
type Provider interface {
	Spec() Spec
	// Endpoint returns the URL to POST to for the given settings.
	Endpoint(s api.Settings) string
	Credential(s api.Settings) Credential
	Headers(key string) map[string]string
	// BuildRequest maps provider-agnostic messages and settings onto the
	// provider's wire shape. Non-streaming requests are rejected with
	// api.ErrNonStreamingDeprecated.
	BuildRequest(messages []api.Message, s api.Settings, opts RequestOptions) (interface{}, error)
	// ParseChunk extracts the text increment from one stream event payload.
	// It returns "" when the event carries no text and an error only when the
	// payload is not valid JSON for the provider.
	ParseChunk(payload []byte) (string, error)
}

// RequireStream fails fast for the retired non-streaming path.
func RequireStream(opts RequestOptions) error {
	if !opts.Stream {
		return api.ErrNonStreamingDeprecated
	}
	return nil
}

// ModelFor returns the model a request should name.
func ModelFor(spec Spec, s api.Settings) string {
	if spec.Model != "" {
		return spec.Model
	}
	return s.Model
}
