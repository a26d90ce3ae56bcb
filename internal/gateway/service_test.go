package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/streamchat/internal/gateway"
	"github.com/nulzo/streamchat/internal/settings"
	"github.com/nulzo/streamchat/internal/store/model"
	"github.com/nulzo/streamchat/pkg/api"
)

func deepseekSettings(key string) api.Settings {
	s := api.DefaultSettings()
	s.APIKey = key
	return s
}

func writeFrames(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, f := range frames {
		fmt.Fprintf(w, "data: %s\n\n", f)
	}
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

func openAIDelta(text string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, text)
}

type recordingIngestor struct {
	mu   sync.Mutex
	logs []*model.StreamLog
}

func (r *recordingIngestor) Log(l *model.StreamLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
}
func (r *recordingIngestor) Start(context.Context) {}
func (r *recordingIngestor) Stop()                 {}

func (r *recordingIngestor) last(t *testing.T) *model.StreamLog {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.logs)
	return r.logs[len(r.logs)-1]
}

type countingClient struct {
	calls atomic.Int32
}

func (c *countingClient) Do(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, errors.New("should not be called")
}

func TestSendMessageStream_EndToEnd(t *testing.T) {
	var captured map[string]interface{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		writeFrames(w, openAIDelta("Hi"), openAIDelta(" there"), "[DONE]")
	}))
	defer upstream.Close()

	ing := &recordingIngestor{}
	svc := gateway.NewService(settings.NewMemory(deepseekSettings("sk-test")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
		gateway.WithIngestor(ing),
	)

	history := []api.ConversationTurn{{Role: api.RoleUser, Content: "earlier"}, {Role: api.RoleAssistant, Content: "reply"}}
	var got []string
	err := svc.SendMessageStream(context.Background(), "Hello", history, func(f string) {
		got = append(got, f)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, got)

	assert.Equal(t, "deepseek-chat", captured["model"])
	assert.Equal(t, true, captured["stream"])
	assert.EqualValues(t, 4000, captured["max_tokens"])
	msgs := captured["messages"].([]interface{})
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "Hello", msgs[3].(map[string]interface{})["content"])

	log := ing.last(t)
	assert.Equal(t, model.StatusCompleted, log.Status)
	assert.Equal(t, "deepseek", log.Provider)
	assert.Equal(t, 2, log.Fragments)
	assert.Equal(t, 8, log.Characters)
	assert.Equal(t, 2, log.HistoryTurns)
	assert.NotEmpty(t, log.ID)
}

func TestSendMessageStream_MissingCredentialMakesNoRequest(t *testing.T) {
	tests := []struct {
		name  string
		s     api.Settings
		field string
	}{
		{name: "deepseek", s: deepseekSettings(""), field: "apiKey"},
		{name: "blank key", s: deepseekSettings("   "), field: "apiKey"},
		{name: "ark ignores apiKey", s: api.Settings{Provider: api.Ark, APIKey: "sk", Temperature: 0.7}, field: "arkApiKey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &countingClient{}
			ing := &recordingIngestor{}
			svc := gateway.NewService(settings.NewMemory(tt.s), gateway.WithHTTPClient(client), gateway.WithIngestor(ing))

			called := false
			err := svc.SendMessageStream(context.Background(), "Hello", nil, func(string) { called = true })

			var cfgErr *api.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.ErrorIs(t, err, api.ErrMissingCredential)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.False(t, called)
			assert.Zero(t, client.calls.Load())
			assert.Empty(t, ing.logs)
		})
	}
}

func TestSendMessageStream_UnsupportedProvider(t *testing.T) {
	client := &countingClient{}
	svc := gateway.NewService(settings.NewMemory(api.Settings{Provider: "gemini", APIKey: "k"}), gateway.WithHTTPClient(client))

	err := svc.SendMessageStream(context.Background(), "Hello", nil, nil)

	var cfgErr *api.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, api.ErrUnsupportedProvider)
	assert.Zero(t, client.calls.Load())
}

func TestSendMessageStream_InvalidTemperature(t *testing.T) {
	client := &countingClient{}
	s := deepseekSettings("k")
	s.Temperature = 3
	svc := gateway.NewService(settings.NewMemory(s), gateway.WithHTTPClient(client))

	err := svc.SendMessageStream(context.Background(), "Hello", nil, nil)

	var cfgErr *api.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "temperature", cfgErr.Field)
	assert.Zero(t, client.calls.Load())
}

type failingStore struct{}

func (failingStore) Load(context.Context) (api.Settings, error) {
	return api.Settings{}, errors.New("disk on fire")
}
func (failingStore) Save(context.Context, api.Settings) error { return nil }

func TestSendMessageStream_SettingsLoadFailure(t *testing.T) {
	err := gateway.NewService(failingStore{}).SendMessageStream(context.Background(), "Hello", nil, nil)

	var cfgErr *api.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestSendMessageStream_Unauthorized(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer upstream.Close()

	ing := &recordingIngestor{}
	svc := gateway.NewService(settings.NewMemory(deepseekSettings("bad")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
		gateway.WithIngestor(ing),
	)

	called := false
	err := svc.SendMessageStream(context.Background(), "Hello", nil, func(string) { called = true })

	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Contains(t, string(te.Body), "invalid api key")
	assert.False(t, called)

	log := ing.last(t)
	assert.Equal(t, model.StatusFailed, log.Status)
	assert.Equal(t, http.StatusUnauthorized, log.UpstreamStatus)
}

func TestSendMessageStream_CancelAfterFragments(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, openAIDelta("one"), openAIDelta("two"))
		<-r.Context().Done()
	}))
	defer upstream.Close()

	ing := &recordingIngestor{}
	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
		gateway.WithIngestor(ing),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	err := svc.SendMessageStream(ctx, "Hello", nil, func(f string) {
		got = append(got, f)
		if len(got) == 2 {
			cancel()
		}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, model.StatusCanceled, ing.last(t).Status)
}

func TestSendMessageStream_DeadlineIsTransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, openAIDelta("slow"))
		<-r.Context().Done()
	}))
	defer upstream.Close()

	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := svc.SendMessageStream(ctx, "Hello", nil, nil)

	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, api.ErrCanceled)
}

func TestSendMessageStream_Anthropic(t *testing.T) {
	var captured map[string]interface{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Bon\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"jour\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}")
	}))
	defer upstream.Close()

	s := api.Settings{Provider: api.Anthropic, Model: "claude-3-haiku-20240307", APIKey: "sk-ant", Temperature: 0.5}
	svc := gateway.NewService(settings.NewMemory(s),
		gateway.WithEndpoints(map[api.ProviderID]string{api.Anthropic: upstream.URL}),
	)

	var got []string
	err := svc.SendMessageStream(context.Background(), "Hello", nil, func(f string) { got = append(got, f) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Bon", "jour"}, got)

	assert.NotEmpty(t, captured["system"])
	msgs := captured["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]interface{})["role"])
}

func TestSendMessageStream_ArkBaseURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ark-key", r.Header.Get("Authorization"))
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "doubao-seed-1-6-250615", body["model"])
		writeFrames(w, openAIDelta("ok"), "[DONE]")
	}))
	defer upstream.Close()

	s := api.Settings{Provider: api.Ark, Model: "ignored", ArkAPIKey: "ark-key", ArkBaseURL: upstream.URL + "/api/v3", Temperature: 0.7}
	svc := gateway.NewService(settings.NewMemory(s))

	var got []string
	require.NoError(t, svc.SendMessageStream(context.Background(), "Hello", nil, func(f string) { got = append(got, f) }))
	assert.Equal(t, []string{"ok"}, got)
}

func TestSendMessageStream_ReadsSettingsPerCall(t *testing.T) {
	var auth []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		writeFrames(w, "[DONE]")
	}))
	defer upstream.Close()

	store := settings.NewMemory(deepseekSettings("first"))
	svc := gateway.NewService(store, gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}))

	require.NoError(t, svc.SendMessageStream(context.Background(), "a", nil, nil))
	require.NoError(t, store.Save(context.Background(), deepseekSettings("second")))
	require.NoError(t, svc.SendMessageStream(context.Background(), "b", nil, nil))

	assert.Equal(t, []string{"Bearer first", "Bearer second"}, auth)
}

func TestStream_Iterator(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, openAIDelta("a"), openAIDelta("b"), openAIDelta("c"), "[DONE]")
	}))
	defer upstream.Close()

	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
	)

	var got []string
	for fragment, err := range svc.Stream(context.Background(), "Hello", nil) {
		require.NoError(t, err)
		got = append(got, fragment)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStream_BreakCancelsRead(t *testing.T) {
	closed := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, openAIDelta("first"), openAIDelta("second"))
		<-r.Context().Done()
		close(closed)
	}))
	defer upstream.Close()

	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
	)

	var got []string
	for fragment, err := range svc.Stream(context.Background(), "Hello", nil) {
		require.NoError(t, err)
		got = append(got, fragment)
		break
	}
	assert.Equal(t, []string{"first"}, got)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not canceled")
	}
}

func TestStream_YieldsErrorLast(t *testing.T) {
	svc := gateway.NewService(settings.NewMemory(deepseekSettings("")), gateway.WithHTTPClient(&countingClient{}))

	var errs []error
	for fragment, err := range svc.Stream(context.Background(), "Hello", nil) {
		assert.Empty(t, fragment)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], api.ErrMissingCredential)
}

func TestSendMessage_Deprecated(t *testing.T) {
	client := &countingClient{}
	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")), gateway.WithHTTPClient(client))

	_, err := svc.SendMessage(context.Background(), "Hello", nil)
	assert.ErrorIs(t, err, api.ErrNonStreamingDeprecated)
	assert.Zero(t, client.calls.Load())
}

func TestBreaker_OpensOnUpstreamFailures(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
		gateway.WithBreaker(gateway.BreakerConfig{MaxFailures: 2, Timeout: time.Minute}),
	)

	for i := 0; i < 2; i++ {
		err := svc.SendMessageStream(context.Background(), "Hello", nil, nil)
		var te *api.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	}

	err := svc.SendMessageStream(context.Background(), "Hello", nil, nil)
	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, "open", svc.BreakerStates()[api.DeepSeek])
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
		gateway.WithBreaker(gateway.BreakerConfig{MaxFailures: 1}),
	)

	for i := 0; i < 3; i++ {
		err := svc.SendMessageStream(context.Background(), "Hello", nil, nil)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, "closed", svc.BreakerStates()[api.DeepSeek])
}

func TestWithoutBreaker(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	svc := gateway.NewService(settings.NewMemory(deepseekSettings("k")),
		gateway.WithEndpoints(map[api.ProviderID]string{api.DeepSeek: upstream.URL}),
		gateway.WithoutBreaker(),
	)

	for i := 0; i < 8; i++ {
		_ = svc.SendMessageStream(context.Background(), "Hello", nil, nil)
	}
	assert.EqualValues(t, 8, hits.Load())
	assert.Empty(t, svc.BreakerStates())
}
