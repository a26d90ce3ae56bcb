package settings

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/streamchat/internal/config"
	"github.com/nulzo/streamchat/internal/store/cache"
	"github.com/nulzo/streamchat/pkg/api"
)

func clearSettingsEnv(t *testing.T) {
	t.Helper()
	for _, env := range envDefaults {
		t.Setenv(env, "")
	}
}

func TestFileStore_MissingFileYieldsDefaults(t *testing.T) {
	clearSettingsEnv(t)
	fs := NewFileStore(filepath.Join(t.TempDir(), "settings.json"))

	s, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.DefaultSettings(), s)
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	clearSettingsEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	fs := NewFileStore(path)
	ctx := context.Background()

	want := api.Settings{
		Provider:    api.Anthropic,
		Model:       "claude-3-haiku-20240307",
		APIKey:      "sk-ant-123",
		Temperature: 0.2,
	}
	require.NoError(t, fs.Save(ctx, want))

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "sk-ant-123", doc["llm"]["apiKey"])
}

func TestFileStore_ReadsFreshOnEveryLoad(t *testing.T) {
	clearSettingsEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	fs := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte(`{"llm":{"provider":"openai","model":"gpt-4o","apiKey":"k1"}}`), 0o600))
	s, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.OpenAI, s.Provider)
	assert.Equal(t, 0.7, s.Temperature, "unset fields keep defaults")

	require.NoError(t, os.WriteFile(path, []byte(`{"llm":{"provider":"ark","arkApiKey":"ark-1"}}`), 0o600))
	s, err = fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.Ark, s.Provider)
	assert.Equal(t, "ark-1", s.ArkAPIKey)
}

func TestFileStore_EnvironmentSeedsUnsetFields(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv("LLM_API_KEY", "from-env")
	t.Setenv("LLM_TEMPERATURE", "1.5")
	path := filepath.Join(t.TempDir(), "settings.json")
	fs := NewFileStore(path)

	s, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.APIKey)
	assert.Equal(t, 1.5, s.Temperature)

	require.NoError(t, os.WriteFile(path, []byte(`{"llm":{"apiKey":"from-file"}}`), 0o600))
	s, err = fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.APIKey)
}

func TestFileStore_MalformedFile(t *testing.T) {
	clearSettingsEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"llm":`), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStore_SaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	err := NewFileStore(path).Save(context.Background(), api.Settings{Provider: "gemini"})

	var cfgErr *api.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, api.ErrUnsupportedProvider)
	assert.NoFileExists(t, path)
}

type failingCache struct{ err error }

func (f failingCache) Get(context.Context, string, interface{}) error { return f.err }

func (f failingCache) Set(context.Context, string, interface{}, time.Duration) error { return f.err }

func (f failingCache) Delete(context.Context, string) error { return f.err }

func TestCacheStore(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	store := NewCacheStore(c, "")

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.DefaultSettings(), s)

	want := api.Settings{Provider: api.Ark, ArkAPIKey: "ark", Temperature: 1}
	require.NoError(t, store.Save(ctx, want))
	var raw map[string]interface{}
	require.NoError(t, c.Get(ctx, DefaultKey, &raw))
	assert.Contains(t, raw, "llm")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCacheStore_PropagatesBackendError(t *testing.T) {
	boom := errors.New("redis down")
	store := NewCacheStore(failingCache{err: boom}, "k")

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       api.Settings
		field   string
		wantErr error
	}{
		{name: "defaults", s: api.DefaultSettings()},
		{name: "empty provider", s: api.Settings{}, wantErr: api.ErrUnsupportedProvider},
		{name: "unknown provider", s: api.Settings{Provider: "gemini"}, wantErr: api.ErrUnsupportedProvider},
		{name: "temperature too high", s: api.Settings{Provider: api.OpenAI, Temperature: 2.5}, field: "temperature", wantErr: ErrInvalidValue},
		{name: "negative temperature", s: api.Settings{Provider: api.OpenAI, Temperature: -1}, field: "temperature", wantErr: ErrInvalidValue},
		{name: "bad ark base url", s: api.Settings{Provider: api.Ark, ArkBaseURL: "not a url"}, field: "arkBaseUrl", wantErr: ErrInvalidValue},
		{name: "ark base url", s: api.Settings{Provider: api.Ark, ArkBaseURL: "https://ark.example.com/api/v3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.s)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			var cfgErr *api.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(config.SettingsConfig{Backend: "file", Path: "x.json"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(config.SettingsConfig{Backend: "redis"}, nil)
	assert.Error(t, err)

	s, err = New(config.SettingsConfig{Backend: "redis", Key: "k"}, cache.NewMemory())
	require.NoError(t, err)
	assert.IsType(t, &CacheStore{}, s)

	s, err = New(config.SettingsConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), api.Settings{Provider: api.OpenAI, APIKey: "sk"}))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.OpenAI, got.Provider)

	_, err = New(config.SettingsConfig{Backend: "s3"}, nil)
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	m := NewMemory(api.DefaultSettings())
	require.Error(t, m.Save(context.Background(), api.Settings{Provider: "nope"}))

	s, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.DeepSeek, s.Provider)
}
