package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/nulzo/streamchat/pkg/api"
)

// envDefaults seed a setting from the environment when the file does not
// name it. Values saved to the file take precedence.
var envDefaults = map[string]string{
	"llm.provider":    "LLM_PROVIDER",
	"llm.model":       "LLM_MODEL",
	"llm.apiKey":      "LLM_API_KEY",
	"llm.temperature": "LLM_TEMPERATURE",
	"llm.arkApiKey":   "ARK_API_KEY",
	"llm.arkBaseUrl":  "ARK_BASE_URL",
}

// FileStore keeps settings in a JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

// Load re-reads the file on every call. A missing file yields the defaults.
func (f *FileStore) Load(ctx context.Context) (api.Settings, error) {
	v := viper.New()
	v.SetConfigFile(f.path)
	if filepath.Ext(f.path) == "" {
		v.SetConfigType("json")
	}

	def := api.DefaultSettings()
	v.SetDefault("llm.provider", string(def.Provider))
	v.SetDefault("llm.model", def.Model)
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.temperature", def.Temperature)
	v.SetDefault("llm.arkApiKey", "")
	v.SetDefault("llm.arkBaseUrl", "")
	for key, env := range envDefaults {
		if val, ok := os.LookupEnv(env); ok && val != "" {
			v.SetDefault(key, val)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return api.Settings{}, fmt.Errorf("read settings %s: %w", f.path, err)
		}
	}

	// Unmarshal rather than UnmarshalKey so nested defaults are merged.
	var doc document
	if err := v.Unmarshal(&doc); err != nil {
		return api.Settings{}, fmt.Errorf("decode settings %s: %w", f.path, err)
	}
	return doc.LLM, nil
}

// Save validates s and atomically replaces the file.
func (f *FileStore) Save(ctx context.Context, s api.Settings) error {
	if err := Validate(s); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(document{LLM: s}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
