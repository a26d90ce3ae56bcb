// Package settings persists the user's LLM configuration and validates it
// before a stream is opened.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/nulzo/streamchat/internal/config"
	"github.com/nulzo/streamchat/internal/store/cache"
	"github.com/nulzo/streamchat/pkg/api"
)

// Store loads and saves settings. Load is called once per streaming call so
// implementations must not cache across calls.
type Store interface {
	Load(ctx context.Context) (api.Settings, error)
	Save(ctx context.Context, s api.Settings) error
}

// document is the persisted envelope, {"llm": {...}}.
type document struct {
	LLM api.Settings `json:"llm" mapstructure:"llm"`
}

// New builds the store selected by cfg. A redis-backed cache is only needed
// for the redis backend. The memory backend keeps settings for the life of
// the process.
func New(cfg config.SettingsConfig, c cache.CacheService) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path), nil
	case "redis":
		if c == nil {
			return nil, fmt.Errorf("settings backend %q requires a cache", cfg.Backend)
		}
		return NewCacheStore(c, cfg.Key), nil
	case "memory":
		return NewCacheStore(cache.NewMemory(), cfg.Key), nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}

// Memory keeps settings in process. The zero value is not usable, see NewMemory.
type Memory struct {
	mu sync.RWMutex
	s  api.Settings
}

func NewMemory(s api.Settings) *Memory {
	return &Memory{s: s}
}

func (m *Memory) Load(ctx context.Context) (api.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s, nil
}

func (m *Memory) Save(ctx context.Context, s api.Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
	return nil
}
