package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/nulzo/streamchat/internal/store/cache"
	"github.com/nulzo/streamchat/pkg/api"
)

// DefaultKey is the key settings are stored under.
const DefaultKey = "travelAssistantConfig"

// CacheStore keeps settings in a shared cache so that every relay instance
// sees the same configuration.
type CacheStore struct {
	cache cache.CacheService
	key   string
}

func NewCacheStore(c cache.CacheService, key string) *CacheStore {
	if key == "" {
		key = DefaultKey
	}
	return &CacheStore{cache: c, key: key}
}

func (c *CacheStore) Load(ctx context.Context) (api.Settings, error) {
	doc := document{LLM: api.DefaultSettings()}
	err := c.cache.Get(ctx, c.key, &doc)
	if errors.Is(err, cache.ErrMiss) {
		return api.DefaultSettings(), nil
	}
	if err != nil {
		return api.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return doc.LLM, nil
}

func (c *CacheStore) Save(ctx context.Context, s api.Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	if err := c.cache.Set(ctx, c.key, document{LLM: s}, 0); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
