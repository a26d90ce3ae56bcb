package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nulzo/streamchat/pkg/api"
)

var (
	mu        sync.RWMutex
	providers = make(map[api.ProviderID]Provider)
)

// Register makes a provider available. Provider packages call it from init.
func Register(p Provider) {
	id := p.Spec().ID
	if !id.Valid() {
		panic(fmt.Sprintf("provider %q is not a known provider id", id))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := providers[id]; exists {
		panic(fmt.Sprintf("provider %s already registered", id))
	}
	providers[id] = p
}

// Get returns the provider registered for id.
func Get(id api.ProviderID) (Provider, error) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnsupportedProvider, id)
	}
	return p, nil
}

// MustGet is Get for ids that were already validated. A miss is a programming
// error.
func MustGet(id api.ProviderID) Provider {
	p, err := Get(id)
	if err != nil {
		panic(err)
	}
	return p
}

// Registered lists the ids with a registered provider, sorted.
func Registered() []api.ProviderID {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]api.ProviderID, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
