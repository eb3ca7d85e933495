package profile

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

// Registry holds the profiles of every configured contract.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewRegistry builds and validates a profile for every contract. The first invalid
// contract fails the whole registry.
func NewRegistry(contracts []config.ContractConfig) (*Registry, error) {
	r := &Registry{profiles: make(map[string]*Profile, len(contracts))}

	for _, c := range contracts {
		p, err := New(c)
		if err != nil {
			return nil, err
		}

		if err := r.Register(p); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a profile. Keys are case-insensitive and must be unique.
func (r *Registry) Register(p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(p.Key)
	if _, exists := r.profiles[key]; exists {
		return fmt.Errorf("%w: duplicate contract key %s", ErrConfiguration, key)
	}

	r.profiles[key] = p

	return nil
}

// Get returns the profile registered under key.
// The lookup is case-insensitive.
func (r *Registry) Get(key string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// Keys returns the registered contract keys in ascending order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
