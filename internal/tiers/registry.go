package tiers

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/profile"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

// Factory creates the reward resolver of a contract profile.
type Factory func(p *profile.Profile, reader MulticallReader, log *logger.Logger) RewardResolver

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

func init() {
	Register(config.RewardKindNone, func(*profile.Profile, MulticallReader, *logger.Logger) RewardResolver {
		return noRewards{}
	})
	Register(config.RewardKindClaimable, func(p *profile.Profile, r MulticallReader, log *logger.Logger) RewardResolver {
		return NewClaimableResolver(p, r, log)
	})
	Register(config.RewardKindYield, func(p *profile.Profile, r MulticallReader, log *logger.Logger) RewardResolver {
		return NewYieldResolver(p, r, log)
	})
}

// Register registers a reward resolver factory for a reward kind.
// The kind is case-insensitive. An existing registration is overwritten.
func Register(kind string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	registry[strings.ToLower(kind)] = factory
}

// RegisteredKinds returns the registered reward kinds, sorted.
func RegisteredKinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	return kinds
}

// NewRewardResolver creates the reward resolver registered for the profile's reward kind.
func NewRewardResolver(p *profile.Profile, reader MulticallReader, log *logger.Logger) (RewardResolver, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	kind := p.RewardKind
	if kind == "" {
		kind = config.RewardKindNone
	}

	mu.RLock()
	factory := registry[strings.ToLower(kind)]
	mu.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("%w: unknown reward kind %q (registered kinds: %v)",
			profile.ErrConfiguration, kind, RegisteredKinds())
	}

	return factory(p, reader, log), nil
}
