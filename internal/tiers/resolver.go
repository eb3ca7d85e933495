package tiers

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/chain"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/profile"
)

const progressStep = 500

// MulticallReader is the part of the chain reader the resolvers need.
type MulticallReader interface {
	Multicall(ctx context.Context, calls []chain.Call) ([]chain.Result, error)
}

// Cache is the JSON key value store the tier cache lives in.
type Cache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// Entry is one cached tier lookup.
type Entry struct {
	Tier      int   `json:"tier"`
	Timestamp int64 `json:"timestamp"`
}

// ProgressFunc reports how many of the requested tokens have been resolved.
type ProgressFunc func(done, total int)

// Resolver resolves token tiers through the tier cache and the contract tier function.
type Resolver struct {
	profile *profile.Profile
	reader  MulticallReader
	cache   Cache
	ttl     time.Duration
	now     func() time.Time
	log     *logger.Logger

	// serializes read-modify-write cycles on the tier cache entry
	mu sync.Mutex
}

// NewResolver creates a tier resolver for a contract.
func NewResolver(p *profile.Profile, reader MulticallReader, cache Cache, ttl time.Duration,
	log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Resolver{
		profile: p,
		reader:  reader,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// ResolveTiers returns the tier of every token. Tokens whose tier cannot be read or is
// out of range resolve to 0. Only the context error is returned.
func (r *Resolver) ResolveTiers(ctx context.Context, tokenIDs []uint64, onProgress ProgressFunc) (map[uint64]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.load(ctx)
	now := r.now()
	out := make(map[uint64]int, len(tokenIDs))

	var misses []uint64
	for _, id := range tokenIDs {
		if _, dup := out[id]; dup {
			continue
		}

		entry, ok := entries[strconv.FormatUint(id, 10)]
		if ok && !r.profile.TierMutable && r.fresh(entry, now) {
			out[id] = entry.Tier
			continue
		}

		out[id] = 0
		misses = append(misses, id)
	}

	total := len(out)
	cached := total - len(misses)
	report(onProgress, cached, total)

	if len(misses) == 0 {
		return out, nil
	}

	fetched, anomalies := 0, 0
	for start := 0; start < len(misses); start += progressStep {
		part := misses[start:min(start+progressStep, len(misses))]

		calls := make([]chain.Call, len(part))
		for i, id := range part {
			calls[i] = chain.Call{
				Target: r.profile.Address,
				Method: r.profile.TierMethod,
				Args:   []any{new(big.Int).SetUint64(id)},
			}
		}

		results, err := r.reader.Multicall(ctx, calls)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tiers: %w", err)
		}

		stamp := r.now().UnixMilli()
		for i, res := range results {
			id := part[i]

			tier, ok := 0, false
			if res.Success && len(res.Values) > 0 {
				tier, ok = toTier(res.Values[0])
			}

			if !ok || !r.profile.ValidTier(tier) {
				anomalies++
				r.log.Warnw("unresolvable token tier",
					"anomaly", "tier",
					"contract", r.profile.Key,
					"tokenId", id,
					"tier", tier,
					"error", res.Err,
				)
				continue
			}

			out[id] = tier
			entries[strconv.FormatUint(id, 10)] = Entry{Tier: tier, Timestamp: stamp}
			fetched++
		}

		report(onProgress, cached+start+len(part), total)
	}

	if fetched > 0 {
		if err := r.cache.SetJSON(ctx, r.profile.TierCacheKey(), entries); err != nil {
			r.log.Errorw("failed to persist tier cache", "contract", r.profile.Key, "error", err)
		}
	}

	r.log.Debugw("tiers resolved",
		"contract", r.profile.Key,
		"tokens", total,
		"cached", cached,
		"fetched", fetched,
		"anomalies", anomalies,
	)

	return out, nil
}

// InvalidateTiers drops the cached tier of the given tokens.
func (r *Resolver) InvalidateTiers(ctx context.Context, tokenIDs []uint64) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.load(ctx)
	removed := 0
	for _, id := range tokenIDs {
		key := strconv.FormatUint(id, 10)
		if _, ok := entries[key]; ok {
			delete(entries, key)
			removed++
		}
	}

	if removed == 0 {
		return nil
	}

	if err := r.cache.SetJSON(ctx, r.profile.TierCacheKey(), entries); err != nil {
		return fmt.Errorf("failed to persist tier cache: %w", err)
	}

	return nil
}

// load reads the tier cache entry. A missing or unreadable entry yields an empty cache.
func (r *Resolver) load(ctx context.Context) map[string]Entry {
	entries := make(map[string]Entry)

	found, err := r.cache.GetJSON(ctx, r.profile.TierCacheKey(), &entries)
	if err != nil {
		r.log.Warnw("failed to read tier cache, refetching", "contract", r.profile.Key, "error", err)
		return make(map[string]Entry)
	}
	if !found || entries == nil {
		return make(map[string]Entry)
	}

	return entries
}

func (r *Resolver) fresh(e Entry, now time.Time) bool {
	if r.ttl <= 0 {
		return true
	}
	return now.Sub(time.UnixMilli(e.Timestamp)) < r.ttl
}

func report(onProgress ProgressFunc, done, total int) {
	if onProgress != nil {
		onProgress(done, total)
	}
}
