package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/goran-ethernal/HolderLedger/internal/db"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/migrations"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

// Store is the layered key value cache: an in-process tier, an optional remote tier
// and the disk tier. Reads fall through the tiers in that order and backfill the
// faster ones. Writes go to every tier; a failing remote tier is logged and skipped.
type Store struct {
	hot    *HotTier
	remote Tier
	disk   Tier

	degraded atomic.Bool
	log      *logger.Logger

	closers []func() error
}

// New builds the store described by cfg. A redis tier that cannot be reached at startup
// is left out and the store runs degraded.
func New(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	sqlDB, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	if err := migrations.Run(log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	maintenance := db.NewMaintenance(cfg.DB.Path, sqlDB, cfg.Maintenance, log)
	if err := maintenance.Start(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	var remote Tier
	closers := []func() error{maintenance.Stop, sqlDB.Close}

	if cfg.RedisURL != "" {
		redisTier, err := NewRedisTier(ctx, cfg.RedisURL)
		if err != nil {
			log.Warnw("remote cache unavailable, continuing with local tiers", "error", err)
		} else {
			remote = redisTier
			closers = append([]func() error{redisTier.Close}, closers...)
		}
	}

	s := NewLayered(NewHotTier(cfg.HotCapacity, cfg.HotTTL.Duration), remote, NewDiskTier(sqlDB, maintenance), log)
	s.closers = closers
	if cfg.RedisURL != "" && remote == nil {
		s.setDegraded(true)
	}

	return s, nil
}

// NewLayered assembles a store from explicit tiers. remote and disk may be nil.
func NewLayered(hot *HotTier, remote, disk Tier, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Store{hot: hot, remote: remote, disk: disk, log: log}
}

// Get returns the raw value of key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := s.hot.Get(ctx, key); err == nil {
		cacheHits.WithLabelValues(s.hot.Name()).Inc()
		return v, nil
	}

	var lower []Tier
	for _, t := range []Tier{s.remote, s.disk} {
		if t == nil {
			continue
		}

		v, err := t.Get(ctx, key)
		switch {
		case err == nil:
			cacheHits.WithLabelValues(t.Name()).Inc()
			s.backfill(ctx, key, v, lower)
			return v, nil
		case errors.Is(err, ErrNotFound):
			lower = append(lower, t)
		default:
			s.tierFailed(t, "get", key, err)
		}
	}

	cacheMisses.Inc()
	return nil, ErrNotFound
}

// Set writes key to every tier. Only a disk tier failure is returned.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_ = s.hot.Set(ctx, key, value)

	if s.remote != nil {
		if err := s.remote.Set(ctx, key, value); err != nil {
			s.tierFailed(s.remote, "set", key, err)
		} else {
			s.setDegraded(false)
		}
	}

	if s.disk != nil {
		if err := s.disk.Set(ctx, key, value); err != nil {
			cacheErrors.WithLabelValues(s.disk.Name(), "set").Inc()
			return fmt.Errorf("failed to write %s to disk cache: %w", key, err)
		}
	}

	return nil
}

// Delete removes key from every tier.
func (s *Store) Delete(ctx context.Context, key string) error {
	_ = s.hot.Delete(ctx, key)

	if s.remote != nil {
		if err := s.remote.Delete(ctx, key); err != nil {
			s.tierFailed(s.remote, "delete", key, err)
		}
	}

	if s.disk != nil {
		if err := s.disk.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s from disk cache: %w", key, err)
		}
	}

	return nil
}

// GetJSON decodes the value of key into v. found is false when no tier holds key.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}

	return true, nil
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	return s.Set(ctx, key, raw)
}

// Degraded reports whether the remote tier is configured but failing.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

// Close releases the tiers.
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	s.closers = nil

	return errors.Join(errs...)
}

func (s *Store) backfill(ctx context.Context, key string, value []byte, missed []Tier) {
	_ = s.hot.Set(ctx, key, value)

	for _, t := range missed {
		if err := t.Set(ctx, key, value); err != nil {
			s.tierFailed(t, "backfill", key, err)
		}
	}
}

func (s *Store) tierFailed(t Tier, op, key string, err error) {
	cacheErrors.WithLabelValues(t.Name(), op).Inc()

	if t == s.remote {
		if !s.degraded.Load() {
			s.log.Warnw("remote cache failing, degrading to local tiers", "op", op, "key", key, "error", err)
		}
		s.setDegraded(true)
		return
	}

	s.log.Errorw("cache tier failure", "tier", t.Name(), "op", op, "key", key, "error", err)
}

func (s *Store) setDegraded(v bool) {
	if s.degraded.Swap(v) != v {
		degradedGauge.Set(boolToFloat(v))
	}
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
