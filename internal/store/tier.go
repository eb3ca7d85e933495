package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/db"
	"github.com/redis/go-redis/v9"
	"github.com/russross/meddler"
)

// ErrNotFound is returned when no tier holds a key.
var ErrNotFound = errors.New("cache entry not found")

// Tier is one layer of the cache store.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// HotTier is the in-process tier.
type HotTier struct {
	cache *lru[string, []byte]
}

// NewHotTier creates an in-process tier holding at most capacity entries for ttl.
func NewHotTier(capacity int, ttl time.Duration) *HotTier {
	return &HotTier{cache: newLRU[string, []byte](capacity, ttl)}
}

func (h *HotTier) Name() string { return "hot" }

func (h *HotTier) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := h.cache.get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (h *HotTier) Set(_ context.Context, key string, value []byte) error {
	h.cache.put(key, slices.Clone(value))
	return nil
}

func (h *HotTier) Delete(_ context.Context, key string) error {
	h.cache.delete(key)
	return nil
}

// RedisTier is the optional remote tier.
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier connects to the redis server at url and checks it responds.
func NewRedisTier(ctx context.Context, url string) (*RedisTier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisTier{client: client, prefix: "holderledger:"}, nil
}

func (r *RedisTier) Name() string { return "redis" }

func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisTier) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *RedisTier) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close closes the redis client.
func (r *RedisTier) Close() error {
	return r.client.Close()
}

type cacheEntry struct {
	Key       string    `meddler:"key"`
	Value     []byte    `meddler:"value"`
	UpdatedAt time.Time `meddler:"updated_at,unixmilli"`
}

// DiskTier is the SQLite backed tier. Operations hold the maintenance operation lock.
type DiskTier struct {
	db          *sql.DB
	maintenance db.Maintenance
	now         func() time.Time
}

// NewDiskTier creates a disk tier over an already migrated database.
func NewDiskTier(sqlDB *sql.DB, maintenance db.Maintenance) *DiskTier {
	return &DiskTier{db: sqlDB, maintenance: maintenance, now: time.Now}
}

func (d *DiskTier) Name() string { return "disk" }

func (d *DiskTier) Get(ctx context.Context, key string) ([]byte, error) {
	defer d.maintenance.AcquireOperationLock()()

	var e cacheEntry
	err := meddler.QueryRow(d.db, &e, `SELECT key, value, updated_at FROM cache_entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return e.Value, nil
}

func (d *DiskTier) Set(ctx context.Context, key string, value []byte) error {
	defer d.maintenance.AcquireOperationLock()()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, d.now().UnixMilli(),
	)
	return err
}

func (d *DiskTier) Delete(ctx context.Context, key string) error {
	defer d.maintenance.AcquireOperationLock()()

	_, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}
