package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/db"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/migrations"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

// flakyTier is an in-memory tier that can be switched to fail.
type flakyTier struct {
	mu      sync.Mutex
	data    map[string][]byte
	failing bool
	sets    int
}

func newFlakyTier() *flakyTier {
	return &flakyTier{data: make(map[string][]byte)}
}

func (f *flakyTier) Name() string { return "remote" }

func (f *flakyTier) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	v, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *flakyTier) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("connection refused")
	}
	f.sets++
	f.data[key] = value
	return nil
}

func (f *flakyTier) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("connection refused")
	}
	delete(f.data, key)
	return nil
}

func (f *flakyTier) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func newDiskTier(t *testing.T) *DiskTier {
	t.Helper()

	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "cache.db")}
	cfg.ApplyDefaults()

	sqlDB, err := db.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.Run(logger.NewNopLogger(), sqlDB))

	return NewDiskTier(sqlDB, db.NewMaintenance(cfg.Path, sqlDB, nil, nil))
}

func TestLRU(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newLRU[string, int](2, time.Minute)
	c.now = func() time.Time { return now }

	c.put("a", 1)
	c.put("b", 2)
	_, ok := c.get("a")
	require.True(t, ok)

	// b is the least recently used entry
	c.put("c", 3)
	_, ok = c.get("b")
	require.False(t, ok)
	require.Equal(t, 2, c.len())

	now = now.Add(2 * time.Minute)
	_, ok = c.get("a")
	require.False(t, ok)
	require.Equal(t, 1, c.len())

	c.put("c", 4)
	v, ok := c.get("c")
	require.True(t, ok)
	require.Equal(t, 4, v)

	c.delete("c")
	require.Zero(t, c.len())

	hits, misses := c.stats()
	require.Equal(t, int64(2), hits)
	require.Equal(t, int64(2), misses)
}

func TestDiskTier(t *testing.T) {
	ctx := context.Background()
	disk := newDiskTier(t)
	stamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	disk.now = func() time.Time { return stamp }

	_, err := disk.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, disk.Set(ctx, "k", []byte("v1")))
	require.NoError(t, disk.Set(ctx, "k", []byte("v2")))

	v, err := disk.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)

	var e cacheEntry
	require.NoError(t, meddler.QueryRow(disk.db, &e, `SELECT key, value, updated_at FROM cache_entries WHERE key = ?`, "k"))
	require.True(t, stamp.Equal(e.UpdatedAt))

	require.NoError(t, disk.Delete(ctx, "k"))
	_, err = disk.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReadsFallThroughAndBackfill(t *testing.T) {
	ctx := context.Background()
	remote := newFlakyTier()
	disk := newDiskTier(t)
	s := NewLayered(NewHotTier(10, time.Hour), remote, disk, nil)

	require.NoError(t, disk.Set(ctx, "k", []byte(`"disk"`)))

	var got string
	found, err := s.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "disk", got)

	// the remote and hot tiers were backfilled
	v, err := remote.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte(`"disk"`), v)

	require.NoError(t, disk.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.NoError(t, err)

	found, err = s.GetJSON(ctx, "absent", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_RemoteFailureDegrades(t *testing.T) {
	ctx := context.Background()
	remote := newFlakyTier()
	disk := newDiskTier(t)
	s := NewLayered(NewHotTier(10, time.Hour), remote, disk, nil)

	remote.setFailing(true)
	require.NoError(t, s.SetJSON(ctx, "k", map[string]int{"a": 1}))
	require.True(t, s.Degraded())

	out := map[string]int{}
	found, err := s.GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, out["a"])

	remote.setFailing(false)
	require.NoError(t, s.SetJSON(ctx, "k", map[string]int{"a": 2}))
	require.False(t, s.Degraded())
	require.Equal(t, 1, remote.sets)

	require.NoError(t, s.Delete(ctx, "k"))
	found, err = s.GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	s := NewLayered(NewHotTier(10, time.Hour), nil, nil, nil)

	require.NoError(t, s.Set(ctx, "k", []byte("{")))

	var v map[string]any
	_, err := s.GetJSON(ctx, "k", &v)
	require.ErrorContains(t, err, "failed to decode")
}

func TestNew_UnreachableRedisRunsDegraded(t *testing.T) {
	cfg := config.CacheConfig{
		Dir:      t.TempDir(),
		RedisURL: "redis://127.0.0.1:1/0",
	}
	cfg.ApplyDefaults()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Degraded())
	require.NoError(t, s.SetJSON(ctx, "k", 42))

	var v int
	found, err := s.GetJSON(ctx, "k", &v)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 42, v)

	_, err = os.Stat(cfg.DB.Path)
	require.NoError(t, err)
}

func TestNewRedisTier_BadURL(t *testing.T) {
	_, err := NewRedisTier(context.Background(), "not a url")
	require.ErrorContains(t, err, "parse redis url")
}
