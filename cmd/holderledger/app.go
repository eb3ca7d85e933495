package main

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/HolderLedger/internal/chain"
	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/events"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/metrics"
	"github.com/goran-ethernal/HolderLedger/internal/owners"
	"github.com/goran-ethernal/HolderLedger/internal/profile"
	"github.com/goran-ethernal/HolderLedger/internal/rpc"
	"github.com/goran-ethernal/HolderLedger/internal/store"
	"github.com/goran-ethernal/HolderLedger/internal/synchronizer"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

// app holds the wired components shared by the serve and sync commands.
type app struct {
	log     *logger.Logger
	client  *rpc.Client
	store   *store.Store
	metrics *metrics.Server
	sync    *synchronizer.Synchronizer
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	componentLog := func(component string) *logger.Logger {
		return logger.NewComponentLoggerFromConfig(component, cfg.Logging)
	}

	a := &app{log: componentLog(common.ComponentSynchronizer)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	registry, err := profile.NewRegistry(cfg.Contracts)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		a.metrics = metrics.NewServer(cfg.Metrics, a.log)
		if err := a.metrics.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	a.log.Info("Connecting to Ethereum node...")
	a.client, err = rpc.NewClient(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}
	metrics.ComponentHealthSet(common.ComponentRPC, true)

	exec := rpc.NewExecutor(cfg.Chain, componentLog(common.ComponentRPC))

	reader := chain.NewReader(a.client, exec, chain.Options{
		MulticallAddress: cfg.Chain.MulticallAddress,
		BatchSize:        cfg.Sync.MulticallBatchSize,
		Concurrency:      cfg.Sync.Concurrency,
	}, componentLog(common.ComponentChainReader))

	a.store, err = store.New(ctx, cfg.Cache, componentLog(common.ComponentCacheStore))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	a.sync, err = synchronizer.New(registry, synchronizer.Deps{
		Reader:  reader,
		Owners:  owners.NewFetcher(cfg.Provider, exec, componentLog(common.ComponentOwnerFetcher)),
		Tracker: events.NewTracker(reader, cfg.Sync.ChunkSize, componentLog(common.ComponentLogTracker)),
		Cache:   a.store,
		States:  store.NewStateStore(cfg.Cache.Dir, componentLog(common.ComponentCacheStore)),
	}, cfg.Sync, cfg.Cache, a.log)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases every component that was started.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnf("Failed to close cache store: %v", err)
		}
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(context.Background()); err != nil {
			a.log.Warnf("Failed to stop metrics server: %v", err)
		}
	}
}
