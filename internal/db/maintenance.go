package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

// Maintenance runs periodic WAL checkpoints and VACUUM on the disk cache database.
type Maintenance interface {
	Start(ctx context.Context) error
	Stop() error
	// AcquireOperationLock holds off maintenance until the returned func is called.
	AcquireOperationLock() func()
	Run(ctx context.Context) error
	Stats() MaintenanceStats
}

// MaintenanceStats is a snapshot of maintenance activity.
type MaintenanceStats struct {
	LastRun   time.Time
	Runs      uint64
	LastError error
}

// NewMaintenance returns a maintainer for db, or a no-op one when cfg is nil.
func NewMaintenance(path string, db *sql.DB, cfg *config.MaintenanceConfig, log *logger.Logger) Maintenance {
	if cfg == nil {
		return noMaintenance{}
	}

	return &maintainer{
		db:   db,
		path: path,
		cfg:  *cfg,
		log:  log.WithComponent("maintenance"),
	}
}

type noMaintenance struct{}

func (noMaintenance) Start(context.Context) error  { return nil }
func (noMaintenance) Stop() error                  { return nil }
func (noMaintenance) AcquireOperationLock() func() { return func() {} }
func (noMaintenance) Run(context.Context) error    { return nil }
func (noMaintenance) Stats() MaintenanceStats      { return MaintenanceStats{} }

type maintainer struct {
	db   *sql.DB
	path string
	cfg  config.MaintenanceConfig
	log  *logger.Logger

	// readers are cache operations, the writer is a maintenance run
	opLock sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   MaintenanceStats
}

func (m *maintainer) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.log.Info("database maintenance disabled")
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if m.cfg.VacuumOnStartup {
		if err := m.Run(ctx); err != nil {
			m.log.Warnw("startup maintenance failed", "error", err)
		}
	}

	m.wg.Add(1)
	go m.loop(ctx)

	m.log.Infow("database maintenance started",
		"interval", m.cfg.CheckInterval.Duration,
		"checkpointMode", m.cfg.WALCheckpointMode,
	)

	return nil
}

func (m *maintainer) Stop() error {
	if m.cancel == nil {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	m.cancel = nil

	return nil
}

func (m *maintainer) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Run(ctx); err != nil {
				m.log.Warnw("periodic maintenance failed", "error", err)
			}
		}
	}
}

// Run checkpoints the WAL and vacuums the database while holding every cache operation off.
func (m *maintainer) Run(ctx context.Context) error {
	start := time.Now()
	maintenanceRuns.Inc()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	before, err := TotalSize(m.path)
	if err != nil {
		m.log.Warnw("failed to read database size", "error", err)
	}

	var errs []error
	if err := m.checkpoint(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wal checkpoint: %w", err))
	}
	if err := m.vacuum(ctx); err != nil {
		errs = append(errs, fmt.Errorf("vacuum: %w", err))
	}
	runErr := errors.Join(errs...)

	after, err := TotalSize(m.path)
	if err != nil {
		m.log.Warnw("failed to read database size", "error", err)
	}

	m.statsMu.Lock()
	m.stats.LastRun = time.Now().UTC()
	m.stats.Runs++
	m.stats.LastError = runErr
	m.statsMu.Unlock()

	maintenanceDuration.Observe(time.Since(start).Seconds())
	dbSize.Set(float64(after))

	if runErr != nil {
		maintenanceOutcomes.WithLabelValues("error").Inc()
		return runErr
	}

	maintenanceOutcomes.WithLabelValues("success").Inc()
	m.log.Infow("database maintenance completed",
		"duration", time.Since(start),
		"sizeBefore", before,
		"sizeAfter", after,
	)

	return nil
}

func (m *maintainer) checkpoint(ctx context.Context) error {
	var mode string
	if err := m.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return nil
	}

	var busy, frames, checkpointed int
	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.cfg.WALCheckpointMode)
	if err := m.db.QueryRowContext(ctx, query).Scan(&busy, &frames, &checkpointed); err != nil {
		return err
	}

	if busy > 0 {
		m.log.Warnw("wal checkpoint left busy pages", "busy", busy, "frames", frames)
	}

	return nil
}

func (m *maintainer) vacuum(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "VACUUM"); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("database is locked, retry later: %w", err)
		}
		return err
	}

	return nil
}

func (m *maintainer) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

func (m *maintainer) Stats() MaintenanceStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}
