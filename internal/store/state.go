package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/ledger"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
)

// Step is a synchronization state.
type Step string

const (
	StepIdle               Step = "idle"
	StepStarting           Step = "starting"
	StepFetchingSupply     Step = "fetching_supply"
	StepFetchingHolders    Step = "fetching_holders"
	StepVerifyingOwnership Step = "verifying_ownership"
	StepFetchingTiers      Step = "fetching_tiers"
	StepFetchingRewards    Step = "fetching_rewards"
	StepBuildingHolders    Step = "building_holders"
	StepCompleted          Step = "completed"
	StepFailed             Step = "failed"
)

// maxErrorLog bounds the error log kept in a state record; older entries are dropped.
const maxErrorLog = 100

// ErrorEntry is one recorded failure of a run unit.
type ErrorEntry struct {
	Timestamp int64  `json:"timestamp"`
	Step      Step   `json:"step"`
	Message   string `json:"message"`
	FromBlock uint64 `json:"fromBlock,omitempty,string"`
	ToBlock   uint64 `json:"toBlock,omitempty,string"`
}

// BlockRange is an inclusive block range whose Transfer events never reached the ledger.
type BlockRange struct {
	From uint64 `json:"from,string"`
	To   uint64 `json:"to,string"`
}

// ProgressState is the observable progress of the current or last run.
type ProgressState struct {
	Step           Step         `json:"step"`
	ProcessedNfts  int          `json:"processedNfts"`
	TotalNfts      int          `json:"totalNfts"`
	ProcessedTiers int          `json:"processedTiers"`
	TotalTiers     int          `json:"totalTiers"`
	ScannedBlock   uint64       `json:"scannedBlock,omitempty,string"`
	Error          string       `json:"error,omitempty"`
	ErrorLog       []ErrorEntry `json:"errorLog"`
	LastUpdated    int64        `json:"lastUpdated"`
}

// CacheState is the persisted synchronization record of one contract.
type CacheState struct {
	IsPopulating       bool                 `json:"isPopulating"`
	RunID              string               `json:"runId,omitempty"`
	TotalOwners        int                  `json:"totalOwners"`
	TotalLiveHolders   int                  `json:"totalLiveHolders"`
	ProgressState      ProgressState        `json:"progressState"`
	LastUpdated        int64                `json:"lastUpdated"`
	LastProcessedBlock uint64               `json:"lastProcessedBlock,string"`
	GlobalMetrics      ledger.GlobalMetrics `json:"globalMetrics"`

	// UnappliedRanges are skipped log ranges behind the checkpoint. Only a full rebuild clears them.
	UnappliedRanges []BlockRange `json:"unappliedRanges,omitempty"`
}

// NewCacheState returns the state of a contract that has never been synchronized.
func NewCacheState() *CacheState {
	return &CacheState{
		ProgressState: ProgressState{
			Step:     StepIdle,
			ErrorLog: []ErrorEntry{},
		},
		GlobalMetrics: ledger.GlobalMetrics{
			TierDistribution: []int{},
			TotalClaimable:   "0",
		},
	}
}

// AppendError records a failure in the error log.
func (s *CacheState) AppendError(e ErrorEntry) {
	s.ProgressState.ErrorLog = append(s.ProgressState.ErrorLog, e)
	if n := len(s.ProgressState.ErrorLog); n > maxErrorLog {
		s.ProgressState.ErrorLog = slices.Clone(s.ProgressState.ErrorLog[n-maxErrorLog:])
	}
}

// AddUnapplied records a skipped range, merging it with an adjacent or overlapping one.
func (s *CacheState) AddUnapplied(r BlockRange) {
	ranges := append(slices.Clone(s.UnappliedRanges), r)
	slices.SortFunc(ranges, func(a, b BlockRange) int {
		switch {
		case a.From < b.From:
			return -1
		case a.From > b.From:
			return 1
		}
		return 0
	})

	merged := ranges[:1]
	for _, next := range ranges[1:] {
		last := &merged[len(merged)-1]
		if next.From <= last.To+1 {
			last.To = max(last.To, next.To)
			continue
		}
		merged = append(merged, next)
	}

	s.UnappliedRanges = merged
}

// NeedsRebuild reports whether the ledger misses events a full rebuild would pick up.
func (s *CacheState) NeedsRebuild() bool {
	return len(s.UnappliedRanges) > 0
}

// Clone returns a deep copy.
func (s *CacheState) Clone() *CacheState {
	c := *s
	c.ProgressState.ErrorLog = slices.Clone(s.ProgressState.ErrorLog)
	c.GlobalMetrics.TierDistribution = slices.Clone(s.GlobalMetrics.TierDistribution)
	c.UnappliedRanges = slices.Clone(s.UnappliedRanges)
	return &c
}

// StateStore keeps one CacheState JSON file per contract. The in-memory copy stays
// authoritative when a file write fails.
type StateStore struct {
	dir string
	log *logger.Logger
	now func() time.Time

	mu     sync.Mutex
	states map[string]*CacheState
}

// NewStateStore creates a state store writing into dir.
func NewStateStore(dir string, log *logger.Logger) *StateStore {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &StateStore{
		dir:    dir,
		log:    log,
		now:    time.Now,
		states: make(map[string]*CacheState),
	}
}

// Path returns the state file of a contract.
func (s *StateStore) Path(key string) string {
	return filepath.Join(s.dir, strings.ToLower(key)+"_state.json")
}

// Load returns a copy of the state of a contract, creating the default state on first access.
func (s *StateStore) Load(key string) *CacheState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(key).Clone()
}

// Update applies fn to the state of a contract and persists the result. An error from fn
// leaves the state untouched. The returned state reflects the change even when the file
// write fails, in which case the write error is returned as well.
func (s *StateStore) Update(key string, fn func(*CacheState) error) (*CacheState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.load(key).Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	stamp := s.now().UnixMilli()
	next.LastUpdated = stamp
	next.ProgressState.LastUpdated = stamp
	s.states[key] = next

	if err := s.write(key, next); err != nil {
		stateWrites.WithLabelValues("error").Inc()
		return next.Clone(), err
	}
	stateWrites.WithLabelValues("ok").Inc()

	return next.Clone(), nil
}

func (s *StateStore) load(key string) *CacheState {
	if st, ok := s.states[key]; ok {
		return st
	}

	st := NewCacheState()

	raw, err := os.ReadFile(s.Path(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		s.log.Warnw("failed to read cache state, using defaults", "contract", key, "error", err)
	default:
		decoded := NewCacheState()
		if err := json.Unmarshal(raw, decoded); err != nil {
			s.log.Warnw("corrupt cache state, using defaults", "contract", key, "error", err)
		} else {
			if decoded.ProgressState.ErrorLog == nil {
				decoded.ProgressState.ErrorLog = []ErrorEntry{}
			}
			st = decoded
		}
	}

	s.states[key] = st
	return st
}

func (s *StateStore) write(key string, st *CacheState) error {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache state: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, strings.ToLower(key)+"_state_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
