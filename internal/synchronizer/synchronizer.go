package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/goran-ethernal/HolderLedger/internal/chain"
	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/events"
	"github.com/goran-ethernal/HolderLedger/internal/ledger"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/owners"
	"github.com/goran-ethernal/HolderLedger/internal/profile"
	"github.com/goran-ethernal/HolderLedger/internal/store"
	"github.com/goran-ethernal/HolderLedger/internal/tiers"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

// Status is the outcome of a populate request.
type Status string

const (
	// StatusPending means another run holds the contract lock.
	StatusPending Status = "pending"
	// StatusInProgress means a run was started but did not finish within the wait window.
	StatusInProgress Status = "in_progress"
	StatusUpToDate   Status = "up_to_date"
	StatusUpdated    Status = "updated"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var (
	// ErrUnknownContract is returned for a contract key that is not configured.
	ErrUnknownContract = errors.New("unknown contract")
	// ErrInvalidWallet is returned for a wallet filter that is not an address.
	ErrInvalidWallet = errors.New("invalid wallet address")

	errLocked    = errors.New("populate lock held")
	errLeaseLost = errors.New("populate lock taken over by another run")
)

// ChainReader is the part of the chain reader a run needs.
type ChainReader interface {
	ReadView(ctx context.Context, contract ethcommon.Address, method abi.Method, args ...any) ([]any, error)
	Multicall(ctx context.Context, calls []chain.Call) ([]chain.Result, error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// OwnerLister lists the current owners of a contract.
type OwnerLister interface {
	ListOwners(ctx context.Context, contract string) (*owners.Directory, error)
}

// TransferCollector replays Transfer events over a block range.
type TransferCollector interface {
	CollectTransfers(ctx context.Context, contract ethcommon.Address, from, to uint64,
		onChunk events.ChunkFunc) (*events.TransferSet, error)
}

// Options tunes a single populate request.
type Options struct {
	// ForceUpdate rebuilds from scratch and ignores a held lock
	ForceUpdate bool

	// Wallet restricts a full rebuild to one wallet; the shared ledger is not touched
	Wallet string
}

// Result is the outcome of Populate.
type Result struct {
	Status Status
	Ledger *ledger.Ledger
	State  *store.CacheState
}

type contract struct {
	profile *profile.Profile
	tiers   *tiers.Resolver
	rewards tiers.RewardResolver
}

// Synchronizer keeps the holder ledger of every configured contract up to date.
type Synchronizer struct {
	reader  ChainReader
	owners  OwnerLister
	tracker TransferCollector
	cache   tiers.Cache
	states  *store.StateStore

	staleAfter time.Duration
	log        *logger.Logger

	now      func() time.Time
	newRunID func() string

	mu        sync.Mutex
	contracts map[string]*contract
	keys      []string
}

// Deps bundles the collaborators of a Synchronizer.
type Deps struct {
	Reader  ChainReader
	Owners  OwnerLister
	Tracker TransferCollector
	Cache   tiers.Cache
	States  *store.StateStore
}

// New creates a synchronizer over every profile in registry. A reward resolver that
// cannot be built is a configuration error.
func New(registry *profile.Registry, deps Deps, syncCfg config.SyncConfig, cacheCfg config.CacheConfig,
	log *logger.Logger) (*Synchronizer, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &Synchronizer{
		reader:     deps.Reader,
		owners:     deps.Owners,
		tracker:    deps.Tracker,
		cache:      deps.Cache,
		states:     deps.States,
		staleAfter: syncCfg.StaleAfter.Duration,
		log:        log,
		now:        time.Now,
		newRunID:   uuid.NewString,
		contracts:  make(map[string]*contract),
	}

	tierLog := log.WithComponent(common.ComponentTierResolver)
	for _, key := range registry.Keys() {
		p, _ := registry.Get(key)

		rewards, err := tiers.NewRewardResolver(p, deps.Reader, tierLog)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", key, err)
		}

		s.contracts[key] = &contract{
			profile: p,
			tiers:   tiers.NewResolver(p, deps.Reader, deps.Cache, cacheCfg.TierTTL.Duration, tierLog),
			rewards: rewards,
		}
		s.keys = append(s.keys, key)

		if deps.States != nil {
			unappliedRangesLoaded(key, len(deps.States.Load(key).UnappliedRanges))
		}
	}

	return s, nil
}

// Contracts returns the configured contract profiles sorted by key.
func (s *Synchronizer) Contracts() []*profile.Profile {
	out := make([]*profile.Profile, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, s.contracts[key].profile)
	}
	return out
}

// Profile returns the profile of a configured contract.
func (s *Synchronizer) Profile(key string) (*profile.Profile, error) {
	c, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	return c.profile, nil
}

// State returns a copy of the persisted state of a contract.
func (s *Synchronizer) State(key string) (*store.CacheState, error) {
	c, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	return s.states.Load(c.profile.Key), nil
}

func (s *Synchronizer) lookup(key string) (*contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[common.ToLowerWithTrim(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, key)
	}
	return c, nil
}

// Populate brings the holder ledger of a contract up to date. A request that finds the
// contract locked by a live run returns StatusPending without any remote call.
func (s *Synchronizer) Populate(ctx context.Context, key string, opts Options) (Result, error) {
	c, err := s.lookup(key)
	if err != nil {
		return Result{Status: StatusError}, err
	}

	wallet := ""
	if opts.Wallet != "" {
		normalized, ok := common.NormalizeAddress(opts.Wallet)
		if !ok {
			return Result{Status: StatusError}, fmt.Errorf("%w: %s", ErrInvalidWallet, opts.Wallet)
		}
		wallet = normalized
	}

	r, state, err := s.acquire(c.profile.Key, opts.ForceUpdate)
	if errors.Is(err, errLocked) {
		s.log.Debugw("populate already in flight", "contract", c.profile.Key)
		return Result{Status: StatusPending, State: s.states.Load(c.profile.Key)}, nil
	}

	r.c = c
	r.wallet = wallet
	r.force = opts.ForceUpdate
	r.state = state

	start := s.now()
	status, l, runErr := r.execute(ctx)
	s.release(r, status, runErr)

	metricsFor(c.profile.Key, r.mode, status, s.now().Sub(start))

	if runErr != nil {
		s.log.Errorw("populate failed", "contract", c.profile.Key, "runId", r.id, "error", runErr)
		return Result{Status: StatusError, State: s.states.Load(c.profile.Key)}, runErr
	}

	return Result{Status: status, Ledger: l, State: s.states.Load(c.profile.Key)}, nil
}

// acquire takes the populate lock of a contract and stamps a new run id.
func (s *Synchronizer) acquire(key string, force bool) (*run, *store.CacheState, error) {
	id := s.newRunID()

	state, err := s.states.Update(key, func(st *store.CacheState) error {
		if st.IsPopulating && !force {
			age := s.now().Sub(time.UnixMilli(st.ProgressState.LastUpdated))
			if s.staleAfter <= 0 || age < s.staleAfter {
				return errLocked
			}

			staleLockCleared(key)
			s.log.Warnw("clearing stale populate lock",
				"contract", key,
				"previousRunId", st.RunID,
				"age", age,
			)
		}

		st.IsPopulating = true
		st.RunID = id
		st.ProgressState = store.ProgressState{
			Step:     store.StepStarting,
			ErrorLog: []store.ErrorEntry{},
		}
		return nil
	})
	if errors.Is(err, errLocked) {
		return nil, nil, err
	}
	if err != nil {
		s.log.Warnw("failed to persist cache state, continuing", "contract", key, "error", err)
	}

	return &run{s: s, id: id, log: s.log.WithFields("contract", key, "runId", id)}, state, nil
}

// release clears the lock if this run still owns it.
func (s *Synchronizer) release(r *run, status Status, runErr error) {
	_, err := s.states.Update(r.c.profile.Key, func(st *store.CacheState) error {
		if st.RunID != r.id {
			return errLeaseLost
		}

		st.IsPopulating = false
		if runErr != nil {
			st.ProgressState.Step = store.StepFailed
			st.ProgressState.Error = runErr.Error()
		} else {
			st.ProgressState.Step = store.StepCompleted
			st.ProgressState.Error = ""
		}
		return nil
	})

	switch {
	case errors.Is(err, errLeaseLost):
		r.log.Warnw("populate lock was taken over, leaving it to the new run", "status", status)
	case err != nil:
		r.log.Warnw("failed to persist cache state, continuing", "error", err)
	}
}

// Trigger starts a populate run and waits at most wait for it. A run still going after
// wait keeps running in the background and StatusInProgress is returned.
func (s *Synchronizer) Trigger(ctx context.Context, key string, opts Options, wait time.Duration) (Status, error) {
	if _, err := s.lookup(key); err != nil {
		return StatusError, err
	}

	type outcome struct {
		status Status
		err    error
	}
	done := make(chan outcome, 1)

	runCtx := context.WithoutCancel(ctx)
	go func() {
		res, err := s.Populate(runCtx, key, opts)
		done <- outcome{status: res.Status, err: err}
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.status == StatusPending {
			return StatusInProgress, nil
		}
		return o.status, o.err
	case <-timer.C:
		return StatusInProgress, nil
	case <-ctx.Done():
		return StatusInProgress, nil
	}
}

// Snapshot returns the cached ledger and the state of a contract. With a wallet, the
// ledger stored by the last wallet-scoped run is returned. A missing ledger is nil.
func (s *Synchronizer) Snapshot(ctx context.Context, key, wallet string) (*ledger.Ledger, *store.CacheState, error) {
	c, err := s.lookup(key)
	if err != nil {
		return nil, nil, err
	}

	cacheKey := c.profile.LedgerCacheKey()
	if wallet != "" {
		normalized, ok := common.NormalizeAddress(wallet)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidWallet, wallet)
		}
		cacheKey = c.profile.WalletLedgerCacheKey(normalized)
	}

	state := s.states.Load(c.profile.Key)

	var l ledger.Ledger
	found, err := s.cache.GetJSON(ctx, cacheKey, &l)
	if err != nil {
		return nil, state, fmt.Errorf("failed to read ledger of %s: %w", c.profile.Key, err)
	}
	if !found {
		return nil, state, nil
	}

	return &l, state, nil
}

func toInt(v any) (int, bool) {
	n, ok := v.(*big.Int)
	if !ok || n == nil || !n.IsInt64() {
		return 0, false
	}
	return int(n.Int64()), true
}
