package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/goran-ethernal/HolderLedger/internal/events"
	"github.com/goran-ethernal/HolderLedger/internal/ledger"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/metrics"
	"github.com/goran-ethernal/HolderLedger/internal/store"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

const (
	modeFull        = "full"
	modeIncremental = "incremental"
	modeWallet      = "wallet"
)

// run is a single populate attempt holding the contract lock.
type run struct {
	s   *Synchronizer
	c   *contract
	id  string
	log *logger.Logger

	wallet string
	force  bool
	mode   string

	// state as of lock acquisition
	state *store.CacheState
}

func (r *run) execute(ctx context.Context) (Status, *ledger.Ledger, error) {
	policy := r.c.profile.LedgerPolicy()

	if r.wallet == "" && !r.force && r.state.LastProcessedBlock > 0 {
		if existing, ok := r.cachedLedger(ctx, policy); ok {
			r.mode = modeIncremental
			return r.incremental(ctx, existing, policy)
		}
	}

	r.mode = modeFull
	if r.wallet != "" {
		r.mode = modeWallet
	}

	return r.full(ctx, policy)
}

func (r *run) full(ctx context.Context, policy ledger.Policy) (Status, *ledger.Ledger, error) {
	p := r.c.profile

	if err := r.step(store.StepFetchingSupply, nil); err != nil {
		return StatusError, nil, err
	}
	supply, supplyOK := r.readSupply(ctx)

	latest, err := r.s.reader.LatestBlock(ctx)
	if err != nil {
		return StatusError, nil, fmt.Errorf("failed to read latest block: %w", err)
	}

	if err := r.step(store.StepFetchingHolders, nil); err != nil {
		return StatusError, nil, err
	}

	dir, err := r.s.owners.ListOwners(ctx, p.Address.Hex())
	if err != nil {
		return StatusError, nil, fmt.Errorf("failed to list owners: %w", err)
	}
	if err := r.step("", func(st *store.CacheState) { st.ProgressState.TotalNfts = dir.TokenCount() }); err != nil {
		return StatusError, nil, err
	}
	if dir.Truncated {
		r.recordError(store.ErrorEntry{
			Step:    store.StepFetchingHolders,
			Message: fmt.Sprintf("owner listing truncated after %d pages", dir.Pages),
		})
	}

	holders := dir.Owners
	if r.wallet != "" {
		holders = map[string][]uint64{}
		if ids, ok := dir.Owners[r.wallet]; ok {
			holders[r.wallet] = ids
		}
	}
	burned := slices.Clone(dir.Burned)

	if p.VerifyOwnership {
		var dropped []uint64
		holders, dropped, err = r.verifyOwnership(ctx, holders)
		if err != nil {
			return StatusError, nil, err
		}
		burned = append(burned, dropped...)
	}
	slices.Sort(burned)
	burned = slices.Compact(burned)

	tokenIDs := flatten(holders)
	tierMap, err := r.resolveTiers(ctx, tokenIDs)
	if err != nil {
		return StatusError, nil, err
	}

	if r.wallet == "" {
		if err := r.c.tiers.InvalidateTiers(ctx, burned); err != nil {
			r.log.Warnw("failed to invalidate tiers of burned tokens", "error", err)
		}
	}

	rewards, err := r.resolveRewards(ctx, holders)
	if err != nil {
		return StatusError, nil, err
	}

	if err := r.step(store.StepBuildingHolders, nil); err != nil {
		return StatusError, nil, err
	}

	totalBurned := len(burned)
	if supplyOK && p.SupplyCountsBurned && supply-len(tokenIDs) > totalBurned && r.wallet == "" {
		totalBurned = supply - len(tokenIDs)
	}

	l := ledger.BuildFull(holders, tierMap, rewards, totalBurned, policy)
	l.Timestamp = r.s.now().UnixMilli()

	if r.wallet != "" {
		if err := r.s.cache.SetJSON(ctx, p.WalletLedgerCacheKey(r.wallet), l); err != nil {
			r.log.Errorw("failed to store wallet ledger", "wallet", r.wallet, "error", err)
		}
		return StatusCompleted, l, nil
	}

	totalMinted := 0
	if supplyOK {
		totalMinted = supply
		if !p.SupplyCountsBurned {
			totalMinted += totalBurned
		}
	}

	if err := r.commit(ctx, l, latest, totalMinted, len(dir.Owners), policy); err != nil {
		return StatusError, nil, err
	}

	// the owner listing covers every range the replay ever skipped
	if err := r.step("", func(st *store.CacheState) { st.UnappliedRanges = nil }); err != nil {
		return StatusError, nil, err
	}
	metrics.UnappliedRangesSet(p.Key, 0)

	return StatusCompleted, l, nil
}

func (r *run) incremental(ctx context.Context, existing *ledger.Ledger, policy ledger.Policy) (Status, *ledger.Ledger, error) {
	p := r.c.profile

	if err := r.step(store.StepFetchingSupply, nil); err != nil {
		return StatusError, nil, err
	}
	supply, supplyOK := r.readSupply(ctx)

	latest, err := r.s.reader.LatestBlock(ctx)
	if err != nil {
		return StatusError, nil, fmt.Errorf("failed to read latest block: %w", err)
	}

	from := r.state.LastProcessedBlock + 1
	if from > latest {
		return StatusUpToDate, existing, nil
	}

	if err := r.step(store.StepFetchingHolders, nil); err != nil {
		return StatusError, nil, err
	}

	// every chunk is folded into the ledger and checkpointed before the next one is fetched
	cur := existing
	applied, transfers, burns := 0, 0, 0
	minted := func() int {
		return existingMinted(r.state, supply, supplyOK, cur.TotalBurned, p.SupplyCountsBurned)
	}

	set, err := r.s.tracker.CollectTransfers(ctx, p.Address, from, latest, func(c events.Chunk) error {
		if c.Err != nil {
			r.skipRange(c)
			return r.commit(ctx, nil, c.LastBlock, minted(), 0, policy)
		}
		if c.Empty() {
			return r.commit(ctx, nil, c.LastBlock, minted(), 0, policy)
		}

		next, err := r.applyChunk(ctx, cur, c, policy)
		if err != nil {
			return err
		}
		cur = next

		if err := r.commit(ctx, cur, c.LastBlock, minted(), len(cur.Holders), policy); err != nil {
			return err
		}

		applied++
		transfers += len(c.Transferred)
		burns += len(c.Burned)

		return r.step(store.StepFetchingHolders, nil)
	})
	if err != nil {
		if applied > 0 {
			r.log.Warnw("transfer replay stopped, keeping applied chunks",
				"appliedChunks", applied,
				"error", err,
			)
		}
		return StatusError, nil, fmt.Errorf("failed to collect transfers: %w", err)
	}

	if applied == 0 {
		return StatusUpToDate, cur, nil
	}

	r.log.Infow("ledger updated from transfers",
		"from", from,
		"to", set.LastBlock,
		"transfers", transfers,
		"burns", burns,
		"chunks", applied,
	)

	return StatusUpdated, cur, nil
}

// applyChunk folds the burns and transfers of one replayed chunk into l.
func (r *run) applyChunk(ctx context.Context, l *ledger.Ledger, c events.Chunk,
	policy ledger.Policy) (*ledger.Ledger, error) {
	moves := make([]ledger.Move, len(c.Transferred))
	for i, tr := range c.Transferred {
		moves[i] = ledger.Move{TokenID: tr.TokenID, To: tr.To}
	}

	holders := ledger.Affected(l, c.Burned, moves)
	maps.DeleteFunc(holders, func(_ string, ids []uint64) bool { return len(ids) == 0 })

	tierMap, err := r.resolveTiers(ctx, flatten(holders))
	if err != nil {
		return nil, err
	}

	if err := r.c.tiers.InvalidateTiers(ctx, c.Burned); err != nil {
		r.log.Warnw("failed to invalidate tiers of burned tokens", "error", err)
	}

	rewards, err := r.resolveRewards(ctx, holders)
	if err != nil {
		return nil, err
	}

	if err := r.step(store.StepBuildingHolders, nil); err != nil {
		return nil, err
	}

	next := ledger.ApplyIncremental(l, c.Burned, moves, tierMap, rewards, policy)
	next.Timestamp = r.s.now().UnixMilli()

	r.log.Debugw("chunk applied",
		"from", c.From,
		"to", c.LastBlock,
		"transfers", len(c.Transferred),
		"burns", len(c.Burned),
		"touchedWallets", len(holders),
	)

	return next, nil
}

// skipRange records a log range the replay had to skip. The checkpoint moves past it,
// so the range stays flagged until a full rebuild.
func (r *run) skipRange(c events.Chunk) {
	key := r.c.profile.Key

	r.recordError(store.ErrorEntry{
		Step:      store.StepFetchingHolders,
		Message:   c.Err.Error(),
		FromBlock: c.From,
		ToBlock:   c.LastBlock,
	})
	metrics.FailedRangesInc(key, 1)

	unapplied := 0
	if err := r.step("", func(st *store.CacheState) {
		st.AddUnapplied(store.BlockRange{From: c.From, To: c.LastBlock})
		unapplied = len(st.UnappliedRanges)
	}); err != nil {
		r.log.Warnw("failed to record unapplied range", "from", c.From, "to", c.LastBlock, "error", err)
		return
	}
	metrics.UnappliedRangesSet(key, unapplied)
}

func (r *run) resolveTiers(ctx context.Context, tokenIDs []uint64) (map[uint64]int, error) {
	if err := r.step(store.StepFetchingTiers, func(st *store.CacheState) {
		st.ProgressState.TotalTiers = len(tokenIDs)
		st.ProgressState.ProcessedTiers = 0
	}); err != nil {
		return nil, err
	}

	tierMap, err := r.c.tiers.ResolveTiers(ctx, tokenIDs, func(done, _ int) {
		if err := r.step("", func(st *store.CacheState) { st.ProgressState.ProcessedTiers = done }); err != nil {
			r.log.Debugw("progress update rejected", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	return tierMap, nil
}

func (r *run) resolveRewards(ctx context.Context, holders map[string][]uint64) (map[string]ledger.Reward, error) {
	if err := r.step(store.StepFetchingRewards, nil); err != nil {
		return nil, err
	}

	rewards, err := r.c.rewards.ResolveRewards(ctx, holders)
	if err != nil {
		return nil, err
	}

	if excluded := len(holders) - len(rewards); excluded > 0 && r.c.profile.RewardKind != config.RewardKindNone {
		r.log.Warnw("wallets without readable rewards", "count", excluded)
	}

	return rewards, nil
}

// readSupply reads the supply function. A failure is recorded and the run goes on.
func (r *run) readSupply(ctx context.Context) (int, bool) {
	p := r.c.profile

	values, err := r.s.reader.ReadView(ctx, p.Address, p.SupplyMethod)
	if err == nil && len(values) > 0 {
		if supply, ok := toInt(values[0]); ok {
			return supply, true
		}
		err = fmt.Errorf("unexpected %s result %v", p.SupplyMethod.Name, values[0])
	}
	if err == nil {
		err = errors.New("empty supply result")
	}

	r.log.Warnw("failed to read supply", "error", err)
	r.recordError(store.ErrorEntry{Step: store.StepFetchingSupply, Message: err.Error()})

	return 0, false
}

// commit stores the new ledger and advances the checkpoint. A nil ledger only
// advances the checkpoint. The ledger is written first: replaying events already
// folded into it leaves it unchanged, so a crash in between is harmless.
func (r *run) commit(ctx context.Context, l *ledger.Ledger, block uint64, totalMinted, totalOwners int,
	policy ledger.Policy) error {
	p := r.c.profile

	if l != nil {
		if r.s.states.Load(p.Key).RunID != r.id {
			return errLeaseLost
		}
		if err := r.s.cache.SetJSON(ctx, p.LedgerCacheKey(), l); err != nil {
			r.log.Errorw("failed to store ledger, continuing with in-memory result", "error", err)
		}
	}

	if err := r.step("", func(st *store.CacheState) {
		st.LastProcessedBlock = max(st.LastProcessedBlock, block)
		st.ProgressState.ScannedBlock = max(st.ProgressState.ScannedBlock, block)
		if totalMinted > 0 {
			st.GlobalMetrics.TotalMinted = totalMinted
		}
		if l == nil {
			return
		}

		st.TotalOwners = totalOwners
		st.TotalLiveHolders = len(l.Holders)
		st.GlobalMetrics = ledger.Metrics(l, totalMinted, policy)
	}); err != nil {
		return err
	}

	metrics.LastProcessedBlockSet(p.Key, block)
	if l != nil {
		live := 0
		for _, h := range l.Holders {
			live += h.Total
		}
		metrics.LedgerSizeSet(p.Key, len(l.Holders), live)
	}

	return nil
}

// step moves the run to a new state and applies mutate, while the run still owns the lock.
// An empty step only applies mutate.
func (r *run) step(step store.Step, mutate func(*store.CacheState)) error {
	_, err := r.s.states.Update(r.c.profile.Key, func(st *store.CacheState) error {
		if st.RunID != r.id {
			return errLeaseLost
		}
		if step != "" {
			st.ProgressState.Step = step
		}
		if mutate != nil {
			mutate(st)
		}
		return nil
	})

	if errors.Is(err, errLeaseLost) {
		return err
	}
	if err != nil {
		r.log.Warnw("failed to persist cache state, continuing", "error", err)
	}

	if step != "" {
		r.log.Debugw("step", "step", step)
	}

	return nil
}

func (r *run) recordError(e store.ErrorEntry) {
	e.Timestamp = r.s.now().UnixMilli()
	if err := r.step("", func(st *store.CacheState) { st.AppendError(e) }); err != nil {
		r.log.Warnw("failed to record run error", "message", e.Message, "error", err)
	}
}

func (r *run) cachedLedger(ctx context.Context, policy ledger.Policy) (*ledger.Ledger, bool) {
	var l ledger.Ledger

	found, err := r.s.cache.GetJSON(ctx, r.c.profile.LedgerCacheKey(), &l)
	if err != nil {
		r.log.Warnw("cached ledger unreadable, rebuilding", "error", err)
		return nil, false
	}
	if !found || !ledger.Valid(&l, policy) {
		return nil, false
	}

	return &l, true
}

func existingMinted(st *store.CacheState, supply int, supplyOK bool, totalBurned int, countsBurned bool) int {
	if !supplyOK {
		return st.GlobalMetrics.TotalMinted
	}
	if countsBurned {
		return supply
	}
	return supply + totalBurned
}

func flatten(holders map[string][]uint64) []uint64 {
	var ids []uint64
	for _, wallet := range slices.Sorted(maps.Keys(holders)) {
		ids = append(ids, holders[wallet]...)
	}
	slices.Sort(ids)
	return ids
}
