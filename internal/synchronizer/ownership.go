package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/HolderLedger/internal/chain"
	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/store"
)

// ownershipChunk is the number of ownerOf calls between two progress updates.
const ownershipChunk = 500

// verifyOwnership checks every listed token with ownerOf. A token whose ownerOf reverts
// or points at a burn address is dropped as burned. A token that moved is reassigned to
// its on-chain owner. A token that could not be checked stays with its listed owner.
func (r *run) verifyOwnership(ctx context.Context, holders map[string][]uint64) (map[string][]uint64, []uint64, error) {
	type listed struct {
		id     uint64
		wallet string
	}

	var tokens []listed
	for _, wallet := range slices.Sorted(maps.Keys(holders)) {
		for _, id := range holders[wallet] {
			tokens = append(tokens, listed{id: id, wallet: wallet})
		}
	}

	if err := r.step(store.StepVerifyingOwnership, func(st *store.CacheState) {
		st.ProgressState.TotalNfts = len(tokens)
		st.ProgressState.ProcessedNfts = 0
	}); err != nil {
		return nil, nil, err
	}

	p := r.c.profile
	verified := make(map[string][]uint64, len(holders))
	var (
		burned    []uint64
		moved     int
		unchecked int
		lastErr   error
	)

	for start := 0; start < len(tokens); start += ownershipChunk {
		end := min(start+ownershipChunk, len(tokens))
		chunk := tokens[start:end]

		calls := make([]chain.Call, len(chunk))
		for i, t := range chunk {
			calls[i] = chain.Call{
				Target: p.Address,
				Method: p.OwnerOfMethod,
				Args:   []any{new(big.Int).SetUint64(t.id)},
			}
		}

		results, err := r.s.reader.Multicall(ctx, calls)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to verify ownership: %w", err)
		}

		for i, res := range results {
			t := chunk[i]

			if errors.Is(res.Err, chain.ErrCallReverted) {
				burned = append(burned, t.id)
				continue
			}

			owner, ok := ownerOf(res)
			if !ok {
				unchecked++
				if res.Err != nil {
					lastErr = res.Err
				}
				verified[t.wallet] = append(verified[t.wallet], t.id)
				continue
			}

			if common.IsBurnAddress(owner) {
				burned = append(burned, t.id)
				continue
			}
			if owner != t.wallet {
				moved++
			}
			verified[owner] = append(verified[owner], t.id)
		}

		if err := r.step("", func(st *store.CacheState) { st.ProgressState.ProcessedNfts = end }); err != nil {
			return nil, nil, err
		}
	}

	for wallet := range verified {
		slices.Sort(verified[wallet])
	}

	if r.wallet != "" {
		verified = map[string][]uint64{r.wallet: verified[r.wallet]}
		if len(verified[r.wallet]) == 0 {
			delete(verified, r.wallet)
		}
	}

	if unchecked > 0 {
		msg := fmt.Sprintf("ownership of %d tokens could not be verified", unchecked)
		if lastErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, lastErr)
		}
		r.recordError(store.ErrorEntry{Step: store.StepVerifyingOwnership, Message: msg})
	}

	r.log.Infow("ownership verified",
		"tokens", len(tokens),
		"burned", len(burned),
		"moved", moved,
		"unchecked", unchecked,
	)

	return verified, burned, nil
}

func ownerOf(res chain.Result) (string, bool) {
	if res.Err != nil || !res.Success || len(res.Values) == 0 {
		return "", false
	}

	addr, ok := res.Values[0].(ethcommon.Address)
	if !ok {
		return "", false
	}

	return common.NormalizeEthAddress(addr), true
}
