package ledger

import (
	"maps"
	"math/big"
	"slices"
	"strings"

	"github.com/goran-ethernal/HolderLedger/internal/common"
)

// BuildFull builds a ledger from a complete owner listing. Wallets without tokens are dropped.
// The timestamp is left to the caller.
func BuildFull(owners map[string][]uint64, tiers map[uint64]int, rewards map[string]Reward,
	totalBurned int, policy Policy) *Ledger {
	holders := make([]Holder, 0, len(owners))

	for _, wallet := range slices.Sorted(maps.Keys(owners)) {
		tokens := owners[wallet]
		if len(tokens) == 0 {
			continue
		}

		h := Holder{Wallet: wallet, TokenIDs: tokens}
		derive(&h, tiers, policy)
		setReward(&h, rewards[wallet], policy)
		holders = append(holders, h)
	}

	l := &Ledger{Holders: holders, TotalBurned: totalBurned}
	materialize(l, policy)

	return l
}

// ApplyIncremental applies a window of transfers and burns to a copy of existing.
// The ledger is authoritative for the current owner of a token: the event sender is ignored.
// Transfers are applied in order before burns, since a burned token never moves again.
// tiers must cover every token of every touched wallet. rewards replaces the reward
// state of the wallets it contains.
func ApplyIncremental(existing *Ledger, burns []uint64, transfers []Move, tiers map[uint64]int,
	rewards map[string]Reward, policy Policy) *Ledger {
	r := replay(existing, burns, transfers)

	for wallet := range rewards {
		if _, ok := r.tokens[wallet]; ok {
			r.touched[wallet] = struct{}{}
		}
	}

	holders := make([]Holder, 0, len(r.tokens))
	for wallet, set := range r.tokens {
		if len(set) == 0 {
			continue
		}

		if _, ok := r.touched[wallet]; !ok {
			holders = append(holders, cloneHolder(r.byWallet[wallet]))
			continue
		}

		h := Holder{Wallet: wallet, TokenIDs: slices.Sorted(maps.Keys(set))}
		derive(&h, tiers, policy)

		if reward, ok := rewards[wallet]; ok {
			setReward(&h, reward, policy)
		} else if prev, ok := r.byWallet[wallet]; ok {
			copyReward(&h, prev)
		} else {
			setReward(&h, Reward{}, policy)
		}

		holders = append(holders, h)
	}

	l := &Ledger{Holders: holders, TotalBurned: r.totalBurned, Timestamp: existing.Timestamp}
	materialize(l, policy)

	return l
}

// Affected returns the token sets, after the window is applied, of every wallet
// the window touches. Wallets left without tokens map to an empty slice.
func Affected(existing *Ledger, burns []uint64, transfers []Move) map[string][]uint64 {
	r := replay(existing, burns, transfers)

	out := make(map[string][]uint64, len(r.touched))
	for wallet := range r.touched {
		ids := slices.Sorted(maps.Keys(r.tokens[wallet]))
		if ids == nil {
			ids = []uint64{}
		}
		out[wallet] = ids
	}

	return out
}

type replayed struct {
	tokens      map[string]map[uint64]struct{}
	byWallet    map[string]Holder
	touched     map[string]struct{}
	totalBurned int
}

func replay(existing *Ledger, burns []uint64, transfers []Move) replayed {
	ownerOf := make(map[uint64]string)
	r := replayed{
		tokens:      make(map[string]map[uint64]struct{}, len(existing.Holders)),
		byWallet:    make(map[string]Holder, len(existing.Holders)),
		touched:     make(map[string]struct{}),
		totalBurned: existing.TotalBurned,
	}

	for _, h := range existing.Holders {
		set := make(map[uint64]struct{}, len(h.TokenIDs))
		for _, id := range h.TokenIDs {
			set[id] = struct{}{}
			ownerOf[id] = h.Wallet
		}
		r.tokens[h.Wallet] = set
		r.byWallet[h.Wallet] = h
	}

	take := func(id uint64) bool {
		owner, held := ownerOf[id]
		if !held {
			return false
		}
		delete(r.tokens[owner], id)
		delete(ownerOf, id)
		r.touched[owner] = struct{}{}
		return true
	}

	for _, m := range transfers {
		to := strings.ToLower(m.To)
		if owner, held := ownerOf[m.TokenID]; held && owner == to {
			continue
		}

		take(m.TokenID)

		if r.tokens[to] == nil {
			r.tokens[to] = make(map[uint64]struct{})
		}
		r.tokens[to][m.TokenID] = struct{}{}
		ownerOf[m.TokenID] = to
		r.touched[to] = struct{}{}
	}

	for _, id := range burns {
		if take(id) {
			r.totalBurned++
		}
	}

	return r
}

// Move is a token movement fed to ApplyIncremental.
type Move struct {
	TokenID uint64
	To      string
}

// derive recomputes total, tiers and multiplier sum from the holder's token set.
func derive(h *Holder, tiers map[uint64]int, policy Policy) {
	slices.Sort(h.TokenIDs)
	h.TokenIDs = slices.Compact(h.TokenIDs)
	h.Total = len(h.TokenIDs)
	h.Tiers = make([]int, policy.MaxTier+1)
	h.MultiplierSum = 0

	for _, id := range h.TokenIDs {
		tier := tiers[id]
		if !policy.validTier(tier) {
			h.Tiers[0]++
			continue
		}

		h.Tiers[tier]++
		h.MultiplierSum += policy.Multipliers[tier]
	}
}

func setReward(h *Holder, r Reward, policy Policy) {
	h.ClaimableRewards = common.BigToDecimal(r.Claimable)
	h.Shares = ""
	h.LockedAmount = ""
	h.Pending = nil

	if !policy.SupportsYield {
		return
	}

	h.Shares = common.BigToDecimal(r.Shares)
	h.LockedAmount = common.BigToDecimal(r.Locked)
	if len(r.Pending) > 0 {
		h.Pending = make(map[string]string, len(r.Pending))
		for pool, amount := range r.Pending {
			h.Pending[pool] = common.BigToDecimal(amount)
		}
	}
}

func copyReward(h *Holder, prev Holder) {
	h.ClaimableRewards = prev.ClaimableRewards
	h.Shares = prev.Shares
	h.LockedAmount = prev.LockedAmount
	h.Pending = maps.Clone(prev.Pending)
}

func cloneHolder(h Holder) Holder {
	h.TokenIDs = slices.Clone(h.TokenIDs)
	h.Tiers = slices.Clone(h.Tiers)
	h.Pending = maps.Clone(h.Pending)
	return h
}

// materialize sorts, ranks and recomputes percentages.
func materialize(l *Ledger, policy Policy) {
	shares := make(map[string]*big.Int, len(l.Holders))
	if policy.SupportsYield {
		for _, h := range l.Holders {
			shares[h.Wallet] = parseAmount(h.Shares)
		}
	}

	slices.SortFunc(l.Holders, func(a, b Holder) int {
		if policy.SupportsYield {
			if c := shares[b.Wallet].Cmp(shares[a.Wallet]); c != 0 {
				return c
			}
		} else if a.MultiplierSum != b.MultiplierSum {
			if a.MultiplierSum > b.MultiplierSum {
				return -1
			}
			return 1
		}

		if a.Total != b.Total {
			return b.Total - a.Total
		}

		return strings.Compare(a.Wallet, b.Wallet)
	})

	var pool uint64
	totalShares := new(big.Int)
	for _, h := range l.Holders {
		pool += h.MultiplierSum
		if policy.SupportsYield {
			totalShares.Add(totalShares, shares[h.Wallet])
		}
	}

	for i := range l.Holders {
		h := &l.Holders[i]
		h.Rank = i + 1

		switch {
		case policy.SupportsYield:
			h.Percentage = ratio(shares[h.Wallet], totalShares)
		case pool > 0:
			h.Percentage = float64(h.MultiplierSum) / float64(pool) * 100 //nolint:mnd
		default:
			h.Percentage = 0
		}
	}
}

// ratio returns part/total*100, 0 when total is 0.
func ratio(part, total *big.Int) float64 {
	if total.Sign() == 0 {
		return 0
	}

	pct, _ := new(big.Float).Quo(
		new(big.Float).Mul(new(big.Float).SetInt(part), big.NewFloat(100)), //nolint:mnd
		new(big.Float).SetInt(total),
	).Float64()

	return pct
}

func parseAmount(s string) *big.Int {
	v, err := common.DecimalToBig(s)
	if err != nil {
		return new(big.Int)
	}
	return v
}
