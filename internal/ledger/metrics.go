package ledger

import (
	"math/big"

	"github.com/goran-ethernal/HolderLedger/internal/common"
)

// Metrics computes the global aggregate of a ledger. totalMinted comes from the supply
// function; when it is not known the live plus burned count is used.
func Metrics(l *Ledger, totalMinted int, policy Policy) GlobalMetrics {
	m := GlobalMetrics{
		TotalBurned:      l.TotalBurned,
		TotalHolders:     len(l.Holders),
		TierDistribution: make([]int, policy.MaxTier+1),
	}

	claimable := new(big.Int)
	shares := new(big.Int)

	for _, h := range l.Holders {
		m.TotalLive += h.Total
		m.MultiplierPool += h.MultiplierSum

		for tier, count := range h.Tiers {
			if tier < len(m.TierDistribution) {
				m.TierDistribution[tier] += count
			}
		}

		claimable.Add(claimable, parseAmount(h.ClaimableRewards))
		if policy.SupportsYield {
			shares.Add(shares, parseAmount(h.Shares))
		}
	}

	m.TotalMinted = totalMinted
	if m.TotalMinted <= 0 {
		m.TotalMinted = m.TotalLive + m.TotalBurned
	}

	m.TotalClaimable = common.BigToDecimal(claimable)
	if policy.SupportsYield {
		m.TotalShares = common.BigToDecimal(shares)
	}

	return m
}

// Valid reports whether a cached ledger can seed an incremental update.
func Valid(l *Ledger, policy Policy) bool {
	if l == nil || l.Holders == nil || l.TotalBurned < 0 {
		return false
	}

	for _, h := range l.Holders {
		if h.Wallet == "" || h.Total != len(h.TokenIDs) || len(h.Tiers) != policy.MaxTier+1 {
			return false
		}

		sum := 0
		for _, c := range h.Tiers {
			sum += c
		}
		if sum != h.Total {
			return false
		}
	}

	return true
}
