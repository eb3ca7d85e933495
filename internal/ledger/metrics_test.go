package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	policy := twoTierPolicy()
	l := BuildFull(map[string][]uint64{walletA: {1, 2}, walletB: {3, 4}}, map[uint64]int{1: 1, 2: 2, 3: 1, 4: 5},
		map[string]Reward{walletA: {Claimable: big.NewInt(7)}, walletB: {Claimable: big.NewInt(3)}}, 2, policy)

	m := Metrics(l, 10, policy)
	require.Equal(t, 10, m.TotalMinted)
	require.Equal(t, 4, m.TotalLive)
	require.Equal(t, 2, m.TotalBurned)
	require.Equal(t, 2, m.TotalHolders)
	require.Equal(t, []int{1, 2, 1}, m.TierDistribution)
	require.Equal(t, uint64(120), m.MultiplierPool)
	require.Equal(t, "10", m.TotalClaimable)
	require.Empty(t, m.TotalShares)

	unknownSupply := Metrics(l, 0, policy)
	require.Equal(t, 6, unknownSupply.TotalMinted)
}

func TestMetrics_Yield(t *testing.T) {
	policy := Policy{SupportsYield: true, MaxTier: 1, Multipliers: map[int]uint64{1: 1}}
	l := BuildFull(map[string][]uint64{walletA: {1}, walletB: {2}}, map[uint64]int{1: 1, 2: 1},
		map[string]Reward{walletA: {Shares: big.NewInt(5)}, walletB: {Shares: big.NewInt(6)}}, 0, policy)

	m := Metrics(l, 2, policy)
	require.Equal(t, "11", m.TotalShares)
}

func TestValid(t *testing.T) {
	policy := twoTierPolicy()
	good := BuildFull(map[string][]uint64{walletA: {1}}, map[uint64]int{1: 1}, nil, 0, policy)

	tests := []struct {
		name   string
		ledger *Ledger
		valid  bool
	}{
		{name: "built ledger", ledger: good, valid: true},
		{name: "empty ledger", ledger: &Ledger{Holders: []Holder{}}, valid: true},
		{name: "nil", ledger: nil, valid: false},
		{name: "missing holders", ledger: &Ledger{}, valid: false},
		{name: "negative burned", ledger: &Ledger{Holders: []Holder{}, TotalBurned: -1}, valid: false},
		{
			name:   "total mismatch",
			ledger: &Ledger{Holders: []Holder{{Wallet: walletA, TokenIDs: []uint64{1}, Total: 2, Tiers: []int{0, 2, 0}}}},
			valid:  false,
		},
		{
			name:   "tier shape mismatch",
			ledger: &Ledger{Holders: []Holder{{Wallet: walletA, TokenIDs: []uint64{1}, Total: 1, Tiers: []int{0, 1}}}},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.valid, Valid(tt.ledger, policy))
		})
	}
}
