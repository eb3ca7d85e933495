package ledger

import "math/big"

// Holder is the per-wallet record of a contract ledger.
type Holder struct {
	Wallet   string   `json:"wallet"`
	TokenIDs []uint64 `json:"tokenIds"`
	Total    int      `json:"total"`

	// Tiers counts tokens per tier. Index 0 counts tokens whose tier could not be resolved.
	Tiers         []int   `json:"tiers"`
	MultiplierSum uint64  `json:"multiplierSum"`
	Percentage    float64 `json:"percentage"`
	Rank          int     `json:"rank"`

	ClaimableRewards string            `json:"claimableRewards"`
	Shares           string            `json:"shares,omitempty"`
	LockedAmount     string            `json:"lockedAmount,omitempty"`
	Pending          map[string]string `json:"pending,omitempty"`
}

// Ledger is the served snapshot of a contract.
type Ledger struct {
	Holders     []Holder `json:"holders"`
	TotalBurned int      `json:"totalBurned"`
	Timestamp   int64    `json:"timestamp"`
}

// GlobalMetrics is the aggregate view of a ledger.
type GlobalMetrics struct {
	TotalMinted      int    `json:"totalMinted"`
	TotalLive        int    `json:"totalLive"`
	TotalBurned      int    `json:"totalBurned"`
	TotalHolders     int    `json:"totalHolders"`
	TierDistribution []int  `json:"tierDistribution"`
	MultiplierPool   uint64 `json:"multiplierPool"`
	TotalClaimable   string `json:"totalClaimable"`
	TotalShares      string `json:"totalShares,omitempty"`
}

// Reward is the resolved reward state of a wallet. Nil amounts count as zero.
type Reward struct {
	Claimable *big.Int
	Shares    *big.Int
	Locked    *big.Int

	// Pending maps a pool name to the pending amount
	Pending map[string]*big.Int
}

// Policy carries the contract specific rules the builder applies.
type Policy struct {
	SupportsYield bool
	MaxTier       int

	// Multipliers maps a valid tier to its multiplier
	Multipliers map[int]uint64
}

func (p Policy) validTier(tier int) bool {
	return tier >= 1 && tier <= p.MaxTier
}
