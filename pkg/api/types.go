package api

import (
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/ledger"
	"github.com/goran-ethernal/HolderLedger/internal/store"
)

// HoldersResponse is a page of the holder ledger of a contract.
type HoldersResponse struct {
	Holders       []ledger.Holder      `json:"holders"`
	Page          int                  `json:"page"`
	PageSize      int                  `json:"pageSize"`
	TotalPages    int                  `json:"totalPages"`
	TotalTokens   int                  `json:"totalTokens"`
	TotalBurned   int                  `json:"totalBurned"`
	Summary       ledger.GlobalMetrics `json:"summary"`
	GlobalMetrics ledger.GlobalMetrics `json:"globalMetrics"`
	Timestamp     int64                `json:"timestamp"`
}

// PopulatingResponse is returned while a synchronization of the contract is running.
type PopulatingResponse struct {
	IsCachePopulating bool                 `json:"isCachePopulating"`
	ProgressState     store.ProgressState  `json:"progressState"`
	GlobalMetrics     ledger.GlobalMetrics `json:"globalMetrics"`
}

// SyncRequest is the optional body of a synchronization request.
type SyncRequest struct {
	ForceUpdate bool   `json:"forceUpdate"`
	Wallet      string `json:"wallet,omitempty"`
}

// SyncResponse reports the outcome of a synchronization request.
type SyncResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status        string           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	CacheDegraded bool             `json:"cacheDegraded"`
	Contracts     []ContractStatus `json:"contracts"`
}

// ContractStatus is the synchronization status of one contract.
type ContractStatus struct {
	Key                string     `json:"key"`
	IsPopulating       bool       `json:"isPopulating"`
	Step               store.Step `json:"step"`
	LastProcessedBlock uint64     `json:"lastProcessedBlock,string"`
	LastUpdated        int64      `json:"lastUpdated"`
	Error              string     `json:"error,omitempty"`

	// RebuildNeeded is set while skipped log ranges are missing from the ledger
	RebuildNeeded   bool               `json:"rebuildNeeded"`
	UnappliedRanges []store.BlockRange `json:"unappliedRanges,omitempty"`
}

// ContractInfo describes a configured contract.
type ContractInfo struct {
	Key             string   `json:"key"`
	Address         string   `json:"address"`
	DeploymentBlock uint64   `json:"deploymentBlock"`
	RewardKind      string   `json:"rewardKind"`
	MaxTier         int      `json:"maxTier"`
	Multipliers     []uint64 `json:"multipliers"`
	VerifyOwnership bool     `json:"verifyOwnership"`
	TierMutable     bool     `json:"tierMutable"`
	Endpoints       []string `json:"endpoints"`

	// RequiredFunctions are the canonical signatures the contract is read through
	RequiredFunctions []string `json:"requiredFunctions"`
}
