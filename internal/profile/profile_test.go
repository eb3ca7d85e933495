package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/HolderLedger/pkg/config"
	"github.com/stretchr/testify/require"
)

func element280Config() config.ContractConfig {
	return config.ContractConfig{
		Key:             "Element280",
		Address:         "0x7F090d101936008a26Bf1F0a22a5f92fC0BF46a9",
		DeploymentBlock: 20945304,
		TierFunction:    "getNftTier(uint256 tokenId) returns (uint8)",
		Multipliers:     []uint64{10, 12, 100, 120, 180, 220},
		Rewards: config.RewardConfig{
			Kind:              config.RewardKindClaimable,
			ClaimableFunction: "getRewards(uint256[] tokenIds, address account) returns (uint256)",
		},
	}
}

func ascendantConfig() config.ContractConfig {
	return config.ContractConfig{
		Key:          "ascendant",
		Address:      "0x9da73356e79eac6e2b3cab7e8b8a5b8e53a2d4c2",
		TierFunction: "getNFTAttribute(uint256) returns (uint8)",
		Multipliers:  []uint64{1, 2, 3, 4, 5, 6, 7, 8},
		Rewards: config.RewardConfig{
			Kind:              config.RewardKindYield,
			ClaimableFunction: "batchClaimableAmount(uint256[] tokenIds) returns (uint256)",
			RecordFunction:    "userRecords(uint256) returns (uint256 shares, uint256 lockedAscendant, uint256 rewardDebt)",
			PendingFunctions:  []string{"pendingDay8(uint256) returns (uint256)", "pendingDay28(uint256) returns (uint256)"},
		},
	}
}

func TestNew_ClaimableProfile(t *testing.T) {
	cfg := element280Config()
	cfg.Rewards.ClaimableFunction = "getRewards(uint256[] tokenIds) returns (uint256)"

	p, err := New(cfg)
	require.NoError(t, err)

	require.Equal(t, "element280", p.Key)
	require.False(t, p.SupportsYield)
	require.Equal(t, 6, p.MaxTier)
	require.Equal(t, uint64(10), p.Multiplier(1))
	require.Equal(t, uint64(220), p.Multiplier(6))
	require.Equal(t, uint64(0), p.Multiplier(0))
	require.Equal(t, uint64(0), p.Multiplier(7))
	require.True(t, p.ValidTier(6))
	require.False(t, p.ValidTier(0))
	require.False(t, p.ValidTier(7))
	require.True(t, p.VerifyOwnership)
	require.Equal(t, ClaimableByTokens, p.ClaimableInputs)

	require.Equal(t, []string{
		"totalSupply()",
		"getNftTier(uint256)",
		"ownerOf(uint256)",
		"getRewards(uint256[])",
	}, p.RequiredFunctions())

	require.Equal(t, "element280_tiers", p.TierCacheKey())
	require.Equal(t, "element280_holders", p.LedgerCacheKey())
	require.Equal(t, "element280_holders_0xabc", p.WalletLedgerCacheKey("0xabc"))
}

func TestNew_YieldProfile(t *testing.T) {
	verify := false
	cfg := ascendantConfig()
	cfg.VerifyOwnership = &verify

	p, err := New(cfg)
	require.NoError(t, err)

	require.True(t, p.SupportsYield)
	require.False(t, p.VerifyOwnership)
	require.NotNil(t, p.RecordMethod)
	require.Len(t, p.RecordMethod.Outputs, 3)
	require.Len(t, p.PendingMethods, 2)
	require.Equal(t, "pendingDay28", p.PendingMethods[1].Name)
	require.NotContains(t, p.RequiredFunctions(), "ownerOf(uint256)")
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.ContractConfig)
		wantErr string
	}{
		{
			name:    "missing address",
			mutate:  func(c *config.ContractConfig) { c.Address = "" },
			wantErr: "not a valid hex address",
		},
		{
			name:    "tier function with wrong arity",
			mutate:  func(c *config.ContractConfig) { c.TierFunction = "getNftTier() returns (uint8)" },
			wantErr: "takes 0 inputs, expected 1",
		},
		{
			name:    "tier function by name without ABI",
			mutate:  func(c *config.ContractConfig) { c.TierFunction = "getNftTier" },
			wantErr: "needs a full signature",
		},
		{
			name: "unsupported claimable inputs",
			mutate: func(c *config.ContractConfig) {
				c.Rewards.ClaimableFunction = "getRewards(uint256) returns (uint256)"
			},
			wantErr: "unsupported inputs",
		},
		{
			name:    "missing ABI file",
			mutate:  func(c *config.ContractConfig) { c.ABIPath = "/nonexistent/abi.json" },
			wantErr: "failed to open ABI file",
		},
		{
			name:    "no multipliers",
			mutate:  func(c *config.ContractConfig) { c.Multipliers = nil },
			wantErr: "multiplier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := element280Config()
			tt.mutate(&cfg)

			_, err := New(cfg)
			require.ErrorIs(t, err, ErrConfiguration)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNew_FunctionsFromABIFile(t *testing.T) {
	abiJSON := `[
		{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getNftTier","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"tokenIds","type":"uint256[]"},{"name":"account","type":"address"}],"name":"getRewards","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
	path := filepath.Join(t.TempDir(), "element280.json")
	require.NoError(t, os.WriteFile(path, []byte(abiJSON), 0o600))

	cfg := element280Config()
	cfg.ABIPath = path
	cfg.TierFunction = "getNftTier"
	cfg.Rewards.ClaimableFunction = "getRewards"

	p, err := New(cfg)
	require.NoError(t, err)
	require.Equal(t, "getNftTier", p.TierMethod.Name)
	require.Equal(t, ClaimableByTokensAndAccount, p.ClaimableInputs)

	cfg.Rewards.ClaimableFunction = "missingFunction"
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorContains(t, err, "not found in ABI")
}

func TestRegistry(t *testing.T) {
	registry, err := NewRegistry([]config.ContractConfig{ascendantConfig(), element280Config()})
	require.NoError(t, err)

	require.Equal(t, []string{"ascendant", "element280"}, registry.Keys())

	p, ok := registry.Get(" ELEMENT280 ")
	require.True(t, ok)
	require.Equal(t, ClaimableByTokensAndAccount, p.ClaimableInputs)

	_, ok = registry.Get("unknown")
	require.False(t, ok)

	require.ErrorIs(t, registry.Register(p), ErrConfiguration)
}

func TestNewRegistry_InvalidContract(t *testing.T) {
	bad := element280Config()
	bad.TierFunction = ""

	_, err := NewRegistry([]config.ContractConfig{ascendantConfig(), bad})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestProfile_LedgerPolicy(t *testing.T) {
	p, err := New(ascendantConfig())
	require.NoError(t, err)

	policy := p.LedgerPolicy()
	require.True(t, policy.SupportsYield)
	require.Equal(t, 8, policy.MaxTier)
	require.Equal(t, uint64(8), policy.Multipliers[8])
}
