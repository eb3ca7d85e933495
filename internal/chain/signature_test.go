package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFunctionSignature(t *testing.T) {
	tests := []struct {
		name      string
		sig       string
		canonical string
		inputs    []FunctionParam
		outputs   []FunctionParam
		wantErr   string
	}{
		{
			name:      "no arguments",
			sig:       "totalSupply() returns (uint256)",
			canonical: "totalSupply()",
			outputs:   []FunctionParam{{Type: "uint256"}},
		},
		{
			name:      "named input",
			sig:       "getNftTier(uint256 tokenId) returns (uint8)",
			canonical: "getNftTier(uint256)",
			inputs:    []FunctionParam{{Name: "tokenId", Type: "uint256"}},
			outputs:   []FunctionParam{{Type: "uint8"}},
		},
		{
			name:      "solidity style with modifiers",
			sig:       "function userRecords(uint256) external view returns (uint256 shares, uint256 lockedAmount, uint256 rewardDebt)",
			canonical: "userRecords(uint256)",
			inputs:    []FunctionParam{{Type: "uint256"}},
			outputs: []FunctionParam{
				{Name: "shares", Type: "uint256"},
				{Name: "lockedAmount", Type: "uint256"},
				{Name: "rewardDebt", Type: "uint256"},
			},
		},
		{
			name:      "dynamic array with data location",
			sig:       "getRewards(uint256[] calldata tokenIds) returns (uint256)",
			canonical: "getRewards(uint256[])",
			inputs:    []FunctionParam{{Name: "tokenIds", Type: "uint256[]"}},
			outputs:   []FunctionParam{{Type: "uint256"}},
		},
		{
			name:      "no returns clause",
			sig:       "ownerOf(uint256)",
			canonical: "ownerOf(uint256)",
			inputs:    []FunctionParam{{Type: "uint256"}},
		},
		{
			name:    "empty",
			sig:     "  ",
			wantErr: "empty signature",
		},
		{
			name:    "missing parenthesis",
			sig:     "totalSupply",
			wantErr: "missing opening parenthesis",
		},
		{
			name:    "unbalanced",
			sig:     "ownerOf(uint256 returns (address)",
			wantErr: "missing closing parenthesis",
		},
		{
			name:    "bad type",
			sig:     "ownerOf(bogus) returns (address)",
			wantErr: "invalid Solidity type",
		},
		{
			name:    "duplicate names",
			sig:     "f(uint256 a, uint256 a) returns (bool)",
			wantErr: "duplicate parameter name",
		},
		{
			name:    "unknown token",
			sig:     "f(uint256) mutable returns (bool)",
			wantErr: "unexpected token",
		},
		{
			name:    "invalid name",
			sig:     "1f(uint256) returns (bool)",
			wantErr: "invalid function name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseFunctionSignature(tt.sig)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.canonical, parsed.CanonicalSignature())
			require.Equal(t, tt.inputs, parsed.Inputs)
			require.Equal(t, tt.outputs, parsed.Outputs)
		})
	}
}

func TestFunctionSignature_Method(t *testing.T) {
	method, err := ParseMethod("ownerOf(uint256 tokenId) returns (address)")
	require.NoError(t, err)

	// keccak256("ownerOf(uint256)")[:4]
	require.Equal(t, []byte{0x63, 0x52, 0x21, 0x1e}, method.ID)
	require.Len(t, method.Inputs, 1)
	require.Len(t, method.Outputs, 1)
	require.Equal(t, "address", method.Outputs[0].Type.String())
}

func TestResolveMethod(t *testing.T) {
	abiJSON := `[{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getNftTier",` +
		`"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

	path := filepath.Join(t.TempDir(), "element280.json")
	require.NoError(t, os.WriteFile(path, []byte(abiJSON), 0o600))

	contractABI, err := LoadABI(path)
	require.NoError(t, err)

	method, err := ResolveMethod("getNftTier", contractABI)
	require.NoError(t, err)
	require.Equal(t, "getNftTier", method.Name)

	_, err = ResolveMethod("getRewards", contractABI)
	require.ErrorContains(t, err, "not found in ABI")

	_, err = ResolveMethod("getNftTier", nil)
	require.ErrorContains(t, err, "needs a full signature")

	method, err = ResolveMethod("totalSupply() returns (uint256)", nil)
	require.NoError(t, err)
	require.Equal(t, "totalSupply", method.Name)

	_, err = LoadABI(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
