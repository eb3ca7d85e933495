package common

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// DeadAddress is the conventional unspendable address tokens are sent to when burned.
var DeadAddress = ethcommon.HexToAddress("0x000000000000000000000000000000000000dEaD")

// ZeroAddress is the mint source and the ERC-721 burn target.
var ZeroAddress = ethcommon.Address{}

var burnAddresses = map[string]struct{}{
	strings.ToLower(ZeroAddress.Hex()): {},
	strings.ToLower(DeadAddress.Hex()): {},
}

// IsBurnAddress reports whether the given wallet is one of the canonical burn addresses.
// The comparison is case-insensitive.
func IsBurnAddress(wallet string) bool {
	_, ok := burnAddresses[ToLowerWithTrim(wallet)]
	return ok
}

// NormalizeAddress validates a hex address and returns it in lower case.
// ok is false when the input is not a valid 20 byte hex address.
func NormalizeAddress(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if !ethcommon.IsHexAddress(addr) {
		return "", false
	}

	return strings.ToLower(ethcommon.HexToAddress(addr).Hex()), true
}

// NormalizeEthAddress returns the lower case hex form of an address.
func NormalizeEthAddress(addr ethcommon.Address) string {
	return strings.ToLower(addr.Hex())
}
