package common

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ParseUint64orHex converts the given uint64 string into the number.
// It can parse the string with 0x prefix as well.
func ParseUint64orHex(val *string) (uint64, error) {
	if val == nil {
		return 0, nil
	}

	str := *val
	base := 10

	if strings.HasPrefix(str, "0x") {
		str = str[2:]
		base = 16
	}

	return strconv.ParseUint(str, base, 64)
}

const bytesInMB = 1024 * 1024

func MBToBytes(mb uint64) uint64 {
	return mb * bytesInMB
}

func BytesToMB(bytes uint64) uint64 {
	return bytes / bytesInMB
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseTokenID parses a token id given either as a decimal string or a 0x prefixed hex string
// (providers return both forms). Ids that do not fit into uint64 are rejected.
func ParseTokenID(val string) (uint64, error) {
	str := strings.TrimSpace(val)
	if str == "" {
		return 0, fmt.Errorf("empty token id")
	}

	base := 10
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		str = str[2:]
		base = 16
	}

	n, ok := new(big.Int).SetString(str, base)
	if !ok {
		return 0, fmt.Errorf("invalid token id %q", val)
	}

	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("token id %q out of range", val)
	}

	return n.Uint64(), nil
}

// BigToDecimal renders a big integer as a decimal string. Nil renders as "0".
func BigToDecimal(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// DecimalToBig parses a decimal string produced by BigToDecimal. Empty renders as zero.
func DecimalToBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal value %q", s)
	}
	return n, nil
}
