package tiers

import (
	"math/big"
)

// toBig converts a decoded ABI integer into a big.Int.
func toBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	default:
		return nil, false
	}
}

// toTier converts a decoded ABI integer into a tier number. ok is false for
// non integer values and values that do not fit an int.
func toTier(v any) (int, bool) {
	b, ok := toBig(v)
	if !ok || !b.IsInt64() {
		return 0, false
	}

	n := b.Int64()
	if n < 0 || n > int64(^uint32(0)) {
		return 0, false
	}

	return int(n), true
}
