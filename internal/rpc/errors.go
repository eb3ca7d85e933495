package rpc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/HolderLedger/internal/common"
)

var (
	// ErrCallTimeout is returned when a single attempt exceeds its hard timeout.
	// It never wraps the upstream error so callers can tell the two apart.
	ErrCallTimeout = errors.New("remote call timed out")

	// ErrBreakerOpen is returned when the context ends while calls are paused by the timeout breaker.
	ErrBreakerOpen = errors.New("timeout breaker open")
)

var (
	tooManyResultsRe = regexp.MustCompile(`Query returned more than \d+ results`)
	suggestedRangeRe = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// errorType buckets an error for the error counter.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrCallTimeout):
		return "timeout"
	case errors.Is(err, ErrBreakerOpen):
		return "breaker"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	case retryableError(err):
		return "transient"
	default:
		return "permanent"
	}
}

// IsTooManyResultsError checks if the error is an RPC "too many results" error (DataError with message in ErrorData).
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsRe.MatchString(errData), errData
	}

	return false, ""
}

// ParseSuggestedBlockRange attempts to extract the suggested block range from the error message.
// Returns the suggested fromBlock and toBlock, and true if successfully parsed.
// Expected format: "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(err string) (fromBlock, toBlock uint64, ok bool) {
	if err == "" {
		return 0, 0, false
	}

	matches := suggestedRangeRe.FindStringSubmatch(err)

	const expectedMatches = 3 // full match + 2 groups
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	// Parse hex strings to uint64
	from, err1 := common.ParseUint64orHex(&matches[1])
	to, err2 := common.ParseUint64orHex(&matches[2])

	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return from, to, true
}

// IsRangeTooLargeError reports whether a provider rejected a log query because
// the block range or the result set is too large. It covers the plain text
// variants that do not carry a suggested range.
func IsRangeTooLargeError(err error) bool {
	if err == nil {
		return false
	}

	if ok, _ := IsTooManyResultsError(err); ok {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "query returned more than") ||
		strings.Contains(msg, "response size exceeded") ||
		strings.Contains(msg, "block range is too large") ||
		strings.Contains(msg, "exceed maximum block range")
}
