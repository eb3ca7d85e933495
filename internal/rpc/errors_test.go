package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// providerError mimics a JSON-RPC error carrying data, like the ones returned for oversized log queries.
type providerError struct {
	data any
}

func (e *providerError) Error() string  { return fmt.Sprintf("%v", e.data) }
func (e *providerError) ErrorData() any { return e.data }

const tooManyLogs = "Query returned more than 10000 results. Try with this block range [0x12a05f2, 0x12a0a10]."

func TestIsTooManyResultsError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantMatch bool
		wantData  string
	}{
		{name: "nil"},
		{name: "plain error", err: errors.New("execution reverted")},
		{
			name:     "data error without the marker",
			err:      &providerError{data: "invalid params"},
			wantData: "invalid params",
		},
		{
			name:      "data error with suggested range",
			err:       &providerError{data: tooManyLogs},
			wantMatch: true,
			wantData:  tooManyLogs,
		},
		{
			name:      "wrapped data error",
			err:       fmt.Errorf("chunk 19531250-19533250: %w", &providerError{data: tooManyLogs}),
			wantMatch: true,
			wantData:  tooManyLogs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, data := IsTooManyResultsError(tt.err)
			require.Equal(t, tt.wantMatch, match)
			require.Equal(t, tt.wantData, data)
		})
	}
}

func TestParseSuggestedBlockRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		msg      string
		wantFrom uint64
		wantTo   uint64
		wantOK   bool
	}{
		{name: "empty"},
		{name: "no brackets", msg: "Query returned more than 10000 results."},
		{name: "decimal values", msg: "Try with this block range [100, 200]."},
		{name: "hex range", msg: tooManyLogs, wantFrom: 0x12a05f2, wantTo: 0x12a0a10, wantOK: true},
		{name: "no space after comma", msg: "range [0x10,0x20]", wantFrom: 16, wantTo: 32, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			from, to, ok := ParseSuggestedBlockRange(tt.msg)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantFrom, from)
			require.Equal(t, tt.wantTo, to)
		})
	}
}

func TestIsRangeTooLargeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: errors.New("execution reverted"), want: false},
		{err: &providerError{data: tooManyLogs}, want: true},
		{err: errors.New("Log response size exceeded. You can make eth_getLogs requests with up to a 2K block range"), want: true},
		{err: errors.New("block range is too large"), want: true},
		{err: errors.New("exceed maximum block range: 5000"), want: true},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRangeTooLargeError(tt.err))
		})
	}
}

func TestErrorType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: ErrCallTimeout, want: "timeout"},
		{err: fmt.Errorf("ownerOf: %w", ErrCallTimeout), want: "timeout"},
		{err: ErrBreakerOpen, want: "breaker"},
		{err: context.Canceled, want: "context"},
		{err: context.DeadlineExceeded, want: "context"},
		{err: errors.New("429 Too Many Requests"), want: "transient"},
		{err: errors.New("503 service unavailable"), want: "transient"},
		{err: errors.New("execution reverted"), want: "permanent"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.err.Error(), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, errorType(tt.err))
		})
	}
}
