package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateStore_DefaultsOnFirstAccess(t *testing.T) {
	s := NewStateStore(t.TempDir(), nil)

	st := s.Load("element280")
	require.False(t, st.IsPopulating)
	require.Equal(t, StepIdle, st.ProgressState.Step)
	require.NotNil(t, st.ProgressState.ErrorLog)
	require.Zero(t, st.LastProcessedBlock)

	_, err := os.Stat(s.Path("element280"))
	require.True(t, os.IsNotExist(err))
}

func TestStateStore_UpdatePersists(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	s := NewStateStore(dir, nil)
	s.now = func() time.Time { return now }

	st, err := s.Update("element280", func(st *CacheState) error {
		st.IsPopulating = true
		st.RunID = "run-1"
		st.LastProcessedBlock = 21000000
		st.ProgressState.Step = StepFetchingTiers
		st.AppendError(ErrorEntry{Step: StepFetchingHolders, Message: "chunk failed", FromBlock: 10, ToBlock: 20})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, now.UnixMilli(), st.LastUpdated)
	require.Equal(t, now.UnixMilli(), st.ProgressState.LastUpdated)

	raw, err := os.ReadFile(filepath.Join(dir, "element280_state.json"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t, "21000000", fields["lastProcessedBlock"])
	require.Equal(t, true, fields["isPopulating"])

	progress := fields["progressState"].(map[string]any)
	require.Equal(t, "fetching_tiers", progress["step"])
	entry := progress["errorLog"].([]any)[0].(map[string]any)
	require.Equal(t, "10", entry["fromBlock"])

	// a fresh store reads the record back from disk
	reloaded := NewStateStore(dir, nil).Load("element280")
	require.Equal(t, st, reloaded)
}

func TestStateStore_UpdateErrorLeavesStateUntouched(t *testing.T) {
	s := NewStateStore(t.TempDir(), nil)
	boom := errors.New("locked")

	_, err := s.Update("c", func(st *CacheState) error {
		st.IsPopulating = true
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, s.Load("c").IsPopulating)
}

func TestStateStore_WriteFailureKeepsMemoryState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewStateStore(blocker, nil)
	st, err := s.Update("c", func(st *CacheState) error {
		st.LastProcessedBlock = 7
		return nil
	})
	require.Error(t, err)
	require.NotNil(t, st)
	require.Equal(t, uint64(7), s.Load("c").LastProcessedBlock)
}

func TestStateStore_CorruptFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c_state.json"), []byte("{not json"), 0o600))

	st := NewStateStore(dir, nil).Load("c")
	require.Equal(t, StepIdle, st.ProgressState.Step)
}

func TestCacheState_ErrorLogBounded(t *testing.T) {
	st := NewCacheState()
	for i := range maxErrorLog + 5 {
		st.AppendError(ErrorEntry{Message: string(rune('a' + i%26)), FromBlock: uint64(i)})
	}

	require.Len(t, st.ProgressState.ErrorLog, maxErrorLog)
	require.Equal(t, uint64(5), st.ProgressState.ErrorLog[0].FromBlock)
}

func TestCacheState_CloneIsDeep(t *testing.T) {
	st := NewCacheState()
	st.AppendError(ErrorEntry{Message: "a"})
	st.GlobalMetrics.TierDistribution = []int{1, 2}

	c := st.Clone()
	c.ProgressState.ErrorLog[0].Message = "b"
	c.GlobalMetrics.TierDistribution[0] = 9

	require.Equal(t, "a", st.ProgressState.ErrorLog[0].Message)
	require.Equal(t, 1, st.GlobalMetrics.TierDistribution[0])
}

func TestCacheState_AddUnapplied(t *testing.T) {
	tests := []struct {
		name string
		add  []BlockRange
		want []BlockRange
	}{
		{
			name: "single",
			add:  []BlockRange{{From: 140, To: 145}},
			want: []BlockRange{{From: 140, To: 145}},
		},
		{
			name: "disjoint ranges are sorted",
			add:  []BlockRange{{From: 300, To: 399}, {From: 100, To: 199}},
			want: []BlockRange{{From: 100, To: 199}, {From: 300, To: 399}},
		},
		{
			name: "adjacent ranges merge",
			add:  []BlockRange{{From: 100, To: 199}, {From: 200, To: 299}},
			want: []BlockRange{{From: 100, To: 299}},
		},
		{
			name: "overlap and containment",
			add:  []BlockRange{{From: 100, To: 250}, {From: 200, To: 220}, {From: 240, To: 300}},
			want: []BlockRange{{From: 100, To: 300}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewCacheState()
			require.False(t, st.NeedsRebuild())

			for _, r := range tt.add {
				st.AddUnapplied(r)
			}

			require.Equal(t, tt.want, st.UnappliedRanges)
			require.True(t, st.NeedsRebuild())
		})
	}
}

func TestCacheState_UnappliedRangesPersist(t *testing.T) {
	dir := t.TempDir()

	s := NewStateStore(dir, nil)
	_, err := s.Update("element280", func(st *CacheState) error {
		st.AddUnapplied(BlockRange{From: 21000000, To: 21000199})
		return nil
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path("element280"))
	require.NoError(t, err)

	var onDisk struct {
		UnappliedRanges []map[string]string `json:"unappliedRanges"`
	}
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, []map[string]string{{"from": "21000000", "to": "21000199"}}, onDisk.UnappliedRanges)

	reloaded := NewStateStore(dir, nil).Load("element280")
	require.Equal(t, []BlockRange{{From: 21000000, To: 21000199}}, reloaded.UnappliedRanges)

	clone := reloaded.Clone()
	clone.UnappliedRanges[0].To = 1
	require.Equal(t, uint64(21000199), reloaded.UnappliedRanges[0].To)
}
