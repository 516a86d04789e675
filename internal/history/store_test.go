package history

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"votedesk.mini/vdk/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func tally(at time.Time, votes ...uint64) *types.Snapshot {
	candidates := make([]types.Candidate, len(votes))
	for i, v := range votes {
		candidates[i] = types.Candidate{ID: uint64(i + 1), Name: string(rune('A' + i)), VoteCount: v}
	}
	return types.NewSnapshot(candidates, []types.Voter{{ID: 1, Name: "V", Age: 30}}, at)
}

func TestRecordSkipsUnchangedTally(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	added, err := store.Record(tally(base, 3, 5))
	require.NoError(t, err)
	require.True(t, added)

	added, err = store.Record(tally(base.Add(10*time.Second), 3, 5))
	require.NoError(t, err)
	require.False(t, added, "same counts should not be recorded twice")

	added, err = store.Record(tally(base.Add(20*time.Second), 4, 5))
	require.NoError(t, err)
	require.True(t, added)

	added, err = store.Record(nil)
	require.NoError(t, err)
	require.False(t, added)

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	newest := entries[0]
	require.Equal(t, uint64(9), newest.TotalVotes)
	require.Equal(t, 2, newest.CandidateCount)
	require.Equal(t, 1, newest.VoterCount)
	require.True(t, newest.FetchedAt.Equal(base.Add(20*time.Second)))
	require.Equal(t, []CandidateTally{
		{CandidateID: 1, Name: "A", Votes: 4},
		{CandidateID: 2, Name: "B", Votes: 5},
	}, newest.Candidates)
	require.Equal(t, uint64(8), entries[1].TotalVotes)
}

func TestRecordSignalsUpdates(t *testing.T) {
	store := newStore(t)

	_, err := store.Record(tally(time.Now(), 1))
	require.NoError(t, err)

	select {
	case <-store.Updates():
	case <-time.After(time.Second):
		t.Fatal("expected update signal")
	}
}

func TestRecentHonoursLimit(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := uint64(0); i < 5; i++ {
		_, err := store.Record(tally(base.Add(time.Duration(i)*time.Minute), i))
		require.NoError(t, err)
	}

	entries, err := store.Recent(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, uint64(4), entries[0].TotalVotes)
	require.Equal(t, uint64(2), entries[2].TotalVotes)
}

func TestSeriesOldestFirst(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.Record(tally(base, 0, 1))
	require.NoError(t, err)
	_, err = store.Record(tally(base.Add(time.Minute), 2, 1))
	require.NoError(t, err)
	_, err = store.Record(tally(base.Add(2*time.Minute), 2, 3))
	require.NoError(t, err)

	points, err := store.Series(1, 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, uint64(2), points[0].Votes)
	require.True(t, points[0].FetchedAt.Equal(base.Add(time.Minute)))
	require.Equal(t, uint64(2), points[1].Votes)

	points, err = store.Series(42, 0)
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestResetClearsHistory(t *testing.T) {
	store := newStore(t)
	snap := tally(time.Now(), 1, 2)
	_, err := store.Record(snap)
	require.NoError(t, err)

	require.NoError(t, store.Reset())

	entries, err := store.Recent(0)
	require.NoError(t, err)
	require.Empty(t, entries)

	added, err := store.Record(snap)
	require.NoError(t, err)
	require.True(t, added, "the first tally after a reset is always recorded")
}

func TestRecordKeepsFullRangeCounts(t *testing.T) {
	store := newStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	added, err := store.Record(tally(at, math.MaxUint64, 1))
	require.NoError(t, err)
	require.True(t, added)

	entries, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(math.MaxUint64), entries[0].TotalVotes)
	require.Equal(t, uint64(math.MaxUint64), entries[0].Candidates[0].Votes)

	points, err := store.Series(1, 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, uint64(math.MaxUint64), points[0].Votes)
}
