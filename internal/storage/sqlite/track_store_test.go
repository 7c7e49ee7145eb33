package sqlite

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stability.report/internal/db"
	"github.com/banshee-data/stability.report/internal/stabilize"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

func testTrack(id int64, sourceID string) stabilize.Track {
	return stabilize.Track{
		ID:                id,
		SourceID:          sourceID,
		Class:             "person",
		State:             stabilize.TrackConfirmed,
		Confidence:        0.8,
		ConsecutiveFrames: 4,
		GapFrames:         0,
		FirstUnixNanos:    1000,
		LastUnixNanos:     4000,
	}
}

func TestCreateRun(t *testing.T) {
	store := setupStore(t)

	cfg := stabilize.Config{MinFrames: 3, MaxGap: 2, AppearConfidence: 0.5, PersistConfidence: 0.3, IoUThreshold: 0.3}
	runID, err := store.CreateRun(cfg, 123456789)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(runID, "run_"), "run ID %q lacks prefix", runID)

	// Run IDs are unique across calls.
	second, err := store.CreateRun(cfg, 123456790)
	require.NoError(t, err)
	assert.NotEqual(t, runID, second)
}

func TestUpsertTrackRoundTrip(t *testing.T) {
	store := setupStore(t)

	runID, err := store.CreateRun(stabilize.Config{MinFrames: 1}, 1000)
	require.NoError(t, err)

	trk := testTrack(1, "cam-1")
	require.NoError(t, store.UpsertTrack(runID, trk))

	got, err := store.GetRunTracks(runID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, runID, got[0].RunID)
	assert.Equal(t, "cam-1", got[0].SourceID)
	assert.Equal(t, int64(1), got[0].TrackID)
	assert.Equal(t, "person", got[0].Class)
	assert.Equal(t, "confirmed", got[0].State)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)
	assert.Equal(t, 4, got[0].ConsecutiveFrames)
	assert.Equal(t, int64(1000), got[0].FirstUnixNanos)
}

func TestUpsertTrackUpdatesInPlace(t *testing.T) {
	store := setupStore(t)

	runID, err := store.CreateRun(stabilize.Config{MinFrames: 1}, 1000)
	require.NoError(t, err)

	trk := testTrack(1, "cam-1")
	require.NoError(t, store.UpsertTrack(runID, trk))

	trk.Confidence = 0.95
	trk.ConsecutiveFrames = 9
	trk.LastUnixNanos = 9000
	require.NoError(t, store.UpsertTrack(runID, trk))

	got, err := store.GetRunTracks(runID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "upsert must not create a second row")
	assert.InDelta(t, 0.95, got[0].Confidence, 1e-9)
	assert.Equal(t, 9, got[0].ConsecutiveFrames)
	assert.Equal(t, int64(9000), got[0].LastUnixNanos)
	assert.Equal(t, int64(1000), got[0].FirstUnixNanos, "first seen time never changes")
}

func TestTracksPartitionedBySource(t *testing.T) {
	store := setupStore(t)

	runID, err := store.CreateRun(stabilize.Config{MinFrames: 1}, 1000)
	require.NoError(t, err)

	// Same track ID on two sources is two rows.
	require.NoError(t, store.UpsertTrack(runID, testTrack(1, "cam-a")))
	require.NoError(t, store.UpsertTrack(runID, testTrack(1, "cam-b")))

	got, err := store.GetRunTracks(runID, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStatsHistory(t *testing.T) {
	store := setupStore(t)

	runID, err := store.CreateRun(stabilize.Config{MinFrames: 1}, 1000)
	require.NoError(t, err)

	for i, ts := range []int64{1000, 2000, 3000} {
		stats := stabilize.Stats{
			SourceID:       "cam-1",
			TotalDetected:  int64(10 * (i + 1)),
			TotalConfirmed: int64(5 * (i + 1)),
			ActiveTracks:   i + 1,
			ConfirmRatio:   0.5,
		}
		require.NoError(t, store.InsertStatsSnapshot(runID, stats, ts))
	}
	// A snapshot for another source must not leak into the query.
	require.NoError(t, store.InsertStatsSnapshot(runID, stabilize.Stats{SourceID: "cam-2"}, 2500))

	t.Run("full range oldest first", func(t *testing.T) {
		points, err := store.GetStatsHistory("cam-1", 0, 0, 100)
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, int64(1000), points[0].TSUnixNanos)
		assert.Equal(t, int64(3000), points[2].TSUnixNanos)
		assert.Equal(t, int64(30), points[2].TotalDetected)
	})

	t.Run("bounded range", func(t *testing.T) {
		points, err := store.GetStatsHistory("cam-1", 1500, 2500, 100)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, int64(2000), points[0].TSUnixNanos)
	})

	t.Run("limit applies", func(t *testing.T) {
		points, err := store.GetStatsHistory("cam-1", 0, 0, 2)
		require.NoError(t, err)
		assert.Len(t, points, 2)
	})

	t.Run("unknown source empty", func(t *testing.T) {
		points, err := store.GetStatsHistory("cam-x", 0, 0, 100)
		require.NoError(t, err)
		assert.Empty(t, points)
	})
}

func TestGetRunTracksUnknownRun(t *testing.T) {
	store := setupStore(t)
	got, err := store.GetRunTracks("run_missing", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
