package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stability.report/internal/stabilize"
	storage "github.com/banshee-data/stability.report/internal/storage/sqlite"
)

// sliceSource replays a fixed list of frames, then io.EOF.
type sliceSource struct {
	frames []Frame
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

// captureSink records every published frame.
type captureSink struct {
	frames     []Frame
	stabilized [][]stabilize.Detection
	err        error
}

func (c *captureSink) Publish(frame Frame, stabilized []stabilize.Detection) error {
	c.frames = append(c.frames, frame)
	c.stabilized = append(c.stabilized, stabilized)
	return c.err
}

// mockStore records persistence calls without a real database.
type mockStore struct {
	tracks    []stabilize.Track
	snapshots []stabilize.Stats
}

var _ storage.TrackStore = (*mockStore)(nil)

func (m *mockStore) CreateRun(cfg stabilize.Config, startedNanos int64) (string, error) {
	return "run_test", nil
}

func (m *mockStore) UpsertTrack(runID string, track stabilize.Track) error {
	m.tracks = append(m.tracks, track)
	return nil
}

func (m *mockStore) InsertStatsSnapshot(runID string, stats stabilize.Stats, tsNanos int64) error {
	m.snapshots = append(m.snapshots, stats)
	return nil
}

func (m *mockStore) GetRunTracks(runID string, limit int) ([]storage.StoredTrack, error) {
	return nil, nil
}

func (m *mockStore) GetStatsHistory(sourceID string, startNanos, endNanos int64, limit int) ([]storage.StatsPoint, error) {
	return nil, nil
}

func newPipelineStabilizer(t *testing.T) *stabilize.Stabilizer {
	t.Helper()
	s, err := stabilize.NewStabilizer(stabilize.Config{
		MinFrames:         1,
		MaxGap:            2,
		AppearConfidence:  0.5,
		PersistConfidence: 0.3,
		IoUThreshold:      0.3,
	})
	require.NoError(t, err)
	return s
}

func personFrame(sourceID string, conf float64) Frame {
	return Frame{
		SourceID: sourceID,
		Detections: []stabilize.Detection{
			{Class: "person", Confidence: conf, X: 0.5, Y: 0.5, Width: 0.2, Height: 0.4},
		},
	}
}

func TestRuntimeProcessesUntilEOF(t *testing.T) {
	t.Parallel()

	src := &sliceSource{frames: []Frame{
		personFrame("cam", 0.7),
		personFrame("cam", 0.6),
		{SourceID: "cam"},
	}}
	sink := &captureSink{}
	rt := NewRuntime(newPipelineStabilizer(t), src, []Sink{sink})

	err := rt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.frames, 3, "every frame reaches the sink")
	assert.Len(t, sink.stabilized[0], 1)
	assert.Len(t, sink.stabilized[1], 1)
	assert.Empty(t, sink.stabilized[2], "empty frame emits nothing")
}

func TestRuntimeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &sliceSource{frames: []Frame{personFrame("cam", 0.7)}}
	rt := NewRuntime(newPipelineStabilizer(t), src, nil)
	assert.NoError(t, rt.Run(ctx), "cancellation is a clean stop")
}

func TestRuntimeContinuesPastInvalidDetections(t *testing.T) {
	t.Parallel()

	bad := Frame{SourceID: "cam", Detections: []stabilize.Detection{{Class: "", Confidence: 3}}}
	src := &sliceSource{frames: []Frame{bad, personFrame("cam", 0.7)}}
	sink := &captureSink{}
	rt := NewRuntime(newPipelineStabilizer(t), src, []Sink{sink})

	require.NoError(t, rt.Run(context.Background()))
	require.Len(t, sink.frames, 2, "a frame with invalid detections does not stop the loop")
	assert.Len(t, sink.stabilized[1], 1)
}

func TestRuntimeContinuesPastSinkErrors(t *testing.T) {
	t.Parallel()

	src := &sliceSource{frames: []Frame{personFrame("cam", 0.7), personFrame("cam", 0.6)}}
	failing := &captureSink{err: errors.New("broken pipe")}
	healthy := &captureSink{}
	rt := NewRuntime(newPipelineStabilizer(t), src, []Sink{failing, healthy})

	require.NoError(t, rt.Run(context.Background()))
	assert.Len(t, healthy.frames, 2, "later sinks still run when an earlier one fails")
}

func TestRuntimePersistence(t *testing.T) {
	t.Parallel()

	src := &sliceSource{frames: []Frame{
		personFrame("cam", 0.7),
		personFrame("cam", 0.6),
	}}
	store := &mockStore{}
	rt := NewRuntime(newPipelineStabilizer(t), src, nil,
		WithPersistence(store, "run_test", time.Hour))

	require.NoError(t, rt.Run(context.Background()))

	// The confirmed track is upserted on both frames; the long snapshot
	// interval allows exactly one stats snapshot.
	require.Len(t, store.tracks, 2)
	assert.Equal(t, "cam", store.tracks[0].SourceID)
	assert.Equal(t, stabilize.TrackConfirmed, store.tracks[0].State)
	require.Len(t, store.snapshots, 1)
	assert.Equal(t, "cam", store.snapshots[0].SourceID)
	assert.Equal(t, int64(1), store.snapshots[0].TotalDetected)
}

func TestReplaySource(t *testing.T) {
	t.Parallel()

	t.Run("reads frames and defaults source id", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			`{"source_id":"cam-1","detections":[{"class":"person","confidence":0.7,"x":0.5,"y":0.5,"width":0.2,"height":0.4}]}`,
			``,
			`{"detections":[]}`,
		}, "\n")
		src := NewReplaySource(strings.NewReader(input), 0)

		first, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "cam-1", first.SourceID)
		require.Len(t, first.Detections, 1)
		assert.Equal(t, "person", first.Detections[0].Class)

		// Blank lines are skipped; a frame without a source id gets the
		// replay default.
		second, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "replay", second.SourceID)

		_, err = src.Next(context.Background())
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("malformed line is an error", func(t *testing.T) {
		t.Parallel()
		src := NewReplaySource(strings.NewReader("{broken\n"), 0)
		_, err := src.Next(context.Background())
		assert.Error(t, err)
	})

	t.Run("pacing honours cancellation", func(t *testing.T) {
		t.Parallel()
		input := `{"detections":[]}` + "\n" + `{"detections":[]}` + "\n"
		src := NewReplaySource(strings.NewReader(input), time.Minute)

		_, err := src.Next(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = src.Next(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
