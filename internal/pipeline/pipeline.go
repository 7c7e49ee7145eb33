// Package pipeline runs the per-frame processing loop: it pulls raw
// detection frames from a FrameSource, passes them through the
// stabilization engine, and forwards the result to downstream sinks.
//
// The engine itself is transport-agnostic; composing it with sinks is
// this package's job. One Runtime services one source sequentially, so
// the engine's per-source ordering contract holds by construction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/stability.report/internal/monitoring"
	"github.com/banshee-data/stability.report/internal/stabilize"
	storage "github.com/banshee-data/stability.report/internal/storage/sqlite"
)

// Frame is one batch of raw detections from a single source.
type Frame struct {
	SourceID    string                `json:"source_id"`
	TSUnixNanos int64                 `json:"ts_unix_nanos,omitempty"`
	Detections  []stabilize.Detection `json:"detections"`
}

// FrameSource supplies frames to the runtime. Next blocks until a frame
// is available, the source is exhausted (io.EOF), or ctx is done.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Sink receives the stabilized output for each processed frame.
type Sink interface {
	Publish(frame Frame, stabilized []stabilize.Detection) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(frame Frame, stabilized []stabilize.Detection) error

func (f SinkFunc) Publish(frame Frame, stabilized []stabilize.Detection) error {
	return f(frame, stabilized)
}

// LogSink logs per-frame raw and stabilized counts through the package
// logger. Useful as a default sink in dev mode.
func LogSink() Sink {
	return SinkFunc(func(frame Frame, stabilized []stabilize.Detection) error {
		monitoring.Debugf("source %s: %d raw -> %d stabilized",
			frame.SourceID, len(frame.Detections), len(stabilized))
		return nil
	})
}

// Runtime drives the frame loop for one FrameSource.
type Runtime struct {
	stab  *stabilize.Stabilizer
	src   FrameSource
	sinks []Sink

	// Optional persistence. When store is non-nil, confirmed tracks and
	// periodic stats snapshots are written under runID.
	store            storage.TrackStore
	runID            string
	snapshotInterval time.Duration
	lastSnapshot     map[string]time.Time
}

// RuntimeOption configures optional Runtime behaviour.
type RuntimeOption func(*Runtime)

// WithPersistence enables track and stats persistence for the run.
func WithPersistence(store storage.TrackStore, runID string, snapshotInterval time.Duration) RuntimeOption {
	return func(r *Runtime) {
		r.store = store
		r.runID = runID
		r.snapshotInterval = snapshotInterval
	}
}

// NewRuntime wires a stabilizer, a source, and zero or more sinks.
func NewRuntime(stab *stabilize.Stabilizer, src FrameSource, sinks []Sink, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		stab:         stab,
		src:          src,
		sinks:        sinks,
		lastSnapshot: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes frames until the source is exhausted or ctx is done.
// A source returning io.EOF is a clean stop. Per-detection validation
// errors inside a frame are logged and do not stop the loop.
func (r *Runtime) Run(ctx context.Context) error {
	for {
		frame, err := r.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("frame source: %w", err)
		}

		stabilized, perr := r.stab.Process(frame.Detections, frame.SourceID)
		if perr != nil {
			monitoring.Logf("pipeline: frame for source %s had invalid detections: %v", frame.SourceID, perr)
		}

		for _, sink := range r.sinks {
			if err := sink.Publish(frame, stabilized); err != nil {
				monitoring.Logf("pipeline: sink publish failed for source %s: %v", frame.SourceID, err)
			}
		}

		r.persist(frame.SourceID)
	}
}

// persist writes confirmed tracks every frame and a stats snapshot at
// most once per snapshot interval per source.
func (r *Runtime) persist(sourceID string) {
	if r.store == nil {
		return
	}
	for _, trk := range r.stab.ConfirmedTracks(sourceID) {
		if err := r.store.UpsertTrack(r.runID, trk); err != nil {
			monitoring.Logf("pipeline: persist track %d failed: %v", trk.ID, err)
		}
	}

	now := time.Now()
	if last, ok := r.lastSnapshot[sourceID]; ok && now.Sub(last) < r.snapshotInterval {
		return
	}
	r.lastSnapshot[sourceID] = now
	stats := r.stab.Stats(sourceID)
	if err := r.store.InsertStatsSnapshot(r.runID, stats, now.UnixNano()); err != nil {
		monitoring.Logf("pipeline: persist stats snapshot failed: %v", err)
	}
}
