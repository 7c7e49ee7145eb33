package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ReplaySource reads frames from a JSONL stream, one Frame object per
// line, and replays them at a fixed cadence. It backs dev-mode runs from
// fixture files when no live perception model is attached.
type ReplaySource struct {
	scanner  *bufio.Scanner
	closer   io.Closer
	interval time.Duration
	started  bool
}

// NewReplaySource wraps an already-open JSONL stream. interval <= 0
// replays as fast as the loop can consume.
func NewReplaySource(r io.Reader, interval time.Duration) *ReplaySource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ReplaySource{scanner: sc, interval: interval}
}

// OpenReplayFile opens a JSONL fixture file as a ReplaySource.
func OpenReplayFile(path string, interval time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures file: %w", err)
	}
	src := NewReplaySource(f, interval)
	src.closer = f
	return src, nil
}

// Next returns the next frame, pacing by the configured interval.
// Returns io.EOF once the stream is exhausted.
func (s *ReplaySource) Next(ctx context.Context) (Frame, error) {
	if s.started && s.interval > 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-time.After(s.interval):
		}
	}
	s.started = true

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return Frame{}, fmt.Errorf("parse replay frame: %w", err)
		}
		if frame.SourceID == "" {
			frame.SourceID = "replay"
		}
		return frame, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if s.closer != nil {
		s.closer.Close()
	}
	return Frame{}, io.EOF
}
