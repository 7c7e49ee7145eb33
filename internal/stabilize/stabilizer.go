package stabilize

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/stability.report/internal/monitoring"
)

// Stabilizer is the public engine. One frame-processing goroutine calls
// Process sequentially per source; a control goroutine may call Enable,
// Disable, Toggle, Reset, ResetStats and Stats at any time.
//
// The enabled flag is a lone atomic so the hot path can discover a
// disabled engine without taking the registry lock. Registry and stats
// share one RWMutex with whole-call critical sections; no operation here
// blocks on I/O or sleeps.
type Stabilizer struct {
	cfg     Config
	matcher Matcher

	enabled atomic.Bool

	mu      sync.RWMutex
	sources map[string]*sourceState

	// nowNanos is swappable in tests.
	nowNanos func() int64
}

// Option configures optional Stabilizer behaviour.
type Option func(*Stabilizer)

// WithMatcher replaces the default IoU matcher. The class-only variant
// trades identity safety for robustness to large inter-frame motion.
func WithMatcher(m Matcher) Option {
	return func(s *Stabilizer) { s.matcher = m }
}

// NewStabilizer validates cfg and builds an enabled engine. An invalid
// configuration fails fast with InvalidConfigError; no partially valid
// instance is ever returned.
func NewStabilizer(cfg Config, opts ...Option) (*Stabilizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stabilizer{
		cfg:      cfg,
		matcher:  NewIoUMatcher(cfg.IoUThreshold),
		sources:  make(map[string]*sourceState),
		nowNanos: func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.enabled.Store(true)
	monitoring.Logf("stabilizer initialised: matcher=%s min_frames=%d max_gap=%d appear=%.2f persist=%.2f",
		s.matcher.Name(), cfg.MinFrames, cfg.MaxGap, cfg.AppearConfidence, cfg.PersistConfidence)
	return s, nil
}

// Config returns the immutable configuration the engine was built with.
func (s *Stabilizer) Config() Config { return s.cfg }

// MatcherName returns the active matcher's name.
func (s *Stabilizer) MatcherName() string { return s.matcher.Name() }

// Enabled reports whether the engine is filtering or passing through.
func (s *Stabilizer) Enabled() bool { return s.enabled.Load() }

// Enable turns filtering on. Registry state is retained across disable
// and enable, so tracking resumes where it left off rather than cold.
func (s *Stabilizer) Enable() { s.enabled.Store(true) }

// Disable turns the engine into a transparent pass-through. Tracks are
// deliberately not cleared.
func (s *Stabilizer) Disable() { s.enabled.Store(false) }

// Toggle flips the enabled flag and returns the new state.
func (s *Stabilizer) Toggle() bool {
	for {
		old := s.enabled.Load()
		if s.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Process runs one frame for one source: greedy spatial assignment, the
// per-track state machine, registry cleanup, and emission of freshly
// reconfirmed tracks. The returned error, if any, joins per-detection
// InvalidDetectionErrors for items that were skipped; the frame itself
// always completes and the remaining detections are fully processed.
//
// When the engine is disabled the call is a no-op pass-through: input is
// returned unmodified and neither registry nor stats are touched.
func (s *Stabilizer) Process(detections []Detection, sourceID string) ([]Detection, error) {
	if !s.enabled.Load() {
		return detections, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.sources[sourceID]
	if src == nil {
		src = newSourceState()
		s.sources[sourceID] = src
	}
	now := s.nowNanos()
	historyCap := s.cfg.historyCap()

	// Validate individually; invalid items are skipped, not fatal.
	var errs []error
	valid := make([]Detection, 0, len(detections))
	for i, det := range detections {
		if err := det.Validate(); err != nil {
			var derr *InvalidDetectionError
			if errors.As(err, &derr) {
				derr.Index = i
			}
			errs = append(errs, err)
			src.counter.TotalInvalid++
			monitoring.Debugf("source %s: skipping detection %d: %v", sourceID, i, err)
			continue
		}
		valid = append(valid, det)
	}
	src.counter.TotalDetected += int64(len(valid))

	// Clear the transient matched flags from the previous frame.
	for _, bucket := range src.tracks {
		for _, trk := range bucket {
			trk.matched = false
		}
	}

	// Greedy assignment in descending confidence order. The stable sort
	// keeps arrival order for equal confidences, which together with the
	// earliest-track tie-break makes the whole pass reproducible.
	order := make([]int, len(valid))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return valid[order[a]].Confidence > valid[order[b]].Confidence
	})

	claimed := make(map[*Track]bool)
	for _, i := range order {
		det := valid[i]
		trk := bestMatch(s.matcher, det, src.tracks[det.Class], claimed)
		if trk != nil {
			claimed[trk] = true
			if det.Confidence >= trk.threshold(s.cfg) {
				trk.advance(det, now, historyCap)
				trk.ClassID = det.ClassID
				if trk.State == TrackProvisional && trk.ConsecutiveFrames >= s.cfg.MinFrames {
					trk.State = TrackConfirmed
					src.counter.TotalConfirmed++
					monitoring.Debugf("source %s: track %d (%s) confirmed after %d frames",
						sourceID, trk.ID, trk.Class, trk.ConsecutiveFrames)
				}
				continue
			}
			// Hysteresis gate rejected the match: the detection is spent
			// (it neither updates the track nor spawns a new one) and the
			// track takes a miss below.
			src.counter.TotalIgnored++
			continue
		}
		if det.Confidence >= s.cfg.AppearConfidence {
			created := src.newTrack(sourceID, det, now, historyCap)
			created.ClassID = det.ClassID
			// Freshly created tracks are claimed so a later detection in
			// the same frame cannot advance them twice.
			claimed[created] = true
			if created.ConsecutiveFrames >= s.cfg.MinFrames {
				created.State = TrackConfirmed
				src.counter.TotalConfirmed++
			}
			continue
		}
		src.counter.TotalIgnored++
	}

	// Gap decay for every track without an accepted match this frame.
	for _, bucket := range src.tracks {
		for _, trk := range bucket {
			if !trk.matched {
				trk.markMissed()
			}
		}
	}

	// Remove tracks past the gap budget. Strictly greater: a track at
	// exactly MaxGap survives.
	if removed := src.removeExpired(s.cfg.MaxGap); removed > 0 {
		src.counter.TotalRemoved += int64(removed)
		monitoring.Debugf("source %s: removed %d expired tracks", sourceID, removed)
	}

	// Emit freshly reconfirmed tracks only: confirmed state AND matched
	// this frame. Nothing stale is carried over during a gap.
	stabilized := make([]Detection, 0, len(valid))
	for _, trk := range src.allTracks() {
		if trk.State == TrackConfirmed && trk.matched {
			stabilized = append(stabilized, Detection{
				Class:      trk.Class,
				Confidence: trk.Confidence,
				X:          trk.BBox.X,
				Y:          trk.BBox.Y,
				Width:      trk.BBox.Width,
				Height:     trk.BBox.Height,
				ClassID:    trk.ClassID,
			})
		}
	}

	return stabilized, errors.Join(errs...)
}

// Reset clears all tracks for one source immediately. Cumulative stats
// are left alone; stats reset is its own operation. The track ID counter
// survives so IDs stay unique for the source's lifetime.
func (s *Stabilizer) Reset(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[sourceID]; ok {
		src.tracks = make(map[string][]*Track)
		monitoring.Logf("stabilizer: tracks reset for source %s", sourceID)
	}
}

// ResetAll clears tracks for every source.
func (s *Stabilizer) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		src.tracks = make(map[string][]*Track)
	}
	monitoring.Logf("stabilizer: tracks reset for all sources")
}

// ResetStats zeroes the cumulative counters for one source without
// touching its tracks.
func (s *Stabilizer) ResetStats(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[sourceID]; ok {
		src.counter = counters{}
	}
}

// Sources returns the IDs of all sources seen so far, sorted.
func (s *Stabilizer) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sources))
	for id := range s.sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ConfirmedTracks returns safe copies of the source's confirmed tracks
// in creation order, confidence history included. Callers may read the
// copies without holding any engine lock.
func (s *Stabilizer) ConfirmedTracks(sourceID string) []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.sources[sourceID]
	if src == nil {
		return nil
	}
	out := make([]Track, 0)
	for _, trk := range src.allTracks() {
		if trk.State != TrackConfirmed {
			continue
		}
		copied := *trk
		copied.confidences = trk.ConfidenceHistory()
		out = append(out, copied)
	}
	return out
}
