package stabilize

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackProvisional TrackState = "provisional" // New track, needs confirmation
	TrackConfirmed   TrackState = "confirmed"   // Stable track emitting output
)

// Track is the engine's internal representation of one persistently
// identified object. Tracks are owned exclusively by the registry of a
// single source; callers only ever see copies.
type Track struct {
	// Identity
	ID       int64
	SourceID string
	Class    string
	State    TrackState

	// Latest accepted observation
	BBox       BBox
	Confidence float64
	ClassID    *int

	// Lifecycle counters
	ConsecutiveFrames int // accepted matches since creation; saturates, never decays on a miss
	GapFrames         int // consecutive frames since the last accepted match

	// Timestamps (unix nanos)
	FirstUnixNanos int64
	LastUnixNanos  int64

	// Bounded confidence history, statistics only.
	confidences []float64

	// matched is the matched-this-frame flag. Transient: cleared at the
	// start of every frame. Invariant: GapFrames == 0 whenever set.
	matched bool
}

// Matched reports whether the track was reconfirmed by an accepted match
// in the most recent processed frame.
func (t *Track) Matched() bool { return t.matched }

// ConfidenceHistory returns a copy of the bounded confidence history.
func (t *Track) ConfidenceHistory() []float64 {
	if t.confidences == nil {
		return nil
	}
	out := make([]float64, len(t.confidences))
	copy(out, t.confidences)
	return out
}

// AvgConfidence returns the mean of the confidence history, falling back
// to the current confidence when the history is empty.
func (t *Track) AvgConfidence() float64 {
	if len(t.confidences) == 0 {
		return t.Confidence
	}
	var sum float64
	for _, c := range t.confidences {
		sum += c
	}
	return sum / float64(len(t.confidences))
}

// advance applies an accepted match: the track adopts the detection's
// box and confidence, the gap resets, and the consecutive counter grows.
func (t *Track) advance(det Detection, nowNanos int64, historyCap int) {
	t.BBox = det.Box()
	t.Confidence = det.Confidence
	t.ConsecutiveFrames++
	t.GapFrames = 0
	t.matched = true
	t.LastUnixNanos = nowNanos
	t.confidences = append(t.confidences, det.Confidence)
	if len(t.confidences) > historyCap {
		t.confidences = t.confidences[len(t.confidences)-historyCap:]
	}
}

// markMissed records a frame with no accepted match. ConsecutiveFrames
// is deliberately left alone: a track that recovers within the gap
// budget resumes counting toward confirmation from where it left off.
func (t *Track) markMissed() {
	t.GapFrames++
	t.matched = false
}

// expired reports whether the track has outlived its gap budget. A track
// at exactly maxGap is still alive.
func (t *Track) expired(maxGap int) bool {
	return t.GapFrames > maxGap
}

// threshold returns the confidence a matched detection must clear for
// this track: the relaxed persist threshold once confirmed, the strict
// appear threshold while provisional. This asymmetry is the hysteresis
// that stops identities oscillating around a single cutoff.
func (t *Track) threshold(cfg Config) float64 {
	if t.State == TrackConfirmed {
		return cfg.PersistConfidence
	}
	return cfg.AppearConfidence
}

// sourceState is the per-source arena: class-partitioned track buckets in
// creation order plus the source's cumulative statistics. Track IDs are
// allocated from a monotonic counter that survives Reset so IDs stay
// unique for the source's lifetime.
type sourceState struct {
	tracks  map[string][]*Track
	nextID  int64
	counter counters
}

func newSourceState() *sourceState {
	return &sourceState{
		tracks: make(map[string][]*Track),
		nextID: 1,
	}
}

// counters holds the cumulative per-source statistics mutated by Process.
type counters struct {
	TotalDetected  int64
	TotalConfirmed int64
	TotalIgnored   int64
	TotalInvalid   int64
	TotalRemoved   int64
}

// newTrack creates a provisional track from an unmatched detection that
// cleared the appear threshold.
func (s *sourceState) newTrack(sourceID string, det Detection, nowNanos int64, historyCap int) *Track {
	trk := &Track{
		ID:                s.nextID,
		SourceID:          sourceID,
		Class:             det.Class,
		State:             TrackProvisional,
		BBox:              det.Box(),
		Confidence:        det.Confidence,
		ConsecutiveFrames: 1,
		GapFrames:         0,
		FirstUnixNanos:    nowNanos,
		LastUnixNanos:     nowNanos,
		confidences:       append(make([]float64, 0, historyCap), det.Confidence),
		matched:           true,
	}
	s.nextID++
	s.tracks[det.Class] = append(s.tracks[det.Class], trk)
	return trk
}

// removeExpired filters out tracks past the gap budget and returns the
// number removed. Removal is an index-based filter per class bucket so
// the scan never mutates a collection while iterating it.
func (s *sourceState) removeExpired(maxGap int) int {
	removed := 0
	for class, bucket := range s.tracks {
		kept := bucket[:0]
		for _, trk := range bucket {
			if trk.expired(maxGap) {
				removed++
				continue
			}
			kept = append(kept, trk)
		}
		if len(kept) == 0 {
			delete(s.tracks, class)
		} else {
			s.tracks[class] = kept
		}
	}
	return removed
}

// activeCount returns the number of live tracks across all classes.
func (s *sourceState) activeCount() int {
	n := 0
	for _, bucket := range s.tracks {
		n += len(bucket)
	}
	return n
}

// allTracks returns every live track ordered by creation (ascending ID).
func (s *sourceState) allTracks() []*Track {
	out := make([]*Track, 0, s.activeCount())
	for _, bucket := range s.tracks {
		out = append(out, bucket...)
	}
	// Buckets preserve creation order internally; order across classes
	// comes from the ID sort.
	sortTracksByID(out)
	return out
}

func sortTracksByID(tracks []*Track) {
	// Insertion sort: track counts per source are small and the slice is
	// mostly ordered already.
	for i := 1; i < len(tracks); i++ {
		for j := i; j > 0 && tracks[j].ID < tracks[j-1].ID; j-- {
			tracks[j], tracks[j-1] = tracks[j-1], tracks[j]
		}
	}
}
