package stabilize

// Matcher scores the similarity between a raw detection and an existing
// track. Variants are interchangeable: the state machine only sees the
// assignment, never how it was computed.
type Matcher interface {
	// Name identifies the matcher in logs and stats payloads.
	Name() string

	// Similarity returns a score in [0,1]. Zero means no possible match;
	// cross-class pairs must always score zero.
	Similarity(det Detection, trk *Track) float64

	// Threshold is the strict lower bound a score must exceed for the
	// pair to be considered a match.
	Threshold() float64
}

// IoUMatcher matches detections to tracks of the same class by bounding
// box overlap. This is the primary matcher.
type IoUMatcher struct {
	threshold float64
}

// NewIoUMatcher creates an IoU matcher with the given strict threshold.
func NewIoUMatcher(threshold float64) *IoUMatcher {
	return &IoUMatcher{threshold: threshold}
}

func (m *IoUMatcher) Name() string { return "iou" }

func (m *IoUMatcher) Similarity(det Detection, trk *Track) float64 {
	if det.Class != trk.Class {
		return 0
	}
	return IoU(det.Box(), trk.BBox)
}

func (m *IoUMatcher) Threshold() float64 { return m.threshold }

// ClassOnlyMatcher matches purely on class equality, with no spatial
// awareness. It can swap identities when several objects of the same
// class are in frame; it exists as the cheap fallback variant and for
// single-object scenes.
type ClassOnlyMatcher struct{}

func (ClassOnlyMatcher) Name() string { return "class" }

func (ClassOnlyMatcher) Similarity(det Detection, trk *Track) float64 {
	if det.Class == trk.Class {
		return 1
	}
	return 0
}

func (ClassOnlyMatcher) Threshold() float64 { return 0.5 }

// bestMatch finds the highest-scoring unclaimed track for one detection
// using deterministic greedy selection. Tracks are scanned in creation
// order and only a strictly greater score displaces the incumbent, so
// ties go to the earliest-created track. Returns nil when no track
// clears the matcher threshold.
func bestMatch(m Matcher, det Detection, bucket []*Track, claimed map[*Track]bool) *Track {
	var best *Track
	bestScore := m.Threshold()
	for _, trk := range bucket {
		if claimed[trk] {
			continue
		}
		if score := m.Similarity(det, trk); score > bestScore {
			best = trk
			bestScore = score
		}
	}
	return best
}
