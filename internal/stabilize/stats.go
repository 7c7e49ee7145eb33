package stabilize

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats is a read-only per-source snapshot of the engine's cumulative
// counters plus derived values. Building one never fails: an unknown or
// empty source yields zeroed counters.
type Stats struct {
	SourceID string `json:"source_id"`
	Enabled  bool   `json:"enabled"`
	Matcher  string `json:"matcher"`

	TotalDetected  int64 `json:"total_detected"`
	TotalConfirmed int64 `json:"total_confirmed"`
	TotalIgnored   int64 `json:"total_ignored"`
	TotalInvalid   int64 `json:"total_invalid"`
	TotalRemoved   int64 `json:"total_removed"`

	ActiveTracks  int            `json:"active_tracks"`
	ConfirmRatio  float64        `json:"confirm_ratio"`
	TracksByClass map[string]int `json:"tracks_by_class,omitempty"`

	// Confidence percentiles pooled across the confidence histories of
	// all live tracks for the source. Zero when no history exists.
	ConfidenceP50 float64 `json:"confidence_p50"`
	ConfidenceP85 float64 `json:"confidence_p85"`
	ConfidenceP95 float64 `json:"confidence_p95"`
}

// Stats returns a snapshot for one source. It holds the read lock for a
// single bounded critical section and never blocks the frame path for
// longer than the snapshot copy.
func (s *Stabilizer) Stats(sourceID string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Stats{
		SourceID: sourceID,
		Enabled:  s.enabled.Load(),
		Matcher:  s.matcher.Name(),
	}
	src := s.sources[sourceID]
	if src == nil {
		return out
	}

	out.TotalDetected = src.counter.TotalDetected
	out.TotalConfirmed = src.counter.TotalConfirmed
	out.TotalIgnored = src.counter.TotalIgnored
	out.TotalInvalid = src.counter.TotalInvalid
	out.TotalRemoved = src.counter.TotalRemoved
	out.ActiveTracks = src.activeCount()
	if out.TotalDetected > 0 {
		out.ConfirmRatio = float64(out.TotalConfirmed) / float64(out.TotalDetected)
	}

	if len(src.tracks) > 0 {
		out.TracksByClass = make(map[string]int, len(src.tracks))
		for class, bucket := range src.tracks {
			out.TracksByClass[class] = len(bucket)
		}
	}

	var pooled []float64
	for _, bucket := range src.tracks {
		for _, trk := range bucket {
			pooled = append(pooled, trk.confidences...)
		}
	}
	out.ConfidenceP50, out.ConfidenceP85, out.ConfidenceP95 = confidencePercentiles(pooled)
	return out
}

// confidencePercentiles computes p50/p85/p95 of the given samples.
// Returns zeros for an empty sample set.
func confidencePercentiles(samples []float64) (p50, p85, p95 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(samples)
	p50 = stat.Quantile(0.50, stat.Empirical, samples, nil)
	p85 = stat.Quantile(0.85, stat.Empirical, samples, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, samples, nil)
	return p50, p85, p95
}
