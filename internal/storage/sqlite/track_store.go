package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/stability.report/internal/stabilize"
)

// TrackStore defines the interface for stabilization persistence
// operations. The pipeline writes through it; the API and charts read.
type TrackStore interface {
	CreateRun(cfg stabilize.Config, startedNanos int64) (string, error)
	UpsertTrack(runID string, track stabilize.Track) error
	InsertStatsSnapshot(runID string, stats stabilize.Stats, tsNanos int64) error
	GetRunTracks(runID string, limit int) ([]StoredTrack, error)
	GetStatsHistory(sourceID string, startNanos, endNanos int64, limit int) ([]StatsPoint, error)
}

// StoredTrack is a persisted confirmed-track row.
type StoredTrack struct {
	RunID             string
	SourceID          string
	TrackID           int64
	Class             string
	State             string
	Confidence        float64
	AvgConfidence     float64
	ConsecutiveFrames int
	GapFrames         int
	FirstUnixNanos    int64
	LastUnixNanos     int64
}

// StatsPoint is one persisted stats snapshot, used by the charts handler.
type StatsPoint struct {
	RunID          string
	SourceID       string
	TSUnixNanos    int64
	TotalDetected  int64
	TotalConfirmed int64
	TotalIgnored   int64
	TotalInvalid   int64
	TotalRemoved   int64
	ActiveTracks   int
	ConfirmRatio   float64
}

// Store is the SQLite-backed TrackStore.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database handle. The
// schema is owned by the db package's migrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRun records a new stabilization run and returns its ID. Run IDs
// are UUIDs so they stay unique across restarts and long deployments.
func (s *Store) CreateRun(cfg stabilize.Config, startedNanos int64) (string, error) {
	runID := fmt.Sprintf("run_%s", uuid.NewString())

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal run config: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO stabilize_runs (run_id, started_unix_nanos, config_json) VALUES (?, ?, ?)`,
		runID, startedNanos, string(cfgJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// UpsertTrack inserts or updates a track row. ON CONFLICT DO UPDATE is
// used so repeated persistence of a live track refreshes the row in
// place rather than replacing it.
func (s *Store) UpsertTrack(runID string, track stabilize.Track) error {
	query := `
		INSERT INTO stabilize_tracks (
			run_id, source_id, track_id, class, state,
			confidence, avg_confidence, consecutive_frames, gap_frames,
			first_unix_nanos, last_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, source_id, track_id) DO UPDATE SET
			state = excluded.state,
			confidence = excluded.confidence,
			avg_confidence = excluded.avg_confidence,
			consecutive_frames = excluded.consecutive_frames,
			gap_frames = excluded.gap_frames,
			last_unix_nanos = excluded.last_unix_nanos
	`
	_, err := s.db.Exec(query,
		runID,
		track.SourceID,
		track.ID,
		track.Class,
		string(track.State),
		track.Confidence,
		track.AvgConfidence(),
		track.ConsecutiveFrames,
		track.GapFrames,
		track.FirstUnixNanos,
		track.LastUnixNanos,
	)
	if err != nil {
		return fmt.Errorf("upsert track %d: %w", track.ID, err)
	}
	return nil
}

// InsertStatsSnapshot appends one cumulative stats snapshot.
func (s *Store) InsertStatsSnapshot(runID string, stats stabilize.Stats, tsNanos int64) error {
	query := `
		INSERT INTO stabilize_stats (
			run_id, source_id, ts_unix_nanos,
			total_detected, total_confirmed, total_ignored, total_invalid, total_removed,
			active_tracks, confirm_ratio
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		runID,
		stats.SourceID,
		tsNanos,
		stats.TotalDetected,
		stats.TotalConfirmed,
		stats.TotalIgnored,
		stats.TotalInvalid,
		stats.TotalRemoved,
		stats.ActiveTracks,
		stats.ConfirmRatio,
	)
	if err != nil {
		return fmt.Errorf("insert stats snapshot: %w", err)
	}
	return nil
}

// GetRunTracks returns the persisted tracks for a run, most recent first.
func (s *Store) GetRunTracks(runID string, limit int) ([]StoredTrack, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT run_id, source_id, track_id, class, state,
		       confidence, avg_confidence, consecutive_frames, gap_frames,
		       first_unix_nanos, last_unix_nanos
		FROM stabilize_tracks
		WHERE run_id = ?
		ORDER BY last_unix_nanos DESC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query run tracks: %w", err)
	}
	defer rows.Close()

	var tracks []StoredTrack
	for rows.Next() {
		var t StoredTrack
		if err := rows.Scan(
			&t.RunID, &t.SourceID, &t.TrackID, &t.Class, &t.State,
			&t.Confidence, &t.AvgConfidence, &t.ConsecutiveFrames, &t.GapFrames,
			&t.FirstUnixNanos, &t.LastUnixNanos,
		); err != nil {
			return nil, fmt.Errorf("scan track row: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tracks, nil
}

// GetStatsHistory returns stats snapshots for one source within a time
// range, oldest first. endNanos <= 0 means no upper bound.
func (s *Store) GetStatsHistory(sourceID string, startNanos, endNanos int64, limit int) ([]StatsPoint, error) {
	if limit <= 0 {
		limit = 500
	}
	if endNanos <= 0 {
		endNanos = int64(^uint64(0) >> 1)
	}
	rows, err := s.db.Query(`
		SELECT run_id, source_id, ts_unix_nanos,
		       total_detected, total_confirmed, total_ignored, total_invalid, total_removed,
		       active_tracks, confirm_ratio
		FROM stabilize_stats
		WHERE source_id = ? AND ts_unix_nanos >= ? AND ts_unix_nanos <= ?
		ORDER BY ts_unix_nanos ASC
		LIMIT ?`, sourceID, startNanos, endNanos, limit)
	if err != nil {
		return nil, fmt.Errorf("query stats history: %w", err)
	}
	defer rows.Close()

	var points []StatsPoint
	for rows.Next() {
		var p StatsPoint
		if err := rows.Scan(
			&p.RunID, &p.SourceID, &p.TSUnixNanos,
			&p.TotalDetected, &p.TotalConfirmed, &p.TotalIgnored, &p.TotalInvalid, &p.TotalRemoved,
			&p.ActiveTracks, &p.ConfirmRatio,
		); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
