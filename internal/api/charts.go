package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleStatsChart renders a quick HTML line chart of a source's stats
// snapshots using go-echarts. This is a debugging-only endpoint (no
// auth) to eyeball confirm ratio and active track counts without a UI.
// Query params:
//   - source (required)
//   - window (optional duration, default 1h)
//   - limit (optional; default 500)
func (s *Server) handleStatsChart(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "no store configured for stats history")
		return
	}
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'source' parameter")
		return
	}

	window := time.Hour
	if ws := r.URL.Query().Get("window"); ws != "" {
		if d, err := time.ParseDuration(ws); err == nil && d > 0 {
			window = d
		}
	}
	limit := 500
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	now := time.Now()
	points, err := s.store.GetStatsHistory(sourceID, now.Add(-window).UnixNano(), now.UnixNano(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get stats history: %v", err))
		return
	}
	if len(points) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no stats snapshots for source in window")
		return
	}

	timestamps := make([]string, 0, len(points))
	active := make([]opts.LineData, 0, len(points))
	ratio := make([]opts.LineData, 0, len(points))
	removed := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		timestamps = append(timestamps, time.Unix(0, p.TSUnixNanos).Format("15:04:05"))
		active = append(active, opts.LineData{Value: p.ActiveTracks})
		ratio = append(ratio, opts.LineData{Value: p.ConfirmRatio})
		removed = append(removed, opts.LineData{Value: p.TotalRemoved})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Stabilization Stats", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Detection Stabilization",
			Subtitle: fmt.Sprintf("source=%s window=%s points=%d", sourceID, window, len(points)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(timestamps).
		AddSeries("active tracks", active).
		AddSeries("confirm ratio", ratio).
		AddSeries("total removed", removed)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
