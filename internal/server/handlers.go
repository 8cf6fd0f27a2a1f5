package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tanksense/tanksense/internal/analytics/events"
	"github.com/tanksense/tanksense/internal/analytics/stats"
	"github.com/tanksense/tanksense/internal/export"
	"github.com/tanksense/tanksense/internal/storage/ring"
)

// statusResponse mirrors the latest reading plus trend analytics.
// Pointer fields marshal as explicit nulls when undetermined.
type statusResponse struct {
	Level    float64  `json:"level"`
	Distance float64  `json:"distance"`
	Volume   float64  `json:"volume"`
	Free     float64  `json:"free"`
	Total    float64  `json:"total"`
	Temp     *float64 `json:"temp"`
	Valid    bool     `json:"valid"`
	TS       uint32   `json:"ts"`

	Records       int `json:"records"`
	RecordsRecent int `json:"records_recent"`
	RecordsMax    int `json:"records_max"`

	MQTT    bool   `json:"mqtt"`
	Version string `json:"version"`

	Used24   *float64 `json:"used24"`
	Used7d   *float64 `json:"used7d"`
	Rate24   *float64 `json:"rate24"`
	Rate7d   *float64 `json:"rate7d"`
	DaysLeft *float64 `json:"daysleft"`
	ETAEmpty *uint32  `json:"eta_empty_ts"`
	Span24   uint32   `json:"span24"`
	Span7d   uint32   `json:"span7d"`
}

func (s *Server) buildStatus() statusResponse {
	latest := s.cfg.Sampler.Latest()
	tr := s.cfg.Trend.Compute(latest.ToRecord(), latest.TotalL)

	resp := statusResponse{
		Level:    round1(latest.LevelPct),
		Distance: round1(latest.DistanceCm),
		Volume:   round1(latest.VolumeL),
		Free:     round1(latest.FreeL),
		Total:    round1(latest.TotalL),
		Valid:    latest.Valid,
		TS:       latest.Timestamp,

		Records:       s.cfg.Hourly.Count(),
		RecordsRecent: s.cfg.Recent.Count(),
		RecordsMax:    s.cfg.Hourly.Capacity(),

		MQTT:    s.cfg.MQTT != nil && s.cfg.MQTT.Connected(),
		Version: s.cfg.Version,

		Used24:   tr.Used24hL,
		Used7d:   tr.Used7dL,
		Rate24:   tr.Rate24hLPerDay,
		Rate7d:   tr.Rate7dLPerDay,
		DaysLeft: tr.DaysLeft,
		Span24:   tr.Span24hS,
		Span7d:   tr.Span7dS,
	}
	if latest.TemperatureC != nil {
		t := round1(*latest.TemperatureC)
		resp.Temp = &t
	}
	if tr.ETAEmptyTS != 0 {
		eta := tr.ETAEmptyTS
		resp.ETAEmpty = &eta
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, s.buildStatus())
}

func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	s.cfg.Sampler.MeasureNow(r.Context())
	writeJSON(w, http.StatusOK, s.buildStatus())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours := intQuery(r, "h", 24)
	series := s.cfg.Downsampler.Series(time.Now(), hours)
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	evs := s.cfg.Events.Detect()
	if evs == nil {
		evs = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":     evs,
		"window_min": int(s.cfg.RecentWindow / time.Minute),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := intQuery(r, "h", 24)
	res := stats.Compute(s.cfg.Hourly, s.cfg.Recent, time.Now(), hours, s.cfg.RecentWindow)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, _ *http.Request) {
	recs := s.cfg.Hourly.ReadOldestFirst(s.cfg.Hourly.Capacity())

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=history.csv`)
	if err := export.WriteCSV(w, recs); err != nil {
		log.Warn("csv export failed", "error", err)
	}
}

func (s *Server) handleExportParquet(w http.ResponseWriter, _ *http.Request) {
	recs := s.cfg.Hourly.ReadOldestFirst(s.cfg.Hourly.Capacity())

	// Buffer first so a mid-file failure still yields a clean error
	// status instead of a truncated download.
	var buf bytes.Buffer
	if _, err := export.WriteParquet(&buf, recs); err != nil {
		log.Warn("parquet export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename=history.parquet`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.cfg.Hourly.Clear()
	s.cfg.Recent.Clear()
	s.cfg.Trend.Invalidate()
	log.Info("history cleared")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.cfg.Hourly.Clear()
	s.cfg.Recent.Clear()
	s.cfg.Trend.Invalidate()
	log.Info("factory reset")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":         s.cfg.Version,
		"uptime":          int(time.Since(s.startTime).Seconds()),
		"records":         s.cfg.Hourly.Count(),
		"records_recent":  s.cfg.Recent.Count(),
		"records_max":     s.cfg.Hourly.Capacity(),
		"records_rec_max": s.cfg.Recent.Capacity(),
	})
}

// storeDownloadHandler serves the raw store file bytes with an exact
// declared length.
func (s *Server) storeDownloadHandler(store *ring.Store, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		data, ok := store.Snapshot()
		if !ok {
			writeError(w, http.StatusInternalServerError, "read")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}
}

// storeUploadHandler accepts a raw store file and swaps it in after
// validation. The byte count must match the store's exact size; a
// mismatch is rejected before the live store is touched, and an
// invalid staged file leaves the live store as it was.
func (s *Server) storeUploadHandler(store *ring.Store, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := store.ExpectedSize()

		if r.ContentLength >= 0 && r.ContentLength != expected {
			s.importResult(kind, "rejected")
			writeError(w, http.StatusBadRequest, "bad_size")
			return
		}

		stagedPath := store.Path() + ".upload.tmp"
		staged, err := os.Create(stagedPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "open_tmp")
			return
		}

		// Read one byte past the expected size so an oversize body is
		// detectable without consuming it all.
		n, err := io.Copy(staged, io.LimitReader(r.Body, expected+1))
		staged.Close()
		if err != nil || n != expected {
			os.Remove(stagedPath)
			s.importResult(kind, "rejected")
			writeError(w, http.StatusBadRequest, "bad_size")
			return
		}

		if !store.ImportStaged(stagedPath) {
			s.importResult(kind, "rejected")
			writeError(w, http.StatusBadRequest, "invalid_history_file")
			return
		}

		s.cfg.Trend.Invalidate()
		s.importResult(kind, "accepted")
		log.Info("store restored", "kind", kind, "count", store.Count())
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"kind":  kind,
			"count": store.Count(),
			"max":   store.Capacity(),
		})
	}
}

func (s *Server) importResult(kind, result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ImportsTotal.WithLabelValues(kind, result).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errStr string) {
	writeJSON(w, code, map[string]any{"ok": false, "err": errStr})
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
