package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/control"
	"github.com/JakeFAU/period-search-monitor/internal/monitor"
	"github.com/JakeFAU/period-search-monitor/internal/periods"
	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

const maxStartBody = 64 << 10

func (s *Server) searchStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

// searchLog handles GET /v1/search/log?since=<seq>. It returns the retained
// lines after seq together with the newest sequence number so clients can
// poll incrementally.
func (s *Server) searchLog(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = v
	}
	lines := s.monitor.LogSince(since)
	if lines == nil {
		lines = []progress.LogLine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":  lines,
		"logSeq": s.monitor.Snapshot().LogSeq,
	})
}

func (s *Server) startSearch(w http.ResponseWriter, r *http.Request) {
	var req control.StartRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	snap, err := s.controller.Start(r.Context(), req)
	if err != nil {
		s.writeControlError(w, r, "start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) stopSearch(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Stop(r.Context())
	if err != nil {
		s.writeControlError(w, r, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeControlError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, control.ErrJobRunning), errors.Is(err, control.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, periods.ErrInvalidSelector), errors.Is(err, control.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, monitor.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "monitor stopped")
	default:
		s.logger.Warn("control request failed",
			zap.String("op", op),
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
