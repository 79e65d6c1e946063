package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/store"
)

const (
	defaultRunLimit    = 50
	maxRunLimit        = 500
	defaultPeriodLimit = 100
	maxPeriodLimit     = 1000
	runsTimeout        = 3 * time.Second
)

// RunsHandler exposes read-only session history endpoints.
type RunsHandler struct {
	repo    store.SessionRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the repository and logger.
func NewRunsHandler(repo store.SessionRepository, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{
		repo:    repo,
		timeout: runsTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns a JSON
// object {"runs": [...]} on success, 400 for invalid filters, 503 when the repo
// is unavailable, or 500 if the repository call fails.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		val, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &val
	}
	runs, err := h.repo.ListSessions(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": toRunDTOs(runs),
	})
}

// GetRun handles GET /v1/runs/{session_id}. It returns {"run": {...}} on
// success, 400 for malformed IDs, 404 when the repository reports
// store.ErrNotFound, 503 if the repo is not initialized, or 500 otherwise.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session repository unavailable")
		return
	}
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// ListRunPeriods handles GET /v1/runs/{session_id}/periods?limit=&offset=.
func (h *RunsHandler) ListRunPeriods(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session repository unavailable")
		return
	}
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultPeriodLimit, maxPeriodLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results, err := h.repo.ListSessionPeriods(ctx, id, limit, offset)
	if err != nil {
		h.logger.Error("list session periods failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list run periods")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"periods": toPeriodDTOs(results),
	})
}

func parseSessionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "session_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("session_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid session_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.RunRunning, nil
	case "completed", "complete", "success":
		return store.RunCompleted, nil
	case "stopped":
		return store.RunStopped, nil
	case "failed", "error", "failure":
		return store.RunFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toRunDTOs(in []store.SessionRun) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run store.SessionRun) runDTO {
	return runDTO{
		ID:             run.ID.String(),
		Query:          run.Query,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		Status:         string(run.Status),
		Message:        run.Message,
		TotalTasks:     run.TotalTasks,
		CompletedTasks: run.CompletedTasks,
		OverallPercent: run.OverallPercent,
		CurrentPeriod:  run.CurrentPeriod,
		ArticlesSaved:  run.ArticlesSaved,
		UpdatedAt:      run.UpdatedAt,
	}
}

func toPeriodDTOs(in []store.PeriodResult) []periodDTO {
	out := make([]periodDTO, 0, len(in))
	for _, p := range in {
		out = append(out, periodDTO{
			TaskIndex:    p.TaskIndex,
			Period:       p.Period,
			ResultsTotal: p.ResultsTotal,
			ItemsSaved:   p.ItemsSaved,
			ItemsTotal:   p.ItemsTotal,
			FinishedAt:   p.FinishedAt,
		})
	}
	return out
}

type runDTO struct {
	ID             string     `json:"id"`
	Query          string     `json:"query"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status"`
	Message        *string    `json:"message,omitempty"`
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	OverallPercent int        `json:"overall_percent"`
	CurrentPeriod  string     `json:"current_period"`
	ArticlesSaved  int        `json:"articles_saved"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type periodDTO struct {
	TaskIndex    int       `json:"task_index"`
	Period       string    `json:"period"`
	ResultsTotal int       `json:"results_total"`
	ItemsSaved   int       `json:"items_saved"`
	ItemsTotal   int       `json:"items_total"`
	FinishedAt   time.Time `json:"finished_at"`
}
