// Package handler wires the HTTP control plane onto the engine runner.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rezkam/shiftengine/internal/domain"
	"github.com/rezkam/shiftengine/internal/engine"
	"github.com/rezkam/shiftengine/internal/infrastructure/http/response"
)

// Version is stamped at build time via -ldflags; it reads "dev" when not stamped.
var Version = "dev"

// runRequest is the POST /scheduler/run body. Every field is optional; a
// nil/zero value means "use config / no narrowing", matching RunOptions.
type runRequest struct {
	CompanyID          *int64 `json:"company_id,omitempty"`
	TemplateID         *int64 `json:"template_id,omitempty"`
	AdvanceDays        *int   `json:"advance_days,omitempty"`
	MonthlyMonthsAhead *int   `json:"monthly_months_ahead,omitempty"`
	Reset              bool   `json:"reset,omitempty"`
}

// Scheduler exposes the engine runner over HTTP.
type Scheduler struct {
	runner    *engine.Runner
	logger    *slog.Logger
	isRunning atomic.Bool
}

func NewScheduler(runner *engine.Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, logger: logger}
}

// Status handles GET /scheduler/status — unauthenticated liveness.
func (h *Scheduler) Status(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{
		"status":     "healthy",
		"is_running": h.isRunning.Load(),
		"timestamp":  time.Now().UTC(),
		"version":    Version,
	})
}

// Run handles POST /scheduler/run — requires X-Api-Key, applied by middleware
// upstream of this handler.
func (h *Scheduler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.ValidationError(w, "body", "invalid JSON: "+err.Error())
			return
		}
	}

	opts := engine.RunOptions{
		CompanyID:          req.CompanyID,
		TemplateID:         req.TemplateID,
		AdvanceDays:        req.AdvanceDays,
		MonthlyMonthsAhead: req.MonthlyMonthsAhead,
		Reset:              req.Reset,
	}

	h.isRunning.Store(true)
	defer h.isRunning.Store(false)

	summary, err := h.runner.Run(r.Context(), time.Now(), opts)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}
	response.OK(w, summaryDTO(summary))
}

func (h *Scheduler) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrBlocked):
		response.Conflict(w, "another run is already active")
	case engine.IsCancelled(err):
		response.ClientClosedRequest(w, err.Error())
	case r.Context().Err() != nil:
		response.ClientClosedRequest(w, "client cancelled the request")
	default:
		h.logger.ErrorContext(r.Context(), "run failed", slog.String("error", err.Error()))
		response.Internal(w, err.Error())
	}
}

type runSummaryDTO struct {
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Created     int        `json:"created"`
	Duplicate   int        `json:"duplicate"`
	Overlap     int        `json:"overlap"`
	Error       int        `json:"error_count"`
	ErrorMsg    string     `json:"error,omitempty"`
}

func summaryDTO(s *domain.RunSummary) runSummaryDTO {
	return runSummaryDTO{
		RunID: s.RunID, StartedAt: s.StartedAt, CompletedAt: s.CompletedAt, Status: s.Status.String(),
		Created: s.Totals.Created, Duplicate: s.Totals.Duplicate, Overlap: s.Totals.Overlap, Error: s.Totals.Error,
		ErrorMsg: s.Error,
	}
}
