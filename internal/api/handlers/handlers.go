// Package handlers implements the HTTP endpoints of the service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/wa-finance/internal/api/middleware"
	"github.com/dvloznov/wa-finance/internal/jobs"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/dvloznov/wa-finance/internal/mirror/sheets"
	"github.com/dvloznov/wa-finance/internal/whatsapp"
	"github.com/gorilla/mux"
)

// Sender sends an outbound WhatsApp text and returns the provider response.
type Sender interface {
	SendTextWithResponse(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)
}

// SendHandler handles manual outbound messages.
type SendHandler struct {
	sender Sender
}

// NewSendHandler creates a new send handler.
func NewSendHandler(sender Sender) *SendHandler {
	return &SendHandler{sender: sender}
}

// Send handles POST /api/send
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "to e text são obrigatórios")
		return
	}

	resp, err := h.sender.SendTextWithResponse(r.Context(), req.To, req.Text)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("to", req.To).Msg("Failed to send message")
		status := http.StatusInternalServerError
		if errors.Is(err, whatsapp.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		middleware.WriteError(w, status, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"data": resp,
	})
}

// SheetsChecker verifies spreadsheet credentials and access.
type SheetsChecker interface {
	Check(ctx context.Context) (*sheets.CheckResult, error)
}

// SheetsHandler exposes the spreadsheet connectivity check.
type SheetsHandler struct {
	checker SheetsChecker
}

// NewSheetsHandler creates a sheets handler. checker is nil when no
// spreadsheet is configured.
func NewSheetsHandler(checker SheetsChecker) *SheetsHandler {
	return &SheetsHandler{checker: checker}
}

// Check handles GET /api/sheets/check
func (h *SheetsHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ok":    false,
			"error": "spreadsheet not configured",
		})
		return
	}

	res, err := h.checker.Check(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Sheets check failed")
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"spreadsheet": res,
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		SenderID: query.Get("wa_id"),
		Status:   jobs.JobStatus(query.Get("status")),
		Limit:    50,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /health. db may be nil when running on the in-memory store.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				status["status"] = "unhealthy"
				status["database"] = err.Error()
				middleware.WriteJSON(w, http.StatusServiceUnavailable, status)
				return
			}
			status["database"] = "ok"
		}
		middleware.WriteJSON(w, http.StatusOK, status)
	}
}
