// Package handlers exposes the insight pipeline, access grants and audit
// jobs over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/api/middleware"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/pipeline"
)

// MaxQuestionLength bounds the question accepted by the chat endpoint.
const MaxQuestionLength = 4000

// QueryAnswerer answers one insight query.
type QueryAnswerer interface {
	AnswerQuery(ctx context.Context, userID, sessionID, queryText string) (*domain.InsightResult, error)
}

// PermissionManager reads and toggles access grants.
type PermissionManager interface {
	Permissions(ctx context.Context, userID string) (map[domain.Category]bool, error)
	SetPermissions(ctx context.Context, userID string, toggles map[domain.Category]bool) error
}

// ChatHandler handles the AI chat endpoint.
type ChatHandler struct {
	answerer QueryAnswerer
	log      zerolog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(answerer QueryAnswerer, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		answerer: answerer,
		log:      log,
	}
}

// ChatRequest is the body of POST /api/v1/ai/chat.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// Chat handles POST /api/v1/ai/chat. A missing session_id falls back to
// the user id, giving each user one default session.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.Question = strings.TrimSpace(req.Question)
	if req.UserID == "" || req.Question == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and question are required")
		return
	}
	if len(req.Question) > MaxQuestionLength {
		middleware.WriteError(w, http.StatusBadRequest, "question is too long")
		return
	}
	if req.SessionID == "" {
		req.SessionID = req.UserID
	}

	result, err := h.answerer.AnswerQuery(r.Context(), req.UserID, req.SessionID, req.Question)
	if err != nil {
		status, message := chatErrorStatus(err)
		reqLog := logger.FromContext(r.Context())
		reqLog.Error().Err(err).Int("status", status).Msg("Chat query failed")
		middleware.WriteError(w, status, message)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// chatErrorStatus maps pipeline errors to a status and a message that is
// safe to return. Internal errors are never echoed.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request cancelled"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// PermissionsHandler handles the per-user permission endpoints.
type PermissionsHandler struct {
	grants PermissionManager
	log    zerolog.Logger
}

// NewPermissionsHandler creates a new permissions handler.
func NewPermissionsHandler(grants PermissionManager, log zerolog.Logger) *PermissionsHandler {
	return &PermissionsHandler{
		grants: grants,
		log:    log,
	}
}

// PermissionsResponse lists every category with its enabled flag.
type PermissionsResponse struct {
	UserID      string          `json:"user_id"`
	Permissions map[string]bool `json:"permissions"`
}

// GetPermissions handles GET /api/v1/users/{id}/permissions
func (h *PermissionsHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	h.writePermissions(w, r, userID)
}

// UpdatePermissions handles PUT /api/v1/users/{id}/permissions. The body
// maps category names to enabled flags; the "perm_" prefix is accepted.
func (h *PermissionsHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	var body map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No permissions given")
		return
	}

	toggles := make(map[domain.Category]bool, len(body))
	for name, enabled := range body {
		c, err := domain.ParseCategory(name)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Unknown category: "+name)
			return
		}
		toggles[c] = enabled
	}

	if err := h.grants.SetPermissions(ctx, userID, toggles); err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Error().Err(err).Str("user_id", userID).Msg("Failed to update permissions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update permissions")
		return
	}

	h.writePermissions(w, r, userID)
}

func (h *PermissionsHandler) writePermissions(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	perms, err := h.grants.Permissions(ctx, userID)
	if err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Error().Err(err).Str("user_id", userID).Msg("Failed to read permissions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read permissions")
		return
	}

	out := make(map[string]bool, len(perms))
	for c, enabled := range perms {
		out[string(c)] = enabled
	}
	middleware.WriteJSON(w, http.StatusOK, PermissionsResponse{UserID: userID, Permissions: out})
}

// ListTemplates handles GET /api/v1/ai/templates
func ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := pipeline.Templates()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// JobsHandler exposes the audit job queue state.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// JobView is a job without its payload. Payloads carry user data and are
// never served.
type JobView struct {
	JobID       string         `json:"job_id"`
	QueryID     string         `json:"query_id"`
	Status      jobs.JobStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
}

func newJobView(j *jobs.RecordRunJob) JobView {
	return JobView{
		JobID:       j.JobID,
		QueryID:     j.QueryID,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Error:       j.Error,
		RetryCount:  j.RetryCount,
	}
}

// GetJob handles GET /api/v1/audit/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		reqLog := logger.FromContext(ctx)
		reqLog.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newJobView(job))
}

// ListJobs handles GET /api/v1/audit/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		QueryID: query.Get("query_id"),
		Status:  jobs.JobStatus(query.Get("status")),
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

	list, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	views := make([]JobView, 0, len(list))
	for _, j := range list {
		views = append(views, newJobView(j))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  views,
		"count": len(views),
	})
}
