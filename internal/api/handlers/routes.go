package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes registers every endpoint on mux. jobs may be nil when auditing is
// disabled.
func Routes(mux *http.ServeMux, chat *ChatHandler, perms *PermissionsHandler, jobs *JobsHandler) {
	mux.HandleFunc("POST /api/v1/ai/chat", chat.Chat)
	mux.HandleFunc("GET /api/v1/ai/templates", ListTemplates)

	mux.HandleFunc("GET /api/v1/users/{id}/permissions", perms.GetPermissions)
	mux.HandleFunc("PUT /api/v1/users/{id}/permissions", perms.UpdatePermissions)

	if jobs != nil {
		mux.HandleFunc("GET /api/v1/audit/jobs", jobs.ListJobs)
		mux.HandleFunc("GET /api/v1/audit/jobs/{id}", jobs.GetJob)
	}

	mux.HandleFunc("GET /health", Health)
	mux.Handle("GET /metrics", promhttp.Handler())
}
