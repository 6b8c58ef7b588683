// Package api serves the devlog REST surface over net/http. Every
// response uses the same envelope, and storage sentinels map onto HTTP
// statuses in one place.
package api

import (
	"net/http"
	"time"

	"github.com/HendryAvila/devlog/internal/ratelimit"
	"github.com/HendryAvila/devlog/internal/service"
	"go.uber.org/zap"
)

// Handler routes API requests to the services.
type Handler struct {
	svc     *service.Services
	logger  *zap.Logger
	version string
	storage string
	limits  func() ratelimit.Snapshot
	now     func() time.Time
	mux     *http.ServeMux
	chain   http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// WithStorageType sets the backend name reported by the health endpoint.
func WithStorageType(t string) Option {
	return func(h *Handler) { h.storage = t }
}

// WithRateLimit reports the GitHub rate-limit budget on the health
// endpoint.
func WithRateLimit(snapshot func() ratelimit.Snapshot) Option {
	return func(h *Handler) { h.limits = snapshot }
}

// WithClock overrides the clock used for access-log timings.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New builds the API handler with its middleware chain.
func New(svc *service.Services, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		svc:     svc,
		logger:  logger,
		version: "dev",
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	h.chain = withRequestID(h.withAccessLog(h.withRecovery(h.withRouteErrors(h.mux))))
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	m := h.mux
	m.HandleFunc("GET /api/health", h.health)

	// Projects.
	m.HandleFunc("GET /api/projects", h.listProjects)
	m.HandleFunc("POST /api/projects", h.createProject)
	m.HandleFunc("GET /api/projects/{projectID}", h.getProject)
	m.HandleFunc("PUT /api/projects/{projectID}", h.updateProject)
	m.HandleFunc("DELETE /api/projects/{projectID}", h.deleteProject)
	m.HandleFunc("GET /api/projects/{projectID}/hierarchy", h.projectHierarchy)

	// Devlogs.
	const devlogs = "/api/projects/{projectID}/devlogs"
	m.HandleFunc("GET "+devlogs, h.listDevlogs)
	m.HandleFunc("POST "+devlogs, h.createDevlog)
	m.HandleFunc("GET "+devlogs+"/search", h.searchDevlogs)
	m.HandleFunc("GET "+devlogs+"/related", h.relatedDevlogs)
	m.HandleFunc("GET "+devlogs+"/stats/overview", h.devlogStats)
	m.HandleFunc("GET "+devlogs+"/stats/timeseries", h.devlogTimeSeries)
	m.HandleFunc("POST "+devlogs+"/batch/update", h.batchUpdate)
	m.HandleFunc("POST "+devlogs+"/batch/delete", h.batchDelete)
	m.HandleFunc("POST "+devlogs+"/batch/note", h.batchNote)
	m.HandleFunc("GET "+devlogs+"/{id}", h.getDevlog)
	m.HandleFunc("PUT "+devlogs+"/{id}", h.updateDevlog)
	m.HandleFunc("DELETE "+devlogs+"/{id}", h.deleteDevlog)
	m.HandleFunc("GET "+devlogs+"/{id}/notes", h.listNotes)
	m.HandleFunc("POST "+devlogs+"/{id}/notes", h.addNote)
	m.HandleFunc("POST "+devlogs+"/{id}/complete", h.completeDevlog)
	m.HandleFunc("POST "+devlogs+"/{id}/close", h.closeDevlog)
	m.HandleFunc("POST "+devlogs+"/{id}/archive", h.archiveDevlog)
	m.HandleFunc("POST "+devlogs+"/{id}/unarchive", h.unarchiveDevlog)

	// Machines, workspaces and chat sessions.
	m.HandleFunc("GET /api/machines", h.listMachines)
	m.HandleFunc("POST /api/machines", h.upsertMachine)
	m.HandleFunc("GET /api/machines/{machineID}", h.getMachine)
	m.HandleFunc("POST /api/workspaces", h.upsertWorkspace)
	m.HandleFunc("GET /api/workspaces/{workspaceID}", h.resolveWorkspace)
	m.HandleFunc("GET /api/workspaces/{workspaceID}/chat-sessions", h.listChatSessions)
	m.HandleFunc("POST /api/chat-sessions", h.createChatSession)
	m.HandleFunc("GET /api/chat-sessions/{sessionID}", h.getChatSession)
	m.HandleFunc("POST /api/chat-sessions/{sessionID}/end", h.endChatSession)

	// Agent events and sessions.
	m.HandleFunc("POST /api/events", h.ingestEvent)
	m.HandleFunc("POST /api/events/batch", h.ingestEvents)
	m.HandleFunc("GET /api/events", h.queryEvents)
	m.HandleFunc("GET /api/events/stats", h.eventStats)
	m.HandleFunc("GET /api/events/timeseries", h.eventTimeSeries)
	m.HandleFunc("GET /api/sessions", h.listSessions)
	m.HandleFunc("POST /api/sessions", h.startSession)
	m.HandleFunc("GET /api/sessions/{sessionID}", h.getSession)
	m.HandleFunc("POST /api/sessions/{sessionID}/end", h.endSession)
	m.HandleFunc("GET /api/sessions/{sessionID}/events", h.sessionEvents)
}

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status    string              `json:"status"`
	Version   string              `json:"version"`
	Storage   string              `json:"storage,omitempty"`
	RateLimit *ratelimit.Snapshot `json:"rateLimit,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: "ok", Version: h.version, Storage: h.storage}
	if h.limits != nil {
		snap := h.limits()
		status.RateLimit = &snap
	}
	h.respond(w, r, http.StatusOK, status, nil)
}
