package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/api"
	"github.com/HendryAvila/devlog/internal/config"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/ratelimit"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ─── Helpers ─────────────────────────────────────────────────────────────────

func newTestAPI(t *testing.T, opts ...api.Option) *httptest.Server {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "devlog.db"), zap.NewNop())
	require.NoError(t, err)
	b := storage.NewBackend(s, s, s, s)
	t.Cleanup(func() { _ = b.Close() })

	opts = append([]api.Option{api.WithVersion("1.2.3"), api.WithStorageType("sqlite")}, opts...)
	h := api.New(service.New(b, zap.NewNop()), zap.NewNop(), opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

type result struct {
	status int
	header http.Header
	body   api.Response
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any) result {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	return send(t, req)
}

func send(t *testing.T, req *http.Request) result {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := result{status: resp.StatusCode, header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), "body: %s", raw)
	}
	return out
}

func data[T any](t *testing.T, r result) T {
	t.Helper()
	require.True(t, r.body.Success, "status %d error %+v", r.status, r.body.Error)
	var v T
	require.NoError(t, json.Unmarshal(r.body.Data, &v))
	return v
}

func createProject(t *testing.T, srv *httptest.Server, name string) hierarchy.Project {
	t.Helper()
	r := call(t, srv, http.MethodPost, "/api/projects", hierarchy.ProjectInput{Name: name, RepoURL: "https://github.com/acme/" + name})
	require.Equal(t, http.StatusCreated, r.status)
	return data[hierarchy.Project](t, r)
}

func devlogsPath(p hierarchy.Project, rest string) string {
	return "/api/projects/" + itoa(p.ID) + "/devlogs" + rest
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := newTestAPI(t)

	r := call(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, r.status)
	h := data[api.HealthStatus](t, r)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, "sqlite", h.Storage)
	require.NotNil(t, r.body.Meta)
	assert.NotEmpty(t, r.body.Meta.RequestID)
	assert.Equal(t, r.body.Meta.RequestID, r.header.Get(api.HeaderRequestID))
}

func TestHealth_ReportsRateLimit(t *testing.T) {
	reset := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	lim := ratelimit.New(0, 1, nil)
	lim.Observe(42, reset)
	srv := newTestAPI(t, api.WithRateLimit(lim.Snapshot))

	h := data[api.HealthStatus](t, call(t, srv, http.MethodGet, "/api/health", nil))
	require.NotNil(t, h.RateLimit)
	assert.True(t, h.RateLimit.Known)
	assert.Equal(t, 42, h.RateLimit.Remaining)
	assert.True(t, h.RateLimit.Reset.Equal(reset))

	plain := data[api.HealthStatus](t, call(t, newTestAPI(t), http.MethodGet, "/api/health", nil))
	assert.Nil(t, plain.RateLimit)
}

func TestUnmatchedRoutesUseEnvelope(t *testing.T) {
	srv := newTestAPI(t)

	r := call(t, srv, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, "application/json", r.header.Get("Content-Type"))
	require.NotNil(t, r.body.Error)
	assert.Equal(t, api.CodeNotFound, r.body.Error.Code)
	assert.NotEmpty(t, r.body.Error.RequestID)

	r = call(t, srv, http.MethodPatch, "/api/projects", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, r.status)
	assert.Equal(t, "application/json", r.header.Get("Content-Type"))
	require.NotNil(t, r.body.Error)
	assert.Equal(t, api.CodeMethodNotAllowed, r.body.Error.Code)
	assert.Contains(t, r.header.Get("Allow"), "POST")
}

func TestListDevlogs_DateOnlyToDateIncludesWholeDay(t *testing.T) {
	srv := newTestAPI(t)
	p := createProject(t, srv, "app")
	r := call(t, srv, http.MethodPost, devlogsPath(p, ""), service.CreateInput{Title: "Tune cache", Type: devlog.TypeTask})
	require.Equal(t, http.StatusCreated, r.status)
	e := data[devlog.Entry](t, r)

	day := e.CreatedAt.UTC().Format(devlog.DayFormat)
	r = call(t, srv, http.MethodGet, devlogsPath(p, "?fromDate="+day+"&toDate="+day), nil)
	require.Equal(t, http.StatusOK, r.status)
	items := data[[]devlog.Entry](t, r)
	require.Len(t, items, 1)
	assert.Equal(t, e.ID, items[0].ID)

	before := e.CreatedAt.UTC().AddDate(0, 0, -1).Format(devlog.DayFormat)
	r = call(t, srv, http.MethodGet, devlogsPath(p, "?toDate="+before), nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Empty(t, data[[]devlog.Entry](t, r))
}

func TestDevlogLifecycle(t *testing.T) {
	srv := newTestAPI(t)
	p := createProject(t, srv, "app")
	assert.Equal(t, "acme/app", p.FullName)

	r := call(t, srv, http.MethodPost, devlogsPath(p, ""), service.CreateInput{
		Title:       "Fix login redirect",
		Type:        devlog.TypeBugfix,
		Priority:    devlog.PriorityHigh,
		Description: "Users land on a blank page after login.",
	})
	require.Equal(t, http.StatusCreated, r.status)
	e := data[devlog.Entry](t, r)
	assert.Equal(t, "fix-login-redirect", e.Key)
	assert.Equal(t, p.ID, e.ProjectID)
	assert.Equal(t, devlog.StatusNew, e.Status)

	_ = call(t, srv, http.MethodPost, devlogsPath(p, ""), service.CreateInput{Title: "Write onboarding docs", Type: devlog.TypeDocs})

	status := devlog.StatusInProgress
	r = call(t, srv, http.MethodPut, devlogsPath(p, "/"+itoa(e.ID)), service.UpdateInput{
		Status: &status,
		Note:   &service.NoteInput{Content: "Reproduced with an expired session cookie."},
	})
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, devlog.StatusInProgress, data[devlog.Entry](t, r).Status)

	r = call(t, srv, http.MethodGet, devlogsPath(p, "?status=new,in-progress&type=bugfix"), nil)
	require.Equal(t, http.StatusOK, r.status)
	items := data[[]devlog.Entry](t, r)
	require.Len(t, items, 1)
	assert.Equal(t, e.ID, items[0].ID)
	require.NotNil(t, r.body.Meta.Pagination)
	assert.Equal(t, 1, r.body.Meta.Pagination.Total)
	assert.Equal(t, devlog.DefaultPageSize, r.body.Meta.Pagination.Limit)

	r = call(t, srv, http.MethodGet, devlogsPath(p, "?limit=1&page=2&sortBy=id&sortOrder=asc"), nil)
	require.Equal(t, http.StatusOK, r.status)
	items = data[[]devlog.Entry](t, r)
	require.Len(t, items, 1)
	assert.Equal(t, "write-onboarding-docs", items[0].Key)
	assert.True(t, r.body.Meta.Pagination.HasPreviousPage)
	assert.False(t, r.body.Meta.Pagination.HasNextPage)

	r = call(t, srv, http.MethodGet, devlogsPath(p, "/search?q=blank+page"), nil)
	require.Equal(t, http.StatusOK, r.status)
	items = data[[]devlog.Entry](t, r)
	require.Len(t, items, 1)
	assert.Equal(t, e.ID, items[0].ID)

	r = call(t, srv, http.MethodGet, devlogsPath(p, "/"+itoa(e.ID)+"/notes"), nil)
	require.Equal(t, http.StatusOK, r.status)
	notes := data[[]devlog.Note](t, r)
	require.Len(t, notes, 1)
	assert.Equal(t, devlog.NoteProgress, notes[0].Category)

	r = call(t, srv, http.MethodPost, devlogsPath(p, "/"+itoa(e.ID)+"/complete"), api.CompleteRequest{Summary: "Refresh the session before redirecting."})
	require.Equal(t, http.StatusOK, r.status)
	done := data[devlog.Entry](t, r)
	assert.Equal(t, devlog.StatusDone, done.Status)
	assert.NotNil(t, done.ClosedAt)

	r = call(t, srv, http.MethodGet, devlogsPath(p, "/stats/overview"), nil)
	require.Equal(t, http.StatusOK, r.status)
	stats := data[devlog.Stats](t, r)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.ClosedEntries)
	assert.Equal(t, 1, stats.ByType[devlog.TypeDocs])

	r = call(t, srv, http.MethodGet, devlogsPath(p, "/stats/timeseries?days=7"), nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, data[devlog.TimeSeriesStats](t, r).DataPoints, 7)

	r = call(t, srv, http.MethodPost, devlogsPath(p, "/"+itoa(e.ID)+"/archive"), nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.True(t, data[devlog.Entry](t, r).Archived)

	r = call(t, srv, http.MethodGet, devlogsPath(p, ""), nil)
	assert.Len(t, data[[]devlog.Entry](t, r), 1, "archived entries are hidden by default")
	r = call(t, srv, http.MethodGet, devlogsPath(p, "?archived=all"), nil)
	assert.Len(t, data[[]devlog.Entry](t, r), 2)

	r = call(t, srv, http.MethodDelete, devlogsPath(p, "/"+itoa(e.ID)), nil)
	require.Equal(t, http.StatusOK, r.status)
	r = call(t, srv, http.MethodGet, devlogsPath(p, "/"+itoa(e.ID)), nil)
	assert.Equal(t, http.StatusNotFound, r.status)
}

func TestBatchRoutes(t *testing.T) {
	srv := newTestAPI(t)
	p := createProject(t, srv, "app")

	var ids []int64
	for _, title := range []string{"One", "Two"} {
		r := call(t, srv, http.MethodPost, devlogsPath(p, ""), service.CreateInput{Title: title})
		ids = append(ids, data[devlog.Entry](t, r).ID)
	}

	priority := devlog.PriorityCritical
	r := call(t, srv, http.MethodPost, devlogsPath(p, "/batch/update"), api.BatchRequest{
		IDs:     []int64{ids[0], 9999, ids[1]},
		Updates: &service.UpdateInput{Priority: &priority},
	})
	require.Equal(t, http.StatusOK, r.status)
	results := data[[]service.BatchResult](t, r)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Success)

	r = call(t, srv, http.MethodPost, devlogsPath(p, "/batch/note"), api.BatchRequest{IDs: ids})
	assert.Equal(t, http.StatusBadRequest, r.status, "note is required")

	r = call(t, srv, http.MethodPost, devlogsPath(p, "/batch/delete"), api.BatchRequest{IDs: ids})
	require.Equal(t, http.StatusOK, r.status)
	for _, res := range data[[]service.BatchResult](t, r) {
		assert.True(t, res.Success)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestAPI(t)
	p := createProject(t, srv, "app")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"non-numeric id", http.MethodGet, devlogsPath(p, "/abc"), nil, http.StatusBadRequest, api.CodeValidation},
		{"missing entry", http.MethodGet, devlogsPath(p, "/4242"), nil, http.StatusNotFound, api.CodeNotFound},
		{"missing project", http.MethodGet, "/api/projects/4242", nil, http.StatusNotFound, api.CodeNotFound},
		{"duplicate project", http.MethodPost, "/api/projects", hierarchy.ProjectInput{Name: "app"}, http.StatusConflict, api.CodeConflict},
		{"invalid enum", http.MethodPost, devlogsPath(p, ""), service.CreateInput{Title: "x", Type: "epic"}, http.StatusBadRequest, api.CodeValidation},
		{"bad status filter", http.MethodGet, devlogsPath(p, "?status=paused"), nil, http.StatusBadRequest, api.CodeValidation},
		{"bad archived", http.MethodGet, devlogsPath(p, "?archived=maybe"), nil, http.StatusBadRequest, api.CodeValidation},
		{"bad date", http.MethodGet, devlogsPath(p, "?fromDate=yesterday"), nil, http.StatusBadRequest, api.CodeValidation},
		{"search without q", http.MethodGet, devlogsPath(p, "/search"), nil, http.StatusBadRequest, api.CodeValidation},
		{"empty body", http.MethodPost, "/api/projects", nil, http.StatusBadRequest, api.CodeValidation},
		{"bad interval", http.MethodGet, "/api/events/timeseries?interval=week", nil, http.StatusBadRequest, api.CodeValidation},
		{"missing session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound, api.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, r.status)
			assert.False(t, r.body.Success)
			require.NotNil(t, r.body.Error)
			assert.Equal(t, tt.code, r.body.Error.Code)
			assert.NotEmpty(t, r.body.Error.Message)
		})
	}
}

func TestBodyLimit(t *testing.T) {
	srv := newTestAPI(t)

	huge := `{"name": "` + strings.Repeat("a", api.MaxBodyBytes) + `"}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/projects", strings.NewReader(huge))
	require.NoError(t, err)
	r := send(t, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, r.status)
	require.NotNil(t, r.body.Error)
	assert.Equal(t, api.CodePayloadTooLarge, r.body.Error.Code)
}

func TestETag(t *testing.T) {
	srv := newTestAPI(t)
	p := createProject(t, srv, "app")

	r := call(t, srv, http.MethodGet, "/api/projects/"+itoa(p.ID), nil)
	require.Equal(t, http.StatusOK, r.status)
	tag := r.header.Get("ETag")
	require.NotEmpty(t, tag)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/projects/"+itoa(p.ID), nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, send(t, req).status)

	r = call(t, srv, http.MethodPut, "/api/projects/"+itoa(p.ID), hierarchy.ProjectInput{Name: "app", Description: "changed"})
	require.Equal(t, http.StatusOK, r.status)
	assert.Empty(t, r.header.Get("ETag"), "writes carry no ETag")

	r = call(t, srv, http.MethodGet, "/api/projects/"+itoa(p.ID), nil)
	assert.NotEqual(t, tag, r.header.Get("ETag"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestAPI(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/projects/999", nil)
	require.NoError(t, err)
	req.Header.Set(api.HeaderRequestID, "trace-123")
	r := send(t, req)
	assert.Equal(t, "trace-123", r.header.Get(api.HeaderRequestID))
	require.NotNil(t, r.body.Error)
	assert.Equal(t, "trace-123", r.body.Error.RequestID)
}

func TestHierarchyRoutes(t *testing.T) {
	srv := newTestAPI(t)
	p := createProject(t, srv, "app")

	r := call(t, srv, http.MethodPost, "/api/machines", hierarchy.MachineInput{MachineID: "m-1", Hostname: "dev-box", OSType: "linux"})
	require.Equal(t, http.StatusOK, r.status)
	m := data[hierarchy.Machine](t, r)
	assert.Equal(t, hierarchy.MachineLocal, m.MachineType)

	r = call(t, srv, http.MethodGet, "/api/machines/"+itoa(m.ID), nil)
	assert.Equal(t, "dev-box", data[hierarchy.Machine](t, r).Hostname)

	r = call(t, srv, http.MethodPost, "/api/workspaces", hierarchy.WorkspaceInput{
		ProjectID: p.ID, MachineID: 4242, WorkspaceID: "ws-1", WorkspacePath: "/src/app",
	})
	assert.Equal(t, http.StatusBadRequest, r.status, "missing machine")

	r = call(t, srv, http.MethodPost, "/api/workspaces", hierarchy.WorkspaceInput{
		ProjectID: p.ID, MachineID: m.ID, WorkspaceID: "ws-1", WorkspacePath: "/src/app", Branch: "main",
	})
	require.Equal(t, http.StatusOK, r.status)
	ws := data[hierarchy.Workspace](t, r)

	r = call(t, srv, http.MethodGet, "/api/workspaces/ws-1", nil)
	require.Equal(t, http.StatusOK, r.status)
	wc := data[hierarchy.WorkspaceContext](t, r)
	assert.Equal(t, p.ID, wc.Project.ID)
	assert.Equal(t, m.ID, wc.Machine.ID)

	r = call(t, srv, http.MethodPost, "/api/chat-sessions", hierarchy.ChatSessionInput{WorkspaceID: ws.ID, AgentType: "copilot"})
	require.Equal(t, http.StatusCreated, r.status)
	chat := data[hierarchy.ChatSession](t, r)
	assert.NotEmpty(t, chat.SessionID)

	r = call(t, srv, http.MethodPost, "/api/chat-sessions/"+chat.SessionID+"/end", hierarchy.ChatSessionEnd{MessageCount: 12, TotalTokens: 3400})
	require.Equal(t, http.StatusOK, r.status)
	assert.NotNil(t, data[hierarchy.ChatSession](t, r).EndedAt)

	r = call(t, srv, http.MethodPost, "/api/chat-sessions/"+chat.SessionID+"/end", nil)
	assert.Equal(t, http.StatusConflict, r.status)

	r = call(t, srv, http.MethodGet, "/api/workspaces/ws-1/chat-sessions", nil)
	assert.Len(t, data[[]hierarchy.ChatSession](t, r), 1)

	r = call(t, srv, http.MethodGet, "/api/projects/"+itoa(p.ID)+"/hierarchy", nil)
	require.Equal(t, http.StatusOK, r.status)
	tree := data[hierarchy.ProjectHierarchy](t, r)
	require.Len(t, tree.Machines, 1)
	require.Len(t, tree.Machines[0].Workspaces, 1)
	assert.Equal(t, 1, tree.Machines[0].Workspaces[0].SessionCount)
}

func TestEventRoutes(t *testing.T) {
	srv := newTestAPI(t)
	p := createProject(t, srv, "app")

	r := call(t, srv, http.MethodPost, "/api/sessions", agent.StartInput{AgentID: "copilot", ProjectID: p.ID})
	require.Equal(t, http.StatusCreated, r.status)
	sess := data[agent.Session](t, r)
	require.NotEmpty(t, sess.ID)

	batch := api.EventBatch{Events: []agent.Event{
		{Type: agent.EventFileWrite, AgentID: "copilot", SessionID: sess.ID, ProjectID: p.ID},
		{Type: agent.EventCommandExecute, AgentID: "copilot", SessionID: sess.ID, ProjectID: p.ID},
		{Type: agent.EventErrorEncountered, AgentID: "copilot", SessionID: sess.ID, ProjectID: p.ID, Severity: agent.SeverityError},
	}}
	r = call(t, srv, http.MethodPost, "/api/events/batch", batch)
	require.Equal(t, http.StatusCreated, r.status)
	accepted := data[api.BatchAccepted](t, r)
	assert.Equal(t, 3, accepted.Count)
	for _, id := range accepted.IDs {
		assert.NotEmpty(t, id)
	}

	r = call(t, srv, http.MethodPost, "/api/events", agent.Event{Type: "teleport", AgentID: "copilot", SessionID: sess.ID, ProjectID: p.ID})
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = call(t, srv, http.MethodGet, "/api/events?sessionId="+sess.ID+"&eventTypes=file_write,command_execute", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, data[[]agent.Event](t, r), 2)

	r = call(t, srv, http.MethodGet, "/api/events/stats?projectId="+itoa(p.ID), nil)
	require.Equal(t, http.StatusOK, r.status)
	stats := data[agent.EventStats](t, r)
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 1, stats.BySeverity[agent.SeverityError])

	r = call(t, srv, http.MethodGet, "/api/events/timeseries?interval=day", nil)
	require.Equal(t, http.StatusOK, r.status)
	buckets := data[[]agent.TimeBucket](t, r)
	require.Len(t, buckets, 1)
	assert.Equal(t, 3, buckets[0].EventCount)

	score := 0.8
	r = call(t, srv, http.MethodPost, "/api/sessions/"+sess.ID+"/end", agent.EndInput{Outcome: agent.OutcomeSuccess, QualityScore: &score})
	require.Equal(t, http.StatusOK, r.status)
	ended := data[agent.Session](t, r)
	assert.Equal(t, agent.OutcomeSuccess, ended.Outcome)
	assert.Equal(t, 3, ended.Metrics.EventsCount)
	assert.Equal(t, 1, ended.Metrics.ErrorsEncountered)

	r = call(t, srv, http.MethodPost, "/api/sessions/"+sess.ID+"/end", agent.EndInput{Outcome: agent.OutcomeFailure})
	assert.Equal(t, http.StatusConflict, r.status)

	r = call(t, srv, http.MethodGet, "/api/sessions?active=true", nil)
	assert.Empty(t, data[[]agent.Session](t, r))

	r = call(t, srv, http.MethodGet, "/api/sessions/"+sess.ID+"/events?limit=2", nil)
	assert.Len(t, data[[]agent.Event](t, r), 2)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("pong")) })
	srv := api.NewServer(config.ServerConfig{ShutdownTimeout: "1s"}, mux, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(raw))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
