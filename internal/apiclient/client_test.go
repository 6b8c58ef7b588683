package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/api"
	"github.com/HendryAvila/devlog/internal/apiclient"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLiveClient(t *testing.T) *apiclient.Client {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "devlog.db"), zap.NewNop())
	require.NoError(t, err)
	b := storage.NewBackend(s, s, s, s)
	t.Cleanup(func() { _ = b.Close() })

	srv := httptest.NewServer(api.New(service.New(b, zap.NewNop()), zap.NewNop(), api.WithVersion("0.9.0")))
	t.Cleanup(srv.Close)
	return apiclient.New(srv.URL+"/", apiclient.WithBackoff(time.Millisecond))
}

func TestClient_AgainstServer(t *testing.T) {
	c := newLiveClient(t)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", h.Version)

	p, err := c.CreateProject(ctx, hierarchy.ProjectInput{Name: "app"})
	require.NoError(t, err)

	for _, title := range []string{"Add export", "Fix import", "Tune cache"} {
		_, err := c.CreateDevlog(ctx, p.ID, service.CreateInput{Title: title, Type: devlog.TypeFeature})
		require.NoError(t, err)
	}

	page, err := c.ListDevlogs(ctx, p.ID, devlog.Filter{Type: []devlog.EntryType{devlog.TypeFeature}},
		devlog.Pagination{Limit: 2, SortBy: devlog.SortID, SortOrder: devlog.SortAsc})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "add-export", page.Items[0].Key)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.True(t, page.Pagination.HasNextPage)

	found, err := c.SearchDevlogs(ctx, p.ID, "cache", devlog.Filter{}, devlog.Pagination{})
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	id := found.Items[0].ID

	note, err := c.AddNote(ctx, p.ID, id, service.NoteInput{Content: "LRU hit rate is 40%."})
	require.NoError(t, err)
	assert.Equal(t, devlog.NoteProgress, note.Category)

	closed, err := c.CloseDevlog(ctx, p.ID, id, "superseded")
	require.NoError(t, err)
	assert.Equal(t, devlog.StatusCancelled, closed.Status)

	archived, err := c.ArchiveDevlog(ctx, p.ID, id)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	all, err := c.ListDevlogs(ctx, p.ID, devlog.Filter{Archived: devlog.ArchiveOnly}, devlog.Pagination{})
	require.NoError(t, err)
	require.Len(t, all.Items, 1)
	assert.Equal(t, id, all.Items[0].ID)

	stats, err := c.DevlogStats(ctx, p.ID, devlog.Filter{Archived: devlog.ArchiveInclude})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)

	_, err = c.GetDevlog(ctx, p.ID, 999)
	require.Error(t, err)
	assert.True(t, apiclient.IsNotFound(err))
	var apiErr *apiclient.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, api.CodeNotFound, apiErr.Code)

	_, err = c.CreateProject(ctx, hierarchy.ProjectInput{Name: "app"})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestClient_AgentSession(t *testing.T) {
	c := newLiveClient(t)
	ctx := context.Background()

	p, err := c.CreateProject(ctx, hierarchy.ProjectInput{Name: "app"})
	require.NoError(t, err)
	s, err := c.StartSession(ctx, agent.StartInput{AgentID: "claude", ProjectID: p.ID})
	require.NoError(t, err)

	e, err := c.IngestEvent(ctx, agent.Event{Type: agent.EventFileRead, AgentID: "claude", SessionID: s.ID, ProjectID: p.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, agent.SeverityInfo, e.Severity)

	accepted, err := c.IngestEvents(ctx, []agent.Event{
		{Type: agent.EventTestRun, AgentID: "claude", SessionID: s.ID, ProjectID: p.ID, Data: map[string]any{"passed": true}},
		{Type: agent.EventBuildTrigger, AgentID: "claude", SessionID: s.ID, ProjectID: p.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, accepted.Count)

	events, err := c.QueryEvents(ctx, agent.EventFilter{SessionID: s.ID, EventTypes: []agent.EventType{agent.EventTestRun}})
	require.NoError(t, err)
	require.Len(t, events, 1)

	stats, err := c.EventStats(ctx, agent.EventFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEvents)

	ended, err := c.EndSession(ctx, s.ID, agent.EndInput{Outcome: agent.OutcomePartial})
	require.NoError(t, err)
	assert.Equal(t, 1, ended.Metrics.TestsRun)
	assert.Equal(t, 1, ended.Metrics.TestsPassed)
	assert.Equal(t, 1, ended.Metrics.BuildAttempts)

	list, err := c.ListSessions(ctx, agent.SessionFilter{ProjectID: p.ID, Outcome: agent.OutcomePartial})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClient_RetriesIdempotentCalls(t *testing.T) {
	var gets, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		if gets.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"app"}]}`))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, apiclient.WithBackoff(time.Millisecond))
	projects, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, int32(3), gets.Load())

	_, err = c.CreateProject(context.Background(), hierarchy.ProjectInput{Name: "x"})
	var apiErr *apiclient.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Equal(t, int32(1), posts.Load(), "writes are never retried")
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"internal error"}}`))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, apiclient.WithRetries(2), apiclient.WithBackoff(time.Millisecond))
	_, err := c.GetProject(context.Background(), 1)
	var apiErr *apiclient.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INTERNAL_ERROR", apiErr.Code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"VALIDATION_ERROR","message":"bad"}}`))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, apiclient.WithBackoff(time.Millisecond))
	_, err := c.QueryEvents(context.Background(), agent.EventFilter{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BackoffHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, apiclient.WithBackoff(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ListMachines(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "http://"+srv.Listener.Addr().String(), c.BaseURL())
}
