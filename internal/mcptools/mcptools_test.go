package mcptools

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/devlog/internal/api"
	"github.com/HendryAvila/devlog/internal/apiclient"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlite"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestClient starts a REST server over a temp SQLite database and
// returns a client for it together with one project.
func newTestClient(t *testing.T) (*apiclient.Client, *hierarchy.Project) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "devlog.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	b := storage.NewBackend(store, store, store, store)
	t.Cleanup(func() { _ = b.Close() })

	srv := httptest.NewServer(api.New(service.New(b, zap.NewNop()), zap.NewNop()))
	t.Cleanup(srv.Close)

	client := apiclient.New(srv.URL, apiclient.WithRetries(1))
	p, err := client.CreateProject(context.Background(), hierarchy.ProjectInput{Name: "devlog"})
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return client, p
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
}

func mustToolError(t *testing.T, r *mcp.CallToolResult, err error, want string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsError {
		t.Fatalf("expected tool error, got: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), want) {
		t.Errorf("error = %q, want it to contain %q", resultText(r), want)
	}
}

func hasRequired(def mcp.Tool, name string) bool {
	for _, r := range def.InputSchema.Required {
		if r == name {
			return true
		}
	}
	return false
}

// createEntry creates an entry through the create tool and returns its id.
func createEntry(t *testing.T, client API, projects *ProjectContext, args map[string]interface{}) int64 {
	t.Helper()
	r, err := NewCreateTool(client, projects).Handle(context.Background(), makeReq(args))
	mustNotError(t, r, err)
	var id int64
	text := resultText(r)
	if _, err := fmt.Sscanf(text[strings.LastIndex(text, "ID: "):], "ID: %d", &id); err != nil {
		t.Fatalf("no id in %q: %v", text, err)
	}
	return id
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	projects := NewProjectContext(0)
	var client API
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewCreateTool(client, projects).Definition(), "devlog_create", []string{"title"}},
		{NewGetTool(client, projects).Definition(), "devlog_get", []string{"id"}},
		{NewUpdateTool(client, projects).Definition(), "devlog_update", []string{"id"}},
		{NewListTool(client, projects).Definition(), "devlog_list", nil},
		{NewSearchTool(client, projects).Definition(), "devlog_search", []string{"query"}},
		{NewAddNoteTool(client, projects).Definition(), "devlog_add_note", []string{"id", "content"}},
		{NewCompleteTool(client, projects).Definition(), "devlog_complete", []string{"id"}},
		{NewCloseTool(client, projects).Definition(), "devlog_close", []string{"id"}},
		{NewArchiveTool(client, projects).Definition(), "devlog_archive", []string{"id"}},
		{NewStatsTool(client, projects).Definition(), "devlog_stats", nil},
		{NewDiscoverRelatedTool(client, projects).Definition(), "devlog_discover_related", []string{"text"}},
		{NewProjectListTool(client, projects).Definition(), "project_list", nil},
		{NewProjectCurrentTool(client, projects).Definition(), "project_current", nil},
		{NewProjectSwitchTool(client, projects).Definition(), "project_switch", nil},
		{NewSessionStartTool(client, projects).Definition(), "agent_session_start", []string{"agent_id"}},
		{NewSessionEndTool(client).Definition(), "agent_session_end", []string{"session_id", "outcome"}},
		{NewEventLogTool(client, projects).Definition(), "agent_event_log", []string{"session_id", "agent_id", "event_type"}},
		{NewEventsQueryTool(client, projects).Definition(), "agent_events_query", nil},
		{NewEventStatsTool(client, projects).Definition(), "agent_event_stats", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.def.Name != tt.name {
				t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
			}
			if tt.def.Description == "" {
				t.Error("tool should have a description")
			}
			for _, r := range tt.required {
				if !hasRequired(tt.def, r) {
					t.Errorf("%q should be required", r)
				}
			}
		})
	}
}

// ─── Devlog tools ────────────────────────────────────────────────────────────

func TestDevlogTools_NoProjectSelected(t *testing.T) {
	client, _ := newTestClient(t)
	projects := NewProjectContext(0)

	r, err := NewCreateTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"title": "Add login",
	}))
	mustToolError(t, r, err, "no project selected")
}

func TestCreateTool_RequiresTitle(t *testing.T) {
	client, p := newTestClient(t)
	r, err := NewCreateTool(client, NewProjectContext(p.ID)).Handle(context.Background(), makeReq(map[string]interface{}{
		"title": "   ",
	}))
	mustToolError(t, r, err, "'title' is required")
}

func TestCreateAndGet(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)

	id := createEntry(t, client, projects, map[string]interface{}{
		"title":               "Add rate limiting",
		"type":                "feature",
		"priority":            "high",
		"business_context":    "Protect the API",
		"acceptance_criteria": "429 on burst, header with retry time",
		"files":               "internal/api/handler.go",
	})

	r, err := NewGetTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"id": float64(id),
	}))
	mustNotError(t, r, err)
	text := resultText(r)
	for _, want := range []string{"Add rate limiting", "feature", "high", "Protect the API", "429 on burst", "internal/api/handler.go"} {
		if !strings.Contains(text, want) {
			t.Errorf("entry should contain %q, got:\n%s", want, text)
		}
	}
}

func TestGetTool_Missing(t *testing.T) {
	client, p := newTestClient(t)
	r, err := NewGetTool(client, NewProjectContext(p.ID)).Handle(context.Background(), makeReq(map[string]interface{}{
		"id": float64(999),
	}))
	mustToolError(t, r, err, "failed to")
}

func TestUpdateTool_AddsNote(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	id := createEntry(t, client, projects, map[string]interface{}{"title": "Fix flaky test"})

	r, err := NewUpdateTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"id":     float64(id),
		"status": "in-progress",
		"note":   "Reproduced under -race",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "in-progress") {
		t.Errorf("update should report the new status, got: %s", resultText(r))
	}

	r, err = NewGetTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{"id": float64(id)}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Reproduced under -race") {
		t.Errorf("note should be visible, got:\n%s", resultText(r))
	}
}

func TestListAndSearch(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	createEntry(t, client, projects, map[string]interface{}{"title": "Cache GitHub issues", "type": "feature"})
	createEntry(t, client, projects, map[string]interface{}{"title": "Fix pagination bug", "type": "bugfix"})

	r, err := NewListTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"type": "bugfix",
	}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "Fix pagination bug") || strings.Contains(text, "Cache GitHub issues") {
		t.Errorf("type filter not applied:\n%s", text)
	}

	r, err = NewSearchTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "github",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Cache GitHub issues") {
		t.Errorf("search should find the entry, got:\n%s", resultText(r))
	}

	r, err = NewSearchTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustToolError(t, r, err, "'query' is required")
}

// ─── Workflow tools ──────────────────────────────────────────────────────────

func TestWorkflowTools(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	ctx := context.Background()
	id := createEntry(t, client, projects, map[string]interface{}{"title": "Write docs"})

	r, err := NewAddNoteTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{
		"id":       float64(id),
		"content":  "Outlined the sections",
		"category": "progress",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Note added") {
		t.Errorf("unexpected note result: %s", resultText(r))
	}

	r, err = NewCompleteTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{
		"id":      float64(id),
		"summary": "Docs published",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "done") {
		t.Errorf("complete should mark the entry done, got: %s", resultText(r))
	}

	r, err = NewArchiveTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{"id": float64(id)}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "[archived]") {
		t.Errorf("archive result should flag the entry, got: %s", resultText(r))
	}

	r, err = NewArchiveTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{
		"id":      float64(id),
		"restore": true,
	}))
	mustNotError(t, r, err)
	if strings.Contains(resultText(r), "[archived]") {
		t.Errorf("restore should unarchive, got: %s", resultText(r))
	}
}

func TestCloseTool(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	id := createEntry(t, client, projects, map[string]interface{}{"title": "Spike on queues"})

	r, err := NewCloseTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"id":     float64(id),
		"reason": "Not needed",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "cancelled") {
		t.Errorf("close should cancel the entry, got: %s", resultText(r))
	}
}

func TestAddNoteTool_RequiresContent(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	id := createEntry(t, client, projects, map[string]interface{}{"title": "Anything"})

	r, err := NewAddNoteTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"id": float64(id),
	}))
	mustToolError(t, r, err, "'content' is required")
}

// ─── Insight tools ───────────────────────────────────────────────────────────

func TestStatsTool(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	createEntry(t, client, projects, map[string]interface{}{"title": "One", "type": "feature"})
	createEntry(t, client, projects, map[string]interface{}{"title": "Two", "type": "bugfix"})

	r, err := NewStatsTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"days": float64(7),
	}))
	mustNotError(t, r, err)
	text := resultText(r)
	for _, want := range []string{"**Total**: 2", "feature 1", "bugfix 1", "Last 7 days", "+2 created"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats should contain %q, got:\n%s", want, text)
		}
	}
}

func TestDiscoverRelatedTool(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	createEntry(t, client, projects, map[string]interface{}{
		"title":       "GitHub storage provider",
		"description": "Store entries as GitHub issues",
	})

	r, err := NewDiscoverRelatedTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"text": "sync entries with github issues",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "GitHub storage provider") {
		t.Errorf("related entry not found, got:\n%s", resultText(r))
	}

	r, err = NewDiscoverRelatedTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"text": "kubernetes helm chart",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No related devlog entries") {
		t.Errorf("expected no matches, got:\n%s", resultText(r))
	}
}

// ─── Project tools ───────────────────────────────────────────────────────────

func TestProjectTools(t *testing.T) {
	client, p := newTestClient(t)
	ctx := context.Background()
	other, err := client.CreateProject(ctx, hierarchy.ProjectInput{Name: "website"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	projects := NewProjectContext(p.ID)

	r, err := NewProjectListTool(client, projects).Handle(ctx, makeReq(nil))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, fmt.Sprintf("* #%d devlog", p.ID)) {
		t.Errorf("current project should be marked, got:\n%s", text)
	}
	if !strings.Contains(text, "website") {
		t.Errorf("all projects should be listed, got:\n%s", text)
	}

	r, err = NewProjectSwitchTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{"name": "WEBSITE"}))
	mustNotError(t, r, err)
	if id, name := projects.Current(); id != other.ID || name != "website" {
		t.Errorf("current = (%d, %q), want (%d, website)", id, name, other.ID)
	}

	r, err = NewProjectCurrentTool(client, projects).Handle(ctx, makeReq(nil))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "website") {
		t.Errorf("project_current = %s", resultText(r))
	}

	r, err = NewProjectSwitchTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{"project_id": float64(p.ID)}))
	mustNotError(t, r, err)
	if id, _ := projects.Current(); id != p.ID {
		t.Errorf("current = %d, want %d", id, p.ID)
	}

	r, err = NewProjectSwitchTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{"name": "nope"}))
	mustToolError(t, r, err, "no project named")
}

func TestProjectCurrent_NoneSelected(t *testing.T) {
	client, _ := newTestClient(t)
	r, err := NewProjectCurrentTool(client, NewProjectContext(0)).Handle(context.Background(), makeReq(nil))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No project selected") {
		t.Errorf("got: %s", resultText(r))
	}
}

func TestProjectOverrideArgument(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(0)

	r, err := NewCreateTool(client, projects).Handle(context.Background(), makeReq(map[string]interface{}{
		"title":      "Scoped by argument",
		"project_id": float64(p.ID),
	}))
	mustNotError(t, r, err)
}

// ─── Agent tools ─────────────────────────────────────────────────────────────

func TestAgentSessionFlow(t *testing.T) {
	client, p := newTestClient(t)
	projects := NewProjectContext(p.ID)
	ctx := context.Background()

	r, err := NewSessionStartTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{
		"agent_id":   "claude-code",
		"objective":  "Fix the build",
		"session_id": "s-1",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Session ID: s-1") {
		t.Fatalf("unexpected start result: %s", resultText(r))
	}

	logTool := NewEventLogTool(client, projects)
	for _, args := range []map[string]interface{}{
		{"event_type": "file_write", "file_path": "main.go", "lines_changed": float64(12)},
		{"event_type": "command_execute", "data": `{"command": "go build ./..."}`, "token_count": float64(40)},
		{"event_type": "error_encountered", "severity": "error", "tags": "build, compile"},
	} {
		args["session_id"] = "s-1"
		args["agent_id"] = "claude-code"
		r, err := logTool.Handle(ctx, makeReq(args))
		mustNotError(t, r, err)
	}

	r, err = NewEventsQueryTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{
		"session_id":  "s-1",
		"event_types": "file_write,error_encountered",
	}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "2 events") || !strings.Contains(text, "file=main.go") {
		t.Errorf("unexpected query result:\n%s", text)
	}

	r, err = NewEventStatsTool(client, projects).Handle(ctx, makeReq(map[string]interface{}{
		"session_id": "s-1",
		"interval":   "hour",
	}))
	mustNotError(t, r, err)
	text = resultText(r)
	for _, want := range []string{"**Total**: 3", "**Tokens**: 40", "error 1", "Per hour"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats should contain %q, got:\n%s", want, text)
		}
	}

	r, err = NewSessionEndTool(client).Handle(ctx, makeReq(map[string]interface{}{
		"session_id":    "s-1",
		"outcome":       "success",
		"quality_score": 0.8,
	}))
	mustNotError(t, r, err)
	text = resultText(r)
	for _, want := range []string{"(success)", "Events: 3", "Files modified: 1", "Commands: 1", "Errors: 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("end result should contain %q, got:\n%s", want, text)
		}
	}

	r, err = NewSessionEndTool(client).Handle(ctx, makeReq(map[string]interface{}{
		"session_id": "s-1",
		"outcome":    "success",
	}))
	mustToolError(t, r, err, "failed to end agent session")
}

func TestEventLogTool_Validation(t *testing.T) {
	client, p := newTestClient(t)
	tool := NewEventLogTool(client, NewProjectContext(p.ID))
	ctx := context.Background()

	r, err := tool.Handle(ctx, makeReq(map[string]interface{}{"session_id": "s", "agent_id": "a"}))
	mustToolError(t, r, err, "are required")

	r, err = tool.Handle(ctx, makeReq(map[string]interface{}{
		"session_id": "s", "agent_id": "a", "event_type": "file_write", "data": "[1, 2]",
	}))
	mustToolError(t, r, err, "'data' must be a JSON object")

	r, err = tool.Handle(ctx, makeReq(map[string]interface{}{
		"session_id": "s", "agent_id": "a", "event_type": "teleport",
	}))
	mustToolError(t, r, err, "failed to log agent event")
}

func TestSessionStart_RequiresAgent(t *testing.T) {
	client, p := newTestClient(t)
	r, err := NewSessionStartTool(client, NewProjectContext(p.ID)).Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustToolError(t, r, err, "'agent_id' is required")
}

func TestListArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want []string
	}{
		{"comma string", map[string]interface{}{"k": "a, b,,c "}, []string{"a", "b", "c"}},
		{"array", map[string]interface{}{"k": []any{"x", " ", "y"}}, []string{"x", "y"}},
		{"missing", map[string]interface{}{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := listArg(makeReq(tt.args), "k")
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("listArg = %v, want %v", got, tt.want)
			}
		})
	}
}
