package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/HendryAvila/devlog/internal/api"
	"github.com/HendryAvila/devlog/internal/apiclient"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/resources"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlite"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, defaultProject bool) *mcpserver.MCPServer {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "devlog.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	b := storage.NewBackend(store, store, store, store)
	t.Cleanup(func() { _ = b.Close() })

	srv := httptest.NewServer(api.New(service.New(b, zap.NewNop()), zap.NewNop()))
	t.Cleanup(srv.Close)

	client := apiclient.New(srv.URL)
	var opts Options
	if defaultProject {
		p, err := client.CreateProject(context.Background(), hierarchy.ProjectInput{Name: "devlog"})
		if err != nil {
			t.Fatalf("create project: %v", err)
		}
		opts.DefaultProjectID = p.ID
	}
	return New(client, opts, zap.NewNop())
}

// rpc sends one JSON-RPC request and decodes the result member.
func rpc(t *testing.T, s *mcpserver.MCPServer, method string, params any, out any) {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp := s.HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("decode response %s: %v", raw, err)
	}
	if envelope.Error != nil {
		t.Fatalf("%s failed: %s", method, envelope.Error.Message)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		t.Fatalf("decode result %s: %v", envelope.Result, err)
	}
}

func TestNew_RegistersAllTools(t *testing.T) {
	s := newTestServer(t, false)

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	rpc(t, s, "tools/list", map[string]any{}, &result)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	want := []string{
		"agent_event_log", "agent_event_stats", "agent_events_query",
		"agent_session_end", "agent_session_start",
		"devlog_add_note", "devlog_archive", "devlog_close", "devlog_complete",
		"devlog_create", "devlog_discover_related", "devlog_get", "devlog_list",
		"devlog_search", "devlog_stats", "devlog_update",
		"project_current", "project_list", "project_switch",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v\nwant %v", names, want)
	}
}

func TestNew_RegistersPrompts(t *testing.T) {
	s := newTestServer(t, false)

	var result struct {
		Prompts []struct {
			Name string `json:"name"`
		} `json:"prompts"`
	}
	rpc(t, s, "prompts/list", map[string]any{}, &result)

	found := map[string]bool{}
	for _, p := range result.Prompts {
		found[p.Name] = true
	}
	for _, name := range []string{"devlog-start", "devlog-status"} {
		if !found[name] {
			t.Errorf("prompt %q not registered", name)
		}
	}
}

func TestToolCall_UsesDefaultProject(t *testing.T) {
	s := newTestServer(t, true)

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	rpc(t, s, "tools/call", map[string]any{
		"name":      "devlog_create",
		"arguments": map[string]any{"title": "Wire the MCP server", "type": "task"},
	}, &result)

	if result.IsError || len(result.Content) == 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.Content[0].Text, "Wire the MCP server") {
		t.Errorf("text = %q", result.Content[0].Text)
	}
}

func TestStatsResource(t *testing.T) {
	s := newTestServer(t, true)

	var result struct {
		Contents []struct {
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
			Text     string `json:"text"`
		} `json:"contents"`
	}
	rpc(t, s, "resources/read", map[string]any{"uri": resources.StatsURI}, &result)

	if len(result.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(result.Contents))
	}
	c := result.Contents[0]
	if c.MIMEType != "application/json" {
		t.Errorf("mime type = %q, text = %s", c.MIMEType, c.Text)
	}
	var doc struct {
		ProjectName string `json:"projectName"`
		Stats       struct {
			TotalEntries int `json:"totalEntries"`
		} `json:"stats"`
	}
	if err := json.Unmarshal([]byte(c.Text), &doc); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if doc.Stats.TotalEntries != 0 {
		t.Errorf("total = %d, want 0", doc.Stats.TotalEntries)
	}
}

func TestStatsResource_NoProject(t *testing.T) {
	s := newTestServer(t, false)

	var result struct {
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	}
	rpc(t, s, "resources/read", map[string]any{"uri": resources.StatsURI}, &result)
	if len(result.Contents) != 1 || !strings.Contains(result.Contents[0].Text, "no project selected") {
		t.Errorf("unexpected contents: %+v", result.Contents)
	}
}
