// Package mcptools provides the MCP tool handlers of the devlog server.
//
// Each tool follows the same shape:
//   - a struct holding its dependencies, injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the request and returns a result
//
// Tools do not touch storage. They call the REST API through an API
// client, so the MCP process can run next to any devlog server.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
)

// API is the subset of the REST client the tools call.
type API interface {
	CreateDevlog(ctx context.Context, projectID int64, in service.CreateInput) (*devlog.Entry, error)
	GetDevlog(ctx context.Context, projectID, id int64) (*devlog.Entry, error)
	UpdateDevlog(ctx context.Context, projectID, id int64, in service.UpdateInput) (*devlog.Entry, error)
	ListDevlogs(ctx context.Context, projectID int64, f devlog.Filter, p devlog.Pagination) (devlog.Page[devlog.Entry], error)
	SearchDevlogs(ctx context.Context, projectID int64, query string, f devlog.Filter, p devlog.Pagination) (devlog.Page[devlog.Entry], error)
	AddNote(ctx context.Context, projectID, id int64, in service.NoteInput) (*devlog.Note, error)
	CompleteDevlog(ctx context.Context, projectID, id int64, summary string) (*devlog.Entry, error)
	CloseDevlog(ctx context.Context, projectID, id int64, reason string) (*devlog.Entry, error)
	ArchiveDevlog(ctx context.Context, projectID, id int64) (*devlog.Entry, error)
	UnarchiveDevlog(ctx context.Context, projectID, id int64) (*devlog.Entry, error)
	DevlogStats(ctx context.Context, projectID int64, f devlog.Filter) (*devlog.Stats, error)
	DevlogTimeSeries(ctx context.Context, projectID int64, days int) (*devlog.TimeSeriesStats, error)
	RelatedDevlogs(ctx context.Context, projectID int64, text string, limit int) ([]service.RelatedEntry, error)

	ListProjects(ctx context.Context) ([]hierarchy.Project, error)
	GetProject(ctx context.Context, id int64) (*hierarchy.Project, error)

	StartSession(ctx context.Context, in agent.StartInput) (*agent.Session, error)
	EndSession(ctx context.Context, id string, in agent.EndInput) (*agent.Session, error)
	IngestEvent(ctx context.Context, e agent.Event) (*agent.Event, error)
	QueryEvents(ctx context.Context, f agent.EventFilter) ([]agent.Event, error)
	EventStats(ctx context.Context, f agent.EventFilter) (*agent.EventStats, error)
	EventTimeSeries(ctx context.Context, f agent.EventFilter, interval agent.Interval) ([]agent.TimeBucket, error)
}

// ─── Project context ─────────────────────────────────────────────────────────

// ProjectContext holds the project the tools act on when a call does
// not name one. Safe for concurrent use.
type ProjectContext struct {
	mu   sync.RWMutex
	id   int64
	name string
}

// NewProjectContext starts with the given default project (0 for none).
func NewProjectContext(defaultID int64) *ProjectContext {
	return &ProjectContext{id: defaultID}
}

// Current returns the current project id and its name when known.
func (p *ProjectContext) Current() (int64, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id, p.name
}

// Switch makes the given project current.
func (p *ProjectContext) Switch(id int64, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id, p.name = id, name
}

// resolve returns the project_id argument when given, else the current
// project.
func (p *ProjectContext) resolve(req mcp.CallToolRequest) (int64, error) {
	if id := int64Arg(req, "project_id", 0); id > 0 {
		return id, nil
	}
	id, _ := p.Current()
	if id <= 0 {
		return 0, fmt.Errorf("no project selected: pass 'project_id' or call project_switch first")
	}
	return id, nil
}

// withProjectID adds the optional project override every devlog tool
// accepts.
func withProjectID() mcp.ToolOption {
	return mcp.WithNumber("project_id",
		mcp.Description("Project ID (default: the current project, see project_current)"),
	)
}

// ─── Argument helpers ────────────────────────────────────────────────────────

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
// Numeric strings are accepted too.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	return int(int64Arg(req, key, int64(defaultVal)))
}

func int64Arg(req mcp.CallToolRequest, key string, defaultVal int64) int64 {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg splits a comma-separated string argument. A JSON array of
// strings is accepted too.
func listArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case string:
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func enumList[T ~string](values []string) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = T(v)
	}
	return out
}

// optString returns a pointer to the argument when the caller sent it.
func optString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// requireID reads the required entry id argument.
func requireID(req mcp.CallToolRequest) (int64, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return 0, fmt.Errorf("'id' is required and must be a positive number")
	}
	return id, nil
}

func idArg() mcp.ToolOption {
	return mcp.WithNumber("id", mcp.Required(), mcp.Description("Devlog entry ID"))
}

// ─── Formatting ──────────────────────────────────────────────────────────────

const timeFormat = "2006-01-02 15:04"

// summaryLine renders an entry as one list line.
func summaryLine(e *devlog.Entry) string {
	line := fmt.Sprintf("#%d [%s] %s (%s, %s, %s)", e.ID, e.Key, e.Title, e.Type, e.Status, e.Priority)
	if e.Archived {
		line += " [archived]"
	}
	return line
}

// formatEntry renders an entry with its context and latest notes.
func formatEntry(e *devlog.Entry, maxNotes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## #%d %s\n", e.ID, e.Title)
	fmt.Fprintf(&b, "**Key**: %s | **Type**: %s | **Status**: %s | **Priority**: %s\n", e.Key, e.Type, e.Status, e.Priority)
	if e.Assignee != "" {
		fmt.Fprintf(&b, "**Assignee**: %s\n", e.Assignee)
	}
	fmt.Fprintf(&b, "**Created**: %s | **Updated**: %s", e.CreatedAt.Format(timeFormat), e.UpdatedAt.Format(timeFormat))
	if e.ClosedAt != nil {
		fmt.Fprintf(&b, " | **Closed**: %s", e.ClosedAt.Format(timeFormat))
	}
	b.WriteString("\n")
	if e.Archived {
		b.WriteString("**Archived**\n")
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Description)
	}
	if e.Context.BusinessContext != "" {
		fmt.Fprintf(&b, "\n### Business context\n%s\n", e.Context.BusinessContext)
	}
	if e.Context.TechnicalContext != "" {
		fmt.Fprintf(&b, "\n### Technical context\n%s\n", e.Context.TechnicalContext)
	}
	if len(e.Context.AcceptanceCriteria) > 0 {
		b.WriteString("\n### Acceptance criteria\n")
		for _, c := range e.Context.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(e.Files) > 0 {
		fmt.Fprintf(&b, "\n**Files**: %s\n", strings.Join(e.Files, ", "))
	}
	if e.AIContext.CurrentSummary != "" || len(e.AIContext.SuggestedNextSteps) > 0 {
		b.WriteString("\n### AI context\n")
		if e.AIContext.CurrentSummary != "" {
			fmt.Fprintf(&b, "%s\n", e.AIContext.CurrentSummary)
		}
		for _, s := range e.AIContext.SuggestedNextSteps {
			fmt.Fprintf(&b, "- next: %s\n", s)
		}
	}
	if len(e.Notes) > 0 && maxNotes != 0 {
		b.WriteString("\n### Notes\n")
		for i, n := range e.Notes {
			if maxNotes > 0 && i >= maxNotes {
				fmt.Fprintf(&b, "... %d older notes\n", len(e.Notes)-maxNotes)
				break
			}
			fmt.Fprintf(&b, "- [%s] %s: %s\n", n.Timestamp.Format(timeFormat), n.Category, n.Content)
		}
	}
	return b.String()
}

func formatPage(header string, page devlog.Page[devlog.Entry]) string {
	if len(page.Items) == 0 {
		return header + ": no entries found."
	}
	var b strings.Builder
	m := page.Pagination
	fmt.Fprintf(&b, "%s: %d of %d (page %d/%d)\n\n", header, len(page.Items), m.Total, m.Page, max(m.TotalPages, 1))
	for i := range page.Items {
		b.WriteString(summaryLine(&page.Items[i]))
		b.WriteString("\n")
	}
	if m.HasNextPage {
		fmt.Fprintf(&b, "\nMore results: call again with page=%d.", m.Page+1)
	}
	return b.String()
}

// jsonText renders v as indented JSON for results the agent may parse.
func jsonText(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// failed builds the error result for an API failure.
func failed(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}
