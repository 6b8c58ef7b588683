package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── SessionStartTool ────────────────────────────────────────────────────────

// SessionStartTool handles the agent_session_start MCP tool.
type SessionStartTool struct {
	api      API
	projects *ProjectContext
}

// NewSessionStartTool creates a SessionStartTool.
func NewSessionStartTool(api API, projects *ProjectContext) *SessionStartTool {
	return &SessionStartTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for agent_session_start.
func (t *SessionStartTool) Definition() mcp.Tool {
	return mcp.NewTool("agent_session_start",
		mcp.WithDescription(
			"Start an agent session so the events you log are grouped and measured. "+
				"Call this at the beginning of a task and keep the returned session ID.",
		),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent identifier (e.g. claude-code, copilot)")),
		mcp.WithString("agent_version", mcp.Description("Agent version")),
		mcp.WithString("objective", mcp.Description("What the session is meant to achieve")),
		mcp.WithNumber("devlog_id", mcp.Description("Devlog entry the session works on")),
		mcp.WithString("branch", mcp.Description("Git branch")),
		mcp.WithString("initial_commit", mcp.Description("Commit the session starts from")),
		mcp.WithString("session_id", mcp.Description("Client-chosen session ID (default: generated)")),
		withProjectID(),
	)
}

// Handle processes the agent_session_start tool call.
func (t *SessionStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if strings.TrimSpace(agentID) == "" {
		return mcp.NewToolResultError("'agent_id' is required"), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := agent.StartInput{
		ID:           req.GetString("session_id", ""),
		AgentID:      agentID,
		AgentVersion: req.GetString("agent_version", ""),
		ProjectID:    projectID,
		Context: agent.SessionContext{
			Objective:     req.GetString("objective", ""),
			Branch:        req.GetString("branch", ""),
			InitialCommit: req.GetString("initial_commit", ""),
			TriggeredBy:   "mcp",
		},
	}
	if id := int64Arg(req, "devlog_id", 0); id > 0 {
		in.Context.DevlogID = &id
	}
	s, err := t.api.StartSession(ctx, in)
	if err != nil {
		return failed("start agent session", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Agent session started.\nSession ID: %s\nPass it as session_id to agent_event_log and agent_session_end.", s.ID)), nil
}

// ─── SessionEndTool ──────────────────────────────────────────────────────────

// SessionEndTool handles the agent_session_end MCP tool.
type SessionEndTool struct {
	api API
}

// NewSessionEndTool creates a SessionEndTool.
func NewSessionEndTool(api API) *SessionEndTool {
	return &SessionEndTool{api: api}
}

// Definition returns the MCP tool definition for agent_session_end.
func (t *SessionEndTool) Definition() mcp.Tool {
	return mcp.NewTool("agent_session_end",
		mcp.WithDescription("End an agent session with its outcome. Duration and metrics are computed by the server."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID from agent_session_start")),
		mcp.WithString("outcome",
			mcp.Required(),
			mcp.Description("How the session went"),
			mcp.Enum("success", "partial", "failure", "abandoned"),
		),
		mcp.WithNumber("quality_score", mcp.Description("Self-assessed quality from 0 to 1")),
		mcp.WithString("final_commit", mcp.Description("Last commit of the session")),
	)
}

// Handle processes the agent_session_end tool call.
func (t *SessionEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	in := agent.EndInput{
		Outcome:     agent.Outcome(req.GetString("outcome", "")),
		FinalCommit: req.GetString("final_commit", ""),
	}
	if v, ok := req.GetArguments()["quality_score"].(float64); ok {
		in.QualityScore = &v
	}

	s, err := t.api.EndSession(ctx, id, in)
	if err != nil {
		return failed("end agent session", err), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Agent session %s ended (%s)", s.ID, s.Outcome)
	if s.Duration != nil {
		fmt.Fprintf(&b, " after %s", (time.Duration(*s.Duration) * time.Second).String())
	}
	m := s.Metrics
	fmt.Fprintf(&b, ".\nEvents: %d | Files modified: %d | Commands: %d | Errors: %d | Tokens: %d",
		m.EventsCount, m.FilesModified, m.CommandsExecuted, m.ErrorsEncountered, m.TokensUsed)
	return mcp.NewToolResultText(b.String()), nil
}

// ─── EventLogTool ────────────────────────────────────────────────────────────

// EventLogTool handles the agent_event_log MCP tool.
type EventLogTool struct {
	api      API
	projects *ProjectContext
}

// NewEventLogTool creates an EventLogTool.
func NewEventLogTool(api API, projects *ProjectContext) *EventLogTool {
	return &EventLogTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for agent_event_log.
func (t *EventLogTool) Definition() mcp.Tool {
	types := make([]string, len(agent.AllEventTypes))
	for i, et := range agent.AllEventTypes {
		types[i] = string(et)
	}
	return mcp.NewTool("agent_event_log",
		mcp.WithDescription("Record one agent event (file write, command, test run, error...) in a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID from agent_session_start")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent identifier")),
		mcp.WithString("event_type", mcp.Required(), mcp.Description("Event type"), mcp.Enum(types...)),
		mcp.WithString("severity",
			mcp.Description("Severity (default: info)"),
			mcp.Enum("debug", "info", "warning", "error", "critical"),
		),
		mcp.WithString("file_path", mcp.Description("File the event touched")),
		mcp.WithNumber("devlog_id", mcp.Description("Devlog entry the event belongs to")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithString("data", mcp.Description(`Event payload as a JSON object, e.g. {"command": "go test ./...", "passed": true}`)),
		mcp.WithNumber("token_count", mcp.Description("Tokens consumed")),
		mcp.WithNumber("duration_ms", mcp.Description("Duration in milliseconds")),
		mcp.WithNumber("lines_changed", mcp.Description("Lines changed, for file events")),
		withProjectID(),
	)
}

// Handle processes the agent_event_log tool call.
func (t *EventLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	agentID := req.GetString("agent_id", "")
	eventType := req.GetString("event_type", "")
	if sessionID == "" || agentID == "" || eventType == "" {
		return mcp.NewToolResultError("'session_id', 'agent_id' and 'event_type' are required"), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e := agent.Event{
		Type:      agent.EventType(eventType),
		AgentID:   agentID,
		SessionID: sessionID,
		ProjectID: projectID,
		Severity:  agent.Severity(req.GetString("severity", "")),
		Context:   agent.EventContext{FilePath: req.GetString("file_path", "")},
		Tags:      listArg(req, "tags"),
	}
	if id := int64Arg(req, "devlog_id", 0); id > 0 {
		e.Context.DevlogID = &id
	}
	if raw := strings.TrimSpace(req.GetString("data", "")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Data); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("'data' must be a JSON object: %v", err)), nil
		}
	}
	metrics := agent.EventMetrics{
		TokenCount:   intArg(req, "token_count", 0),
		DurationMs:   int64Arg(req, "duration_ms", 0),
		LinesChanged: intArg(req, "lines_changed", 0),
	}
	if metrics != (agent.EventMetrics{}) {
		e.Metrics = &metrics
	}

	out, err := t.api.IngestEvent(ctx, e)
	if err != nil {
		return failed("log agent event", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Event logged: %s (%s)\nEvent ID: %s", out.Type, out.Severity, out.ID)), nil
}

// ─── EventsQueryTool ─────────────────────────────────────────────────────────

// EventsQueryTool handles the agent_events_query MCP tool.
type EventsQueryTool struct {
	api      API
	projects *ProjectContext
}

// NewEventsQueryTool creates an EventsQueryTool.
func NewEventsQueryTool(api API, projects *ProjectContext) *EventsQueryTool {
	return &EventsQueryTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for agent_events_query.
func (t *EventsQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("agent_events_query",
		mcp.WithDescription("List recorded agent events, newest first. Filter by session, agent, type or severity."),
		mcp.WithString("session_id", mcp.Description("Only events of this session")),
		mcp.WithString("agent_id", mcp.Description("Only events of this agent")),
		mcp.WithString("event_types", mcp.Description("Comma-separated event types")),
		mcp.WithString("severity", mcp.Description("Comma-separated severities")),
		mcp.WithNumber("since_hours", mcp.Description("Only events from the last N hours")),
		mcp.WithNumber("limit", mcp.Description("Max events (default: 20, max: 1000)")),
		withProjectID(),
	)
}

// Handle processes the agent_events_query tool call.
func (t *EventsQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f, err := eventFilterArgs(req, t.projects)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f.Limit = intArg(req, "limit", 20)

	events, err := t.api.QueryEvents(ctx, f)
	if err != nil {
		return failed("query agent events", err), nil
	}
	if len(events) == 0 {
		return mcp.NewToolResultText("No agent events found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d events:\n\n", len(events))
	for _, e := range events {
		fmt.Fprintf(&b, "- %s %s [%s] session=%s agent=%s", e.Timestamp.Format(time.DateTime), e.Type, e.Severity, e.SessionID, e.AgentID)
		if e.Context.FilePath != "" {
			fmt.Fprintf(&b, " file=%s", e.Context.FilePath)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── EventStatsTool ──────────────────────────────────────────────────────────

// EventStatsTool handles the agent_event_stats MCP tool.
type EventStatsTool struct {
	api      API
	projects *ProjectContext
}

// NewEventStatsTool creates an EventStatsTool.
func NewEventStatsTool(api API, projects *ProjectContext) *EventStatsTool {
	return &EventStatsTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for agent_event_stats.
func (t *EventStatsTool) Definition() mcp.Tool {
	return mcp.NewTool("agent_event_stats",
		mcp.WithDescription("Aggregate agent events: counts by type and severity, tokens, error rate, and optional time buckets."),
		mcp.WithString("session_id", mcp.Description("Only events of this session")),
		mcp.WithString("agent_id", mcp.Description("Only events of this agent")),
		mcp.WithNumber("since_hours", mcp.Description("Only events from the last N hours")),
		mcp.WithString("interval",
			mcp.Description("Also group events per interval"),
			mcp.Enum("minute", "hour", "day"),
		),
		withProjectID(),
	)
}

// Handle processes the agent_event_stats tool call.
func (t *EventStatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f, err := eventFilterArgs(req, t.projects)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := t.api.EventStats(ctx, f)
	if err != nil {
		return failed("load agent event stats", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Agent events\n**Total**: %d | **Tokens**: %d | **Error rate**: %.1f%%\n",
		stats.TotalEvents, stats.TotalTokens, stats.ErrorRate*100)
	b.WriteString("\n**By type**: ")
	writeCounts(&b, agent.AllEventTypes, stats.ByType)
	b.WriteString("\n**By severity**: ")
	writeCounts(&b, agent.AllSeverities, stats.BySeverity)
	b.WriteString("\n")

	if iv := req.GetString("interval", ""); iv != "" {
		buckets, err := t.api.EventTimeSeries(ctx, f, agent.Interval(iv))
		if err != nil {
			return failed("load agent event buckets", err), nil
		}
		fmt.Fprintf(&b, "\n## Per %s\n", iv)
		for _, bk := range buckets {
			fmt.Fprintf(&b, "- %s: %d events, %d errors, %d tokens\n", bk.Bucket.Format(time.DateTime), bk.EventCount, bk.ErrorCount, bk.TokenCount)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// eventFilterArgs reads the shared event filter arguments. Events are
// scoped to the resolved project.
func eventFilterArgs(req mcp.CallToolRequest, projects *ProjectContext) (agent.EventFilter, error) {
	projectID, err := projects.resolve(req)
	if err != nil {
		return agent.EventFilter{}, err
	}
	f := agent.EventFilter{
		SessionID:  req.GetString("session_id", ""),
		ProjectID:  projectID,
		AgentID:    req.GetString("agent_id", ""),
		EventTypes: enumList[agent.EventType](listArg(req, "event_types")),
		Severity:   enumList[agent.Severity](listArg(req, "severity")),
	}
	if hours := intArg(req, "since_hours", 0); hours > 0 {
		from := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		f.From = &from
	}
	return f, nil
}
