package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── StatsTool ───────────────────────────────────────────────────────────────

// StatsTool handles the devlog_stats MCP tool.
type StatsTool struct {
	api      API
	projects *ProjectContext
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(api API, projects *ProjectContext) *StatsTool {
	return &StatsTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_stats",
		mcp.WithDescription("Show the project's devlog overview: counts by status, type and priority, and optionally a daily history."),
		mcp.WithNumber("days", mcp.Description("Include created/closed counts for the last N days (default: 0, none)")),
		withProjectID(),
	)
}

// Handle processes the devlog_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := t.api.DevlogStats(ctx, projectID, devlog.Filter{})
	if err != nil {
		return failed("load devlog stats", err), nil
	}

	var b strings.Builder
	b.WriteString(FormatStats(stats))

	if days := intArg(req, "days", 0); days > 0 {
		ts, err := t.api.DevlogTimeSeries(ctx, projectID, days)
		if err != nil {
			return failed("load devlog history", err), nil
		}
		fmt.Fprintf(&b, "\n## Last %d days (%s to %s)\n", days, ts.DateRange.From, ts.DateRange.To)
		for _, p := range ts.DataPoints {
			if p.DailyCreated == 0 && p.DailyClosed == 0 {
				continue
			}
			fmt.Fprintf(&b, "- %s: +%d created, %d closed, %d open\n", p.Date, p.DailyCreated, p.DailyClosed, p.Open)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// FormatStats renders the overview counters as markdown.
func FormatStats(s *devlog.Stats) string {
	var b strings.Builder
	b.WriteString("## Devlog overview\n")
	fmt.Fprintf(&b, "**Total**: %d | **Open**: %d | **Closed**: %d\n", s.TotalEntries, s.OpenEntries, s.ClosedEntries)
	if s.AverageCompletionTime != nil {
		fmt.Fprintf(&b, "**Average completion**: %.1f hours\n", *s.AverageCompletionTime)
	}

	b.WriteString("\n**By status**: ")
	writeCounts(&b, devlog.AllStatuses, s.ByStatus)
	b.WriteString("\n**By type**: ")
	writeCounts(&b, devlog.AllTypes, s.ByType)
	b.WriteString("\n**By priority**: ")
	writeCounts(&b, devlog.AllPriorities, s.ByPriority)
	b.WriteString("\n")
	return b.String()
}

// writeCounts writes the non-zero counts in enum order.
func writeCounts[T ~string](b *strings.Builder, order []T, counts map[T]int) {
	var parts []string
	for _, k := range order {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", k, n))
		}
	}
	if len(parts) == 0 {
		b.WriteString("none")
		return
	}
	b.WriteString(strings.Join(parts, ", "))
}

// ─── DiscoverRelatedTool ─────────────────────────────────────────────────────

// DiscoverRelatedTool handles the devlog_discover_related MCP tool.
type DiscoverRelatedTool struct {
	api      API
	projects *ProjectContext
}

// NewDiscoverRelatedTool creates a DiscoverRelatedTool.
func NewDiscoverRelatedTool(api API, projects *ProjectContext) *DiscoverRelatedTool {
	return &DiscoverRelatedTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_discover_related.
func (t *DiscoverRelatedTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_discover_related",
		mcp.WithDescription(
			"Find existing devlog entries related to a piece of work, including archived ones. "+
				"Call this BEFORE devlog_create to avoid duplicates and to reuse earlier decisions.",
		),
		mcp.WithString("text", mcp.Required(), mcp.Description("Description of the work, e.g. the title and a sentence of context")),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 10)")),
		withProjectID(),
	)
}

// Handle processes the devlog_discover_related tool call.
func (t *DiscoverRelatedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	related, err := t.api.RelatedDevlogs(ctx, projectID, text, intArg(req, "limit", service.DefaultRelatedLimit))
	if err != nil {
		return failed("discover related entries", err), nil
	}
	if len(related) == 0 {
		return mcp.NewToolResultText("No related devlog entries found. It is safe to create a new one."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d related entries:\n\n", len(related))
	for _, r := range related {
		fmt.Fprintf(&b, "%s\n   matched: %s\n", summaryLine(r.Entry), strings.Join(r.MatchedTerms, ", "))
	}
	b.WriteString("\nReview these with devlog_get before creating a new entry.")
	return mcp.NewToolResultText(b.String()), nil
}
