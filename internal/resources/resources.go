// Package resources implements MCP resource handlers for the devlog server.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (devlog://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsURI addresses the current project's statistics.
const StatsURI = "devlog://project/stats"

// StatsSource loads devlog statistics for a project.
type StatsSource interface {
	DevlogStats(ctx context.Context, projectID int64, f devlog.Filter) (*devlog.Stats, error)
}

// CurrentProject reports the project resources describe.
type CurrentProject interface {
	Current() (int64, string)
}

// Handler manages devlog resource endpoints.
type Handler struct {
	stats    StatsSource
	projects CurrentProject
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(stats StatsSource, projects CurrentProject) *Handler {
	return &Handler{stats: stats, projects: projects}
}

// StatsResource returns the MCP resource definition for project stats.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		StatsURI,
		"Devlog Project Stats",
		mcp.WithResourceDescription("Entry counts by status, type and priority for the current project"),
		mcp.WithMIMEType("application/json"),
	)
}

// statsDocument is the JSON body of the stats resource.
type statsDocument struct {
	ProjectID   int64         `json:"projectId"`
	ProjectName string        `json:"projectName,omitempty"`
	Stats       *devlog.Stats `json:"stats"`
}

// HandleStats returns the current project's stats as JSON.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, name := h.projects.Current()
	if id <= 0 {
		return errorResource(req.Params.URI, "no project selected"), nil
	}

	stats, err := h.stats.DevlogStats(ctx, id, devlog.Filter{})
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	data, err := json.MarshalIndent(statsDocument{ProjectID: id, ProjectName: name, Stats: stats}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling stats: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
