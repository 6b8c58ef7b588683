package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/HendryAvila/devlog/internal/api"
	"github.com/HendryAvila/devlog/internal/hierarchy"
)

// Health reports the server's status and version.
func (c *Client) Health(ctx context.Context) (*api.HealthStatus, error) {
	var out api.HealthStatus
	if _, err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Projects ────────────────────────────────────────────────────────────────

// ListProjects returns every project.
func (c *Client) ListProjects(ctx context.Context) ([]hierarchy.Project, error) {
	var out []hierarchy.Project
	_, err := c.do(ctx, http.MethodGet, "/api/projects", nil, nil, &out)
	return out, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, in hierarchy.ProjectInput) (*hierarchy.Project, error) {
	return c.project(ctx, http.MethodPost, "/api/projects", in)
}

// GetProject returns a project by id.
func (c *Client) GetProject(ctx context.Context, id int64) (*hierarchy.Project, error) {
	return c.project(ctx, http.MethodGet, fmt.Sprintf("/api/projects/%d", id), nil)
}

// UpdateProject replaces a project's writable fields.
func (c *Client) UpdateProject(ctx context.Context, id int64, in hierarchy.ProjectInput) (*hierarchy.Project, error) {
	return c.project(ctx, http.MethodPut, fmt.Sprintf("/api/projects/%d", id), in)
}

// DeleteProject removes a project and everything under it.
func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/projects/%d", id), nil, nil, nil)
	return err
}

func (c *Client) project(ctx context.Context, method, path string, body any) (*hierarchy.Project, error) {
	var out hierarchy.Project
	if _, err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProjectHierarchy returns a project's machines, workspaces and chat
// session counts.
func (c *Client) ProjectHierarchy(ctx context.Context, id int64) (*hierarchy.ProjectHierarchy, error) {
	var out hierarchy.ProjectHierarchy
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/projects/%d/hierarchy", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Machines and workspaces ─────────────────────────────────────────────────

// ListMachines returns every machine.
func (c *Client) ListMachines(ctx context.Context) ([]hierarchy.Machine, error) {
	var out []hierarchy.Machine
	_, err := c.do(ctx, http.MethodGet, "/api/machines", nil, nil, &out)
	return out, err
}

// UpsertMachine registers or refreshes a machine.
func (c *Client) UpsertMachine(ctx context.Context, in hierarchy.MachineInput) (*hierarchy.Machine, error) {
	var out hierarchy.Machine
	if _, err := c.do(ctx, http.MethodPost, "/api/machines", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMachine returns a machine by row id.
func (c *Client) GetMachine(ctx context.Context, id int64) (*hierarchy.Machine, error) {
	var out hierarchy.Machine
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/machines/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertWorkspace registers or refreshes a workspace.
func (c *Client) UpsertWorkspace(ctx context.Context, in hierarchy.WorkspaceInput) (*hierarchy.Workspace, error) {
	var out hierarchy.Workspace
	if _, err := c.do(ctx, http.MethodPost, "/api/workspaces", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveWorkspace returns a workspace with its project and machine.
func (c *Client) ResolveWorkspace(ctx context.Context, workspaceID string) (*hierarchy.WorkspaceContext, error) {
	var out hierarchy.WorkspaceContext
	if _, err := c.do(ctx, http.MethodGet, "/api/workspaces/"+url.PathEscape(workspaceID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Chat sessions ───────────────────────────────────────────────────────────

// ListChatSessions returns the newest chat sessions of a workspace.
func (c *Client) ListChatSessions(ctx context.Context, workspaceID string, limit int) ([]hierarchy.ChatSession, error) {
	q := url.Values{}
	setInt(q, "limit", limit)
	var out []hierarchy.ChatSession
	_, err := c.do(ctx, http.MethodGet, "/api/workspaces/"+url.PathEscape(workspaceID)+"/chat-sessions", q, nil, &out)
	return out, err
}

// CreateChatSession opens a chat session.
func (c *Client) CreateChatSession(ctx context.Context, in hierarchy.ChatSessionInput) (*hierarchy.ChatSession, error) {
	return c.chat(ctx, http.MethodPost, "/api/chat-sessions", in)
}

// GetChatSession returns a chat session by session id.
func (c *Client) GetChatSession(ctx context.Context, sessionID string) (*hierarchy.ChatSession, error) {
	return c.chat(ctx, http.MethodGet, "/api/chat-sessions/"+url.PathEscape(sessionID), nil)
}

// EndChatSession closes a chat session with its final counters.
func (c *Client) EndChatSession(ctx context.Context, sessionID string, in hierarchy.ChatSessionEnd) (*hierarchy.ChatSession, error) {
	return c.chat(ctx, http.MethodPost, "/api/chat-sessions/"+url.PathEscape(sessionID)+"/end", in)
}

func (c *Client) chat(ctx context.Context, method, path string, body any) (*hierarchy.ChatSession, error) {
	var out hierarchy.ChatSession
	if _, err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
