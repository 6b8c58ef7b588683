package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HierarchyService manages projects, machines, workspaces and chat
// sessions.
type HierarchyService struct {
	store  storage.HierarchyStore
	logger *zap.Logger
	now    func() time.Time
}

// ─── Projects ────────────────────────────────────────────────────────────────

// CreateProject stores a new project. Names are unique.
func (s *HierarchyService) CreateProject(ctx context.Context, in hierarchy.ProjectInput) (*hierarchy.Project, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	now := s.now()
	p := &hierarchy.Project{CreatedAt: now, UpdatedAt: now}
	applyProject(p, in)
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("project created", zap.Int64("id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// UpdateProject replaces the writable fields of a project.
func (s *HierarchyService) UpdateProject(ctx context.Context, id int64, in hierarchy.ProjectInput) (*hierarchy.Project, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	applyProject(p, in)
	p.UpdatedAt = s.now()
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// applyProject copies the input onto p and derives the repository
// owner and name from the URL. The input has been validated.
func applyProject(p *hierarchy.Project, in hierarchy.ProjectInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.RepoURL = strings.TrimSpace(in.RepoURL)
	p.RepoOwner, p.RepoName, p.FullName = "", "", ""
	if p.RepoURL != "" {
		owner, name, _ := hierarchy.ParseRepoURL(p.RepoURL)
		p.RepoOwner, p.RepoName, p.FullName = owner, name, owner+"/"+name
	}
}

// GetProject returns a project by id.
func (s *HierarchyService) GetProject(ctx context.Context, id int64) (*hierarchy.Project, error) {
	return s.store.GetProject(ctx, id)
}

// GetProjectByName returns a project by its unique name.
func (s *HierarchyService) GetProjectByName(ctx context.Context, name string) (*hierarchy.Project, error) {
	return s.store.GetProjectByName(ctx, strings.TrimSpace(name))
}

// ListProjects returns every project ordered by name.
func (s *HierarchyService) ListProjects(ctx context.Context) ([]hierarchy.Project, error) {
	return s.store.ListProjects(ctx)
}

// DeleteProject removes a project and everything under it.
func (s *HierarchyService) DeleteProject(ctx context.Context, id int64) error {
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.logger.Info("project deleted", zap.Int64("id", id))
	return nil
}

// EnsureProject returns the project named name, creating it when it does
// not exist yet.
func (s *HierarchyService) EnsureProject(ctx context.Context, in hierarchy.ProjectInput) (*hierarchy.Project, error) {
	p, err := s.GetProjectByName(ctx, in.Name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	p, err = s.CreateProject(ctx, in)
	if errors.Is(err, storage.ErrConflict) {
		// Lost a race with another creator.
		return s.GetProjectByName(ctx, in.Name)
	}
	return p, err
}

// ProjectHierarchy returns the project's machines, each with its
// workspaces and their chat-session counts.
func (s *HierarchyService) ProjectHierarchy(ctx context.Context, projectID int64) (*hierarchy.ProjectHierarchy, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	workspaces, err := s.store.ListWorkspaces(ctx, projectID)
	if err != nil {
		return nil, err
	}
	machines := map[int64]hierarchy.Machine{}
	for _, ws := range workspaces {
		if _, ok := machines[ws.MachineID]; ok {
			continue
		}
		m, err := s.store.GetMachine(ctx, ws.MachineID)
		if err != nil {
			return nil, fmt.Errorf("project hierarchy: machine %d: %w", ws.MachineID, err)
		}
		machines[m.ID] = *m
	}
	counts, err := s.store.CountChatSessions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return hierarchy.BuildTree(*p, machines, workspaces, counts), nil
}

// ─── Machines and workspaces ─────────────────────────────────────────────────

// UpsertMachine registers a machine or refreshes the one with the same
// machine id.
func (s *HierarchyService) UpsertMachine(ctx context.Context, in hierarchy.MachineInput) (*hierarchy.Machine, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	now := s.now()
	m := &hierarchy.Machine{
		MachineID:   strings.TrimSpace(in.MachineID),
		Hostname:    in.Hostname,
		Username:    in.Username,
		OSType:      in.OSType,
		OSVersion:   in.OSVersion,
		MachineType: in.MachineType,
		IPAddress:   in.IPAddress,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	if err := s.store.UpsertMachine(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMachine returns a machine by row id.
func (s *HierarchyService) GetMachine(ctx context.Context, id int64) (*hierarchy.Machine, error) {
	return s.store.GetMachine(ctx, id)
}

// ListMachines returns every machine, most recently seen first.
func (s *HierarchyService) ListMachines(ctx context.Context) ([]hierarchy.Machine, error) {
	return s.store.ListMachines(ctx)
}

// UpsertWorkspace registers a workspace or refreshes the one with the
// same workspace id. Its project and machine must exist.
func (s *HierarchyService) UpsertWorkspace(ctx context.Context, in hierarchy.WorkspaceInput) (*hierarchy.Workspace, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	if _, err := s.store.GetProject(ctx, in.ProjectID); err != nil {
		return nil, missingParent("project", in.ProjectID, err)
	}
	if _, err := s.store.GetMachine(ctx, in.MachineID); err != nil {
		return nil, missingParent("machine", in.MachineID, err)
	}
	now := s.now()
	w := &hierarchy.Workspace{
		ProjectID:     in.ProjectID,
		MachineID:     in.MachineID,
		WorkspaceID:   strings.TrimSpace(in.WorkspaceID),
		WorkspacePath: in.WorkspacePath,
		WorkspaceType: in.WorkspaceType,
		Branch:        in.Branch,
		Commit:        in.Commit,
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := s.store.UpsertWorkspace(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func missingParent(kind string, id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return invalidf("%s %d does not exist", kind, id)
	}
	return err
}

// GetWorkspace returns a workspace by its workspace id.
func (s *HierarchyService) GetWorkspace(ctx context.Context, workspaceID string) (*hierarchy.Workspace, error) {
	return s.store.GetWorkspace(ctx, workspaceID)
}

// ListWorkspaces returns the workspaces of a project.
func (s *HierarchyService) ListWorkspaces(ctx context.Context, projectID int64) ([]hierarchy.Workspace, error) {
	return s.store.ListWorkspaces(ctx, projectID)
}

// ResolveWorkspace returns a workspace together with its project and
// machine.
func (s *HierarchyService) ResolveWorkspace(ctx context.Context, workspaceID string) (*hierarchy.WorkspaceContext, error) {
	w, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetProject(ctx, w.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %q: %w", workspaceID, err)
	}
	m, err := s.store.GetMachine(ctx, w.MachineID)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %q: %w", workspaceID, err)
	}
	return &hierarchy.WorkspaceContext{Workspace: *w, Project: *p, Machine: *m}, nil
}

// ─── Chat sessions ───────────────────────────────────────────────────────────

// CreateChatSession opens a chat session in an existing workspace. A
// missing session id gets a UUID.
func (s *HierarchyService) CreateChatSession(ctx context.Context, in hierarchy.ChatSessionInput) (*hierarchy.ChatSession, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	now := s.now()
	c := &hierarchy.ChatSession{
		SessionID:   strings.TrimSpace(in.SessionID),
		WorkspaceID: in.WorkspaceID,
		AgentType:   in.AgentType,
		ModelID:     in.ModelID,
		StartedAt:   now,
		CreatedAt:   now,
	}
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if in.StartedAt != nil {
		c.StartedAt = in.StartedAt.UTC()
	}
	if err := s.store.CreateChatSession(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// EndChatSession stamps the end of a chat session with its final
// counters. Ending a session twice is a conflict.
func (s *HierarchyService) EndChatSession(ctx context.Context, sessionID string, in hierarchy.ChatSessionEnd) (*hierarchy.ChatSession, error) {
	if in.MessageCount < 0 || in.TotalTokens < 0 {
		return nil, invalidf("messageCount and totalTokens must not be negative")
	}
	c, err := s.store.GetChatSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c.EndedAt != nil {
		return nil, fmt.Errorf("chat session %q already ended: %w", sessionID, storage.ErrConflict)
	}
	now := s.now()
	if now.Before(c.StartedAt) {
		now = c.StartedAt
	}
	c.EndedAt = &now
	c.MessageCount = in.MessageCount
	c.TotalTokens = in.TotalTokens
	if err := s.store.UpdateChatSession(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetChatSession returns a chat session by its session id.
func (s *HierarchyService) GetChatSession(ctx context.Context, sessionID string) (*hierarchy.ChatSession, error) {
	return s.store.GetChatSession(ctx, sessionID)
}

// ListChatSessions returns the newest chat sessions of a workspace.
func (s *HierarchyService) ListChatSessions(ctx context.Context, workspaceID int64, limit int) ([]hierarchy.ChatSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListChatSessions(ctx, workspaceID, limit)
}
