package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjects(t *testing.T) {
	svc, clk := newTestServices(t)
	ctx := context.Background()

	p, err := svc.Hierarchy.CreateProject(ctx, hierarchy.ProjectInput{Name: "devlog", RepoURL: "git@github.com:acme/devlog.git"})
	require.NoError(t, err)
	assert.Equal(t, "acme", p.RepoOwner)
	assert.Equal(t, "acme/devlog", p.FullName)

	_, err = svc.Hierarchy.CreateProject(ctx, hierarchy.ProjectInput{Name: "devlog"})
	assert.ErrorIs(t, err, storage.ErrConflict)
	_, err = svc.Hierarchy.CreateProject(ctx, hierarchy.ProjectInput{Name: "x", RepoURL: "not a url"})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	clk.Advance(time.Minute)
	updated, err := svc.Hierarchy.UpdateProject(ctx, p.ID, hierarchy.ProjectInput{Name: "devlog", Description: "tracker"})
	require.NoError(t, err)
	assert.Empty(t, updated.RepoURL)
	assert.Equal(t, t0.Add(time.Minute), updated.UpdatedAt)

	same, err := svc.Hierarchy.EnsureProject(ctx, hierarchy.ProjectInput{Name: "devlog"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, same.ID)
	fresh, err := svc.Hierarchy.EnsureProject(ctx, hierarchy.ProjectInput{Name: "other"})
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, fresh.ID)

	require.NoError(t, svc.Hierarchy.DeleteProject(ctx, fresh.ID))
	projects, err := svc.Hierarchy.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestWorkspaceHierarchy(t *testing.T) {
	svc, clk := newTestServices(t)
	ctx := context.Background()
	pid := newProject(t, svc, "app")

	laptop, err := svc.Hierarchy.UpsertMachine(ctx, hierarchy.MachineInput{MachineID: "m-1", Hostname: "laptop", OSType: "darwin"})
	require.NoError(t, err)
	assert.Equal(t, hierarchy.MachineLocal, laptop.MachineType)
	ci, err := svc.Hierarchy.UpsertMachine(ctx, hierarchy.MachineInput{MachineID: "m-2", Hostname: "runner", MachineType: hierarchy.MachineCI})
	require.NoError(t, err)

	again, err := svc.Hierarchy.UpsertMachine(ctx, hierarchy.MachineInput{MachineID: "m-1", Hostname: "laptop-renamed"})
	require.NoError(t, err)
	assert.Equal(t, laptop.ID, again.ID, "upsert matches on machine id")

	_, err = svc.Hierarchy.UpsertWorkspace(ctx, hierarchy.WorkspaceInput{ProjectID: pid, MachineID: 404, WorkspaceID: "w", WorkspacePath: "/src"})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	w1, err := svc.Hierarchy.UpsertWorkspace(ctx, hierarchy.WorkspaceInput{ProjectID: pid, MachineID: laptop.ID, WorkspaceID: "ws-1", WorkspacePath: "/src/app"})
	require.NoError(t, err)
	_, err = svc.Hierarchy.UpsertWorkspace(ctx, hierarchy.WorkspaceInput{ProjectID: pid, MachineID: ci.ID, WorkspaceID: "ws-2", WorkspacePath: "/build/app", Branch: "main"})
	require.NoError(t, err)

	resolved, err := svc.Hierarchy.ResolveWorkspace(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "app", resolved.Project.Name)
	assert.Equal(t, "laptop-renamed", resolved.Machine.Hostname)

	chat, err := svc.Hierarchy.CreateChatSession(ctx, hierarchy.ChatSessionInput{WorkspaceID: w1.ID, AgentType: "copilot"})
	require.NoError(t, err)
	assert.NotEmpty(t, chat.SessionID)
	_, err = svc.Hierarchy.CreateChatSession(ctx, hierarchy.ChatSessionInput{WorkspaceID: w1.ID, AgentType: "claude"})
	require.NoError(t, err)
	_, err = svc.Hierarchy.CreateChatSession(ctx, hierarchy.ChatSessionInput{WorkspaceID: 404, AgentType: "claude"})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	clk.Advance(10 * time.Minute)
	ended, err := svc.Hierarchy.EndChatSession(ctx, chat.SessionID, hierarchy.ChatSessionEnd{MessageCount: 12, TotalTokens: 3400})
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, t0.Add(10*time.Minute), *ended.EndedAt)
	_, err = svc.Hierarchy.EndChatSession(ctx, chat.SessionID, hierarchy.ChatSessionEnd{})
	assert.ErrorIs(t, err, storage.ErrConflict)

	tree, err := svc.Hierarchy.ProjectHierarchy(ctx, pid)
	require.NoError(t, err)
	require.Len(t, tree.Machines, 2)
	counts := map[string]int{}
	for _, m := range tree.Machines {
		for _, w := range m.Workspaces {
			counts[w.Workspace.WorkspaceID] = w.SessionCount
		}
	}
	assert.Equal(t, map[string]int{"ws-1": 2, "ws-2": 0}, counts)

	chats, err := svc.Hierarchy.ListChatSessions(ctx, w1.ID, 0)
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	_, err = svc.Hierarchy.ProjectHierarchy(ctx, 404)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
