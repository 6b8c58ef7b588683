// Package hierarchy models the project → machine → workspace → chat
// session containment used to attribute agent activity.
//
// A project is a repository. A machine is a host an agent runs on. A
// workspace is one checkout of a project on one machine. Chat sessions
// happen inside a workspace.
package hierarchy

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Project is a tracked repository.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"fullName,omitempty"`
	RepoURL     string    `json:"repoUrl,omitempty"`
	RepoOwner   string    `json:"repoOwner,omitempty"`
	RepoName    string    `json:"repoName,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectInput holds the writable project fields.
type ProjectInput struct {
	Name        string `json:"name"`
	RepoURL     string `json:"repoUrl,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate checks a project input.
func (in ProjectInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("project name is required")
	}
	if len(in.Name) > 100 {
		return fmt.Errorf("project name must be at most 100 characters")
	}
	if in.RepoURL != "" {
		if _, _, err := ParseRepoURL(in.RepoURL); err != nil {
			return err
		}
	}
	return nil
}

// ParseRepoURL extracts owner/name from a GitHub-style repository URL.
// Accepts https://host/owner/name(.git) and git@host:owner/name(.git).
func ParseRepoURL(raw string) (owner, name string, err error) {
	raw = strings.TrimSpace(raw)
	var path string
	if strings.HasPrefix(raw, "git@") {
		i := strings.Index(raw, ":")
		if i < 0 {
			return "", "", fmt.Errorf("invalid repository URL %q", raw)
		}
		path = raw[i+1:]
	} else {
		u, perr := url.Parse(raw)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("invalid repository URL %q", raw)
		}
		path = u.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL %q must point at owner/name", raw)
	}
	return parts[0], parts[1], nil
}

// --- Machines ---

// MachineType classifies where a machine runs.
type MachineType string

const (
	MachineLocal  MachineType = "local"
	MachineRemote MachineType = "remote"
	MachineCloud  MachineType = "cloud"
	MachineCI     MachineType = "ci"
)

var validMachineTypes = map[MachineType]bool{
	MachineLocal: true, MachineRemote: true, MachineCloud: true, MachineCI: true,
}

// Machine is a host running coding agents.
type Machine struct {
	ID          int64             `json:"id"`
	MachineID   string            `json:"machineId"`
	Hostname    string            `json:"hostname"`
	Username    string            `json:"username"`
	OSType      string            `json:"osType"`
	OSVersion   string            `json:"osVersion,omitempty"`
	MachineType MachineType       `json:"machineType"`
	IPAddress   string            `json:"ipAddress,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	LastSeenAt  time.Time         `json:"lastSeenAt"`
}

// MachineInput is the upsert payload for a machine.
type MachineInput struct {
	MachineID   string            `json:"machineId"`
	Hostname    string            `json:"hostname"`
	Username    string            `json:"username"`
	OSType      string            `json:"osType"`
	OSVersion   string            `json:"osVersion,omitempty"`
	MachineType MachineType       `json:"machineType"`
	IPAddress   string            `json:"ipAddress,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate checks a machine input. An empty machine type defaults to local.
func (in *MachineInput) Validate() error {
	if strings.TrimSpace(in.MachineID) == "" {
		return fmt.Errorf("machineId is required")
	}
	if strings.TrimSpace(in.Hostname) == "" {
		return fmt.Errorf("hostname is required")
	}
	if in.MachineType == "" {
		in.MachineType = MachineLocal
	}
	if !validMachineTypes[in.MachineType] {
		return fmt.Errorf("invalid machine type %q: must be one of: local, remote, cloud, ci", in.MachineType)
	}
	return nil
}

// --- Workspaces ---

// WorkspaceType distinguishes single folders from multi-root workspaces.
type WorkspaceType string

const (
	WorkspaceFolder    WorkspaceType = "folder"
	WorkspaceMultiRoot WorkspaceType = "multi-root"
)

// Workspace is one checkout of a project on one machine.
type Workspace struct {
	ID            int64         `json:"id"`
	ProjectID     int64         `json:"projectId"`
	MachineID     int64         `json:"machineId"`
	WorkspaceID   string        `json:"workspaceId"`
	WorkspacePath string        `json:"workspacePath"`
	WorkspaceType WorkspaceType `json:"workspaceType"`
	Branch        string        `json:"branch,omitempty"`
	Commit        string        `json:"commit,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	LastSeenAt    time.Time     `json:"lastSeenAt"`
}

// WorkspaceInput is the upsert payload for a workspace.
type WorkspaceInput struct {
	ProjectID     int64         `json:"projectId"`
	MachineID     int64         `json:"machineId"`
	WorkspaceID   string        `json:"workspaceId"`
	WorkspacePath string        `json:"workspacePath"`
	WorkspaceType WorkspaceType `json:"workspaceType"`
	Branch        string        `json:"branch,omitempty"`
	Commit        string        `json:"commit,omitempty"`
}

// Validate checks a workspace input. An empty type defaults to folder.
func (in *WorkspaceInput) Validate() error {
	if strings.TrimSpace(in.WorkspaceID) == "" {
		return fmt.Errorf("workspaceId is required")
	}
	if strings.TrimSpace(in.WorkspacePath) == "" {
		return fmt.Errorf("workspacePath is required")
	}
	if in.ProjectID <= 0 {
		return fmt.Errorf("projectId is required")
	}
	if in.MachineID <= 0 {
		return fmt.Errorf("machineId is required")
	}
	if in.WorkspaceType == "" {
		in.WorkspaceType = WorkspaceFolder
	}
	if in.WorkspaceType != WorkspaceFolder && in.WorkspaceType != WorkspaceMultiRoot {
		return fmt.Errorf("invalid workspace type %q: must be folder or multi-root", in.WorkspaceType)
	}
	return nil
}

// WorkspaceContext is a workspace resolved with its parents.
type WorkspaceContext struct {
	Workspace Workspace `json:"workspace"`
	Project   Project   `json:"project"`
	Machine   Machine   `json:"machine"`
}

// --- Chat sessions ---

// ChatSession is one conversation between a developer and an agent.
type ChatSession struct {
	ID           int64      `json:"id"`
	SessionID    string     `json:"sessionId"`
	WorkspaceID  int64      `json:"workspaceId"`
	AgentType    string     `json:"agentType"`
	ModelID      string     `json:"modelId,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	MessageCount int        `json:"messageCount"`
	TotalTokens  int        `json:"totalTokens"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ChatSessionInput is the create payload for a chat session.
type ChatSessionInput struct {
	SessionID   string     `json:"sessionId,omitempty"`
	WorkspaceID int64      `json:"workspaceId"`
	AgentType   string     `json:"agentType"`
	ModelID     string     `json:"modelId,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
}

// Validate checks a chat session input.
func (in ChatSessionInput) Validate() error {
	if in.WorkspaceID <= 0 {
		return fmt.Errorf("workspaceId is required")
	}
	if strings.TrimSpace(in.AgentType) == "" {
		return fmt.Errorf("agentType is required")
	}
	return nil
}

// ChatSessionEnd carries the final counters of a chat session.
type ChatSessionEnd struct {
	MessageCount int `json:"messageCount"`
	TotalTokens  int `json:"totalTokens"`
}

// --- Tree ---

// WorkspaceNode is a workspace with its chat-session count.
type WorkspaceNode struct {
	Workspace    Workspace `json:"workspace"`
	SessionCount int       `json:"sessionCount"`
}

// MachineNode groups a project's workspaces by machine.
type MachineNode struct {
	Machine    Machine         `json:"machine"`
	Workspaces []WorkspaceNode `json:"workspaces"`
}

// ProjectHierarchy is the full tree under one project.
type ProjectHierarchy struct {
	Project  Project       `json:"project"`
	Machines []MachineNode `json:"machines"`
}

// BuildTree groups workspaces under their machines. Machines are ordered
// by first appearance in the workspace list, which callers sort.
func BuildTree(project Project, machines map[int64]Machine, workspaces []Workspace, sessionCounts map[int64]int) *ProjectHierarchy {
	tree := &ProjectHierarchy{Project: project, Machines: []MachineNode{}}
	index := map[int64]int{}

	for _, ws := range workspaces {
		i, ok := index[ws.MachineID]
		if !ok {
			m, found := machines[ws.MachineID]
			if !found {
				continue
			}
			tree.Machines = append(tree.Machines, MachineNode{Machine: m})
			i = len(tree.Machines) - 1
			index[ws.MachineID] = i
		}
		tree.Machines[i].Workspaces = append(tree.Machines[i].Workspaces, WorkspaceNode{
			Workspace:    ws,
			SessionCount: sessionCounts[ws.ID],
		})
	}
	return tree
}
