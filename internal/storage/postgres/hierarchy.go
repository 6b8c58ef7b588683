package postgres

import (
	"context"
	"fmt"

	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/jackc/pgx/v5"
)

// ─── Projects ────────────────────────────────────────────────────────────────

const projectColumns = "id, name, full_name, repo_url, repo_owner, repo_name, description, created_at, updated_at"

func scanProject(row pgx.Row) (*hierarchy.Project, error) {
	var p hierarchy.Project
	if err := row.Scan(&p.ID, &p.Name, &p.FullName, &p.RepoURL, &p.RepoOwner, &p.RepoName,
		&p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// CreateProject inserts a project and assigns its id.
func (s *Store) CreateProject(ctx context.Context, p *hierarchy.Project) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, full_name, repo_url, repo_owner, repo_name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.Name, p.FullName, p.RepoURL, p.RepoOwner, p.RepoName, p.Description, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	).Scan(&p.ID)
	return mapErr(fmt.Sprintf("create project %q", p.Name), err)
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*hierarchy.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = $1", id))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get project %d", id), err)
	}
	return p, nil
}

// GetProjectByName returns a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*hierarchy.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, "SELECT "+projectColumns+" FROM projects WHERE name = $1", name))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get project %q", name), err)
	}
	return p, nil
}

// ListProjects returns every project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]hierarchy.Project, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []hierarchy.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProject overwrites the mutable project fields.
func (s *Store) UpdateProject(ctx context.Context, p *hierarchy.Project) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $1, full_name = $2, repo_url = $3, repo_owner = $4, repo_name = $5,
			description = $6, updated_at = $7
		 WHERE id = $8`,
		p.Name, p.FullName, p.RepoURL, p.RepoOwner, p.RepoName, p.Description, p.UpdatedAt.UTC(), p.ID,
	)
	if err != nil {
		return mapErr(fmt.Sprintf("update project %d", p.ID), err)
	}
	return affected(fmt.Sprintf("update project %d", p.ID), tag)
}

// DeleteProject removes a project with its entries and workspaces.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return mapErr(fmt.Sprintf("delete project %d", id), err)
	}
	return affected(fmt.Sprintf("delete project %d", id), tag)
}

// ─── Machines ────────────────────────────────────────────────────────────────

const machineColumns = "id, machine_id, hostname, username, os_type, os_version, machine_type, ip_address, metadata, created_at, last_seen_at"

func scanMachine(row pgx.Row) (*hierarchy.Machine, error) {
	var m hierarchy.Machine
	var meta []byte
	if err := row.Scan(&m.ID, &m.MachineID, &m.Hostname, &m.Username, &m.OSType, &m.OSVersion,
		&m.MachineType, &m.IPAddress, &meta, &m.CreatedAt, &m.LastSeenAt); err != nil {
		return nil, err
	}
	fromJSON(meta, &m.Metadata)
	m.CreatedAt = m.CreatedAt.UTC()
	m.LastSeenAt = m.LastSeenAt.UTC()
	return &m, nil
}

// UpsertMachine inserts or refreshes a machine keyed by MachineID.
func (s *Store) UpsertMachine(ctx context.Context, m *hierarchy.Machine) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO machines (machine_id, hostname, username, os_type, os_version, machine_type, ip_address, metadata, created_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (machine_id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			username = EXCLUDED.username,
			os_type = EXCLUDED.os_type,
			os_version = EXCLUDED.os_version,
			machine_type = EXCLUDED.machine_type,
			ip_address = EXCLUDED.ip_address,
			metadata = EXCLUDED.metadata,
			last_seen_at = EXCLUDED.last_seen_at
		 RETURNING id, created_at`,
		m.MachineID, m.Hostname, m.Username, m.OSType, m.OSVersion, string(m.MachineType), m.IPAddress,
		jsonb(m.Metadata), m.LastSeenAt.UTC(),
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return mapErr(fmt.Sprintf("upsert machine %q", m.MachineID), err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return nil
}

// GetMachine returns a machine by row id.
func (s *Store) GetMachine(ctx context.Context, id int64) (*hierarchy.Machine, error) {
	m, err := scanMachine(s.pool.QueryRow(ctx, "SELECT "+machineColumns+" FROM machines WHERE id = $1", id))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get machine %d", id), err)
	}
	return m, nil
}

// ListMachines returns machines most recently seen first.
func (s *Store) ListMachines(ctx context.Context) ([]hierarchy.Machine, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+machineColumns+" FROM machines ORDER BY last_seen_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	out := []hierarchy.Machine{}
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ─── Workspaces ──────────────────────────────────────────────────────────────

const workspaceColumns = "id, project_id, machine_id, workspace_id, workspace_path, workspace_type, branch, git_commit, created_at, last_seen_at"

func scanWorkspace(row pgx.Row) (*hierarchy.Workspace, error) {
	var w hierarchy.Workspace
	if err := row.Scan(&w.ID, &w.ProjectID, &w.MachineID, &w.WorkspaceID, &w.WorkspacePath,
		&w.WorkspaceType, &w.Branch, &w.Commit, &w.CreatedAt, &w.LastSeenAt); err != nil {
		return nil, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.LastSeenAt = w.LastSeenAt.UTC()
	return &w, nil
}

// UpsertWorkspace inserts or refreshes a workspace keyed by WorkspaceID.
func (s *Store) UpsertWorkspace(ctx context.Context, w *hierarchy.Workspace) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO workspaces (project_id, machine_id, workspace_id, workspace_path, workspace_type, branch, git_commit, created_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (workspace_id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			machine_id = EXCLUDED.machine_id,
			workspace_path = EXCLUDED.workspace_path,
			workspace_type = EXCLUDED.workspace_type,
			branch = EXCLUDED.branch,
			git_commit = EXCLUDED.git_commit,
			last_seen_at = EXCLUDED.last_seen_at
		 RETURNING id, created_at`,
		w.ProjectID, w.MachineID, w.WorkspaceID, w.WorkspacePath, string(w.WorkspaceType), w.Branch, w.Commit,
		w.LastSeenAt.UTC(),
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return mapErr(fmt.Sprintf("upsert workspace %q", w.WorkspaceID), err)
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return nil
}

// GetWorkspace returns a workspace by its external id.
func (s *Store) GetWorkspace(ctx context.Context, workspaceID string) (*hierarchy.Workspace, error) {
	w, err := scanWorkspace(s.pool.QueryRow(ctx,
		"SELECT "+workspaceColumns+" FROM workspaces WHERE workspace_id = $1", workspaceID))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get workspace %q", workspaceID), err)
	}
	return w, nil
}

// ListWorkspaces returns a project's workspaces ordered by machine then
// most recent activity.
func (s *Store) ListWorkspaces(ctx context.Context, projectID int64) ([]hierarchy.Workspace, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+workspaceColumns+" FROM workspaces WHERE project_id = $1 ORDER BY machine_id, last_seen_at DESC, id",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	out := []hierarchy.Workspace{}
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// ─── Chat sessions ───────────────────────────────────────────────────────────

const chatColumns = "id, session_id, workspace_id, agent_type, model_id, started_at, ended_at, message_count, total_tokens, created_at"

func scanChat(row pgx.Row) (*hierarchy.ChatSession, error) {
	var c hierarchy.ChatSession
	if err := row.Scan(&c.ID, &c.SessionID, &c.WorkspaceID, &c.AgentType, &c.ModelID,
		&c.StartedAt, &c.EndedAt, &c.MessageCount, &c.TotalTokens, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.StartedAt = c.StartedAt.UTC()
	c.EndedAt = utcPtr(c.EndedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// CreateChatSession inserts a chat session and assigns its row id.
func (s *Store) CreateChatSession(ctx context.Context, c *hierarchy.ChatSession) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (session_id, workspace_id, agent_type, model_id, started_at, ended_at, message_count, total_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		c.SessionID, c.WorkspaceID, c.AgentType, c.ModelID, c.StartedAt.UTC(), utcPtr(c.EndedAt),
		c.MessageCount, c.TotalTokens, c.CreatedAt.UTC(),
	).Scan(&c.ID)
	return mapErr(fmt.Sprintf("create chat session %q", c.SessionID), err)
}

// GetChatSession returns a chat session by its external id.
func (s *Store) GetChatSession(ctx context.Context, sessionID string) (*hierarchy.ChatSession, error) {
	c, err := scanChat(s.pool.QueryRow(ctx, "SELECT "+chatColumns+" FROM chat_sessions WHERE session_id = $1", sessionID))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get chat session %q", sessionID), err)
	}
	return c, nil
}

// UpdateChatSession writes the end time and counters.
func (s *Store) UpdateChatSession(ctx context.Context, c *hierarchy.ChatSession) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE chat_sessions SET model_id = $1, ended_at = $2, message_count = $3, total_tokens = $4 WHERE session_id = $5",
		c.ModelID, utcPtr(c.EndedAt), c.MessageCount, c.TotalTokens, c.SessionID,
	)
	if err != nil {
		return mapErr(fmt.Sprintf("update chat session %q", c.SessionID), err)
	}
	return affected(fmt.Sprintf("update chat session %q", c.SessionID), tag)
}

// ListChatSessions returns a workspace's chat sessions, newest first.
func (s *Store) ListChatSessions(ctx context.Context, workspaceID int64, limit int) ([]hierarchy.ChatSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+chatColumns+" FROM chat_sessions WHERE workspace_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2",
		workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	out := []hierarchy.ChatSession{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountChatSessions counts chat sessions per workspace of a project.
func (s *Store) CountChatSessions(ctx context.Context, projectID int64) (map[int64]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.workspace_id, COUNT(*) FROM chat_sessions c
		 JOIN workspaces w ON w.id = c.workspace_id
		 WHERE w.project_id = $1 GROUP BY c.workspace_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("count chat sessions: %w", err)
	}
	defer rows.Close()

	counts := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
