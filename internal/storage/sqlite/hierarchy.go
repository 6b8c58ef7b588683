package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/storage/sqlq"
)

// ─── Projects ────────────────────────────────────────────────────────────────

const projectColumns = "id, name, full_name, repo_url, repo_owner, repo_name, description, created_at, updated_at"

func scanProject(row scanner) (*hierarchy.Project, error) {
	var p hierarchy.Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.FullName, &p.RepoURL, &p.RepoOwner, &p.RepoName,
		&p.Description, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = sqlq.ParseTime(created)
	p.UpdatedAt = sqlq.ParseTime(updated)
	return &p, nil
}

// CreateProject inserts a project and assigns its id.
func (s *Store) CreateProject(ctx context.Context, p *hierarchy.Project) error {
	res, err := s.execHook(ctx, s.db,
		`INSERT INTO projects (name, full_name, repo_url, repo_owner, repo_name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.FullName, p.RepoURL, p.RepoOwner, p.RepoName, p.Description,
		sqlq.FormatTime(p.CreatedAt), sqlq.FormatTime(p.UpdatedAt),
	)
	if err != nil {
		return mapErr(fmt.Sprintf("create project %q", p.Name), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create project: last id: %w", err)
	}
	p.ID = id
	return nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*hierarchy.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get project %d", id), err)
	}
	return p, nil
}

// GetProjectByName returns a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*hierarchy.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE name = ?", name))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get project %q", name), err)
	}
	return p, nil
}

// ListProjects returns every project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]hierarchy.Project, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	res, err := s.execHook(ctx, s.db,
		`UPDATE projects SET name = ?, full_name = ?, repo_url = ?, repo_owner = ?, repo_name = ?,
			description = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.FullName, p.RepoURL, p.RepoOwner, p.RepoName, p.Description,
		sqlq.FormatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return mapErr(fmt.Sprintf("update project %d", p.ID), err)
	}
	return affected(fmt.Sprintf("update project %d", p.ID), res)
}

// DeleteProject removes a project with its entries and workspaces.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.execHook(ctx, s.db, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return mapErr(fmt.Sprintf("delete project %d", id), err)
	}
	return affected(fmt.Sprintf("delete project %d", id), res)
}

// ─── Machines ────────────────────────────────────────────────────────────────

const machineColumns = "id, machine_id, hostname, username, os_type, os_version, machine_type, ip_address, metadata, created_at, last_seen_at"

func scanMachine(row scanner) (*hierarchy.Machine, error) {
	var m hierarchy.Machine
	var meta, created, seen string
	if err := row.Scan(&m.ID, &m.MachineID, &m.Hostname, &m.Username, &m.OSType, &m.OSVersion,
		&m.MachineType, &m.IPAddress, &meta, &created, &seen); err != nil {
		return nil, err
	}
	fromJSON(meta, &m.Metadata)
	m.CreatedAt = sqlq.ParseTime(created)
	m.LastSeenAt = sqlq.ParseTime(seen)
	return &m, nil
}

// UpsertMachine inserts or refreshes a machine keyed by MachineID.
func (s *Store) UpsertMachine(ctx context.Context, m *hierarchy.Machine) error {
	var created string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO machines (machine_id, hostname, username, os_type, os_version, machine_type, ip_address, metadata, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(machine_id) DO UPDATE SET
			hostname = excluded.hostname,
			username = excluded.username,
			os_type = excluded.os_type,
			os_version = excluded.os_version,
			machine_type = excluded.machine_type,
			ip_address = excluded.ip_address,
			metadata = excluded.metadata,
			last_seen_at = excluded.last_seen_at
		 RETURNING id, created_at`,
		m.MachineID, m.Hostname, m.Username, m.OSType, m.OSVersion, string(m.MachineType), m.IPAddress,
		toJSON(m.Metadata), sqlq.FormatTime(m.LastSeenAt), sqlq.FormatTime(m.LastSeenAt),
	).Scan(&m.ID, &created)
	if err != nil {
		return mapErr(fmt.Sprintf("upsert machine %q", m.MachineID), err)
	}
	m.CreatedAt = sqlq.ParseTime(created)
	return nil
}

// GetMachine returns a machine by row id.
func (s *Store) GetMachine(ctx context.Context, id int64) (*hierarchy.Machine, error) {
	m, err := scanMachine(s.db.QueryRowContext(ctx, "SELECT "+machineColumns+" FROM machines WHERE id = ?", id))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get machine %d", id), err)
	}
	return m, nil
}

// ListMachines returns machines most recently seen first.
func (s *Store) ListMachines(ctx context.Context) ([]hierarchy.Machine, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+machineColumns+" FROM machines ORDER BY last_seen_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func scanWorkspace(row scanner) (*hierarchy.Workspace, error) {
	var w hierarchy.Workspace
	var created, seen string
	if err := row.Scan(&w.ID, &w.ProjectID, &w.MachineID, &w.WorkspaceID, &w.WorkspacePath,
		&w.WorkspaceType, &w.Branch, &w.Commit, &created, &seen); err != nil {
		return nil, err
	}
	w.CreatedAt = sqlq.ParseTime(created)
	w.LastSeenAt = sqlq.ParseTime(seen)
	return &w, nil
}

// UpsertWorkspace inserts or refreshes a workspace keyed by WorkspaceID.
func (s *Store) UpsertWorkspace(ctx context.Context, w *hierarchy.Workspace) error {
	var created string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO workspaces (project_id, machine_id, workspace_id, workspace_path, workspace_type, branch, git_commit, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workspace_id) DO UPDATE SET
			project_id = excluded.project_id,
			machine_id = excluded.machine_id,
			workspace_path = excluded.workspace_path,
			workspace_type = excluded.workspace_type,
			branch = excluded.branch,
			git_commit = excluded.git_commit,
			last_seen_at = excluded.last_seen_at
		 RETURNING id, created_at`,
		w.ProjectID, w.MachineID, w.WorkspaceID, w.WorkspacePath, string(w.WorkspaceType), w.Branch, w.Commit,
		sqlq.FormatTime(w.LastSeenAt), sqlq.FormatTime(w.LastSeenAt),
	).Scan(&w.ID, &created)
	if err != nil {
		return mapErr(fmt.Sprintf("upsert workspace %q", w.WorkspaceID), err)
	}
	w.CreatedAt = sqlq.ParseTime(created)
	return nil
}

// GetWorkspace returns a workspace by its external id.
func (s *Store) GetWorkspace(ctx context.Context, workspaceID string) (*hierarchy.Workspace, error) {
	w, err := scanWorkspace(s.db.QueryRowContext(ctx,
		"SELECT "+workspaceColumns+" FROM workspaces WHERE workspace_id = ?", workspaceID))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get workspace %q", workspaceID), err)
	}
	return w, nil
}

// ListWorkspaces returns a project's workspaces ordered by machine then
// most recent activity.
func (s *Store) ListWorkspaces(ctx context.Context, projectID int64) ([]hierarchy.Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+workspaceColumns+" FROM workspaces WHERE project_id = ? ORDER BY machine_id, last_seen_at DESC, id",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func scanChat(row scanner) (*hierarchy.ChatSession, error) {
	var c hierarchy.ChatSession
	var started, created string
	var ended sql.NullString
	if err := row.Scan(&c.ID, &c.SessionID, &c.WorkspaceID, &c.AgentType, &c.ModelID,
		&started, &ended, &c.MessageCount, &c.TotalTokens, &created); err != nil {
		return nil, err
	}
	c.StartedAt = sqlq.ParseTime(started)
	c.EndedAt = timePtr(ended)
	c.CreatedAt = sqlq.ParseTime(created)
	return &c, nil
}

// CreateChatSession inserts a chat session and assigns its row id.
func (s *Store) CreateChatSession(ctx context.Context, c *hierarchy.ChatSession) error {
	res, err := s.execHook(ctx, s.db,
		`INSERT INTO chat_sessions (session_id, workspace_id, agent_type, model_id, started_at, ended_at, message_count, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.WorkspaceID, c.AgentType, c.ModelID, sqlq.FormatTime(c.StartedAt), nullableTime(c.EndedAt),
		c.MessageCount, c.TotalTokens, sqlq.FormatTime(c.CreatedAt),
	)
	if err != nil {
		return mapErr(fmt.Sprintf("create chat session %q", c.SessionID), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create chat session: last id: %w", err)
	}
	c.ID = id
	return nil
}

// GetChatSession returns a chat session by its external id.
func (s *Store) GetChatSession(ctx context.Context, sessionID string) (*hierarchy.ChatSession, error) {
	c, err := scanChat(s.db.QueryRowContext(ctx, "SELECT "+chatColumns+" FROM chat_sessions WHERE session_id = ?", sessionID))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get chat session %q", sessionID), err)
	}
	return c, nil
}

// UpdateChatSession writes the end time and counters.
func (s *Store) UpdateChatSession(ctx context.Context, c *hierarchy.ChatSession) error {
	res, err := s.execHook(ctx, s.db,
		"UPDATE chat_sessions SET model_id = ?, ended_at = ?, message_count = ?, total_tokens = ? WHERE session_id = ?",
		c.ModelID, nullableTime(c.EndedAt), c.MessageCount, c.TotalTokens, c.SessionID,
	)
	if err != nil {
		return mapErr(fmt.Sprintf("update chat session %q", c.SessionID), err)
	}
	return affected(fmt.Sprintf("update chat session %q", c.SessionID), res)
}

// ListChatSessions returns a workspace's chat sessions, newest first.
func (s *Store) ListChatSessions(ctx context.Context, workspaceID int64, limit int) ([]hierarchy.ChatSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chatColumns+" FROM chat_sessions WHERE workspace_id = ? ORDER BY started_at DESC, id DESC LIMIT ?",
		workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.workspace_id, COUNT(*) FROM chat_sessions c
		 JOIN workspaces w ON w.id = c.workspace_id
		 WHERE w.project_id = ? GROUP BY c.workspace_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("count chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
