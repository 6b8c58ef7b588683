package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlq"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const entryColumns = `e.id, e.key, e.title, e.type, e.description, e.status, e.priority, e.assignee,
	e.project_id, e.archived, e.created_at, e.updated_at, e.closed_at,
	e.business_context, e.technical_context, e.context_json, e.ai_context,
	e.files, e.related_devlogs, e.external_refs`

type contextExtras struct {
	Dependencies       []devlog.Dependency `json:"dependencies,omitempty"`
	Decisions          []devlog.Decision   `json:"decisions,omitempty"`
	AcceptanceCriteria []string            `json:"acceptanceCriteria,omitempty"`
	Risks              []devlog.Risk       `json:"risks,omitempty"`
}

func scanEntry(row pgx.Row) (*devlog.Entry, error) {
	var (
		e                                   devlog.Entry
		ctxJSON, aiJSON, files, rel, extRef []byte
	)
	if err := row.Scan(
		&e.ID, &e.Key, &e.Title, &e.Type, &e.Description, &e.Status, &e.Priority, &e.Assignee,
		&e.ProjectID, &e.Archived, &e.CreatedAt, &e.UpdatedAt, &e.ClosedAt,
		&e.Context.BusinessContext, &e.Context.TechnicalContext, &ctxJSON, &aiJSON,
		&files, &rel, &extRef,
	); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.ClosedAt = utcPtr(e.ClosedAt)

	var extras contextExtras
	fromJSON(ctxJSON, &extras)
	e.Context.Dependencies = extras.Dependencies
	e.Context.Decisions = extras.Decisions
	e.Context.AcceptanceCriteria = extras.AcceptanceCriteria
	e.Context.Risks = extras.Risks
	fromJSON(aiJSON, &e.AIContext)
	fromJSON(files, &e.Files)
	fromJSON(rel, &e.RelatedDevlogs)
	fromJSON(extRef, &e.ExternalReferences)
	return &e, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]*devlog.Entry, error) {
	rows, err := s.pool.Query(ctx, q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*devlog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan devlog: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Exists reports whether an entry with the id exists.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM devlog_entries WHERE id = $1)", id).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists devlog %d: %w", id, err)
	}
	return ok, nil
}

// Get returns one entry with its notes, oldest note first.
func (s *Store) Get(ctx context.Context, id int64) (*devlog.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, "SELECT "+entryColumns+" FROM devlog_entries e WHERE e.id = $1", id))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get devlog %d", id), err)
	}
	if err := s.attachNotes(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByKey returns the entry with the key inside a project.
func (s *Store) GetByKey(ctx context.Context, projectID int64, key string) (*devlog.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM devlog_entries e WHERE e.project_id = $1 AND e.key = $2", projectID, key))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get devlog by key %q", key), err)
	}
	if err := s.attachNotes(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) attachNotes(ctx context.Context, e *devlog.Entry) error {
	notes, err := s.Notes(ctx, e.ID, 0)
	if err != nil {
		return err
	}
	slices.Reverse(notes)
	e.Notes = notes
	return nil
}

// Save inserts or updates the entry.
func (s *Store) Save(ctx context.Context, e *devlog.Entry) error {
	extras := contextExtras{
		Dependencies:       e.Context.Dependencies,
		Decisions:          e.Context.Decisions,
		AcceptanceCriteria: e.Context.AcceptanceCriteria,
		Risks:              e.Context.Risks,
	}
	args := []any{
		e.Key, e.Title, string(e.Type), e.Description, string(e.Status), string(e.Priority), e.Assignee,
		e.ProjectID, e.Archived, e.CreatedAt.UTC(), e.UpdatedAt.UTC(), utcPtr(e.ClosedAt),
		e.Context.BusinessContext, e.Context.TechnicalContext, jsonb(extras), jsonb(e.AIContext),
		jsonb(nonNil(e.Files)), jsonb(nonNil(e.RelatedDevlogs)), jsonb(nonNil(e.ExternalReferences)),
	}

	if e.ID == 0 {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO devlog_entries (key, title, type, description, status, priority, assignee,
				project_id, archived, created_at, updated_at, closed_at,
				business_context, technical_context, context_json, ai_context,
				files, related_devlogs, external_refs)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			 RETURNING id`,
			args...,
		).Scan(&e.ID)
		return mapErr("insert devlog", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE devlog_entries SET key = $1, title = $2, type = $3, description = $4, status = $5, priority = $6,
			assignee = $7, project_id = $8, archived = $9, created_at = $10, updated_at = $11, closed_at = $12,
			business_context = $13, technical_context = $14, context_json = $15, ai_context = $16,
			files = $17, related_devlogs = $18, external_refs = $19
		 WHERE id = $20`,
		append(args, e.ID)...,
	)
	if err != nil {
		return mapErr(fmt.Sprintf("update devlog %d", e.ID), err)
	}
	return affected(fmt.Sprintf("update devlog %d", e.ID), tag)
}

// Delete hard-deletes an entry and its notes.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM devlog_entries WHERE id = $1", id)
	if err != nil {
		return mapErr(fmt.Sprintf("delete devlog %d", id), err)
	}
	return affected(fmt.Sprintf("delete devlog %d", id), tag)
}

// List returns one page of entries matching the filter. A Search term in
// the filter is served by full-text search.
func (s *Store) List(ctx context.Context, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	if strings.TrimSpace(f.Search) != "" {
		query := f.Search
		f.Search = ""
		return s.Search(ctx, query, f, p)
	}
	p = devlog.NormalizePagination(p)
	where, args := sqlq.EntryFilter(sqlq.New(sqlq.Postgres), f, "e.").Where()

	var total int
	if err := s.pool.QueryRow(ctx, q("SELECT COUNT(*) FROM devlog_entries e"+where), args...).Scan(&total); err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("list devlogs: count: %w", err)
	}

	entries, err := s.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM devlog_entries e"+where+sqlq.EntryOrderBy(p, "e.")+" LIMIT ? OFFSET ?",
		append(args, p.Limit, p.Offset())...)
	if err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("list devlogs: %w", err)
	}
	return devlog.NewPage(entries, p, total), nil
}

// Search ranks entries with ts_rank over an English tsvector of the
// text columns. The pagination's sort is ignored in favor of rank.
func (s *Store) Search(ctx context.Context, query string, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		f.Search = ""
		return s.List(ctx, f, p)
	}
	p = devlog.NormalizePagination(p)

	b := sqlq.New(sqlq.Postgres).Add(searchVector+" @@ plainto_tsquery('english', ?)", query)
	where, args := sqlq.EntryFilter(b, f, "e.").Where()

	var total int
	if err := s.pool.QueryRow(ctx, q("SELECT COUNT(*) FROM devlog_entries e"+where), args...).Scan(&total); err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("search devlogs: count: %w", err)
	}

	entries, err := s.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM devlog_entries e"+where+
			" ORDER BY ts_rank("+searchVector+", plainto_tsquery('english', ?)) DESC, e.id DESC LIMIT ? OFFSET ?",
		append(args, query, p.Limit, p.Offset())...)
	if err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("search devlogs: %w", err)
	}
	return devlog.NewPage(entries, p, total), nil
}

// ─── Notes ───────────────────────────────────────────────────────────────────

// AddNote appends a note, returning the earlier copy when an identical
// note was added inside the dedupe window.
func (s *Store) AddNote(ctx context.Context, entryID int64, n *devlog.Note) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = devlog.Now()
	}
	n.EntryID = entryID
	hash := n.ContentHash()

	var existingID string
	var existingTS time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, timestamp FROM devlog_notes
		 WHERE devlog_id = $1 AND content_hash = $2 AND timestamp >= $3
		 ORDER BY timestamp DESC LIMIT 1`,
		entryID, hash, n.Timestamp.Add(-devlog.NoteDedupeWindow).UTC(),
	).Scan(&existingID, &existingTS)
	if err == nil {
		n.ID = existingID
		n.Timestamp = existingTS.UTC()
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("add note: dedupe lookup: %w", err)
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO devlog_notes (id, devlog_id, timestamp, category, content, files, code_changes, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, entryID, n.Timestamp.UTC(), string(n.Category), n.Content, jsonb(nonNil(n.Files)), n.CodeChanges, hash,
	)
	err = mapErr(fmt.Sprintf("add note to devlog %d", entryID), err)
	if errors.Is(err, storage.ErrInvalid) {
		return fmt.Errorf("add note to devlog %d: %w", entryID, storage.ErrNotFound)
	}
	return err
}

// Notes returns notes newest first.
func (s *Store) Notes(ctx context.Context, entryID int64, limit int) ([]devlog.Note, error) {
	query := `SELECT id, devlog_id, timestamp, category, content, files, code_changes
		FROM devlog_notes WHERE devlog_id = $1 ORDER BY timestamp DESC, id DESC`
	args := []any{entryID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("notes for devlog %d: %w", entryID, err)
	}
	defer rows.Close()

	notes := []devlog.Note{}
	for rows.Next() {
		var n devlog.Note
		var files []byte
		if err := rows.Scan(&n.ID, &n.EntryID, &n.Timestamp, &n.Category, &n.Content, &files, &n.CodeChanges); err != nil {
			return nil, err
		}
		n.Timestamp = n.Timestamp.UTC()
		fromJSON(files, &n.Files)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats aggregates entries matching the filter with GROUP BY.
func (s *Store) Stats(ctx context.Context, f devlog.Filter) (*devlog.Stats, error) {
	f.Search = ""
	where, args := sqlq.EntryFilter(sqlq.New(sqlq.Postgres), f, "e.").Where()

	rows, err := s.pool.Query(ctx, q(
		"SELECT e.status, e.type, e.priority, COUNT(*) FROM devlog_entries e"+where+
			" GROUP BY e.status, e.type, e.priority"), args...)
	if err != nil {
		return nil, fmt.Errorf("devlog stats: %w", err)
	}
	defer rows.Close()

	stats := devlog.NewStats()
	for rows.Next() {
		var (
			status   devlog.Status
			typ      devlog.EntryType
			priority devlog.Priority
			n        int
		)
		if err := rows.Scan(&status, &typ, &priority, &n); err != nil {
			return nil, err
		}
		stats.TotalEntries += n
		stats.ByStatus[status] += n
		stats.ByType[typ] += n
		stats.ByPriority[priority] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cond := " WHERE e.closed_at IS NOT NULL"
	if where != "" {
		cond = where + " AND e.closed_at IS NOT NULL"
	}
	var avg *float64
	if err := s.pool.QueryRow(ctx, q(
		"SELECT AVG(EXTRACT(EPOCH FROM (e.closed_at - e.created_at)) / 3600.0)::float8 FROM devlog_entries e"+cond),
		args...,
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("devlog stats: completion time: %w", err)
	}
	stats.AverageCompletionTime = avg

	stats.Finalize()
	return stats, nil
}

// TimeSeries counts created and closed entries per UTC day.
func (s *Store) TimeSeries(ctx context.Context, projectID int64, from, to time.Time) (*devlog.TimeSeriesStats, error) {
	from, to = from.UTC(), to.UTC()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	counts := devlog.DailyCounts{Created: map[string]int{}, Closed: map[string]int{}}
	if err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE created_at < $2),
			COUNT(*) FILTER (WHERE closed_at IS NOT NULL AND closed_at < $2)
		 FROM devlog_entries WHERE project_id = $1`,
		projectID, start,
	).Scan(&counts.CreatedBefore, &counts.ClosedBefore); err != nil {
		return nil, fmt.Errorf("time series: baseline: %w", err)
	}

	perDay := func(column string, into map[string]int) error {
		rows, err := s.pool.Query(ctx,
			"SELECT to_char("+column+" AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) FROM devlog_entries"+
				" WHERE project_id = $1 AND "+column+" >= $2 AND "+column+" < $3 GROUP BY day",
			projectID, start, end,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var day string
			var n int
			if err := rows.Scan(&day, &n); err != nil {
				return err
			}
			into[day] = n
		}
		return rows.Err()
	}
	if err := perDay("created_at", counts.Created); err != nil {
		return nil, fmt.Errorf("time series: created: %w", err)
	}
	if err := perDay("closed_at", counts.Closed); err != nil {
		return nil, fmt.Errorf("time series: closed: %w", err)
	}

	return devlog.BuildTimeSeries(counts, start, end.AddDate(0, 0, -1)), nil
}
