package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlq"
	"github.com/google/uuid"
)

const entryColumns = `e.id, e.key, e.title, e.type, e.description, e.status, e.priority, e.assignee,
	e.project_id, e.archived, e.created_at, e.updated_at, e.closed_at,
	e.business_context, e.technical_context, e.context_json, e.ai_context,
	e.files, e.related_devlogs, e.external_refs`

// contextExtras is the part of devlog.Context stored as JSON; the two
// prose fields have their own columns so FTS can index them.
type contextExtras struct {
	Dependencies       []devlog.Dependency `json:"dependencies,omitempty"`
	Decisions          []devlog.Decision   `json:"decisions,omitempty"`
	AcceptanceCriteria []string            `json:"acceptanceCriteria,omitempty"`
	Risks              []devlog.Risk       `json:"risks,omitempty"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*devlog.Entry, error) {
	var (
		e                                   devlog.Entry
		archived                            int
		created, updated                    string
		closed                              sql.NullString
		ctxJSON, aiJSON, files, rel, extRef string
	)
	if err := row.Scan(
		&e.ID, &e.Key, &e.Title, &e.Type, &e.Description, &e.Status, &e.Priority, &e.Assignee,
		&e.ProjectID, &archived, &created, &updated, &closed,
		&e.Context.BusinessContext, &e.Context.TechnicalContext, &ctxJSON, &aiJSON,
		&files, &rel, &extRef,
	); err != nil {
		return nil, err
	}
	e.Archived = archived != 0
	e.CreatedAt = sqlq.ParseTime(created)
	e.UpdatedAt = sqlq.ParseTime(updated)
	e.ClosedAt = timePtr(closed)

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
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*devlog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Exists reports whether an entry with the id exists.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM devlog_entries WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists devlog %d: %w", id, err)
	}
	return true, nil
}

// Get returns one entry with its notes, newest note last.
func (s *Store) Get(ctx context.Context, id int64) (*devlog.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM devlog_entries e WHERE e.id = ?", id)
	e, err := scanEntry(row)
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
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM devlog_entries e WHERE e.project_id = ? AND e.key = ?",
		projectID, key,
	)
	e, err := scanEntry(row)
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
	// Stored newest-first for listing; entries carry them in append order.
	for i, j := 0, len(notes)-1; i < j; i, j = i+1, j-1 {
		notes[i], notes[j] = notes[j], notes[i]
	}
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
		e.ProjectID, boolInt(e.Archived), sqlq.FormatTime(e.CreatedAt), sqlq.FormatTime(e.UpdatedAt), nullableTime(e.ClosedAt),
		e.Context.BusinessContext, e.Context.TechnicalContext, toJSON(extras), toJSON(e.AIContext),
		toJSON(nonNil(e.Files)), toJSON(nonNil(e.RelatedDevlogs)), toJSON(nonNil(e.ExternalReferences)),
	}

	if e.ID == 0 {
		res, err := s.execHook(ctx, s.db,
			`INSERT INTO devlog_entries (key, title, type, description, status, priority, assignee,
				project_id, archived, created_at, updated_at, closed_at,
				business_context, technical_context, context_json, ai_context,
				files, related_devlogs, external_refs)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...,
		)
		if err != nil {
			return mapErr("insert devlog", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert devlog: last id: %w", err)
		}
		e.ID = id
		return nil
	}

	res, err := s.execHook(ctx, s.db,
		`UPDATE devlog_entries SET key = ?, title = ?, type = ?, description = ?, status = ?, priority = ?, assignee = ?,
			project_id = ?, archived = ?, created_at = ?, updated_at = ?, closed_at = ?,
			business_context = ?, technical_context = ?, context_json = ?, ai_context = ?,
			files = ?, related_devlogs = ?, external_refs = ?
		 WHERE id = ?`,
		append(args, e.ID)...,
	)
	if err != nil {
		return mapErr(fmt.Sprintf("update devlog %d", e.ID), err)
	}
	return affected(fmt.Sprintf("update devlog %d", e.ID), res)
}

// Delete hard-deletes an entry and its notes.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.execHook(ctx, s.db, "DELETE FROM devlog_entries WHERE id = ?", id)
	if err != nil {
		return mapErr(fmt.Sprintf("delete devlog %d", id), err)
	}
	return affected(fmt.Sprintf("delete devlog %d", id), res)
}

// List returns one page of entries matching the filter. A Search term in
// the filter is served by full-text search.
func (s *Store) List(ctx context.Context, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	if strings.TrimSpace(f.Search) != "" {
		q := f.Search
		f.Search = ""
		return s.Search(ctx, q, f, p)
	}
	p = devlog.NormalizePagination(p)
	where, args := sqlq.EntryFilter(sqlq.New(sqlq.SQLite), f, "e.").Where()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devlog_entries e"+where, args...).Scan(&total); err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("list devlogs: count: %w", err)
	}

	query := "SELECT " + entryColumns + " FROM devlog_entries e" + where +
		sqlq.EntryOrderBy(p, "e.") + " LIMIT ? OFFSET ?"
	entries, err := s.queryEntries(ctx, query, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("list devlogs: %w", err)
	}
	return devlog.NewPage(entries, p, total), nil
}

// Search ranks entries by FTS5 relevance. The pagination's sort is
// ignored in favor of rank.
func (s *Store) Search(ctx context.Context, query string, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		f.Search = ""
		return s.List(ctx, f, p)
	}
	p = devlog.NormalizePagination(p)

	b := sqlq.New(sqlq.SQLite).Add("devlog_entries_fts MATCH ?", ftsQuery)
	where, args := sqlq.EntryFilter(b, f, "e.").Where()
	from := " FROM devlog_entries_fts fts JOIN devlog_entries e ON e.id = fts.rowid"

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("search devlogs: count: %w", err)
	}

	sqlStr := "SELECT " + entryColumns + from + where + " ORDER BY fts.rank, e.id DESC LIMIT ? OFFSET ?"
	entries, err := s.queryEntries(ctx, sqlStr, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return devlog.Page[*devlog.Entry]{}, fmt.Errorf("search devlogs: %w", err)
	}
	return devlog.NewPage(entries, p, total), nil
}

// ─── Notes ───────────────────────────────────────────────────────────────────

// AddNote appends a note. Re-sending a note identical to one added to the
// same entry within the dedupe window returns the earlier note instead of
// storing a copy.
func (s *Store) AddNote(ctx context.Context, entryID int64, n *devlog.Note) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = devlog.Now()
	}
	n.EntryID = entryID
	hash := n.ContentHash()
	since := sqlq.FormatTime(n.Timestamp.Add(-devlog.NoteDedupeWindow))

	var existingID, existingTS string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp FROM devlog_notes
		 WHERE devlog_id = ? AND content_hash = ? AND timestamp >= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		entryID, hash, since,
	).Scan(&existingID, &existingTS)
	if err == nil {
		n.ID = existingID
		n.Timestamp = sqlq.ParseTime(existingTS)
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("add note: dedupe lookup: %w", err)
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err = s.execHook(ctx, s.db,
		`INSERT INTO devlog_notes (id, devlog_id, timestamp, category, content, files, code_changes, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, entryID, sqlq.FormatTime(n.Timestamp), string(n.Category), n.Content,
		toJSON(nonNil(n.Files)), n.CodeChanges, hash,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("add note to devlog %d: %w", entryID, storage.ErrNotFound)
	}
	return mapErr(fmt.Sprintf("add note to devlog %d", entryID), err)
}

// Notes returns notes newest first.
func (s *Store) Notes(ctx context.Context, entryID int64, limit int) ([]devlog.Note, error) {
	query := `SELECT id, devlog_id, timestamp, category, content, files, code_changes
		FROM devlog_notes WHERE devlog_id = ? ORDER BY timestamp DESC, rowid DESC`
	args := []any{entryID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("notes for devlog %d: %w", entryID, err)
	}
	defer func() { _ = rows.Close() }()

	notes := []devlog.Note{}
	for rows.Next() {
		var (
			n     devlog.Note
			ts    string
			files string
		)
		if err := rows.Scan(&n.ID, &n.EntryID, &ts, &n.Category, &n.Content, &files, &n.CodeChanges); err != nil {
			return nil, err
		}
		n.Timestamp = sqlq.ParseTime(ts)
		fromJSON(files, &n.Files)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats aggregates entries matching the filter with GROUP BY.
func (s *Store) Stats(ctx context.Context, f devlog.Filter) (*devlog.Stats, error) {
	f.Search = ""
	where, args := sqlq.EntryFilter(sqlq.New(sqlq.SQLite), f, "e.").Where()

	rows, err := s.db.QueryContext(ctx,
		"SELECT e.status, e.type, e.priority, COUNT(*) FROM devlog_entries e"+where+
			" GROUP BY e.status, e.type, e.priority", args...)
	if err != nil {
		return nil, fmt.Errorf("devlog stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	_ = rows.Close()

	cond := " WHERE e.closed_at IS NOT NULL"
	if where != "" {
		cond = where + " AND e.closed_at IS NOT NULL"
	}
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG((julianday(e.closed_at) - julianday(e.created_at)) * 24.0) FROM devlog_entries e"+cond,
		args...,
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("devlog stats: completion time: %w", err)
	}
	if avg.Valid {
		v := avg.Float64
		stats.AverageCompletionTime = &v
	}

	stats.Finalize()
	return stats, nil
}

// TimeSeries counts created and closed entries per UTC day.
func (s *Store) TimeSeries(ctx context.Context, projectID int64, from, to time.Time) (*devlog.TimeSeriesStats, error) {
	from, to = from.UTC(), to.UTC()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	startArg, endArg := sqlq.FormatTime(start), sqlq.FormatTime(end)

	counts := devlog.DailyCounts{Created: map[string]int{}, Closed: map[string]int{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM devlog_entries WHERE project_id = ? AND created_at < ?),
			(SELECT COUNT(*) FROM devlog_entries WHERE project_id = ? AND closed_at IS NOT NULL AND closed_at < ?)`,
		projectID, startArg, projectID, startArg,
	).Scan(&counts.CreatedBefore, &counts.ClosedBefore); err != nil {
		return nil, fmt.Errorf("time series: baseline: %w", err)
	}

	perDay := func(column string, into map[string]int) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT substr("+column+", 1, 10) AS day, COUNT(*) FROM devlog_entries"+
				" WHERE project_id = ? AND "+column+" >= ? AND "+column+" < ? GROUP BY day",
			projectID, startArg, endArg,
		)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
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

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
