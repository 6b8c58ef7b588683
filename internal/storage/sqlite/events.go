package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlq"
	"go.uber.org/zap"
)

// ─── Events ──────────────────────────────────────────────────────────────────

const eventColumns = `id, timestamp, event_type, agent_id, agent_version, session_id, project_id,
	context, data, metrics, parent_event_id, related_event_ids, tags, severity`

func scanEvent(row scanner) (*agent.Event, error) {
	var e agent.Event
	var ts, ctxJSON, dataJSON, related, tags string
	var metrics sql.NullString
	if err := row.Scan(&e.ID, &ts, &e.Type, &e.AgentID, &e.AgentVersion, &e.SessionID, &e.ProjectID,
		&ctxJSON, &dataJSON, &metrics, &e.ParentEventID, &related, &tags, &e.Severity); err != nil {
		return nil, err
	}
	e.Timestamp = sqlq.ParseTime(ts)
	fromJSON(ctxJSON, &e.Context)
	fromJSON(dataJSON, &e.Data)
	if metrics.Valid && metrics.String != "" && metrics.String != "null" {
		e.Metrics = &agent.EventMetrics{}
		fromJSON(metrics.String, e.Metrics)
	}
	fromJSON(related, &e.RelatedEventIDs)
	fromJSON(tags, &e.Tags)
	return &e, nil
}

// InsertEvents stores events and folds them into their sessions' metrics
// in one transaction. Events whose session was never started are stored
// without touching any session.
func (s *Store) InsertEvents(ctx context.Context, events []agent.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("insert events: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	perSession := map[string]*agent.SessionMetrics{}
	var order []string
	for i := range events {
		e := &events[i]
		var metrics any
		if e.Metrics != nil {
			metrics = toJSON(e.Metrics)
		}
		_, err := s.execHook(ctx, tx,
			`INSERT INTO agent_events (`+eventColumns+`, token_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, sqlq.FormatTime(e.Timestamp), string(e.Type), e.AgentID, e.AgentVersion, e.SessionID, e.ProjectID,
			toJSON(e.Context), toJSON(nonNilMap(e.Data)), metrics, e.ParentEventID,
			toJSON(nonNil(e.RelatedEventIDs)), toJSON(nonNil(e.Tags)), string(e.Severity), e.TokenCount(),
		)
		if err != nil {
			return mapErr(fmt.Sprintf("insert event %q", e.ID), err)
		}
		m, ok := perSession[e.SessionID]
		if !ok {
			m = &agent.SessionMetrics{}
			perSession[e.SessionID] = m
			order = append(order, e.SessionID)
		}
		m.Add(e)
	}

	for _, id := range order {
		var raw string
		err := tx.QueryRowContext(ctx, "SELECT metrics FROM agent_sessions WHERE id = ?", id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("insert events: load session %q: %w", id, err)
		}
		var current agent.SessionMetrics
		fromJSON(raw, &current)
		current.Merge(*perSession[id])
		if _, err := s.execHook(ctx, tx,
			"UPDATE agent_sessions SET metrics = ? WHERE id = ?", toJSON(current), id); err != nil {
			return fmt.Errorf("insert events: update session %q: %w", id, err)
		}
	}

	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("insert events: commit: %w", err)
	}
	s.logger.Debug("events stored", zap.Int("count", len(events)), zap.Int("sessions", len(order)))
	return nil
}

// QueryEvents returns matching events, newest first.
func (s *Store) QueryEvents(ctx context.Context, f agent.EventFilter) ([]agent.Event, error) {
	if f.Limit <= 0 {
		f.Limit = agent.DefaultEventLimit
	}
	where, args := sqlq.EventFilter(sqlq.New(sqlq.SQLite), f).Where()
	query := "SELECT " + eventColumns + " FROM agent_events" + where + " ORDER BY timestamp DESC, id LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []agent.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("query events: scan: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// EventStats aggregates matching events. Limit and offset are ignored.
func (s *Store) EventStats(ctx context.Context, f agent.EventFilter) (*agent.EventStats, error) {
	where, args := sqlq.EventFilter(sqlq.New(sqlq.SQLite), f).Where()
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, severity, COUNT(*), COALESCE(SUM(token_count), 0) FROM agent_events"+where+
			" GROUP BY event_type, severity", args...)
	if err != nil {
		return nil, fmt.Errorf("event stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := agent.NewEventStats()
	for rows.Next() {
		var typ agent.EventType
		var sev agent.Severity
		var n, tokens int
		if err := rows.Scan(&typ, &sev, &n, &tokens); err != nil {
			return nil, fmt.Errorf("event stats: scan: %w", err)
		}
		stats.TotalEvents += n
		stats.ByType[typ] += n
		stats.BySeverity[sev] += n
		stats.TotalTokens += tokens
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.Finalize()
	return stats, nil
}

// bucketFormats truncate a TimeLayout timestamp with strftime.
var bucketFormats = map[agent.Interval]string{
	agent.IntervalMinute: "%Y-%m-%dT%H:%M:00.000Z",
	agent.IntervalHour:   "%Y-%m-%dT%H:00:00.000Z",
	agent.IntervalDay:    "%Y-%m-%dT00:00:00.000Z",
}

// EventBuckets groups matching events by interval, oldest bucket first.
func (s *Store) EventBuckets(ctx context.Context, f agent.EventFilter, interval agent.Interval) ([]agent.TimeBucket, error) {
	format, ok := bucketFormats[interval]
	if !ok {
		format = bucketFormats[agent.IntervalHour]
	}
	where, args := sqlq.EventFilter(sqlq.New(sqlq.SQLite), f).Where()
	query := `SELECT strftime('` + format + `', timestamp) AS bucket,
			COUNT(*),
			COALESCE(SUM(token_count), 0),
			SUM(CASE WHEN severity IN ('error', 'critical') THEN 1 ELSE 0 END),
			COUNT(DISTINCT event_type)
		 FROM agent_events` + where + `
		 GROUP BY bucket ORDER BY bucket`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("event buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []agent.TimeBucket{}
	for rows.Next() {
		var b agent.TimeBucket
		var start string
		if err := rows.Scan(&start, &b.EventCount, &b.TokenCount, &b.ErrorCount, &b.UniqueTypes); err != nil {
			return nil, fmt.Errorf("event buckets: scan: %w", err)
		}
		b.Bucket = sqlq.ParseTime(start)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ─── Agent sessions ──────────────────────────────────────────────────────────

const sessionColumns = "id, agent_id, agent_version, project_id, start_time, end_time, duration, context, metrics, outcome, quality_score"

func scanSession(row scanner) (*agent.Session, error) {
	var a agent.Session
	var start, ctxJSON, metrics string
	var end sql.NullString
	var duration sql.NullInt64
	var score sql.NullFloat64
	if err := row.Scan(&a.ID, &a.AgentID, &a.AgentVersion, &a.ProjectID, &start, &end, &duration,
		&ctxJSON, &metrics, &a.Outcome, &score); err != nil {
		return nil, err
	}
	a.StartTime = sqlq.ParseTime(start)
	a.EndTime = timePtr(end)
	if duration.Valid {
		d := duration.Int64
		a.Duration = &d
	}
	fromJSON(ctxJSON, &a.Context)
	fromJSON(metrics, &a.Metrics)
	if score.Valid {
		v := score.Float64
		a.QualityScore = &v
	}
	return &a, nil
}

// CreateSession inserts an agent session.
func (s *Store) CreateSession(ctx context.Context, a *agent.Session) error {
	_, err := s.execHook(ctx, s.db,
		"INSERT INTO agent_sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.AgentID, a.AgentVersion, a.ProjectID, sqlq.FormatTime(a.StartTime), nullableTime(a.EndTime),
		a.Duration, toJSON(a.Context), toJSON(a.Metrics), string(a.Outcome), a.QualityScore,
	)
	if err != nil {
		return mapErr(fmt.Sprintf("create session %q", a.ID), err)
	}
	return nil
}

// GetSession returns an agent session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*agent.Session, error) {
	a, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM agent_sessions WHERE id = ?", id))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get session %q", id), err)
	}
	return a, nil
}

// EndSession stamps the end of an active session in one conditional
// UPDATE, so concurrent ends and event folds cannot overwrite each other.
func (s *Store) EndSession(ctx context.Context, a *agent.Session) error {
	op := fmt.Sprintf("end session %q", a.ID)
	res, err := s.execHook(ctx, s.db,
		`UPDATE agent_sessions SET end_time = ?, duration = ?, context = ?, outcome = ?, quality_score = ?
		 WHERE id = ? AND end_time IS NULL`,
		nullableTime(a.EndTime), a.Duration, toJSON(a.Context), string(a.Outcome), a.QualityScore, a.ID,
	)
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		if _, err := s.GetSession(ctx, a.ID); err != nil {
			return err
		}
		return fmt.Errorf("%s: already ended: %w", op, storage.ErrConflict)
	}
	return nil
}

// ListSessions returns matching sessions, most recently started first.
func (s *Store) ListSessions(ctx context.Context, f agent.SessionFilter) ([]agent.Session, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	where, args := sqlq.SessionFilter(sqlq.New(sqlq.SQLite), f).Where()
	query := "SELECT " + sessionColumns + " FROM agent_sessions" + where + " ORDER BY start_time DESC, id LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []agent.Session{}
	for rows.Next() {
		a, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
