// Package sqlq builds the WHERE and ORDER BY fragments shared by the SQL
// providers. Fragments are written with ? placeholders; PostgreSQL callers
// pass the final statement through Rebind.
package sqlq

import (
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/devlog"
)

// Dialect tells the builder how timestamps are bound.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// TimeLayout is how SQLite stores timestamps: fixed-width UTC so string
// order is time order and SQLite date functions accept it.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a timestamp written by FormatTime. It also accepts
// RFC 3339 and SQLite's datetime() output so hand-edited rows still load.
func ParseTime(s string) time.Time {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Time returns the bind value for t in this dialect.
func (d Dialect) Time(t time.Time) any {
	if d == Postgres {
		return t.UTC()
	}
	return FormatTime(t)
}

// Builder accumulates AND-ed conditions and their arguments.
type Builder struct {
	dialect Dialect
	conds   []string
	args    []any
}

// New returns an empty builder.
func New(d Dialect) *Builder {
	return &Builder{dialect: d}
}

// Add appends a condition with ? placeholders.
func (b *Builder) Add(cond string, args ...any) *Builder {
	b.conds = append(b.conds, cond)
	b.args = append(b.args, args...)
	return b
}

// In appends "column IN (?, ...)" when values is not empty.
func In[T any](b *Builder, column string, values []T) *Builder {
	if len(values) == 0 {
		return b
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return b.Add(column+" IN ("+marks+")", args...)
}

// Where returns " WHERE ..." (or "") and the arguments.
func (b *Builder) Where() (string, []any) {
	if len(b.conds) == 0 {
		return "", b.args
	}
	return " WHERE " + strings.Join(b.conds, " AND "), b.args
}

// Args returns the accumulated arguments.
func (b *Builder) Args() []any { return b.args }

// Rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL. Question
// marks inside single-quoted literals are left alone.
func Rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			sb.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// --- devlog entries ---

// EntryFilter adds the devlog filter to b. Search is left to the caller
// because the two dialects search differently. alias prefixes columns
// (e.g. "e.") and may be empty.
func EntryFilter(b *Builder, f devlog.Filter, alias string) *Builder {
	col := func(c string) string { return alias + c }
	if f.ProjectID != 0 {
		b.Add(col("project_id")+" = ?", f.ProjectID)
	}
	switch f.Archived {
	case devlog.ArchiveExclude:
		b.Add(col("archived") + " = FALSE")
	case devlog.ArchiveOnly:
		b.Add(col("archived") + " = TRUE")
	}
	In(b, col("status"), stringsOf(f.Status))
	In(b, col("type"), stringsOf(f.Type))
	In(b, col("priority"), stringsOf(f.Priority))
	if f.Assignee != "" {
		b.Add("LOWER("+col("assignee")+") = LOWER(?)", f.Assignee)
	}
	if f.FromDate != nil {
		b.Add(col("created_at")+" >= ?", b.dialect.Time(*f.FromDate))
	}
	if f.ToDate != nil {
		b.Add(col("created_at")+" <= ?", b.dialect.Time(*f.ToDate))
	}
	return b
}

// PriorityRank is a SQL expression ranking priorities low..critical.
const PriorityRank = "CASE %spriority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 WHEN 'critical' THEN 4 ELSE 0 END"

// EntryOrderBy returns " ORDER BY ..." for normalized pagination. NULL
// closed_at values sort before any timestamp in ascending order, matching
// devlog.SortEntries.
func EntryOrderBy(p devlog.Pagination, alias string) string {
	p = devlog.NormalizePagination(p)
	dir := "DESC"
	if p.SortOrder == devlog.SortAsc {
		dir = "ASC"
	}

	var expr string
	switch p.SortBy {
	case devlog.SortID:
		expr = alias + "id"
	case devlog.SortTitle:
		expr = "LOWER(" + alias + "title)"
	case devlog.SortType:
		expr = alias + "type"
	case devlog.SortStatus:
		expr = alias + "status"
	case devlog.SortPriority:
		expr = strings.Replace(PriorityRank, "%s", alias, 1)
	case devlog.SortCreatedAt:
		expr = alias + "created_at"
	case devlog.SortClosedAt:
		if dir == "ASC" {
			expr = alias + "closed_at ASC NULLS FIRST, " + alias + "id ASC"
		} else {
			expr = alias + "closed_at DESC NULLS LAST, " + alias + "id DESC"
		}
		return " ORDER BY " + expr
	default:
		expr = alias + "updated_at"
	}
	return " ORDER BY " + expr + " " + dir + ", " + alias + "id " + dir
}

// --- agent events and sessions ---

// EventFilter adds the event filter to b (without LIMIT/OFFSET).
func EventFilter(b *Builder, f agent.EventFilter) *Builder {
	if f.SessionID != "" {
		b.Add("session_id = ?", f.SessionID)
	}
	if f.ProjectID != 0 {
		b.Add("project_id = ?", f.ProjectID)
	}
	if f.AgentID != "" {
		b.Add("agent_id = ?", f.AgentID)
	}
	In(b, "event_type", stringsOf(f.EventTypes))
	In(b, "severity", stringsOf(f.Severity))
	if f.From != nil {
		b.Add("timestamp >= ?", b.dialect.Time(*f.From))
	}
	if f.To != nil {
		b.Add("timestamp <= ?", b.dialect.Time(*f.To))
	}
	return b
}

// SessionFilter adds the agent-session filter to b.
func SessionFilter(b *Builder, f agent.SessionFilter) *Builder {
	if f.ProjectID != 0 {
		b.Add("project_id = ?", f.ProjectID)
	}
	if f.AgentID != "" {
		b.Add("agent_id = ?", f.AgentID)
	}
	if f.Outcome != "" {
		b.Add("outcome = ?", string(f.Outcome))
	}
	if f.ActiveOnly {
		b.Add("end_time IS NULL")
	}
	if f.From != nil {
		b.Add("start_time >= ?", b.dialect.Time(*f.From))
	}
	if f.To != nil {
		b.Add("start_time <= ?", b.dialect.Time(*f.To))
	}
	return b
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
