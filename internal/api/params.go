package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/storage"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", storage.ErrInvalid, fmt.Sprintf(format, args...))
}

// decode reads a JSON body into v. An oversized body surfaces as
// *http.MaxBytesError and an empty one as a validation error.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// decodeOptional is decode for routes whose body may be omitted.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decode(w, r, v)
}

// pathID parses a numeric path value.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func queryInt(q url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func queryInt64(q url.Values, name string) (int64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

// queryList splits a comma-separated parameter. Repeated parameters are
// accepted too.
func queryList[T ~string](q url.Values, name string) []T {
	var out []T
	for _, raw := range q[name] {
		for part := range strings.SplitSeq(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, T(part))
			}
		}
	}
	return out
}

// queryTime accepts RFC 3339 timestamps and plain dates (UTC midnight).
func queryTime(q url.Values, name string) (*time.Time, error) {
	t, _, err := parseQueryTime(q, name)
	return t, err
}

// queryUntil reads an inclusive upper bound: a plain date covers that
// whole day.
func queryUntil(q url.Values, name string) (*time.Time, error) {
	t, dateOnly, err := parseQueryTime(q, name)
	if t != nil && dateOnly {
		end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		return &end, nil
	}
	return t, err
}

func parseQueryTime(q url.Values, name string) (t *time.Time, dateOnly bool, err error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, false, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		ts = ts.UTC()
		return &ts, false, nil
	}
	if day, err := time.Parse(devlog.DayFormat, raw); err == nil {
		return &day, true, nil
	}
	return nil, false, badRequest("%s must be an RFC 3339 timestamp or YYYY-MM-DD, got %q", name, raw)
}

func queryBool(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s must be true or false, got %q", name, raw)
	}
	return b, nil
}

// ─── Devlog queries ──────────────────────────────────────────────────────────

// devlogFilter reads status, type, priority, assignee, fromDate, toDate,
// search and archived.
func devlogFilter(q url.Values, projectID int64) (devlog.Filter, error) {
	f := devlog.Filter{
		ProjectID: projectID,
		Status:    queryList[devlog.Status](q, "status"),
		Type:      queryList[devlog.EntryType](q, "type"),
		Priority:  queryList[devlog.Priority](q, "priority"),
		Assignee:  strings.TrimSpace(q.Get("assignee")),
		Search:    strings.TrimSpace(q.Get("search")),
	}
	var err error
	if f.FromDate, err = queryTime(q, "fromDate"); err != nil {
		return f, err
	}
	if f.ToDate, err = queryUntil(q, "toDate"); err != nil {
		return f, err
	}
	if f.Archived, err = devlog.ParseArchiveMode(q.Get("archived")); err != nil {
		return f, badRequest("%v", err)
	}
	return f, nil
}

// pagination reads page, limit, sortBy and sortOrder. Out-of-range values
// are clamped by the store.
func pagination(q url.Values) (devlog.Pagination, error) {
	var p devlog.Pagination
	var err error
	if p.Page, err = queryInt(q, "page", 1); err != nil {
		return p, err
	}
	if p.Limit, err = queryInt(q, "limit", devlog.DefaultPageSize); err != nil {
		return p, err
	}
	p.SortBy = devlog.SortField(strings.TrimSpace(q.Get("sortBy")))
	p.SortOrder = devlog.SortOrder(strings.ToLower(strings.TrimSpace(q.Get("sortOrder"))))
	return devlog.NormalizePagination(p), nil
}

// ─── Event queries ───────────────────────────────────────────────────────────

func eventFilter(q url.Values) (agent.EventFilter, error) {
	f := agent.EventFilter{
		SessionID:  strings.TrimSpace(q.Get("sessionId")),
		AgentID:    strings.TrimSpace(q.Get("agentId")),
		EventTypes: queryList[agent.EventType](q, "eventTypes"),
		Severity:   queryList[agent.Severity](q, "severity"),
	}
	var err error
	if f.ProjectID, err = queryInt64(q, "projectId"); err != nil {
		return f, err
	}
	if f.From, err = queryTime(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryUntil(q, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q, "limit", 0); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(q, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}

func sessionFilter(q url.Values) (agent.SessionFilter, error) {
	f := agent.SessionFilter{
		AgentID: strings.TrimSpace(q.Get("agentId")),
		Outcome: agent.Outcome(strings.TrimSpace(q.Get("outcome"))),
	}
	var err error
	if f.ProjectID, err = queryInt64(q, "projectId"); err != nil {
		return f, err
	}
	if f.ActiveOnly, err = queryBool(q, "active"); err != nil {
		return f, err
	}
	if f.From, err = queryTime(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryUntil(q, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q, "limit", 0); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(q, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}
