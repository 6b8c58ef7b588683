package apiclient

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/devlog"
)

func setList[T ~string](q url.Values, name string, values []T) {
	if len(values) == 0 {
		return
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	q.Set(name, strings.Join(parts, ","))
}

func setTime(q url.Values, name string, t *time.Time) {
	if t != nil {
		q.Set(name, t.UTC().Format(time.RFC3339Nano))
	}
}

func setInt(q url.Values, name string, n int) {
	if n != 0 {
		q.Set(name, strconv.Itoa(n))
	}
}

func setInt64(q url.Values, name string, n int64) {
	if n != 0 {
		q.Set(name, strconv.FormatInt(n, 10))
	}
}

func setString(q url.Values, name, v string) {
	if v != "" {
		q.Set(name, v)
	}
}

func devlogQuery(f devlog.Filter, p devlog.Pagination) url.Values {
	q := url.Values{}
	setList(q, "status", f.Status)
	setList(q, "type", f.Type)
	setList(q, "priority", f.Priority)
	setString(q, "assignee", f.Assignee)
	setTime(q, "fromDate", f.FromDate)
	setTime(q, "toDate", f.ToDate)
	setString(q, "search", f.Search)
	switch f.Archived {
	case devlog.ArchiveOnly:
		q.Set("archived", "true")
	case devlog.ArchiveInclude:
		q.Set("archived", "all")
	}
	setInt(q, "page", p.Page)
	setInt(q, "limit", p.Limit)
	setString(q, "sortBy", string(p.SortBy))
	setString(q, "sortOrder", string(p.SortOrder))
	return q
}

func eventQuery(f agent.EventFilter) url.Values {
	q := url.Values{}
	setString(q, "sessionId", f.SessionID)
	setInt64(q, "projectId", f.ProjectID)
	setString(q, "agentId", f.AgentID)
	setList(q, "eventTypes", f.EventTypes)
	setList(q, "severity", f.Severity)
	setTime(q, "from", f.From)
	setTime(q, "to", f.To)
	setInt(q, "limit", f.Limit)
	setInt(q, "offset", f.Offset)
	return q
}

func sessionQuery(f agent.SessionFilter) url.Values {
	q := url.Values{}
	setInt64(q, "projectId", f.ProjectID)
	setString(q, "agentId", f.AgentID)
	setString(q, "outcome", string(f.Outcome))
	if f.ActiveOnly {
		q.Set("active", "true")
	}
	setTime(q, "from", f.From)
	setTime(q, "to", f.To)
	setInt(q, "limit", f.Limit)
	setInt(q, "offset", f.Offset)
	return q
}
