// Package agent models what AI coding agents do: discrete events and the
// sessions they belong to.
package agent

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// --- Event type enum ---

// EventType is the kind of action an agent performed.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventSessionEnd        EventType = "session_end"
	EventFileRead          EventType = "file_read"
	EventFileWrite         EventType = "file_write"
	EventFileCreate        EventType = "file_create"
	EventFileDelete        EventType = "file_delete"
	EventCommandExecute    EventType = "command_execute"
	EventTestRun           EventType = "test_run"
	EventBuildTrigger      EventType = "build_trigger"
	EventSearchPerformed   EventType = "search_performed"
	EventLLMRequest        EventType = "llm_request"
	EventLLMResponse       EventType = "llm_response"
	EventErrorEncountered  EventType = "error_encountered"
	EventRollbackPerformed EventType = "rollback_performed"
	EventCommitCreated     EventType = "commit_created"
	EventToolInvocation    EventType = "tool_invocation"
	EventUserInteraction   EventType = "user_interaction"
)

// AllEventTypes lists every accepted event type.
var AllEventTypes = []EventType{
	EventSessionStart, EventSessionEnd,
	EventFileRead, EventFileWrite, EventFileCreate, EventFileDelete,
	EventCommandExecute, EventTestRun, EventBuildTrigger, EventSearchPerformed,
	EventLLMRequest, EventLLMResponse, EventErrorEncountered, EventRollbackPerformed,
	EventCommitCreated, EventToolInvocation, EventUserInteraction,
}

// ValidateEventType returns an error if the type is not recognized.
func ValidateEventType(t EventType) error {
	for _, v := range AllEventTypes {
		if v == t {
			return nil
		}
	}
	return fmt.Errorf("invalid event type %q", t)
}

// --- Severity enum ---

// Severity grades an event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists severities from least to most severe.
var AllSeverities = []Severity{SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}

// ValidateSeverity returns an error if the severity is not recognized.
func ValidateSeverity(s Severity) error {
	for _, v := range AllSeverities {
		if v == s {
			return nil
		}
	}
	return fmt.Errorf("invalid severity %q: must be one of: debug, info, warning, error, critical", s)
}

// IsError reports whether the severity counts toward the error rate.
func (s Severity) IsError() bool {
	return s == SeverityError || s == SeverityCritical
}

// --- Outcome enum ---

// Outcome is how an agent session ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailure   Outcome = "failure"
	OutcomeAbandoned Outcome = "abandoned"
)

// ValidateOutcome returns an error if the outcome is not recognized.
func ValidateOutcome(o Outcome) error {
	switch o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure, OutcomeAbandoned:
		return nil
	}
	return fmt.Errorf("invalid outcome %q: must be one of: success, partial, failure, abandoned", o)
}

// --- Events ---

// EventContext locates an event in the developer's environment.
type EventContext struct {
	WorkingDirectory string `json:"workingDirectory,omitempty"`
	FilePath         string `json:"filePath,omitempty"`
	Branch           string `json:"branch,omitempty"`
	Commit           string `json:"commit,omitempty"`
	DevlogID         *int64 `json:"devlogId,omitempty"`
}

// EventMetrics are optional measurements attached to an event.
type EventMetrics struct {
	DurationMs   int64 `json:"duration,omitempty"`
	TokenCount   int   `json:"tokenCount,omitempty"`
	FileSize     int64 `json:"fileSize,omitempty"`
	LinesChanged int   `json:"linesChanged,omitempty"`
}

// Event is one recorded agent action.
type Event struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	Type            EventType      `json:"eventType"`
	AgentID         string         `json:"agentId"`
	AgentVersion    string         `json:"agentVersion,omitempty"`
	SessionID       string         `json:"sessionId"`
	ProjectID       int64          `json:"projectId"`
	Context         EventContext   `json:"context"`
	Data            map[string]any `json:"data,omitempty"`
	Metrics         *EventMetrics  `json:"metrics,omitempty"`
	ParentEventID   string         `json:"parentEventId,omitempty"`
	RelatedEventIDs []string       `json:"relatedEventIds,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Severity        Severity       `json:"severity,omitempty"`
}

// Validate checks required fields and enums. An empty severity defaults
// to info.
func (e *Event) Validate() error {
	if err := ValidateEventType(e.Type); err != nil {
		return err
	}
	if strings.TrimSpace(e.AgentID) == "" {
		return fmt.Errorf("agentId is required")
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("sessionId is required")
	}
	if e.ProjectID <= 0 {
		return fmt.Errorf("projectId is required")
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	return ValidateSeverity(e.Severity)
}

// TokenCount returns the event's token usage, zero when unmeasured.
func (e *Event) TokenCount() int {
	if e.Metrics == nil {
		return 0
	}
	return e.Metrics.TokenCount
}

// EventFilter narrows an event query. Zero values mean "no constraint".
type EventFilter struct {
	SessionID  string      `json:"sessionId,omitempty"`
	ProjectID  int64       `json:"projectId,omitempty"`
	AgentID    string      `json:"agentId,omitempty"`
	EventTypes []EventType `json:"eventTypes,omitempty"`
	Severity   []Severity  `json:"severity,omitempty"`
	From       *time.Time  `json:"from,omitempty"`
	To         *time.Time  `json:"to,omitempty"`
	Limit      int         `json:"limit,omitempty"`
	Offset     int         `json:"offset,omitempty"`
}

const (
	DefaultEventLimit = 100
	MaxEventLimit     = 1000
)

// Normalize validates enums and clamps the page window.
func (f *EventFilter) Normalize() error {
	for _, t := range f.EventTypes {
		if err := ValidateEventType(t); err != nil {
			return err
		}
	}
	for _, s := range f.Severity {
		if err := ValidateSeverity(s); err != nil {
			return err
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("to must not be before from")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultEventLimit
	}
	if f.Limit > MaxEventLimit {
		f.Limit = MaxEventLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}

// EventStats summarizes a set of events.
type EventStats struct {
	TotalEvents int               `json:"totalEvents"`
	ByType      map[EventType]int `json:"eventsByType"`
	BySeverity  map[Severity]int  `json:"eventsBySeverity"`
	TotalTokens int               `json:"totalTokens"`
	ErrorRate   float64           `json:"errorRate"`
}

// NewEventStats returns empty stats with initialized maps.
func NewEventStats() *EventStats {
	return &EventStats{ByType: map[EventType]int{}, BySeverity: map[Severity]int{}}
}

// Finalize derives ErrorRate from the severity counts.
func (s *EventStats) Finalize() {
	if s.TotalEvents == 0 {
		s.ErrorRate = 0
		return
	}
	errs := s.BySeverity[SeverityError] + s.BySeverity[SeverityCritical]
	s.ErrorRate = float64(errs) / float64(s.TotalEvents)
}

// ComputeEventStats aggregates events in memory.
func ComputeEventStats(events []Event) *EventStats {
	s := NewEventStats()
	for i := range events {
		s.TotalEvents++
		s.ByType[events[i].Type]++
		s.BySeverity[events[i].Severity]++
		s.TotalTokens += events[i].TokenCount()
	}
	s.Finalize()
	return s
}

// --- Time buckets ---

// Interval is a time-bucket width.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
)

// ParseInterval defaults to hour and rejects unknown widths.
func ParseInterval(v string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(v))) {
	case "":
		return IntervalHour, nil
	case IntervalMinute:
		return IntervalMinute, nil
	case IntervalHour:
		return IntervalHour, nil
	case IntervalDay:
		return IntervalDay, nil
	}
	return "", fmt.Errorf("invalid interval %q: must be minute, hour or day", v)
}

// Truncate rounds t down to the start of its bucket (UTC).
func (i Interval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch i {
	case IntervalMinute:
		return t.Truncate(time.Minute)
	case IntervalDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(time.Hour)
	}
}

// TimeBucket counts events falling in one interval.
type TimeBucket struct {
	Bucket      time.Time `json:"bucket"`
	EventCount  int       `json:"eventCount"`
	TokenCount  int       `json:"tokenCount"`
	ErrorCount  int       `json:"errorCount"`
	UniqueTypes int       `json:"uniqueEventTypes"`
}

// ComputeBuckets groups events by interval, ordered by bucket start.
func ComputeBuckets(events []Event, interval Interval) []TimeBucket {
	type acc struct {
		b     TimeBucket
		types map[EventType]struct{}
	}
	byStart := map[time.Time]*acc{}
	var order []time.Time
	for i := range events {
		start := interval.Truncate(events[i].Timestamp)
		a, ok := byStart[start]
		if !ok {
			a = &acc{b: TimeBucket{Bucket: start}, types: map[EventType]struct{}{}}
			byStart[start] = a
			order = append(order, start)
		}
		a.b.EventCount++
		a.b.TokenCount += events[i].TokenCount()
		if events[i].Severity.IsError() {
			a.b.ErrorCount++
		}
		a.types[events[i].Type] = struct{}{}
	}

	slices.SortFunc(order, time.Time.Compare)
	out := make([]TimeBucket, 0, len(order))
	for _, start := range order {
		a := byStart[start]
		a.b.UniqueTypes = len(a.types)
		out = append(out, a.b)
	}
	return out
}
