package agent

import (
	"fmt"
	"strings"
	"time"
)

// SessionContext describes what an agent session set out to do.
type SessionContext struct {
	Objective     string `json:"objective,omitempty"`
	DevlogID      *int64 `json:"devlogId,omitempty"`
	Branch        string `json:"branch,omitempty"`
	InitialCommit string `json:"initialCommit,omitempty"`
	FinalCommit   string `json:"finalCommit,omitempty"`
	TriggeredBy   string `json:"triggeredBy,omitempty"`
}

// SessionMetrics are counters rolled up from a session's events.
type SessionMetrics struct {
	EventsCount       int `json:"eventsCount"`
	FilesModified     int `json:"filesModified"`
	LinesAdded        int `json:"linesAdded"`
	LinesRemoved      int `json:"linesRemoved"`
	TokensUsed        int `json:"tokensUsed"`
	CommandsExecuted  int `json:"commandsExecuted"`
	ErrorsEncountered int `json:"errorsEncountered"`
	TestsRun          int `json:"testsRun"`
	TestsPassed       int `json:"testsPassed"`
	BuildAttempts     int `json:"buildAttempts"`
	BuildSuccesses    int `json:"buildSuccesses"`
}

// Add folds one event into the counters.
func (m *SessionMetrics) Add(e *Event) {
	m.EventsCount++
	m.TokensUsed += e.TokenCount()
	switch e.Type {
	case EventFileWrite, EventFileCreate, EventFileDelete:
		m.FilesModified++
		if e.Metrics != nil {
			m.LinesAdded += e.Metrics.LinesChanged
		}
	case EventCommandExecute:
		m.CommandsExecuted++
	case EventTestRun:
		m.TestsRun++
		if passed, ok := e.Data["passed"].(bool); ok && passed {
			m.TestsPassed++
		}
	case EventBuildTrigger:
		m.BuildAttempts++
		if ok, _ := e.Data["success"].(bool); ok {
			m.BuildSuccesses++
		}
	case EventErrorEncountered:
		m.ErrorsEncountered++
		return
	}
	if e.Severity.IsError() {
		m.ErrorsEncountered++
	}
}

// Merge adds other's counters to m.
func (m *SessionMetrics) Merge(other SessionMetrics) {
	m.EventsCount += other.EventsCount
	m.FilesModified += other.FilesModified
	m.LinesAdded += other.LinesAdded
	m.LinesRemoved += other.LinesRemoved
	m.TokensUsed += other.TokensUsed
	m.CommandsExecuted += other.CommandsExecuted
	m.ErrorsEncountered += other.ErrorsEncountered
	m.TestsRun += other.TestsRun
	m.TestsPassed += other.TestsPassed
	m.BuildAttempts += other.BuildAttempts
	m.BuildSuccesses += other.BuildSuccesses
}

// Session is one continuous run of an agent on a project. EndTime and
// Duration are set when the session ends.
type Session struct {
	ID           string         `json:"id"`
	AgentID      string         `json:"agentId"`
	AgentVersion string         `json:"agentVersion,omitempty"`
	ProjectID    int64          `json:"projectId"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	Duration     *int64         `json:"duration,omitempty"` // seconds
	Context      SessionContext `json:"context"`
	Metrics      SessionMetrics `json:"metrics"`
	Outcome      Outcome        `json:"outcome,omitempty"`
	QualityScore *float64       `json:"qualityScore,omitempty"`
}

// Active reports whether the session has not ended yet.
func (s *Session) Active() bool { return s.EndTime == nil }

// StartInput is the payload for starting a session.
type StartInput struct {
	ID           string         `json:"id,omitempty"`
	AgentID      string         `json:"agentId"`
	AgentVersion string         `json:"agentVersion,omitempty"`
	ProjectID    int64          `json:"projectId"`
	Context      SessionContext `json:"context"`
}

// Validate checks a start input.
func (in StartInput) Validate() error {
	if strings.TrimSpace(in.AgentID) == "" {
		return fmt.Errorf("agentId is required")
	}
	if in.ProjectID <= 0 {
		return fmt.Errorf("projectId is required")
	}
	return nil
}

// EndInput is the payload for ending a session.
type EndInput struct {
	Outcome      Outcome  `json:"outcome"`
	QualityScore *float64 `json:"qualityScore,omitempty"`
	FinalCommit  string   `json:"finalCommit,omitempty"`
}

// Validate checks an end input. QualityScore must lie in 0..100.
func (in EndInput) Validate() error {
	if err := ValidateOutcome(in.Outcome); err != nil {
		return err
	}
	if in.QualityScore != nil && (*in.QualityScore < 0 || *in.QualityScore > 100) {
		return fmt.Errorf("qualityScore must be between 0 and 100")
	}
	return nil
}

// End stamps the end of a session and computes its duration.
func (s *Session) End(in EndInput, now time.Time) error {
	if !s.Active() {
		return fmt.Errorf("session %s already ended", s.ID)
	}
	if now.Before(s.StartTime) {
		now = s.StartTime
	}
	d := int64(now.Sub(s.StartTime) / time.Second)
	s.EndTime = &now
	s.Duration = &d
	s.Outcome = in.Outcome
	s.QualityScore = in.QualityScore
	if in.FinalCommit != "" {
		s.Context.FinalCommit = in.FinalCommit
	}
	return nil
}

// SessionFilter narrows a session listing.
type SessionFilter struct {
	ProjectID  int64      `json:"projectId,omitempty"`
	AgentID    string     `json:"agentId,omitempty"`
	Outcome    Outcome    `json:"outcome,omitempty"`
	ActiveOnly bool       `json:"activeOnly,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// Normalize validates the outcome and clamps the page window.
func (f *SessionFilter) Normalize() error {
	if f.Outcome != "" {
		if err := ValidateOutcome(f.Outcome); err != nil {
			return err
		}
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > MaxEventLimit {
		f.Limit = MaxEventLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}
