// Package devlog holds the domain model for work items ("devlog entries").
//
// The package is persistence-agnostic: storage providers, the REST API and
// the MCP adapter all exchange these types. It follows the same layout as
// the rest of the module:
// - types.go: enums with Validate funcs and the entry/note structs
// - workflow.go: the status state machine (open/closed, closedAt)
// - query.go: filters, pagination, sorting and in-memory matching
// - stats.go: aggregation shared by providers without SQL aggregation
package devlog

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// --- Entry type enum ---

// EntryType categorizes what kind of work an entry represents.
type EntryType string

const (
	TypeFeature  EntryType = "feature"
	TypeBugfix   EntryType = "bugfix"
	TypeTask     EntryType = "task"
	TypeRefactor EntryType = "refactor"
	TypeDocs     EntryType = "docs"
)

// AllTypes lists entry types in display order.
var AllTypes = []EntryType{TypeFeature, TypeBugfix, TypeTask, TypeRefactor, TypeDocs}

// ValidateType returns an error if the type is not recognized.
func ValidateType(t EntryType) error {
	for _, v := range AllTypes {
		if v == t {
			return nil
		}
	}
	return fmt.Errorf("invalid devlog type %q: must be one of: %s", t, joinEnum(AllTypes))
}

// --- Status enum ---

// Status is the workflow position of an entry.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in-progress"
	StatusBlocked    Status = "blocked"
	StatusInReview   Status = "in-review"
	StatusTesting    Status = "testing"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists statuses in workflow order.
var AllStatuses = []Status{
	StatusNew, StatusInProgress, StatusBlocked, StatusInReview,
	StatusTesting, StatusDone, StatusCancelled,
}

// ValidateStatus returns an error if the status is not recognized.
func ValidateStatus(s Status) error {
	for _, v := range AllStatuses {
		if v == s {
			return nil
		}
	}
	return fmt.Errorf("invalid devlog status %q: must be one of: %s", s, joinEnum(AllStatuses))
}

// --- Priority enum ---

// Priority ranks entries for triage.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AllPriorities lists priorities from lowest to highest.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ValidatePriority returns an error if the priority is not recognized.
func ValidatePriority(p Priority) error {
	for _, v := range AllPriorities {
		if v == p {
			return nil
		}
	}
	return fmt.Errorf("invalid devlog priority %q: must be one of: %s", p, joinEnum(AllPriorities))
}

// Rank returns the ordinal of a priority (0 for unknown values).
func (p Priority) Rank() int {
	for i, v := range AllPriorities {
		if v == p {
			return i + 1
		}
	}
	return 0
}

// --- Note category enum ---

// NoteCategory classifies a progress note.
type NoteCategory string

const (
	NoteProgress           NoteCategory = "progress"
	NoteIssue              NoteCategory = "issue"
	NoteSolution           NoteCategory = "solution"
	NoteIdea               NoteCategory = "idea"
	NoteReminder           NoteCategory = "reminder"
	NoteFeedback           NoteCategory = "feedback"
	NoteAcceptanceCriteria NoteCategory = "acceptance-criteria"
)

// AllNoteCategories lists the accepted note categories.
var AllNoteCategories = []NoteCategory{
	NoteProgress, NoteIssue, NoteSolution, NoteIdea,
	NoteReminder, NoteFeedback, NoteAcceptanceCriteria,
}

// ValidateNoteCategory returns an error if the category is not recognized.
func ValidateNoteCategory(c NoteCategory) error {
	for _, v := range AllNoteCategories {
		if v == c {
			return nil
		}
	}
	return fmt.Errorf("invalid note category %q: must be one of: %s", c, joinEnum(AllNoteCategories))
}

// --- Dependency type enum ---

// DependencyType describes how an entry relates to outside work.
type DependencyType string

const (
	DependencyBlocks    DependencyType = "blocks"
	DependencyBlockedBy DependencyType = "blocked-by"
	DependencyRelatedTo DependencyType = "related-to"
)

// --- Structs ---

// Entry is a tracked unit of engineering work.
type Entry struct {
	ID                 int64               `json:"id"`
	Key                string              `json:"key"`
	Title              string              `json:"title"`
	Type               EntryType           `json:"type"`
	Description        string              `json:"description"`
	Status             Status              `json:"status"`
	Priority           Priority            `json:"priority"`
	Assignee           string              `json:"assignee,omitempty"`
	ProjectID          int64               `json:"projectId"`
	Archived           bool                `json:"archived"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	ClosedAt           *time.Time          `json:"closedAt,omitempty"`
	Files              []string            `json:"files,omitempty"`
	RelatedDevlogs     []string            `json:"relatedDevlogs,omitempty"`
	Notes              []Note              `json:"notes,omitempty"`
	Context            Context             `json:"context"`
	AIContext          AIContext           `json:"aiContext"`
	ExternalReferences []ExternalReference `json:"externalReferences,omitempty"`
}

// Context captures the business and technical background of an entry.
type Context struct {
	BusinessContext    string       `json:"businessContext,omitempty"`
	TechnicalContext   string       `json:"technicalContext,omitempty"`
	Dependencies       []Dependency `json:"dependencies,omitempty"`
	Decisions          []Decision   `json:"decisions,omitempty"`
	AcceptanceCriteria []string     `json:"acceptanceCriteria,omitempty"`
	Risks              []Risk       `json:"risks,omitempty"`
}

// Dependency links an entry to other work.
type Dependency struct {
	Type        DependencyType `json:"type"`
	Description string         `json:"description"`
	ExternalID  string         `json:"externalId,omitempty"`
}

// Decision records a design choice made while working on an entry.
type Decision struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Decision      string    `json:"decision"`
	Rationale     string    `json:"rationale"`
	Alternatives  []string  `json:"alternatives,omitempty"`
	DecisionMaker string    `json:"decisionMaker"`
}

// Risk is a known hazard with its mitigation.
type Risk struct {
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Probability string `json:"probability"`
	Mitigation  string `json:"mitigation"`
}

// AIContext is the summary an AI agent keeps current while working.
type AIContext struct {
	CurrentSummary     string     `json:"currentSummary,omitempty"`
	KeyInsights        []string   `json:"keyInsights,omitempty"`
	OpenQuestions      []string   `json:"openQuestions,omitempty"`
	RelatedPatterns    []string   `json:"relatedPatterns,omitempty"`
	SuggestedNextSteps []string   `json:"suggestedNextSteps,omitempty"`
	LastAIUpdate       *time.Time `json:"lastAIUpdate,omitempty"`
	ContextVersion     int        `json:"contextVersion"`
}

// ExternalReference points at the same work in another tracker.
type ExternalReference struct {
	System   string     `json:"system"`
	ID       string     `json:"id"`
	URL      string     `json:"url,omitempty"`
	Title    string     `json:"title,omitempty"`
	Status   string     `json:"status,omitempty"`
	LastSync *time.Time `json:"lastSync,omitempty"`
}

// Note is an append-only progress record attached to an entry.
type Note struct {
	ID          string       `json:"id"`
	EntryID     int64        `json:"devlogId"`
	Timestamp   time.Time    `json:"timestamp"`
	Category    NoteCategory `json:"category"`
	Content     string       `json:"content"`
	Files       []string     `json:"files,omitempty"`
	CodeChanges string       `json:"codeChanges,omitempty"`
}

// Clone returns a deep copy of the entry so callers can mutate the copy
// without aliasing the original.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Files = slices.Clone(e.Files)
	c.RelatedDevlogs = slices.Clone(e.RelatedDevlogs)
	c.Notes = slices.Clone(e.Notes)
	for i := range c.Notes {
		c.Notes[i].Files = slices.Clone(e.Notes[i].Files)
	}
	c.ExternalReferences = slices.Clone(e.ExternalReferences)
	for i := range c.ExternalReferences {
		c.ExternalReferences[i].LastSync = clonePtr(e.ExternalReferences[i].LastSync)
	}
	c.Context.Dependencies = slices.Clone(e.Context.Dependencies)
	c.Context.Decisions = CloneDecisions(e.Context.Decisions)
	c.Context.AcceptanceCriteria = slices.Clone(e.Context.AcceptanceCriteria)
	c.Context.Risks = slices.Clone(e.Context.Risks)
	c.AIContext.KeyInsights = slices.Clone(e.AIContext.KeyInsights)
	c.AIContext.OpenQuestions = slices.Clone(e.AIContext.OpenQuestions)
	c.AIContext.RelatedPatterns = slices.Clone(e.AIContext.RelatedPatterns)
	c.AIContext.SuggestedNextSteps = slices.Clone(e.AIContext.SuggestedNextSteps)
	c.AIContext.LastAIUpdate = clonePtr(e.AIContext.LastAIUpdate)
	c.ClosedAt = clonePtr(e.ClosedAt)
	return &c
}

// CloneDecisions copies decisions along with their alternatives.
func CloneDecisions(ds []Decision) []Decision {
	out := slices.Clone(ds)
	for i := range out {
		out[i].Alternatives = slices.Clone(ds[i].Alternatives)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Validate checks the enum fields and required values of an entry.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if err := ValidateType(e.Type); err != nil {
		return err
	}
	if err := ValidateStatus(e.Status); err != nil {
		return err
	}
	if err := ValidatePriority(e.Priority); err != nil {
		return err
	}
	if IsClosed(e.Status) != (e.ClosedAt != nil) {
		return fmt.Errorf("closedAt must be set exactly when status is closed (status: %s)", e.Status)
	}
	return nil
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
