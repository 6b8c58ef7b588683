package devlog

import (
	"strings"
	"testing"
	"time"
)

// --- Enum validation ---

func TestValidateType(t *testing.T) {
	for _, v := range AllTypes {
		if err := ValidateType(v); err != nil {
			t.Errorf("ValidateType(%q) unexpected error: %v", v, err)
		}
	}
	err := ValidateType("epic")
	if err == nil {
		t.Fatal("ValidateType(epic) should fail")
	}
	if !strings.Contains(err.Error(), "feature, bugfix, task, refactor, docs") {
		t.Errorf("error should list valid types, got: %v", err)
	}
}

func TestValidateStatus(t *testing.T) {
	tests := []struct {
		status  Status
		wantErr bool
	}{
		{StatusNew, false},
		{StatusInProgress, false},
		{StatusBlocked, false},
		{StatusInReview, false},
		{StatusTesting, false},
		{StatusDone, false},
		{StatusCancelled, false},
		{"in_progress", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			err := ValidateStatus(tt.status)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStatus(%q) err = %v, wantErr %v", tt.status, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePriorityAndRank(t *testing.T) {
	if err := ValidatePriority("urgent"); err == nil {
		t.Error("ValidatePriority(urgent) should fail")
	}
	if PriorityLow.Rank() >= PriorityCritical.Rank() {
		t.Error("low should rank below critical")
	}
	if Priority("nope").Rank() != 0 {
		t.Error("unknown priority should rank 0")
	}
}

func TestValidateNoteCategory(t *testing.T) {
	if err := ValidateNoteCategory(NoteAcceptanceCriteria); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNoteCategory("rant"); err == nil {
		t.Error("ValidateNoteCategory(rant) should fail")
	}
}

// --- Entry ---

func validEntry() *Entry {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Entry{
		Title:     "Add login",
		Type:      TypeFeature,
		Status:    StatusNew,
		Priority:  PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestEntryValidate(t *testing.T) {
	e := validEntry()
	if err := e.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}

	e.Title = "   "
	if err := e.Validate(); err == nil {
		t.Error("blank title should be rejected")
	}

	e = validEntry()
	e.Status = StatusDone
	if err := e.Validate(); err == nil {
		t.Error("done without closedAt should be rejected")
	}
}

func TestEntryClone_DoesNotAlias(t *testing.T) {
	e := validEntry()
	e.Files = []string{"a.go"}
	e.Context.AcceptanceCriteria = []string{"works"}

	c := e.Clone()
	c.Files[0] = "b.go"
	c.Context.AcceptanceCriteria[0] = "broken"

	if e.Files[0] != "a.go" {
		t.Error("clone aliases Files")
	}
	if e.Context.AcceptanceCriteria[0] != "works" {
		t.Error("clone aliases AcceptanceCriteria")
	}
}

func TestEntryClone_DeepCopiesNestedValues(t *testing.T) {
	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	synced := updated.Add(time.Hour)
	e := validEntry()
	e.AIContext = AIContext{
		KeyInsights:        []string{"cache is cold"},
		OpenQuestions:      []string{"shard?"},
		RelatedPatterns:    []string{"outbox"},
		SuggestedNextSteps: []string{"benchmark"},
		LastAIUpdate:       &updated,
	}
	e.Context.Decisions = []Decision{{ID: "d1", Alternatives: []string{"cron"}}}
	e.Notes = []Note{{ID: "n1", Files: []string{"a.go"}}}
	e.ExternalReferences = []ExternalReference{{System: "jira", ID: "OPS-1", LastSync: &synced}}

	c := e.Clone()
	c.AIContext.KeyInsights[0] = "x"
	c.AIContext.OpenQuestions[0] = "x"
	c.AIContext.RelatedPatterns[0] = "x"
	c.AIContext.SuggestedNextSteps[0] = "x"
	*c.AIContext.LastAIUpdate = time.Time{}
	c.Context.Decisions[0].Alternatives[0] = "x"
	c.Notes[0].Files[0] = "x"
	*c.ExternalReferences[0].LastSync = time.Time{}

	for name, got := range map[string]string{
		"KeyInsights":        e.AIContext.KeyInsights[0],
		"OpenQuestions":      e.AIContext.OpenQuestions[0],
		"RelatedPatterns":    e.AIContext.RelatedPatterns[0],
		"SuggestedNextSteps": e.AIContext.SuggestedNextSteps[0],
		"Alternatives":       e.Context.Decisions[0].Alternatives[0],
		"Note files":         e.Notes[0].Files[0],
	} {
		if got == "x" {
			t.Errorf("clone aliases %s", name)
		}
	}
	if !e.AIContext.LastAIUpdate.Equal(updated) {
		t.Error("clone aliases LastAIUpdate")
	}
	if !e.ExternalReferences[0].LastSync.Equal(synced) {
		t.Error("clone aliases LastSync")
	}
}
