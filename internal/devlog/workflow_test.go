package devlog

import (
	"testing"
	"time"
)

func TestIsOpenIsClosed(t *testing.T) {
	for _, s := range OpenStatuses {
		if !IsOpen(s) || IsClosed(s) {
			t.Errorf("%s should be open", s)
		}
	}
	for _, s := range ClosedStatuses {
		if IsOpen(s) || !IsClosed(s) {
			t.Errorf("%s should be closed", s)
		}
	}
}

func TestApplyStatus_ClosingStampsClosedAt(t *testing.T) {
	e := validEntry()
	now := e.CreatedAt.Add(2 * time.Hour)

	if err := ApplyStatus(e, StatusDone, now); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if e.ClosedAt == nil || !e.ClosedAt.Equal(now) {
		t.Fatalf("closedAt = %v, want %v", e.ClosedAt, now)
	}
	if !e.UpdatedAt.Equal(now) {
		t.Errorf("updatedAt = %v, want %v", e.UpdatedAt, now)
	}
}

func TestApplyStatus_ClosedToClosedKeepsClosedAt(t *testing.T) {
	e := validEntry()
	first := e.CreatedAt.Add(time.Hour)
	if err := ApplyStatus(e, StatusDone, first); err != nil {
		t.Fatal(err)
	}
	if err := ApplyStatus(e, StatusCancelled, first.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if !e.ClosedAt.Equal(first) {
		t.Errorf("closedAt moved: %v, want %v", e.ClosedAt, first)
	}
}

func TestApplyStatus_ReopenClearsClosedAt(t *testing.T) {
	e := validEntry()
	_ = ApplyStatus(e, StatusDone, e.CreatedAt.Add(time.Hour))
	if err := ApplyStatus(e, StatusInProgress, e.CreatedAt.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if e.ClosedAt != nil {
		t.Errorf("closedAt should be cleared on reopen, got %v", e.ClosedAt)
	}
	if err := e.Validate(); err != nil {
		t.Errorf("entry invalid after reopen: %v", err)
	}
}

func TestApplyStatus_InvalidStatus(t *testing.T) {
	e := validEntry()
	if err := ApplyStatus(e, "finished", e.CreatedAt); err == nil {
		t.Fatal("expected error for invalid status")
	}
	if e.Status != StatusNew {
		t.Errorf("status changed on error: %s", e.Status)
	}
}

func TestTouch_NeverBeforeCreated(t *testing.T) {
	e := validEntry()
	Touch(e, e.CreatedAt.Add(-time.Hour))
	if e.UpdatedAt.Before(e.CreatedAt) {
		t.Errorf("updatedAt %v before createdAt %v", e.UpdatedAt, e.CreatedAt)
	}
}

func TestGenerateKey(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Fix N+1 query in /users", "fix-n-1-query-in-users"},
		{"  Add   OAuth  ", "add-oauth"},
		{"", "untitled"},
		{"!!!", "untitled"},
		{"Ünïcode title", "n-code-title"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := GenerateKey(tt.title); got != tt.want {
				t.Errorf("GenerateKey(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestGenerateKey_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "word "
	}
	got := GenerateKey(long)
	if len(got) > maxKeyLength {
		t.Errorf("key length = %d, want <= %d", len(got), maxKeyLength)
	}
	if got[len(got)-1] == '-' {
		t.Errorf("key should not end with a dash: %q", got)
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey(""); got != "" {
		t.Errorf("NormalizeKey(\"\") = %q, want empty", got)
	}
	if got := NormalizeKey("Auth Model"); got != "auth-model" {
		t.Errorf("NormalizeKey = %q, want auth-model", got)
	}
}
