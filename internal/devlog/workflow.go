package devlog

import (
	"regexp"
	"strings"
	"time"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Now returns the current UTC time truncated to milliseconds, the
// precision every provider can round-trip.
func Now() time.Time {
	return timeNow().UTC().Truncate(time.Millisecond)
}

// OpenStatuses are the statuses that count as work still in flight.
var OpenStatuses = []Status{StatusNew, StatusInProgress, StatusBlocked, StatusInReview, StatusTesting}

// ClosedStatuses are terminal statuses.
var ClosedStatuses = []Status{StatusDone, StatusCancelled}

// IsOpen reports whether the status is an open status.
func IsOpen(s Status) bool {
	for _, v := range OpenStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsClosed reports whether the status is terminal.
func IsClosed(s Status) bool {
	return s == StatusDone || s == StatusCancelled
}

// ApplyStatus moves the entry to status and keeps closedAt consistent:
// entering a closed status stamps closedAt, reopening clears it. Moving
// between the two closed statuses keeps the original closedAt.
func ApplyStatus(e *Entry, status Status, now time.Time) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}

	switch {
	case IsClosed(status) && e.ClosedAt == nil:
		t := now
		e.ClosedAt = &t
	case !IsClosed(status):
		e.ClosedAt = nil
	}

	e.Status = status
	Touch(e, now)
	return nil
}

// Touch bumps updatedAt, never letting it fall behind createdAt.
func Touch(e *Entry, now time.Time) {
	if now.Before(e.CreatedAt) {
		now = e.CreatedAt
	}
	e.UpdatedAt = now
}

// --- Keys ---

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// maxKeyLength bounds generated keys.
const maxKeyLength = 100

// GenerateKey derives a stable semantic key from a title.
// "Fix N+1 query in /users" → "fix-n-1-query-in-users"
func GenerateKey(title string) string {
	v := strings.ToLower(strings.TrimSpace(title))
	v = nonSlugChars.ReplaceAllString(v, " ")
	v = strings.Join(strings.Fields(v), "-")
	if len(v) > maxKeyLength {
		v = strings.TrimRight(v[:maxKeyLength], "-")
	}
	if v == "" {
		return "untitled"
	}
	return v
}

// NormalizeKey cleans a caller-supplied key the same way GenerateKey does,
// so keys given by hand and keys derived from titles share one namespace.
func NormalizeKey(key string) string {
	if strings.TrimSpace(key) == "" {
		return ""
	}
	return GenerateKey(key)
}
