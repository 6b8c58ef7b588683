package storage

import (
	"errors"
	"fmt"
	"testing"
)

type countingCloser struct {
	calls int
	err   error
}

func (c *countingCloser) Close() error {
	c.calls++
	return c.err
}

func TestBackendClose_Once(t *testing.T) {
	a := &countingCloser{}
	b := &countingCloser{err: errors.New("boom")}
	backend := NewBackend(nil, nil, nil, a, b)

	err := backend.Close()
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Close() = %v, want boom", err)
	}
	if err2 := backend.Close(); err2 != err {
		t.Errorf("second Close() = %v, want the first result", err2)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("closers called %d/%d times, want 1/1", a.calls, b.calls)
	}
}

func TestSentinelsWrap(t *testing.T) {
	err := fmt.Errorf("devlog 42: %w", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped error should match ErrNotFound")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("wrapped error should not match ErrConflict")
	}
}
