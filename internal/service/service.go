// Package service holds the business rules that sit between the REST
// handlers and the storage providers: defaults, validation, key
// assignment, status transitions, batch fan-out and the hierarchy and
// agent-session bookkeeping.
//
// Validation failures wrap storage.ErrInvalid so the API layer maps every
// error through one set of sentinels.
package service

import (
	"fmt"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/storage"
	"go.uber.org/zap"
)

// Services bundles the three services over one backend.
type Services struct {
	Devlogs   *DevlogService
	Hierarchy *HierarchyService
	Events    *EventService
}

type options struct {
	now func() time.Time
}

// Option configures the services.
type Option func(*options)

// WithClock replaces the wall clock. Times are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds the services over b.
func New(b *storage.Backend, logger *zap.Logger, opts ...Option) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{now: devlog.Now}
	for _, opt := range opts {
		opt(&o)
	}
	clock := func() time.Time { return o.now().UTC() }
	return &Services{
		Devlogs:   &DevlogService{store: b.Devlogs, logger: logger.Named("devlogs"), now: clock},
		Hierarchy: &HierarchyService{store: b.Hierarchy, logger: logger.Named("hierarchy"), now: clock},
		Events:    &EventService{store: b.Events, logger: logger.Named("events"), now: clock},
	}
}

// invalid marks err as a validation failure.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", storage.ErrInvalid, err)
}

func invalidf(format string, args ...any) error {
	return invalid(fmt.Errorf(format, args...))
}
