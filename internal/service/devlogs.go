package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxKeyAttempts bounds the suffixes tried for a generated key:
// "key", "key-2", … "key-10".
const maxKeyAttempts = 10

// batchWorkers bounds the concurrent per-id operations of a batch.
const batchWorkers = 4

// MaxBatchSize caps the ids accepted by one batch call.
const MaxBatchSize = 100

// DevlogService manages devlog entries and their notes.
type DevlogService struct {
	store  storage.DevlogStore
	logger *zap.Logger
	now    func() time.Time
}

// ─── Inputs ──────────────────────────────────────────────────────────────────

// CreateInput is the payload for a new entry. Empty enums take their
// defaults: type task, priority medium, status new.
type CreateInput struct {
	Key                string                     `json:"key,omitempty"`
	Title              string                     `json:"title"`
	Type               devlog.EntryType           `json:"type,omitempty"`
	Description        string                     `json:"description,omitempty"`
	Status             devlog.Status              `json:"status,omitempty"`
	Priority           devlog.Priority            `json:"priority,omitempty"`
	Assignee           string                     `json:"assignee,omitempty"`
	ProjectID          int64                      `json:"projectId"`
	Files              []string                   `json:"files,omitempty"`
	RelatedDevlogs     []string                   `json:"relatedDevlogs,omitempty"`
	Context            devlog.Context             `json:"context"`
	AIContext          devlog.AIContext           `json:"aiContext"`
	ExternalReferences []devlog.ExternalReference `json:"externalReferences,omitempty"`
}

// UpdateInput is a partial update. Nil fields are left alone; non-nil
// slices replace the stored ones, except Decisions which are appended.
type UpdateInput struct {
	Title              *string                    `json:"title,omitempty"`
	Type               *devlog.EntryType          `json:"type,omitempty"`
	Description        *string                    `json:"description,omitempty"`
	Status             *devlog.Status             `json:"status,omitempty"`
	Priority           *devlog.Priority           `json:"priority,omitempty"`
	Assignee           *string                    `json:"assignee,omitempty"`
	Files              []string                   `json:"files,omitempty"`
	RelatedDevlogs     []string                   `json:"relatedDevlogs,omitempty"`
	BusinessContext    *string                    `json:"businessContext,omitempty"`
	TechnicalContext   *string                    `json:"technicalContext,omitempty"`
	AcceptanceCriteria []string                   `json:"acceptanceCriteria,omitempty"`
	Dependencies       []devlog.Dependency        `json:"dependencies,omitempty"`
	Risks              []devlog.Risk              `json:"risks,omitempty"`
	Decisions          []devlog.Decision          `json:"decisions,omitempty"`
	AIContext          *devlog.AIContext          `json:"aiContext,omitempty"`
	ExternalReferences []devlog.ExternalReference `json:"externalReferences,omitempty"`

	// Note, when set, is appended after the update is saved.
	Note *NoteInput `json:"note,omitempty"`
}

// NoteInput is the payload for a note. An empty category means progress.
type NoteInput struct {
	Category    devlog.NoteCategory `json:"category,omitempty"`
	Content     string              `json:"content"`
	Files       []string            `json:"files,omitempty"`
	CodeChanges string              `json:"codeChanges,omitempty"`
}

func (in *NoteInput) validate() error {
	if strings.TrimSpace(in.Content) == "" {
		return invalidf("note content is required")
	}
	if in.Category == "" {
		in.Category = devlog.NoteProgress
	}
	if err := devlog.ValidateNoteCategory(in.Category); err != nil {
		return invalid(err)
	}
	return nil
}

func (u *UpdateInput) validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return invalidf("title must not be empty")
	}
	if u.Type != nil {
		if err := devlog.ValidateType(*u.Type); err != nil {
			return invalid(err)
		}
	}
	if u.Status != nil {
		if err := devlog.ValidateStatus(*u.Status); err != nil {
			return invalid(err)
		}
	}
	if u.Priority != nil {
		if err := devlog.ValidatePriority(*u.Priority); err != nil {
			return invalid(err)
		}
	}
	if u.Note != nil {
		return u.Note.validate()
	}
	return nil
}

// BatchResult reports the outcome of one id of a batch call.
type BatchResult struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ─── Create / read ───────────────────────────────────────────────────────────

// Create validates and stores a new entry. A key derived from the title
// that collides with an existing one gets a numeric suffix; an explicit
// key that collides is an ErrConflict.
func (s *DevlogService) Create(ctx context.Context, in CreateInput) (*devlog.Entry, error) {
	if in.ProjectID <= 0 {
		return nil, invalidf("projectId is required")
	}
	now := s.now()
	e := &devlog.Entry{
		Title:              strings.TrimSpace(in.Title),
		Type:               in.Type,
		Description:        in.Description,
		Status:             in.Status,
		Priority:           in.Priority,
		Assignee:           in.Assignee,
		ProjectID:          in.ProjectID,
		CreatedAt:          now,
		UpdatedAt:          now,
		Files:              in.Files,
		RelatedDevlogs:     in.RelatedDevlogs,
		Context:            in.Context,
		AIContext:          in.AIContext,
		ExternalReferences: in.ExternalReferences,
	}
	if e.Type == "" {
		e.Type = devlog.TypeTask
	}
	if e.Priority == "" {
		e.Priority = devlog.PriorityMedium
	}
	if e.Status == "" {
		e.Status = devlog.StatusNew
	}
	if devlog.IsClosed(e.Status) {
		e.ClosedAt = &now
	}
	e.Context.Decisions = devlog.CloneDecisions(in.Context.Decisions)
	stampDecisions(e.Context.Decisions, now)
	if err := e.Validate(); err != nil {
		return nil, invalid(err)
	}

	base := devlog.NormalizeKey(in.Key)
	attempts := 1
	if base == "" {
		base = devlog.GenerateKey(e.Title)
		attempts = maxKeyAttempts
	}
	for i := 1; i <= attempts; i++ {
		e.ID = 0
		e.Key = base
		if i > 1 {
			e.Key = fmt.Sprintf("%s-%d", base, i)
		}
		err := s.store.Save(ctx, e)
		if err == nil {
			s.logger.Debug("devlog created", zap.Int64("id", e.ID), zap.String("key", e.Key), zap.Int64("project", e.ProjectID))
			return e, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("create devlog: key %q is taken: %w", base, storage.ErrConflict)
}

// Get returns an entry of the project with its notes. projectID 0 skips
// the project check.
func (s *DevlogService) Get(ctx context.Context, projectID, id int64) (*devlog.Entry, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if projectID != 0 && e.ProjectID != projectID {
		return nil, fmt.Errorf("get devlog %d: not in project %d: %w", id, projectID, storage.ErrNotFound)
	}
	return e, nil
}

// List returns one page of matching entries.
func (s *DevlogService) List(ctx context.Context, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	if err := f.Validate(); err != nil {
		return devlog.Page[*devlog.Entry]{}, invalid(err)
	}
	return s.store.List(ctx, f, p)
}

// Search runs a full-text query within the filter.
func (s *DevlogService) Search(ctx context.Context, query string, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	if err := f.Validate(); err != nil {
		return devlog.Page[*devlog.Entry]{}, invalid(err)
	}
	return s.store.Search(ctx, strings.TrimSpace(query), f, p)
}

// Stats aggregates the matching entries.
func (s *DevlogService) Stats(ctx context.Context, f devlog.Filter) (*devlog.Stats, error) {
	if err := f.Validate(); err != nil {
		return nil, invalid(err)
	}
	return s.store.Stats(ctx, f)
}

// TimeSeries returns the per-day history of the last days days.
func (s *DevlogService) TimeSeries(ctx context.Context, projectID int64, days int) (*devlog.TimeSeriesStats, error) {
	from, to := devlog.TimeSeriesRange(days)
	return s.store.TimeSeries(ctx, projectID, from, to)
}

// Notes returns the newest notes of an entry first.
func (s *DevlogService) Notes(ctx context.Context, projectID, id int64, limit int) ([]devlog.Note, error) {
	if _, err := s.Get(ctx, projectID, id); err != nil {
		return nil, err
	}
	return s.store.Notes(ctx, id, limit)
}

// ─── Mutations ───────────────────────────────────────────────────────────────

// Update applies a partial update. Status changes keep closedAt
// consistent, and the optional note is appended after the save.
func (s *DevlogService) Update(ctx context.Context, projectID, id int64, in UpdateInput) (*devlog.Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := applyUpdate(e, in, now); err != nil {
		return nil, err
	}
	if err := s.save(ctx, e); err != nil {
		return nil, err
	}
	if in.Note != nil {
		n, err := s.addNote(ctx, e.ID, *in.Note)
		if err != nil {
			return nil, err
		}
		e.Notes = append(e.Notes, *n)
	}
	return e, nil
}

func applyUpdate(e *devlog.Entry, in UpdateInput, now time.Time) error {
	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Type != nil {
		e.Type = *in.Type
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Priority != nil {
		e.Priority = *in.Priority
	}
	if in.Assignee != nil {
		e.Assignee = *in.Assignee
	}
	if in.Files != nil {
		e.Files = in.Files
	}
	if in.RelatedDevlogs != nil {
		e.RelatedDevlogs = in.RelatedDevlogs
	}
	if in.BusinessContext != nil {
		e.Context.BusinessContext = *in.BusinessContext
	}
	if in.TechnicalContext != nil {
		e.Context.TechnicalContext = *in.TechnicalContext
	}
	if in.AcceptanceCriteria != nil {
		e.Context.AcceptanceCriteria = in.AcceptanceCriteria
	}
	if in.Dependencies != nil {
		e.Context.Dependencies = in.Dependencies
	}
	if in.Risks != nil {
		e.Context.Risks = in.Risks
	}
	if len(in.Decisions) > 0 {
		// Each entry gets its own copy; batch updates share one input.
		added := devlog.CloneDecisions(in.Decisions)
		stampDecisions(added, now)
		e.Context.Decisions = append(e.Context.Decisions, added...)
	}
	if in.AIContext != nil {
		version := e.AIContext.ContextVersion
		e.AIContext = *in.AIContext
		e.AIContext.ContextVersion = version + 1
		e.AIContext.LastAIUpdate = &now
	}
	if in.ExternalReferences != nil {
		e.ExternalReferences = in.ExternalReferences
	}
	if in.Status != nil {
		if err := devlog.ApplyStatus(e, *in.Status, now); err != nil {
			return invalid(err)
		}
	}
	devlog.Touch(e, now)
	return nil
}

func stampDecisions(decisions []devlog.Decision, now time.Time) {
	for i := range decisions {
		if decisions[i].ID == "" {
			decisions[i].ID = uuid.NewString()
		}
		if decisions[i].Timestamp.IsZero() {
			decisions[i].Timestamp = now
		}
	}
}

// AddNote appends a note to an entry of the project.
func (s *DevlogService) AddNote(ctx context.Context, projectID, id int64, in NoteInput) (*devlog.Note, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, projectID, id); err != nil {
		return nil, err
	}
	return s.addNote(ctx, id, in)
}

func (s *DevlogService) addNote(ctx context.Context, id int64, in NoteInput) (*devlog.Note, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	n := &devlog.Note{
		ID:          uuid.NewString(),
		EntryID:     id,
		Timestamp:   s.now(),
		Category:    in.Category,
		Content:     strings.TrimSpace(in.Content),
		Files:       in.Files,
		CodeChanges: in.CodeChanges,
	}
	if err := s.store.AddNote(ctx, id, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Complete marks the entry done and records the summary as a solution
// note.
func (s *DevlogService) Complete(ctx context.Context, projectID, id int64, summary string) (*devlog.Entry, error) {
	return s.finish(ctx, projectID, id, devlog.StatusDone, devlog.NoteSolution, summary)
}

// Close cancels the entry and records the reason as a progress note.
func (s *DevlogService) Close(ctx context.Context, projectID, id int64, reason string) (*devlog.Entry, error) {
	if reason = strings.TrimSpace(reason); reason != "" {
		reason = "Closed: " + reason
	}
	return s.finish(ctx, projectID, id, devlog.StatusCancelled, devlog.NoteProgress, reason)
}

func (s *DevlogService) finish(ctx context.Context, projectID, id int64, status devlog.Status, cat devlog.NoteCategory, text string) (*devlog.Entry, error) {
	in := UpdateInput{Status: &status}
	if strings.TrimSpace(text) != "" {
		in.Note = &NoteInput{Category: cat, Content: text}
	}
	return s.Update(ctx, projectID, id, in)
}

// Archive hides the entry from default listings.
func (s *DevlogService) Archive(ctx context.Context, projectID, id int64) (*devlog.Entry, error) {
	return s.setArchived(ctx, projectID, id, true)
}

// Unarchive returns the entry to default listings.
func (s *DevlogService) Unarchive(ctx context.Context, projectID, id int64) (*devlog.Entry, error) {
	return s.setArchived(ctx, projectID, id, false)
}

func (s *DevlogService) setArchived(ctx context.Context, projectID, id int64, archived bool) (*devlog.Entry, error) {
	e, err := s.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if e.Archived == archived {
		return e, nil
	}
	e.Archived = archived
	devlog.Touch(e, s.now())
	if err := s.save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes the entry. Providers that cannot delete archive instead.
func (s *DevlogService) Delete(ctx context.Context, projectID, id int64) error {
	if _, err := s.Get(ctx, projectID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("devlog deleted", zap.Int64("id", id))
	return nil
}

func (s *DevlogService) save(ctx context.Context, e *devlog.Entry) error {
	if err := e.Validate(); err != nil {
		return invalid(err)
	}
	return s.store.Save(ctx, e)
}

// ─── Batches ─────────────────────────────────────────────────────────────────

// BatchUpdate applies the same update to every id.
func (s *DevlogService) BatchUpdate(ctx context.Context, projectID int64, ids []int64, in UpdateInput) ([]BatchResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return s.batch(ctx, ids, func(ctx context.Context, id int64) error {
		_, err := s.Update(ctx, projectID, id, in)
		return err
	})
}

// BatchDelete deletes every id.
func (s *DevlogService) BatchDelete(ctx context.Context, projectID int64, ids []int64) ([]BatchResult, error) {
	return s.batch(ctx, ids, func(ctx context.Context, id int64) error {
		return s.Delete(ctx, projectID, id)
	})
}

// BatchNote appends the same note to every id.
func (s *DevlogService) BatchNote(ctx context.Context, projectID int64, ids []int64, in NoteInput) ([]BatchResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return s.batch(ctx, ids, func(ctx context.Context, id int64) error {
		_, err := s.AddNote(ctx, projectID, id, in)
		return err
	})
}

// batch runs fn for every id and reports each outcome in input order. A
// failing id never stops the others.
func (s *DevlogService) batch(ctx context.Context, ids []int64, fn func(context.Context, int64) error) ([]BatchResult, error) {
	if len(ids) == 0 {
		return nil, invalidf("ids must not be empty")
	}
	if len(ids) > MaxBatchSize {
		return nil, invalidf("at most %d ids per batch, got %d", MaxBatchSize, len(ids))
	}

	results := make([]BatchResult, len(ids))
	var g errgroup.Group
	g.SetLimit(batchWorkers)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = BatchResult{ID: id, Success: true}
			if err := fn(ctx, id); err != nil {
				results[i] = BatchResult{ID: id, Error: err.Error()}
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.logger.Debug("batch finished", zap.Int("ids", len(ids)), zap.Int("failed", failed))
	return results, nil
}
