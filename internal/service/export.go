package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/storage"
	"go.uber.org/zap"
)

// ExportVersion is written into every export.
const ExportVersion = "1"

// ExportData is a portable dump of one project's entries and notes.
type ExportData struct {
	Version    string            `json:"version"`
	ExportedAt string            `json:"exportedAt"`
	Project    hierarchy.Project `json:"project"`
	Entries    []*devlog.Entry   `json:"entries"`
}

// ImportResult counts what an import did.
type ImportResult struct {
	EntriesImported int      `json:"entriesImported"`
	EntriesSkipped  int      `json:"entriesSkipped"`
	NotesImported   int      `json:"notesImported"`
	Errors          []string `json:"errors,omitempty"`
}

// Export dumps every entry of the project, archived ones included, with
// notes oldest first.
func (s *Services) Export(ctx context.Context, projectID int64) (*ExportData, error) {
	p, err := s.Hierarchy.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{
		Version:    ExportVersion,
		ExportedAt: s.Devlogs.now().Format(time.RFC3339),
		Project:    *p,
		Entries:    []*devlog.Entry{},
	}

	f := devlog.Filter{ProjectID: projectID, Archived: devlog.ArchiveInclude}
	pg := devlog.Pagination{Page: 1, Limit: devlog.MaxPageSize, SortBy: devlog.SortID, SortOrder: devlog.SortAsc}
	for {
		page, err := s.Devlogs.store.List(ctx, f, pg)
		if err != nil {
			return nil, fmt.Errorf("export: list entries: %w", err)
		}
		for _, e := range page.Items {
			notes, err := s.Devlogs.store.Notes(ctx, e.ID, 0)
			if err != nil {
				return nil, fmt.Errorf("export: notes of %d: %w", e.ID, err)
			}
			slices.Reverse(notes)
			e.Notes = notes
			data.Entries = append(data.Entries, e)
		}
		if !page.Pagination.HasNextPage {
			break
		}
		pg.Page++
	}
	return data, nil
}

// Import loads exported entries into projectID. Entries whose key already
// exists in the project are skipped; timestamps, status and notes are kept.
// A failing entry is reported and the import goes on.
func (s *Services) Import(ctx context.Context, projectID int64, data *ExportData) (*ImportResult, error) {
	if data == nil {
		return nil, invalidf("import data is required")
	}
	if _, err := s.Hierarchy.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, src := range data.Entries {
		e := src.Clone()
		notes := e.Notes
		e.ID, e.ProjectID, e.Notes = 0, projectID, nil
		if e.Key == "" {
			e.Key = devlog.GenerateKey(e.Title)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.Devlogs.now()
		}
		devlog.Touch(e, e.UpdatedAt)

		if err := s.Devlogs.save(ctx, e); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				result.EntriesSkipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("entry %q: %v", src.Key, err))
			continue
		}
		result.EntriesImported++

		for i := range notes {
			n := notes[i]
			n.ID, n.EntryID = "", e.ID
			if err := s.Devlogs.store.AddNote(ctx, e.ID, &n); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("note %d of %q: %v", i+1, e.Key, err))
				continue
			}
			result.NotesImported++
		}
	}
	s.Devlogs.logger.Info("import finished",
		zap.Int64("project", projectID),
		zap.Int("imported", result.EntriesImported),
		zap.Int("skipped", result.EntriesSkipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}
