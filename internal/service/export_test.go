package service_test

import (
	"context"
	"testing"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	src := newProject(t, svc, "src")
	dst := newProject(t, svc, "dst")

	a, err := svc.Devlogs.Create(ctx, service.CreateInput{ProjectID: src, Title: "Alpha"})
	require.NoError(t, err)
	_, err = svc.Devlogs.AddNote(ctx, src, a.ID, service.NoteInput{Content: "first"})
	require.NoError(t, err)
	_, err = svc.Devlogs.AddNote(ctx, src, a.ID, service.NoteInput{Category: devlog.NoteIssue, Content: "second"})
	require.NoError(t, err)
	b, err := svc.Devlogs.Create(ctx, service.CreateInput{ProjectID: src, Title: "Beta", Status: devlog.StatusDone})
	require.NoError(t, err)
	_, err = svc.Devlogs.Archive(ctx, src, b.ID)
	require.NoError(t, err)

	data, err := svc.Export(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, service.ExportVersion, data.Version)
	assert.Equal(t, "src", data.Project.Name)
	require.Len(t, data.Entries, 2, "archived entries are exported")
	require.Len(t, data.Entries[0].Notes, 2)
	assert.Equal(t, "first", data.Entries[0].Notes[0].Content)

	res, err := svc.Import(ctx, dst, data)
	require.NoError(t, err)
	assert.Equal(t, &service.ImportResult{EntriesImported: 2, NotesImported: 2}, res)

	page, err := svc.Devlogs.List(ctx, devlog.Filter{ProjectID: dst, Archived: devlog.ArchiveInclude}, devlog.Pagination{SortBy: devlog.SortID, SortOrder: devlog.SortAsc})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "alpha", page.Items[0].Key)
	assert.True(t, page.Items[1].Archived)
	assert.Equal(t, devlog.StatusDone, page.Items[1].Status)

	again, err := svc.Import(ctx, dst, data)
	require.NoError(t, err)
	assert.Equal(t, 2, again.EntriesSkipped)
	assert.Zero(t, again.EntriesImported)
}
