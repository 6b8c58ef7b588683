package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// resolveProject accepts a numeric id or a project name; empty means the
// configured default project.
func resolveProject(ctx context.Context, svc *service.Services, ref string, fallback int64) (*hierarchy.Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if fallback <= 0 {
			return nil, errors.New("no project given: pass --project")
		}
		return svc.Hierarchy.GetProject(ctx, fallback)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return svc.Hierarchy.GetProject(ctx, id)
	}
	return svc.Hierarchy.GetProjectByName(ctx, ref)
}

// ─── projects ────────────────────────────────────────────────────────────────

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List and create projects",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, b, err := a.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			projects, err := svc.Hierarchy.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(w, mutedStyle.Render("No projects yet."))
				return nil
			}
			for _, p := range projects {
				line := fmt.Sprintf("%5d  %s", p.ID, p.Name)
				if p.FullName != "" {
					line += "  " + mutedStyle.Render(p.FullName)
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}

	var description, repoURL string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, b, err := a.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			p, err := svc.Hierarchy.CreateProject(cmd.Context(), hierarchy.ProjectInput{
				Name:        args[0],
				Description: description,
				RepoURL:     repoURL,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s project #%d %s\n", okStyle.Render("Created"), p.ID, p.Name)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "Project description")
	create.Flags().StringVar(&repoURL, "repo", "", "Repository URL (e.g. https://github.com/owner/repo)")

	cmd.AddCommand(list, create)
	return cmd
}

// ─── entries ─────────────────────────────────────────────────────────────────

func newEntriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Work with devlog entries",
	}

	var (
		project  string
		status   []string
		types    []string
		search   string
		archived string
		limit    int
		page     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List devlog entries of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, b, err := a.openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			p, err := resolveProject(ctx, svc, project, a.cfg.MCP.DefaultProjectID)
			if err != nil {
				return err
			}
			mode, err := devlog.ParseArchiveMode(archived)
			if err != nil {
				return err
			}
			f := devlog.Filter{
				ProjectID: p.ID,
				Status:    toEnums[devlog.Status](status),
				Type:      toEnums[devlog.EntryType](types),
				Archived:  mode,
			}
			pg := devlog.Pagination{Page: page, Limit: limit}

			var result devlog.Page[*devlog.Entry]
			if search != "" {
				result, err = svc.Devlogs.Search(ctx, search, f, pg)
			} else {
				result, err = svc.Devlogs.List(ctx, f, pg)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			m := result.Pagination
			fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s: %d of %d entries (page %d/%d)", p.Name, len(result.Items), m.Total, m.Page, max(m.TotalPages, 1))))
			printEntries(w, result.Items, time.Now())
			return nil
		},
	}
	list.Flags().StringVarP(&project, "project", "p", "", "Project id or name (default from config)")
	list.Flags().StringSliceVar(&status, "status", nil, "Filter by status (repeatable or comma-separated)")
	list.Flags().StringSliceVar(&types, "type", nil, "Filter by type")
	list.Flags().StringVarP(&search, "search", "s", "", "Full-text search")
	list.Flags().StringVar(&archived, "archived", "", "Archived entries: false (default), only or all")
	list.Flags().IntVar(&limit, "limit", 20, "Entries per page")
	list.Flags().IntVar(&page, "page", 1, "Page number")

	cmd.AddCommand(list)
	return cmd
}

func toEnums[T ~string](values []string) []T {
	out := make([]T, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, T(v))
		}
	}
	return out
}

// ─── stats ───────────────────────────────────────────────────────────────────

func newStatsCmd(a *app) *cobra.Command {
	var (
		project string
		days    int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show devlog statistics of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, b, err := a.openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			p, err := resolveProject(ctx, svc, project, a.cfg.MCP.DefaultProjectID)
			if err != nil {
				return err
			}
			stats, err := svc.Devlogs.Stats(ctx, devlog.Filter{ProjectID: p.ID})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printStats(w, p.Name, stats)

			if days > 0 {
				ts, err := svc.Devlogs.TimeSeries(ctx, p.ID, days)
				if err != nil {
					return err
				}
				fmt.Fprintln(w)
				fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Last %d days", days)))
				for _, dp := range ts.DataPoints {
					if dp.DailyCreated == 0 && dp.DailyClosed == 0 {
						continue
					}
					fmt.Fprintf(w, "  %s  +%d created  %d closed  %d open\n", dp.Date, dp.DailyCreated, dp.DailyClosed, dp.Open)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id or name (default from config)")
	cmd.Flags().IntVar(&days, "days", 0, "Also show daily activity for the last N days")
	return cmd
}

// ─── export / import ─────────────────────────────────────────────────────────

func newExportCmd(a *app) *cobra.Command {
	var (
		project string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a project's entries and notes as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, b, err := a.openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			p, err := resolveProject(ctx, svc, project, a.cfg.MCP.DefaultProjectID)
			if err != nil {
				return err
			}
			data, err := svc.Export(ctx, p.ID)
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding export: %w", err)
			}

			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			}
			if err := os.WriteFile(output, raw, 0o600); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d entries to %s (%s)\n",
				okStyle.Render("Exported"), len(data.Entries), output, humanize.Bytes(uint64(len(raw))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id or name (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var (
		project string
		create  bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import entries exported with devlog export",
		Long: `Import entries from an export file into a project. Entries whose key
already exists in the project are skipped, so importing twice is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading import file: %w", err)
			}
			var data service.ExportData
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parsing import file: %w", err)
			}

			svc, b, err := a.openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			p, err := resolveProject(ctx, svc, project, a.cfg.MCP.DefaultProjectID)
			if errors.Is(err, storage.ErrNotFound) && create && project != "" {
				p, err = svc.Hierarchy.EnsureProject(ctx, hierarchy.ProjectInput{
					Name:        project,
					Description: data.Project.Description,
					RepoURL:     data.Project.RepoURL,
				})
			}
			if err != nil {
				return err
			}

			result, err := svc.Import(ctx, p.ID, &data)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s into %s: %d entries, %d notes, %d skipped\n",
				okStyle.Render("Imported"), p.Name, result.EntriesImported, result.NotesImported, result.EntriesSkipped)
			for _, e := range result.Errors {
				fmt.Fprintln(w, errorStyle.Render("  ! ")+e)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Target project id or name (default from config)")
	cmd.Flags().BoolVar(&create, "create", false, "Create the target project by name when it does not exist")
	return cmd
}
