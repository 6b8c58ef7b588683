package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/HendryAvila/devlog/internal/cache"
	gh "github.com/HendryAvila/devlog/internal/github"
	"github.com/HendryAvila/devlog/internal/ratelimit"
	"github.com/HendryAvila/devlog/internal/server"
	"github.com/HendryAvila/devlog/internal/updater"
	"github.com/spf13/cobra"
)

func newUpdater(a *app) *updater.Updater {
	g := a.cfg.Storage.GitHub
	client := gh.NewClient(gh.Config{
		BaseURL:   g.APIURL,
		Token:     g.Token,
		UserAgent: "devlog/" + server.Version,
	}, ratelimit.New(g.RateLimit, g.Burst, a.logger), cache.New[string, []byte](8, g.CacheTTLDuration()), a.logger)
	return updater.New(client, a.cfg.Updater.Owner, a.cfg.Updater.Repo, a.logger)
}

// checkForUpdates runs a best-effort version check and prints a notice
// to stderr if an update is available.
func checkForUpdates(ctx context.Context, a *app) {
	result := newUpdater(a).CheckVersion(ctx, server.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  %s v%s → v%s\n"+
				"     Run: devlog update\n"+
				"     Release: %s\n\n",
			titleStyle.Render("Update available:"), result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update devlog to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.ErrOrStderr()
			fmt.Fprintln(w, "Checking for updates...")

			result, err := newUpdater(a).SelfUpdate(cmd.Context(), server.Version)
			if errors.Is(err, updater.ErrUpToDate) {
				fmt.Fprintf(w, "%s (v%s)\n", okStyle.Render("Already at the latest version"), result.CurrentVersion)
				return nil
			}
			if err != nil {
				if result != nil && result.ReleaseURL != "" {
					fmt.Fprintf(w, "\n   You can download manually from:\n   %s\n", result.ReleaseURL)
				}
				return fmt.Errorf("update failed: %w", err)
			}

			fmt.Fprintf(w, "%s v%s → v%s\n", okStyle.Render("Updated"), result.CurrentVersion, result.LatestVersion)
			fmt.Fprintln(w, "   Restart devlog to use the new version.")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// The version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devlog v%s\n", server.Version)
		},
	}
}
