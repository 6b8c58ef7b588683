// devlog: work-item log and agent activity tracker
//
// A REST server that stores devlog entries, the project → machine →
// workspace → chat-session hierarchy and agent events in SQLite,
// PostgreSQL or GitHub Issues, plus an MCP adapter that exposes it to
// AI coding tools.
//
// Usage:
//
//	devlog serve            # Start the REST API
//	devlog mcp              # Start the MCP server (stdio transport)
//	devlog entries list     # List entries of a project
//	devlog stats            # Show project statistics
//	devlog export / import  # Move a project's entries as JSON
//	devlog update           # Update to the latest version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/devlog/internal/backend"
	"github.com/HendryAvila/devlog/internal/config"
	"github.com/HendryAvila/devlog/internal/logging"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the state shared by every command of one invocation.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "devlog",
		Short: "Work-item log and agent activity tracker",
		Long: `devlog tracks units of work (devlog entries) with their notes and
decisions, the machines and workspaces agents run in, and the events
those agents emit. It serves a REST API and an MCP adapter over it.

Storage is SQLite by default; PostgreSQL and GitHub Issues are available
through the config file (` + config.DefaultPath() + `).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "Config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newProjectsCmd(a),
		newEntriesCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newUpdateCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// openServices opens the configured storage provider. The caller closes
// the returned backend.
func (a *app) openServices(ctx context.Context) (*service.Services, *storage.Backend, error) {
	b, err := backend.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return service.New(b, a.logger), b, nil
}
