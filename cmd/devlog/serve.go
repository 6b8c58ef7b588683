package main

import (
	"context"
	"fmt"
	"time"

	"github.com/HendryAvila/devlog/internal/api"
	"github.com/HendryAvila/devlog/internal/apiclient"
	"github.com/HendryAvila/devlog/internal/config"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/ratelimit"
	mcpsrv "github.com/HendryAvila/devlog/internal/server"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the REST API over the configured storage provider.

The MCP adapter (devlog mcp) and the devlog CLI talk to this server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, "+config.Default().Server.Addr+")")
	return cmd
}

// rateLimited is implemented by stores that talk to a rate-limited API.
type rateLimited interface {
	RateLimit() ratelimit.Snapshot
}

func runServe(ctx context.Context, a *app) error {
	svc, b, err := a.openServices(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if err := ensureDefaultProject(ctx, svc, a.logger); err != nil {
		return err
	}

	go checkForUpdates(ctx, a)

	opts := []api.Option{
		api.WithVersion(mcpsrv.Version),
		api.WithStorageType(a.cfg.Storage.Type),
	}
	if rl, ok := b.Devlogs.(rateLimited); ok {
		opts = append(opts, api.WithRateLimit(rl.RateLimit))
	}
	handler := api.New(svc, a.logger, opts...)
	a.logger.Info("devlog API starting",
		zap.String("addr", a.cfg.Server.Addr),
		zap.String("storage", a.cfg.Storage.Type),
		zap.String("version", mcpsrv.Version))
	return api.NewServer(a.cfg.Server, handler, a.logger).ListenAndServe(ctx)
}

// ensureDefaultProject creates a "default" project on an empty store so
// the MCP adapter has something to act on.
func ensureDefaultProject(ctx context.Context, svc *service.Services, logger *zap.Logger) error {
	projects, err := svc.Hierarchy.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	if len(projects) > 0 {
		return nil
	}
	p, err := svc.Hierarchy.EnsureProject(ctx, hierarchy.ProjectInput{
		Name:        "default",
		Description: "Created on first start",
	})
	if err != nil {
		return fmt.Errorf("creating default project: %w", err)
	}
	logger.Info("created default project", zap.Int64("id", p.ID))
	return nil
}

func newMCPCmd(a *app) *cobra.Command {
	var projectID int64
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server (stdio transport)",
		Long: `Start the MCP server on stdin/stdout. Every tool call is proxied to
the devlog REST API at api.base_url (or DEVLOG_API_URL).

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "devlog": {
        "command": "devlog",
        "args": ["mcp"]
      }
    }
  }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if projectID > 0 {
				a.cfg.MCP.DefaultProjectID = projectID
			}
			return runMCP(a)
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "Project the tools act on by default")
	return cmd
}

func runMCP(a *app) error {
	client := newClient(a)
	s := mcpsrv.New(client, mcpsrv.Options{DefaultProjectID: a.cfg.MCP.DefaultProjectID}, a.logger)

	a.logger.Info("mcp server starting",
		zap.String("api", client.BaseURL()),
		zap.Int64("project", a.cfg.MCP.DefaultProjectID))

	// Logs go to stderr; stdout belongs to the protocol.
	return server.ServeStdio(s, server.WithErrorLogger(zap.NewStdLog(a.logger)))
}

func newClient(a *app) *apiclient.Client {
	return apiclient.New(a.cfg.API.BaseURL,
		apiclient.WithTimeout(config.Duration(a.cfg.API.Timeout, 30*time.Second)),
		apiclient.WithRetries(a.cfg.API.MaxRetries+1),
		apiclient.WithLogger(a.logger),
	)
}
