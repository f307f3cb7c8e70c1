package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-exthost/internal/logger"
	"github.com/ctagard/dap-exthost/internal/mcp"
	"github.com/ctagard/dap-exthost/internal/version"
)

const shutdownTimeout = 5 * time.Second

func NewServeCommand(log *logger.Logger, flags *rootFlagData) (*cobra.Command, error) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the debug coordinator as MCP tools over stdio",
		Long: `Serves the debug coordinator as MCP tools over stdio.

This is the default command.`,
		RunE: runServe(log, flags),
		Args: cobra.NoArgs,
	}
	return serveCmd, nil
}

func runServe(log *logger.Logger, flags *rootFlagData) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.loadConfig(cmd, log)
		if err != nil {
			return err
		}
		serveLog := log.WithName("serve")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		c, err := newCoordinator(ctx, cfg, log.Logger)
		if err != nil {
			serveLog.Error(err, "could not start the debug coordinator")
			return err
		}

		srv := mcp.NewServer(mcp.Options{
			Workbench: c.wb,
			Host:      c.host,
			Launch:    c.launch,
			Folders:   c.folders,
			Version:   version.Version,
			Log:       log.Logger,
		})

		serveLog.Info("dap-exthost starting", "version", version.Version, "variant", cfg.Variant, "workspace", cfg.Workspace)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ServeStdio()
		}()

		select {
		case err = <-errCh:
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Close(shutdownCtx)
		c.Close(shutdownCtx)
		serveLog.Info("dap-exthost stopped")
		return err
	}
}
