// Package commands implements the dap-exthost command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/logger"
)

type rootFlagData struct {
	configPath    string
	workspace     string
	variant       string
	contributions string
}

// NewRootCmd builds the command tree. Without a subcommand the root command
// serves MCP over stdio.
func NewRootCmd(log *logger.Logger) (*cobra.Command, error) {
	flags := &rootFlagData{}

	rootCmd := &cobra.Command{
		Use:   "dap-exthost",
		Short: "Coordinates debug sessions and bridges debug adapters to MCP clients",
		Long: `dap-exthost coordinates debug sessions for a workspace.

	It resolves launch.json configurations, starts debug adapters (Delve, debugpy,
	js-debug, lldb-dap, gdb or any contributed debugger), relays Debug Adapter
	Protocol traffic and keeps breakpoints in sync. The coordinator is exposed
	as a set of MCP tools over stdio.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runServe(log, flags),
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			log.Flush()
		},
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to a JSON configuration file.")
	pf.StringVarP(&flags.workspace, "workspace", "w", "", "Workspace root used for launch.json discovery and ${workspaceFolder}. Defaults to the working directory.")
	pf.StringVar(&flags.variant, "variant", "", "Coordinator variant: 'main' (spawns and connects to adapters) or 'worker' (in-process adapters only).")
	pf.StringVar(&flags.contributions, "contributions", "", "Path to an extension manifest declaring additional debuggers.")
	log.AddLevelFlag(pf)

	var err error
	var cmd *cobra.Command

	if cmd, err = NewServeCommand(log, flags); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'serve' command: %w", err)
	}

	if cmd, err = NewConfigsCommand(log, flags); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'configs' command: %w", err)
	}

	if cmd, err = NewVersionCommand(log); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	}

	return rootCmd, nil
}

// loadConfig reads the configuration file and applies the flags given on the
// command line on top of it.
func (f *rootFlagData) loadConfig(cmd *cobra.Command, log *logger.Logger) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("workspace") {
		cfg.Workspace = f.workspace
	}
	if flags.Changed("variant") {
		cfg.Variant = config.Variant(f.variant)
	}
	if flags.Changed("contributions") {
		cfg.Contributions = f.contributions
	}
	if !flags.Changed("verbosity") && cfg.LogLevel != "" {
		if err := log.SetLevelString(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	if cfg.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not determine the working directory: %w", err)
		}
		cfg.Workspace = wd
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
