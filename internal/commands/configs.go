package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-exthost/internal/launchconfig"
	"github.com/ctagard/dap-exthost/internal/logger"
	"github.com/ctagard/dap-exthost/internal/workbench"
)

type configsOutput struct {
	ConfigPath         string                           `json:"configPath"`
	Configurations     []launchconfig.ConfigurationInfo `json:"configurations"`
	Compounds          []launchconfig.CompoundInfo      `json:"compounds,omitempty"`
	ValidationWarnings []string                         `json:"validationWarnings,omitempty"`
}

func NewConfigsCommand(log *logger.Logger, flags *rootFlagData) (*cobra.Command, error) {
	configsCmd := &cobra.Command{
		Use:   "configs",
		Short: "Lists the launch.json configurations of the workspace",
		Long: `Lists the launch.json configurations and compounds of the workspace as JSON,
together with any problems found in the file.`,
		RunE: listConfigs(log, flags),
		Args: cobra.NoArgs,
	}
	return configsCmd, nil
}

func listConfigs(log *logger.Logger, flags *rootFlagData) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.loadConfig(cmd, log)
		if err != nil {
			return err
		}

		folder := workbench.NewFolders(cfg.Workspace).All()[0]
		provider := launchconfig.NewProvider(cfg.LaunchJSON, log.WithName("configs"))
		lj, err := provider.Load(&folder)
		if err != nil {
			return fmt.Errorf("failed to load launch.json: %w", err)
		}

		out := configsOutput{
			ConfigPath:     provider.Path(&folder),
			Configurations: launchconfig.ListConfigurations(lj),
			Compounds:      launchconfig.ListCompounds(lj),
		}
		for _, e := range launchconfig.ValidateLaunchJSON(lj) {
			out.ValidationWarnings = append(out.ValidationWarnings, e.Error())
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}
