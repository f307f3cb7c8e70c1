package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-exthost/internal/logger"
	"github.com/ctagard/dap-exthost/internal/version"
)

func NewVersionCommand(log *logger.Logger) (*cobra.Command, error) {
	var check bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Long:  `Prints version information.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd, log, check)
		},
		Args: cobra.NoArgs,
	}
	versionCmd.Flags().BoolVar(&check, "check", false, "Also check whether a newer release is available.")
	return versionCmd, nil
}

func printVersion(cmd *cobra.Command, log *logger.Logger, check bool) error {
	out, err := json.Marshal(version.Current())
	if err != nil {
		log.Error(err, "could not serialize version information")
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !check {
		return nil
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	info, err := version.NewChecker().Check(ctx)
	if err != nil {
		return err
	}
	if msg := info.Message(); msg != "" {
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "dap-exthost is up to date")
	}
	return nil
}
