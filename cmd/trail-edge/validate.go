package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without starting the recorder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good: store=%s location=%s motion=%s policy=%s\n",
				opts.configPath, cfg.Remote.Kind, cfg.Location.Source, cfg.Motion.Source, cfg.Motion.EmitPolicy)
			return nil
		},
	}
}
