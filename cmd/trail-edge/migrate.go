package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghalamif/TrailSync/internal/adapters/netprobe"
	"github.com/ghalamif/TrailSync/internal/adapters/sink"
	"github.com/ghalamif/TrailSync/pkg/trailsync"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the TimescaleDB schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Remote.Kind != trailsync.RemoteTimescale {
				return fmt.Errorf("migrate needs remote.kind %q, got %q", trailsync.RemoteTimescale, cfg.Remote.Kind)
			}
			dbURL := cfg.Remote.Timescale.ConnString

			if wait > 0 {
				addr, err := netprobe.AddrFromURL(dbURL)
				if err != nil {
					return fmt.Errorf("derive database address: %w", err)
				}
				if err := netprobe.WaitForTCP(cmd.Context(), addr, wait); err != nil {
					return fmt.Errorf("database not ready: %w", err)
				}
			}

			version, err := sink.Migrate(dbURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the database to accept connections")
	return cmd
}
