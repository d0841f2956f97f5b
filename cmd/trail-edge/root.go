package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ghalamif/TrailSync/pkg/trailsync"
)

const envPrefix = "TRAILSYNC"

// rootOptions are the flags shared by every command. Each can also come from the
// environment, e.g. --base-url from TRAILSYNC_BASE_URL.
type rootOptions struct {
	configPath string
	baseURL    string
	token      string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "trail-edge",
		Short:        "Record location and motion trails and sync them to a remote store",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			v.SetEnvPrefix(envPrefix)
			v.AutomaticEnv()
			bindFlags(cmd, v)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "./data/config.yaml", "Path to the recorder configuration file")
	pf.StringVar(&opts.baseURL, "base-url", "", "Override remote.base_url")
	pf.StringVar(&opts.token, "token", "", "Bearer token for the HTTP store")
	pf.StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newRecordCmd(opts),
		newValidateCmd(opts),
		newSessionsCmd(opts),
		newSessionCmd(opts),
		newStatsCmd(),
		newMigrateCmd(opts),
	)
	return cmd
}

// loadConfig reads the config file and layers the flag/env overrides on top.
func (o *rootOptions) loadConfig() (*trailsync.Config, error) {
	cfg, err := trailsync.LoadConfig(o.configPath, func(c *trailsync.Config) {
		if o.baseURL != "" {
			c.Remote.BaseURL = o.baseURL
		}
		if o.token != "" {
			c.Remote.Token = o.token
		}
		if o.logLevel != "" {
			c.Log.Level = o.logLevel
		}
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Bind each cobra flag to its associated viper configuration (environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --base-url to TRAILSYNC_BASE_URL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
