package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-mailflow-dashboard/internal/config"
	"go-mailflow-dashboard/internal/logging"
)

// options is shared by every subcommand.
type options struct {
	v       *viper.Viper
	cfgFile string
	version string
}

// load merges --config into the env-backed viper and reads the Config.
func (o *options) load() (config.Config, error) {
	if err := config.MergeFile(o.v, o.cfgFile); err != nil {
		return config.Config{}, fmt.Errorf("config file %s: %w", o.cfgFile, err)
	}
	cfg := config.Load(o.v)
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// NewRootCommand builds the mailflow command tree. Without a subcommand it
// serves the dashboard.
func NewRootCommand(version string) *cobra.Command {
	o := &options{v: config.NewViper(), version: version}

	root := &cobra.Command{
		Use:   "mailflow",
		Short: "Mail transfer dashboard",
		Long: `mailflow reads the JSON snapshots exported from a mail transfer server,
correlates message tracking events into per-message journeys, and serves them
as a web dashboard, a one-shot terminal report or an interactive terminal UI.

Examples:
  mailflow serve --config /etc/mailflow/config.env
  mailflow inspect journeys --limit 20
  mailflow tui`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, o)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&o.cfgFile, "config", "c", "", "extra env file merged over the default config files")
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides APP_LOG_LEVEL)")
	flags.String("snapshots", "", "snapshot directory or http(s) URL (overrides APP_SNAPSHOT_LOCATION)")
	_ = o.v.BindPFlag("APP_LOG_LEVEL", flags.Lookup("log-level"))
	_ = o.v.BindPFlag("APP_SNAPSHOT_LOCATION", flags.Lookup("snapshots"))

	root.AddCommand(
		newServeCommand(o),
		newInspectCommand(o),
		newTUICommand(o),
	)
	return root
}
