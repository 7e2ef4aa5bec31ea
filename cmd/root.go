// Package cmd implements the price-tracker command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/config"
)

const (
	keyConfig = "config"
	keyDebug  = "debug"
)

// Execute runs the root command until it returns or the process is signalled.
func Execute(version string) error {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand(version).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Flags resolve through v so that
// CONFIG_PATH and APP_DEBUG work as well as --config and --debug.
func NewRootCommand(version string) *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "price-tracker",
		Short:         "Tracks product prices and stock across online shops",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String(keyConfig, "", "config file (default is $CONFIG_PATH or ./config.yml)")
	root.PersistentFlags().Bool(keyDebug, false, "enable debug mode")
	_ = v.BindPFlag(keyConfig, root.PersistentFlags().Lookup(keyConfig))
	_ = v.BindPFlag(keyDebug, root.PersistentFlags().Lookup(keyDebug))
	_ = v.BindEnv(keyConfig, "CONFIG_PATH")
	_ = v.BindEnv(keyDebug, "APP_DEBUG")

	opts := &globalOptions{v: v, version: version}

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newOutdatedCommand(opts),
		newTokenCommand(opts),
		newVersionCommand(version),
	)
	return root
}

type globalOptions struct {
	v       *viper.Viper
	version string
}

func (o *globalOptions) configPath() string {
	if path := o.v.GetString(keyConfig); path != "" {
		return path
	}
	return config.Path()
}

func (o *globalOptions) debug() bool {
	return o.v.GetBool(keyDebug)
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	return bootstrap.LoadConfig(o.configPath(), o.debug())
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "price-tracker version %s\n", version)
		},
	}
}
