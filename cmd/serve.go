package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/bootstrap"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Start(cmd.Context(), bootstrap.Options{
				ConfigPath: opts.configPath(),
				Debug:      opts.debug(),
				Version:    opts.version,
			})
		},
	}
}
