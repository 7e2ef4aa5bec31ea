package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/lifecycle"
)

func newOutdatedCommand(opts *globalOptions) *cobra.Command {
	var maxAgeHours, limit int

	cmd := &cobra.Command{
		Use:   "outdated",
		Short: "List active products due for a re-crawl",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, err := bootstrap.CreateLogger(cfg, opts.version)
			if err != nil {
				return err
			}

			db, err := bootstrap.SetupDatabase(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					log.Error("Failed to close database", infralogger.Error(closeErr))
				}
			}()

			manager := lifecycle.NewManager(database.NewPostgresStore(db), log)
			products, err := manager.OutdatedProducts(cmd.Context(), maxAgeHours, limit)
			if err != nil {
				return fmt.Errorf("list outdated products: %w", err)
			}
			renderOutdated(cmd.OutOrStdout(), products, time.Now())
			return nil
		},
	}

	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", lifecycle.DefaultMaxAgeHours, "minimum hours since the last crawl")
	cmd.Flags().IntVar(&limit, "limit", lifecycle.DefaultOutdatedLimit, "maximum number of products")
	return cmd
}

func renderOutdated(w io.Writer, products []domain.OutdatedProduct, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Shop", "URL", "Last Crawled", "Age"})

	for _, p := range products {
		t.AppendRow(table.Row{
			p.ID,
			p.Shop,
			p.URL,
			p.LastCrawledAt.UTC().Format(time.RFC3339),
			now.Sub(p.LastCrawledAt).Truncate(time.Minute).String(),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(products)})
	t.Render()
}
