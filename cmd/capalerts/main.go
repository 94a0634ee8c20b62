// Command capalerts loads CAP alert documents into an Elasticsearch index as
// deduplicated bilingual GeoJSON features.
//
// Usage:
//
//	capalerts load /data/geomet/weather/amqp/alerts/cap/20300601
//	capalerts serve
//	capalerts clean-records --days 30
//	capalerts delete-index --yes
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/observability"
	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand once the root command has
// loaded the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "capalerts",
		Short:         "Load CAP weather alerts into Elasticsearch as GeoJSON features",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			return nil
		},
	}

	rootCmd.AddCommand(
		newLoadCmd(a),
		newServeCmd(a),
		newCleanRecordsCmd(a),
		newDeleteIndexCmd(a),
	)
	return rootCmd
}
