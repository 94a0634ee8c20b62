package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/elasticsearch"
	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	"github.com/spf13/cobra"
)

func newCleanRecordsCmd(a *app) *cobra.Command {
	var (
		days int
		yes  bool
	)

	cmd := &cobra.Command{
		Use:   "clean-records",
		Short: "Delete features that expired more than --days ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("--days must not be negative, got %d", days)
			}
			es, err := elasticsearch.NewClient(a.cfg, a.logger)
			if err != nil {
				return err
			}

			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			prompt := fmt.Sprintf("Delete features of index %s that expired at or before %s?",
				es.Index(), domain.FormatCAPTime(cutoff))
			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt, yes)
			if err != nil || !ok {
				return err
			}

			deleted, err := es.DeleteOlderThan(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			a.logger.Info("expired features deleted", "index", es.Index(), "cutoff", cutoff, "deleted", deleted)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d features from %s\n", deleted, es.Index())
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 30, "Delete features that expired more than this many days ago")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newDeleteIndexCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-index",
		Short: "Delete the whole index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			es, err := elasticsearch.NewClient(a.cfg, a.logger)
			if err != nil {
				return err
			}

			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete index "+es.Index()+" and every feature in it?", yes)
			if err != nil || !ok {
				return err
			}

			deleted, err := es.DeleteIndex(cmd.Context())
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "index %s does not exist\n", es.Index())
				return nil
			}
			a.logger.Info("index deleted", "index", es.Index())
			fmt.Fprintf(cmd.OutOrStdout(), "index %s deleted\n", es.Index())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on out and reads the answer from in. Only
// "y" and "yes" accept; an empty answer or end of input declines.
func confirm(in io.Reader, out io.Writer, prompt string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	fmt.Fprintf(out, "%s [y/N] ", prompt)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		fmt.Fprintln(out, "aborted")
		return false, nil
	}
}
