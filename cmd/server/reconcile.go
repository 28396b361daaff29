package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/spf13/cobra"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check that every task was charged once and refunded at most once",
		Long: "Compares each generation task with its ledger entries and prints the " +
			"discrepancies as JSON. Exits non-zero when any are found.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}

			ctx := runContext(cmd)
			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.cleanup()

			var from time.Time
			if since > 0 {
				from = time.Now().UTC().Add(-since)
			}
			report, err := app.generations.Reconcile(ctx, from)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			log.Info("reconciliation finished",
				slog.Int("tasks_checked", report.TasksChecked),
				slog.Int("discrepancies", len(report.Discrepancies)))
			if !report.OK() {
				return fmt.Errorf("ledger has %d discrepancies", len(report.Discrepancies))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only check tasks created within this window (0 checks every task)")
	return cmd
}
