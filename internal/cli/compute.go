package cli

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"options-signals/internal/store"
)

func newComputeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute and store signals for a batch of symbols",
		Long: `Compute runs every engine for each symbol against the latest stored chain
on or before the as-of date, and replaces the stored results for that date.

Examples:
  signals compute
  signals compute --symbols SPY,QQQ --date 2024-03-08
  signals compute --metrics-file /var/lib/node_exporter/signals.prom`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbols, _ := cmd.Flags().GetStringSlice("symbols")
			metricsFile, _ := cmd.Flags().GetString("metrics-file")

			asOf, err := app.asOf(cmd)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			runner, err := app.newRunner(reg)
			if err != nil {
				return err
			}

			app.Sync.WarnIfStale(store.SyncTypeObservations)
			app.Sync.WarnIfStale(store.SyncTypeCloses)

			report, runErr := runner.RunBatch(cmd.Context(), symbols, asOf)

			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
					app.Logger.Warn().Err(err).Str("path", metricsFile).Msg("Failed to write metrics")
				}
			}
			if report == nil {
				return runErr
			}

			if output.IsJSON() {
				if err := output.JSON(report); err != nil {
					return err
				}
				return runErr
			}

			output.Bold("Batch %s (as of %s)", report.RunID, FormatDate(report.AsOf))
			output.Printf("  Computed: %d  Skipped: %d  Failed: %d  in %s\n",
				len(report.Computed), len(report.Skipped), len(report.Failed), FormatDuration(report.Duration))

			if len(report.Computed) > 0 {
				output.Success("Computed: %v", report.Computed)
			}
			for _, symbol := range sortedKeys(report.Skipped) {
				output.Warning("Skipped %s: %s", symbol, report.Skipped[symbol])
			}
			failed := make([]string, 0, len(report.Failed))
			for symbol := range report.Failed {
				failed = append(failed, symbol)
			}
			sort.Strings(failed)
			for _, symbol := range failed {
				output.Error("Failed %s: %v", symbol, report.Failed[symbol])
			}
			return runErr
		},
	}

	cmd.Flags().StringSlice("symbols", nil, "symbols to compute (default: all stored symbols)")
	cmd.Flags().String("date", "", "as-of date YYYY-MM-DD (default: current trading day)")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
