package cli

import (
	"bytes"
	"errors"
	"sort"

	"github.com/spf13/cobra"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/ingest"
	"options-signals/internal/store"
)

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import option observations or daily closes",
		Long: `Import vendor files into the store. Files are JSON arrays or CSV with a
header row; the format follows the file extension unless --format is given.

Examples:
  signals import observations --symbol SPY --file spy-2024-03-08.csv
  signals import closes --file closes.json`,
	}

	cmd.PersistentFlags().StringP("file", "f", "-", "input file, or - for stdin")
	cmd.PersistentFlags().String("symbol", "", "symbol for rows without a symbol column")
	cmd.PersistentFlags().String("format", "", "input format: json or csv")

	cmd.AddCommand(newImportObservationsCmd(app))
	cmd.AddCommand(newImportClosesCmd(app))
	return cmd
}

func newImportObservationsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "observations",
		Short: "Import daily option chain snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, format, symbol, err := importInput(cmd)
			if err != nil {
				return err
			}
			bySymbol, err := ingest.DecodeObservations(bytes.NewReader(data), format, symbol)
			if err != nil {
				return reportValidation(cmd, err)
			}

			st, err := app.openStore()
			if err != nil {
				return err
			}
			counts := make(map[string]int, len(bySymbol))
			for sym, rows := range bySymbol {
				if err := st.UpsertObservations(cmd.Context(), sym, rows); err != nil {
					return err
				}
				counts[sym] = len(rows)
			}
			if len(counts) > 0 {
				if err := app.Sync.MarkSynced(store.SyncTypeObservations); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to record sync time")
				}
			}
			return printImportCounts(cmd, "observations", counts)
		},
	}
}

func newImportClosesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "closes",
		Short: "Import daily underlying closes",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, format, symbol, err := importInput(cmd)
			if err != nil {
				return err
			}
			bySymbol, err := ingest.DecodeCloses(bytes.NewReader(data), format, symbol)
			if err != nil {
				return reportValidation(cmd, err)
			}

			st, err := app.openStore()
			if err != nil {
				return err
			}
			counts := make(map[string]int, len(bySymbol))
			for sym, closes := range bySymbol {
				if err := st.UpsertDailyCloses(cmd.Context(), sym, closes); err != nil {
					return err
				}
				counts[sym] = len(closes)
			}
			if len(counts) > 0 {
				if err := app.Sync.MarkSynced(store.SyncTypeCloses); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to record sync time")
				}
			}
			return printImportCounts(cmd, "closes", counts)
		},
	}
}

func importInput(cmd *cobra.Command) ([]byte, ingest.Format, string, error) {
	file, _ := cmd.Flags().GetString("file")
	symbol, _ := cmd.Flags().GetString("symbol")
	format, _ := cmd.Flags().GetString("format")

	data, err := readInput(cmd, file)
	if err != nil {
		return nil, "", "", err
	}
	if format == "" {
		return data, ingest.DetectFormat(file), symbol, nil
	}
	return data, ingest.Format(format), symbol, nil
}

func reportValidation(cmd *cobra.Command, err error) error {
	output := NewOutput(cmd)
	var verrs apperrors.ValidationErrors
	if !errors.As(err, &verrs) || output.IsJSON() {
		return err
	}
	for _, v := range verrs {
		output.Error("%s: %s", v.Field, v.Message)
	}
	return err
}

func printImportCounts(cmd *cobra.Command, kind string, counts map[string]int) error {
	output := NewOutput(cmd)
	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"kind":    kind,
			"symbols": counts,
		})
	}

	symbols := make([]string, 0, len(counts))
	total := 0
	for sym, n := range counts {
		symbols = append(symbols, sym)
		total += n
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		output.Printf("  %-8s %s\n", sym, FormatCount(int64(counts[sym])))
	}
	output.Success("Imported %s %s for %d symbol(s)", FormatCount(int64(total)), kind, len(symbols))
	return nil
}
