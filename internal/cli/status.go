package cli

import (
	"time"

	"github.com/spf13/cobra"

	"options-signals/internal/store"
)

type symbolStatus struct {
	Symbol      string `json:"symbol"`
	Expirations int    `json:"expirations"`
	LatestData  string `json:"latest_data_date,omitempty"`
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show data freshness and stored symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			st, err := app.openStore()
			if err != nil {
				return err
			}
			statuses := app.Sync.GetAllSyncStatus()

			symbols, err := st.Symbols(ctx)
			if err != nil {
				return err
			}
			rows := make([]symbolStatus, 0, len(symbols))
			for _, sym := range symbols {
				exps, err := st.Expirations(ctx, sym)
				if err != nil {
					return err
				}
				row := symbolStatus{Symbol: sym, Expirations: len(exps)}
				if vm, err := st.VolMetrics(ctx, sym, time.Time{}); err == nil {
					row.LatestData = FormatDate(vm.DataDate)
				}
				rows = append(rows, row)
			}

			if output.IsJSON() {
				type syncJSON struct {
					DataType string `json:"data_type"`
					LastSync string `json:"last_sync,omitempty"`
					Stale    bool   `json:"stale"`
				}
				syncs := make([]syncJSON, 0, len(statuses))
				for _, s := range statuses {
					j := syncJSON{DataType: string(s.DataType), Stale: s.IsStale}
					if !s.LastSync.IsZero() {
						j.LastSync = s.LastSync.UTC().Format(time.RFC3339)
					}
					syncs = append(syncs, j)
				}
				return output.JSON(map[string]interface{}{
					"sync":    syncs,
					"symbols": rows,
				})
			}

			output.Bold("Data freshness")
			for _, s := range statuses {
				line := "  " + store.FormatSyncStatus(s)
				if s.IsStale {
					output.Println(output.ColoredString(ColorYellow, line))
				} else {
					output.Println(line)
				}
			}
			output.Println()

			if len(rows) == 0 {
				output.Dim("No symbols stored. Run 'signals import observations' first.")
				return nil
			}
			table := NewTable(output, "Symbol", "Expirations", "Last computed")
			for _, r := range rows {
				latest := r.LatestData
				if latest == "" {
					latest = "-"
				}
				table.AddRow(r.Symbol, FormatCount(int64(r.Expirations)), latest)
			}
			table.Render()
			return nil
		},
	}
}
