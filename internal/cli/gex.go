package cli

import (
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"options-signals/internal/models"
)

func newGEXCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gex <symbol>",
		Short: "Show dealer gamma exposure for a symbol",
		Long: `Show the gamma exposure levels and per-strike table of a symbol, computed
from the stored chain and cached until new observations arrive.

Examples:
  signals gex SPY
  signals gex SPY --timeframe 7d --top 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])
			timeframe, _ := cmd.Flags().GetString("timeframe")
			top, _ := cmd.Flags().GetInt("top")

			asOf, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			svc, err := app.newService(cmd.Context())
			if err != nil {
				return err
			}

			result, err := svc.GammaExposure(cmd.Context(), symbol, timeframe, asOf)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			printGEXSummary(output, result)
			printStrikeTable(output, result, top)
			return nil
		},
	}

	cmd.Flags().String("timeframe", "30d", "expiration window (7d, 30d, 90d, all)")
	cmd.Flags().String("date", "", "as-of date YYYY-MM-DD (default: current trading day)")
	cmd.Flags().Int("top", 15, "strikes to list, ranked by absolute net GEX (0 for all)")
	return cmd
}

func printGEXSummary(output *Output, r *models.GammaExposureResult) {
	output.Bold("%s gamma exposure (%s)", r.Symbol, r.Timeframe)
	output.Dim("Data date %s, %d days old", FormatDate(r.DataDate), r.DataAgeDays)
	output.Println()

	regime := "neutral"
	switch {
	case r.GammaSign > 0:
		regime = output.ColoredString(ColorGreen, "long gamma")
	case r.GammaSign < 0:
		regime = output.ColoredString(ColorRed, "short gamma")
	}

	output.Printf("  HVL:             %s\n", FormatPrice(r.HVL))
	output.Printf("  Regime:          %s (strength %s)\n", regime, FormatOptional(r.RegimeStrength, FormatPrice))
	output.Printf("  Call walls:      %s / %s / %s\n",
		FormatOptional(r.CallResistance, FormatPrice), FormatOptional(r.CallWall2, FormatPrice), FormatOptional(r.CallWall3, FormatPrice))
	output.Printf("  Put walls:       %s / %s / %s\n",
		FormatOptional(r.PutSupport, FormatPrice), FormatOptional(r.PutWall2, FormatPrice), FormatOptional(r.PutWall3, FormatPrice))
	output.Printf("  Open interest:   calls %s (%s)  puts %s (%s)\n",
		FormatCount(r.CallOITotal), FormatIV(r.CallInterestPct/100), FormatCount(r.PutOITotal), FormatIV(r.PutInterestPct/100))
	output.Printf("  Volume:          calls %s  puts %s  P/C %s\n",
		FormatCount(r.CallVolumeTotal), FormatCount(r.PutVolumeTotal), FormatOptional(r.PCRVolume, FormatPrice))
	output.Printf("  OI change:       %s   volume change: %s\n",
		output.Signed(float64(r.TotalOIDelta), FormatCount(r.TotalOIDelta)),
		output.Signed(float64(r.TotalVolumeDelta), FormatCount(r.TotalVolumeDelta)))
	output.Println()
}

func printStrikeTable(output *Output, r *models.GammaExposureResult, top int) {
	rows := append([]models.StrikeExposure(nil), r.StrikeData...)
	if top > 0 && len(rows) > top {
		sort.SliceStable(rows, func(i, j int) bool {
			return math.Abs(rows[i].NetGEX) > math.Abs(rows[j].NetGEX)
		})
		rows = rows[:top]
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Strike < rows[j].Strike })

	table := NewTable(output, "Strike", "Net GEX", "Call OI Δ", "Put OI Δ", "Call Vol Δ", "Put Vol Δ")
	for _, row := range rows {
		table.AddRow(
			FormatStrike(row.Strike),
			output.Signed(row.NetGEX, FormatNotional(row.NetGEX)),
			output.Signed(float64(row.CallOIDelta), FormatCount(row.CallOIDelta)),
			output.Signed(float64(row.PutOIDelta), FormatCount(row.PutOIDelta)),
			output.Signed(float64(row.CallVolDelta), FormatCount(row.CallVolDelta)),
			output.Signed(float64(row.PutVolDelta), FormatCount(row.PutVolDelta)),
		)
	}
	table.Render()
}
