package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

type storedReport struct {
	Symbol         string                        `json:"symbol"`
	DataDate       string                        `json:"data_date"`
	DeltaExposure  []models.ExpiryDeltaExposure  `json:"delta_exposure"`
	UnusualFlags   []models.UnusualActivityFlag  `json:"unusual_activity"`
	ExpiryPressure []models.ExpiryPressureRecord `json:"expiry_pressure"`
	BlindSpots     []models.BlindSpotRecord      `json:"blind_spots"`
	Seasonality    *models.SeasonalityRecord     `json:"seasonality"`
	VolMetrics     *models.VolMetricsRecord      `json:"vol_metrics"`
}

func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <symbol>",
		Short: "Show stored signals for a symbol",
		Long: `Show the results stored by the last compute run for a symbol. Without
--date the most recent stored date is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])
			ctx := cmd.Context()

			st, err := app.openStore()
			if err != nil {
				return err
			}

			// Every compute run stores a vol metrics row, so its date
			// anchors the other reads.
			var date time.Time
			if raw, _ := cmd.Flags().GetString("date"); raw != "" {
				if date, err = app.asOf(cmd); err != nil {
					return err
				}
			}
			rep := storedReport{Symbol: symbol}
			if rep.VolMetrics, err = st.VolMetrics(ctx, symbol, date); err != nil {
				return err
			}
			date = rep.VolMetrics.DataDate
			rep.DataDate = FormatDate(date)

			if rep.DeltaExposure, err = st.DeltaExposure(ctx, symbol, date); err != nil {
				return err
			}
			if rep.UnusualFlags, err = st.UnusualActivity(ctx, symbol, date); err != nil {
				return err
			}
			if rep.ExpiryPressure, err = st.ExpiryPressure(ctx, symbol, date); err != nil {
				return err
			}
			if rep.BlindSpots, err = st.BlindSpots(ctx, symbol, date); err != nil {
				return err
			}
			if rep.Seasonality, err = st.Seasonality(ctx, symbol, date); err != nil && !apperrors.Is(err, apperrors.ErrDataNotFound) {
				return err
			}

			if output.IsJSON() {
				return output.JSON(rep)
			}
			printReport(output, &rep)
			return nil
		},
	}

	cmd.Flags().String("date", "", "data date YYYY-MM-DD (default: latest stored)")
	return cmd
}

func printReport(output *Output, rep *storedReport) {
	output.Bold("%s stored signals (%s)", rep.Symbol, rep.DataDate)
	output.Println()

	if len(rep.DeltaExposure) > 0 {
		output.Info("Delta exposure by expiration")
		table := NewTable(output, "Expiration", "DEX")
		for _, d := range rep.DeltaExposure {
			table.AddRow(FormatDate(d.Expiration), output.Signed(d.DEX, FormatNotional(d.DEX)))
		}
		table.Render()
		output.Println()
	}

	output.Info("Unusual activity (%d flags)", len(rep.UnusualFlags))
	if len(rep.UnusualFlags) > 0 {
		table := NewTable(output, "Expiration", "Strike", "Volume", "OI", "Z", "Vol/OI")
		for _, f := range rep.UnusualFlags {
			table.AddRow(
				FormatDate(f.Expiration),
				FormatStrike(f.Strike),
				FormatCount(f.TotalVolume),
				FormatCount(f.OpenInterest),
				FormatPrice(f.ZScore),
				FormatOptional(f.VolOI, FormatPrice),
			)
		}
		table.Render()
	}
	output.Println()

	if len(rep.ExpiryPressure) > 0 {
		output.Info("Expiry pressure")
		table := NewTable(output, "Expiration", "Spot", "Pin score", "Max pain", "Top cluster")
		for _, e := range rep.ExpiryPressure {
			topCluster := "-"
			if len(e.Clusters) > 0 {
				topCluster = FormatStrike(e.Clusters[0].Strike)
			}
			table.AddRow(
				FormatDate(e.Expiration),
				FormatPrice(e.Spot),
				FormatCount(int64(e.PinScore)),
				FormatOptional(e.MaxPain, FormatPrice),
				topCluster,
			)
		}
		table.Render()
		output.Println()
	}

	if len(rep.BlindSpots) > 0 {
		output.Info("Gamma blind spots")
		for _, b := range rep.BlindSpots {
			for _, c := range b.Corridors {
				output.Printf("  %s  %s - %s  (%d strikes, strength %s)\n",
					FormatDate(b.Expiration), FormatPrice(c.From), FormatPrice(c.To), c.WidthN, FormatPrice(c.Strength))
			}
		}
		output.Println()
	}

	if s := rep.Seasonality; s != nil {
		output.Info("Seasonality")
		if s.Reason != "" {
			output.Dim("  neutral: %s", s.Reason)
		} else {
			output.Printf("  5d cumulative: %s  z: %s  anchors: %d\n",
				FormatOptional(s.Cum5, percentOf), FormatOptional(s.ZScore, FormatPrice), s.Anchors)
		}
		output.Println()
	}

	if v := rep.VolMetrics; v != nil {
		output.Info("Volatility")
		output.Printf("  IV 1M: %s  RV 20: %s  VRP: %s  VRP z: %s\n",
			FormatOptional(v.IV1M, FormatIV), FormatOptional(v.RV20, FormatIV),
			FormatOptional(v.VRP, FormatIV), FormatOptional(v.VRPZScore, FormatPrice))
		if len(v.TermStructure) > 0 {
			table := NewTable(output, "Expiration", "DTE", "ATM IV", "Source")
			for _, p := range v.TermStructure {
				table.AddRow(FormatDate(p.Expiration), FormatCount(int64(p.DTE)), FormatIV(p.ATMIV), p.Source)
			}
			table.Render()
		}
	}
}

func percentOf(fraction float64) string {
	return FormatPercent(fraction * 100)
}
