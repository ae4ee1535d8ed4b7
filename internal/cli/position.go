package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"options-signals/internal/analysis/position"
	apperrors "options-signals/internal/errors"
)

func newPositionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Analyze a multi-leg option position",
		Long: `Evaluate a JSON position request: current value and Greeks, the expiry
payoff curve and the scenario grid.

Examples:
  signals position --file spread.json
  cat spread.json | signals position --file - --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			file, _ := cmd.Flags().GetString("file")

			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			svc, err := app.newService(cmd.Context())
			if err != nil {
				return err
			}

			result, err := svc.AnalyzePosition(data)
			if err != nil {
				var verrs apperrors.ValidationErrors
				if errors.As(err, &verrs) {
					if output.IsJSON() {
						if jerr := output.JSON(map[string]interface{}{"errors": verrs}); jerr != nil {
							return jerr
						}
						return err
					}
					for _, v := range verrs {
						output.Error("%s: %s", v.Field, v.Message)
					}
				}
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printPosition(output, result)
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "-", "request file, or - for stdin")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return data, nil
}

func printPosition(output *Output, r *position.Result) {
	output.Bold("%s position at spot %s", r.Symbol, FormatPrice(r.Spot))
	output.Println()

	table := NewTable(output, "Leg", "Strike", "Expiry", "IV", "Source", "Entry", "Theo")
	for _, leg := range r.Legs {
		table.AddRow(
			fmt.Sprintf("%s %d %s", leg.Side, leg.Qty, leg.Type),
			FormatPrice(leg.Strike),
			leg.Expiry,
			FormatIV(leg.IV),
			leg.IVSource,
			FormatCurrency(leg.EntryPrice),
			FormatCurrency(leg.Theo.Price),
		)
	}
	table.Render()
	output.Println()

	g := r.Now
	output.Printf("  Value:  %s\n", output.Signed(g.Price, FormatPnL(g.Price)))
	output.Printf("  Delta:  %.2f  Gamma: %.4f  Theta: %.2f  Vega: %.2f  Rho: %.2f\n",
		g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho)
	output.Println()

	if len(r.Payoff) > 0 {
		lo, hi := r.Payoff[0], r.Payoff[0]
		for _, p := range r.Payoff {
			if p.PnL < lo.PnL {
				lo = p
			}
			if p.PnL > hi.PnL {
				hi = p
			}
		}
		output.Printf("  Payoff range: %s at %s to %s at %s\n",
			output.Signed(lo.PnL, FormatPnL(lo.PnL)), FormatPrice(lo.Spot),
			output.Signed(hi.PnL, FormatPnL(hi.PnL)), FormatPrice(hi.Spot))
		output.Println()
	}

	if len(r.Scenarios) > 0 {
		table := NewTable(output, "Days", "Spot", "IV pts", "P&L", "Delta")
		for _, s := range r.Scenarios {
			table.AddRow(
				fmt.Sprintf("%d", s.DaysForward),
				FormatPercent(s.SpotPct),
				fmt.Sprintf("%+.1f", s.IVPts),
				output.Signed(s.PnL, FormatPnL(s.PnL)),
				fmt.Sprintf("%.2f", s.Greeks.Delta),
			)
		}
		table.Render()
	}
}
