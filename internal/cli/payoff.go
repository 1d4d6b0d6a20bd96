package cli

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"options-dashboard/internal/chart"
	"options-dashboard/internal/models"
	"options-dashboard/internal/payoff"
)

func newPayoffCmd(app *App) *cobra.Command {
	var (
		reference string
		htmlPath  string
	)

	cmd := &cobra.Command{
		Use:   "payoff",
		Short: "Plot the expiry payoff of open positions",
		Long: `Compute the P&L at expiry of the open positions across a range of spot
prices and print the curve with its max profit, max loss and break-evens.`,
		Example: `  optdash payoff
  optdash payoff --reference current --html payoff.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if err := app.Tracker.Refresh(cmd.Context()); err != nil {
				return err
			}

			res := app.Tracker.Payoff()
			if cmd.Flags().Changed("reference") {
				ref := payoff.ParseReference(reference)
				res = app.Engine.WithReference(ref).Compute(app.Tracker.Snapshot().Positions)
			}

			if htmlPath != "" && !res.Empty() {
				if err := writeChart(htmlPath, res, app.Config.UI.ChartWidth, app.Config.UI.ChartHeight); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(payoffJSON(res))
			}
			if res.Empty() {
				output.Warning("No open positions to plot")
				return nil
			}
			renderPayoff(output, res, app.Config.UI.ChartWidth, app.Config.UI.ChartHeight)
			if htmlPath != "" {
				output.Success("✓ Chart written to %s", htmlPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "entry", "price legs are measured against: entry or current")
	cmd.Flags().StringVar(&htmlPath, "html", "", "also write an HTML chart to this file")
	return cmd
}

func writeChart(path string, res payoff.Result, width, height int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	// Terminal sizes are in characters; scale to pixels for the page.
	if err := chart.RenderPayoff(f, res, chart.Options{Width: width * 18, Height: height * 34}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type payoffView struct {
	Underlying models.Underlying    `json:"underlying"`
	Legs       int                  `json:"legs"`
	Metrics    models.PayoffMetrics `json:"metrics"`
	Curve      []models.PayoffPoint `json:"curve"`
	Skipped    []string             `json:"skipped,omitempty"`
}

func payoffJSON(res payoff.Result) payoffView {
	v := payoffView{
		Underlying: res.Underlying,
		Legs:       len(res.Legs),
		Metrics:    res.Metrics,
		Curve:      res.Curve,
	}
	for _, s := range res.Skipped {
		v.Skipped = append(v.Skipped, s.TradingSymbol+": "+s.Reason)
	}
	return v
}

// renderPayoff prints the metrics box followed by the terminal chart.
func renderPayoff(output *Output, res payoff.Result, width, height int) {
	bes := "none"
	if len(res.Metrics.BreakEvens) > 0 {
		parts := make([]string, len(res.Metrics.BreakEvens))
		for i, be := range res.Metrics.BreakEvens {
			parts[i] = FormatStrike(be)
		}
		bes = strings.Join(parts, ", ")
	}

	output.Box(fmt.Sprintf("%s payoff at expiry", res.Underlying), []string{
		fmt.Sprintf("Legs:        %d", len(res.Legs)),
		"Max profit:  " + output.FormatPnL(res.Metrics.MaxProfit),
		"Max loss:    " + output.FormatPnL(res.Metrics.MaxLoss),
		"Break-even:  " + bes,
	})
	for _, s := range res.Skipped {
		output.Warning("Skipped %s: %s", s.TradingSymbol, s.Reason)
	}
	output.Println()
	for _, line := range asciiPayoff(res.Curve, width, height) {
		output.Println(line)
	}
}

// asciiPayoff draws the curve on a width x height character grid with the
// zero line marked. Rows are followed by the spot axis.
func asciiPayoff(curve []models.PayoffPoint, width, height int) []string {
	if len(curve) == 0 {
		return nil
	}
	width = max(width, 10)
	height = max(height, 5)
	cols := min(width, len(curve))

	vals := make([]float64, cols)
	for c := range vals {
		idx := 0
		if cols > 1 {
			idx = c * (len(curve) - 1) / (cols - 1)
		}
		vals[c] = curve[idx].PnL
	}

	hi, lo := 0.0, 0.0
	for _, v := range vals {
		hi = max(hi, v)
		lo = min(lo, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	rowOf := func(v float64) int {
		return int(math.Round((hi - v) / span * float64(height-1)))
	}

	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", cols))
	}
	zero := rowOf(0)
	for c := range grid[zero] {
		grid[zero][c] = '─'
	}
	for c, v := range vals {
		grid[rowOf(v)][c] = '•'
	}

	labels := make([]string, height)
	labels[0] = FormatCompact(hi)
	labels[height-1] = FormatCompact(lo)
	labels[zero] = "0"
	labelWidth := 0
	for _, l := range labels {
		labelWidth = max(labelWidth, len([]rune(l)))
	}

	lines := make([]string, 0, height+2)
	for r, row := range grid {
		lines = append(lines, fmt.Sprintf("%*s │%s", labelWidth, labels[r], string(row)))
	}
	pad := strings.Repeat(" ", labelWidth)
	lines = append(lines, pad+" └"+strings.Repeat("─", cols))

	left, right := FormatStrike(curve[0].Spot), FormatStrike(curve[len(curve)-1].Spot)
	gap := max(1, cols-len(left)-len(right))
	lines = append(lines, pad+"  "+left+strings.Repeat(" ", gap)+right)
	return lines
}
