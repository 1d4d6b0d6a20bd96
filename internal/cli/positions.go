package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"options-dashboard/internal/models"
	"options-dashboard/internal/positions"
)

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "positions",
		Aliases: []string{"pos"},
		Short:   "Show open positions and total P&L",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Tracker.Refresh(cmd.Context()); err != nil {
				return err
			}
			snap := app.Tracker.Snapshot()
			if output.IsJSON() {
				return output.JSON(models.PositionsData{Net: snap.Positions, TotalPnL: snap.TotalPnL})
			}
			renderPositions(output, snap, app.Config.UI.TimeFormat)
			return nil
		},
	}
}

func renderPositions(output *Output, snap positions.Snapshot, timeFormat string) {
	if snap.Err != nil {
		output.Warning("Positions may be out of date: %v", snap.Err)
	}
	if len(snap.Positions) == 0 {
		output.Dim("No open positions")
		return
	}

	table := NewTable(output, "Trade", "Symbol", "Side", "Qty", "Avg", "LTP", "P&L").AlignRight(0, 3, 4, 5, 6)
	for _, p := range snap.Positions {
		side := string(p.OrderType)
		if p.OrderType == models.OrderSideSell {
			side = output.Red(side)
		} else if p.OrderType == models.OrderSideBuy {
			side = output.Green(side)
		}
		table.AddRow(
			string(p.TradeID),
			p.TradingSymbol,
			side,
			fmt.Sprintf("%d", p.Quantity),
			fmt.Sprintf("%.2f", p.AveragePrice),
			fmt.Sprintf("%.2f", p.CurrentPrice),
			output.FormatPnL(p.PnL),
		)
	}
	table.Render()
	output.Println()
	output.Printf("Total P&L: %s  %s\n", output.FormatPnL(snap.TotalPnL), output.DimText("as of "+FormatTime(snap.UpdatedAt, timeFormat)))
}

func newSquareOffCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "squareoff TRADE_ID",
		Short:   "Close one open trade",
		Example: "  optdash squareoff 12",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id := models.TradeID(args[0])
			if _, err := id.Int(); err != nil {
				return fmt.Errorf("invalid trade id %q", args[0])
			}

			resp, err := app.Tracker.SquareOff(cmd.Context(), id)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(resp)
			}
			output.Success("✓ Trade %s squared off at %.2f", resp.TradeID, resp.ExitPrice)
			output.Printf("  Realized P&L: %s\n", output.FormatPnL(resp.PnL))
			return nil
		},
	}
}

func newExitAllCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "exit-all",
		Short: "Close every open trade",
		Long:  "Close every open trade of the configured user. Short legs are bought back before long legs are sold.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if !yes {
				return fmt.Errorf("exit-all closes every open trade; pass --yes to confirm")
			}
			resp, err := app.Tracker.ExitAll(cmd.Context())
			if err != nil {
				return err
			}
			return reportExit(output, resp, app.Tracker.Snapshot())
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm closing all positions")
	return cmd
}

func newExitSelectedCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "exit-selected TRADE_ID...",
		Short:   "Close the given trades",
		Example: "  optdash exit-selected 3 4 7",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ids := make([]models.TradeID, 0, len(args))
			for _, a := range args {
				id := models.TradeID(a)
				if _, err := id.Int(); err != nil {
					return fmt.Errorf("invalid trade id %q", a)
				}
				ids = append(ids, id)
			}
			resp, err := app.Tracker.ExitSelected(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return reportExit(output, resp, app.Tracker.Snapshot())
		},
	}
}

func reportExit(output *Output, resp *models.StatusResponse, snap positions.Snapshot) error {
	if output.IsJSON() {
		return output.JSON(resp)
	}
	msg := resp.Message
	if msg == "" {
		msg = "Positions exited"
	}
	output.Success("✓ %s (%d closed)", msg, resp.Closed)
	output.Println()
	renderPositions(output, snap, "")
	return nil
}
