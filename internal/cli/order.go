package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"options-dashboard/internal/models"
	"options-dashboard/internal/orders"
)

func newOrderCmd(app *App) *cobra.Command {
	var (
		lots   int
		price  float64
		hedge  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "order SYMBOL STRIKE CE|PE BUY|SELL",
		Short: "Place an option order",
		Long: `Place a market order for an index option on the nearest expiry.

With --hedge N, a SELL is preceded by a BUY of the same option type N strikes
further out of the money. The hedge is sent first; if it fails the main leg
is not sent.`,
		Example: `  optdash order NIFTY 22000 CE BUY
  optdash order BANKNIFTY 51000 PE SELL --lots 2 --hedge 3`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			ticket, err := parseTicket(args)
			if err != nil {
				return err
			}
			ticket.Lots = lots
			ticket.Price = price
			ticket.Hedge = -1
			if cmd.Flags().Changed("hedge") {
				ticket.Hedge = hedge
			}

			plan, err := app.Planner.Plan(ticket)
			if err != nil {
				return err
			}
			if dryRun {
				if output.IsJSON() {
					return output.JSON(plan.Legs)
				}
				renderPlan(output, plan)
				return nil
			}

			filled, err := app.Planner.Execute(cmd.Context(), plan)
			if output.IsJSON() {
				if jerr := output.JSON(filled); jerr != nil {
					return jerr
				}
				return err
			}
			for _, f := range filled {
				label := "Order"
				if f.Leg.Hedge {
					label = "Hedge"
				}
				output.Success("✓ %s placed: %s %s x%d (order %s, trade %s)",
					label, f.Leg.Request.Action, f.Response.TradingSymbol,
					f.Leg.Request.Quantity*f.Leg.Request.LotSize, f.Response.OrderID, f.Response.TradeID)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&lots, "lots", 0, "number of lots (default from config)")
	cmd.Flags().Float64Var(&price, "price", 0, "limit price; 0 for market")
	cmd.Flags().IntVar(&hedge, "hedge", 0, "for SELL, buy a hedge this many strikes further OTM (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the legs without placing them")
	return cmd
}

func parseTicket(args []string) (orders.Ticket, error) {
	u, err := models.ParseUnderlying(args[0])
	if err != nil {
		return orders.Ticket{}, err
	}
	strike, err := strconv.Atoi(args[1])
	if err != nil {
		return orders.Ticket{}, fmt.Errorf("invalid strike %q", args[1])
	}
	typ, err := models.ParseOptionType(args[2])
	if err != nil {
		return orders.Ticket{}, err
	}
	side, err := models.ParseOrderSide(args[3])
	if err != nil {
		return orders.Ticket{}, err
	}
	return orders.Ticket{Underlying: u, Strike: strike, Type: typ, Action: side}, nil
}

func renderPlan(output *Output, plan *orders.Plan) {
	table := NewTable(output, "Leg", "Action", "Contract", "Lots", "Qty").AlignRight(3, 4)
	for i, leg := range plan.Legs {
		r := leg.Request
		name := "main"
		if leg.Hedge {
			name = "hedge"
		}
		table.AddRow(
			fmt.Sprintf("%d %s", i+1, name),
			string(r.Action),
			fmt.Sprintf("%s %s %s", r.Symbol, FormatStrike(float64(r.Strike)), r.OptionType),
			strconv.Itoa(r.Quantity),
			strconv.Itoa(r.Quantity*r.LotSize),
		)
	}
	table.Render()
}
