package cli

import (
	"time"

	"github.com/spf13/cobra"

	"options-dashboard/internal/chain"
	"options-dashboard/internal/models"
)

func newChainCmd(app *App) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "chain [SYMBOL]",
		Short: "Show the option chain around the money",
		Long:  "Show call and put premiums for strikes around the ATM strike of NIFTY, BANKNIFTY or SENSEX.",
		Example: `  optdash chain
  optdash chain BANKNIFTY --refresh`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if len(args) == 1 {
				u, err := models.ParseUnderlying(args[0])
				if err != nil {
					return err
				}
				if err := app.Chains.Select(u); err != nil {
					return err
				}
			}
			u := app.Chains.Selected()

			if err := app.Chains.Refresh(cmd.Context(), u, refresh); err != nil {
				return err
			}
			view := app.Chains.View(u)

			if output.IsJSON() {
				return output.JSON(view.Entry.Chain)
			}
			renderChain(output, view, app.Config.UI.TimeFormat)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	return cmd
}

// renderChain prints a chain as CE | strike | PE with the ATM row marked.
func renderChain(output *Output, view chain.View, timeFormat string) {
	if view.Entry == nil {
		if view.Err != nil {
			output.Error("No chain for %s: %v", view.Underlying, view.Err)
		} else {
			output.Warning("No chain for %s yet", view.Underlying)
		}
		return
	}
	oc := view.Entry.Chain

	output.Printf("%s  Spot %s  ATM %s  Expiry %s  %s %s\n",
		output.BoldText(string(view.Underlying)),
		FormatStrike(oc.SpotPrice),
		FormatStrike(oc.ATMStrike),
		oc.Expiry,
		output.FreshnessTag(view.State.String()),
		output.DimText("updated "+FormatTime(view.Entry.RefreshedAt, timeFormat)),
	)
	if view.Loading {
		output.Dim("Refreshing...")
	}
	if view.Err != nil {
		output.Warning("Showing last good chain: %v", view.Err)
	}

	table := NewTable(output, "CE", "Strike", "PE").AlignRight(0, 1, 2)
	for _, row := range oc.Data {
		strike := FormatStrike(row.Strike)
		if row.Strike == oc.ATMStrike {
			strike = output.BoldText("▶ " + strike)
		}
		table.AddRow(premiumCell(output, row.CE, row.Strike < oc.SpotPrice), strike, premiumCell(output, row.PE, row.Strike > oc.SpotPrice))
	}
	table.Render()
}

// premiumCell dims out-of-the-money premiums.
func premiumCell(output *Output, p *float64, itm bool) string {
	s := FormatPremium(p)
	if itm {
		return s
	}
	return output.DimText(s)
}

// chainAge describes how old the cached chain is.
func chainAge(view chain.View, now time.Time) string {
	if view.Entry == nil {
		return "no data"
	}
	return FormatDuration(view.Entry.Age(now)) + " ago"
}
