package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/notify"
	"options-dashboard/internal/resilience"
	"options-dashboard/internal/stream"
	"options-dashboard/pkg/utils"
)

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard: chains, positions and payoff",
		Long: `Refresh every configured option chain in the background, poll positions,
and redraw the dashboard whenever new data arrives.

Keys (followed by Enter):
  r        refresh the selected chain now (also on SIGHUP)
  p        refresh positions now
  n        select the next underlying
  NAME     select an underlying, e.g. BANKNIFTY
  q        quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := &dashboard{
				app:    app,
				output: NewOutput(cmd),
				clear:  isTerminal(),
				now:    time.Now,
			}
			return d.run(ctx, cmd.InOrStdin())
		},
	}
}

// dashboard redraws on hub events. All drawing happens on the run goroutine.
type dashboard struct {
	app    *App
	output *Output
	clear  bool
	now    func() time.Time

	status string
}

func (d *dashboard) run(ctx context.Context, in io.Reader) error {
	events := d.app.Hub.SubscribeWithID("watch",
		stream.ChainRefreshed, stream.PositionsRefreshed, stream.OrderPlaced, stream.PositionsClosed)
	defer d.app.Hub.Unsubscribe(events)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	lines := make(chan string)
	go scanLines(ctx, in, lines)

	if d.clear {
		defer logging.MuteConsole()()
	}

	d.app.Chains.Start(ctx)
	d.app.Tracker.Start(ctx)
	defer d.app.Chains.Stop()
	defer d.app.Tracker.Stop()

	d.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.note(ev)
			d.render()
		case <-hup:
			d.refreshSelected(ctx)
			d.render()
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if quit := d.handle(ctx, line); quit {
				return nil
			}
			d.render()
		}
	}
}

func scanLines(ctx context.Context, in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

// handle applies one line of keyboard input and reports whether to quit.
func (d *dashboard) handle(ctx context.Context, line string) bool {
	key := strings.ToUpper(strings.TrimSpace(line))
	switch key {
	case "":
		return false
	case "Q", "QUIT":
		return true
	case "R":
		d.refreshSelected(ctx)
	case "P":
		go func() { _ = d.app.Tracker.Refresh(context.WithoutCancel(ctx)) }()
		d.status = "Refreshing positions..."
	case "N":
		d.selectUnderlying(ctx, d.next())
	default:
		u, err := models.ParseUnderlying(key)
		if err != nil {
			d.status = "Unknown key " + key
			return false
		}
		d.selectUnderlying(ctx, u)
	}
	return false
}

// refreshSelected force-refreshes the selected chain in the background;
// the redraw comes from the hub event.
func (d *dashboard) refreshSelected(ctx context.Context) {
	u := d.app.Chains.Selected()
	d.status = "Refreshing " + string(u) + "..."
	go func() {
		if err := d.app.Chains.ManualRefresh(context.WithoutCancel(ctx)); err != nil {
			log := logging.WithUnderlying(d.app.Logger, string(u))
			log.Warn().Err(err).Msg("Manual refresh failed")
		}
	}()
}

func (d *dashboard) selectUnderlying(ctx context.Context, u models.Underlying) {
	if err := d.app.Chains.Select(u); err != nil {
		d.status = err.Error()
		return
	}
	d.status = "Selected " + string(u)
	go func() { _ = d.app.Chains.Refresh(context.WithoutCancel(ctx), u, false) }()
}

func (d *dashboard) next() models.Underlying {
	us := d.app.Chains.Underlyings()
	cur := d.app.Chains.Selected()
	for i, u := range us {
		if u == cur {
			return us[(i+1)%len(us)]
		}
	}
	return us[0]
}

func (d *dashboard) market(now time.Time) string {
	status := utils.MarketStatusAt(now)
	if status == utils.MarketOpen {
		return d.output.MarketStatus(status)
	}
	return d.output.MarketStatus(status) + d.output.DimText(" opens "+FormatTime(utils.NextMarketOpen(now), "Mon 15:04"))
}

// backendState flags a tripped circuit breaker; a healthy backend shows nothing.
func (d *dashboard) backendState() string {
	if d.app.Client == nil {
		return ""
	}
	stats := d.app.Client.Breaker().Stats()
	switch stats.State {
	case resilience.CircuitOpen:
		return "  " + d.output.Red("● BACKEND DOWN")
	case resilience.CircuitHalfOpen:
		return "  " + d.output.Yellow("● BACKEND RECOVERING")
	}
	return ""
}

func (d *dashboard) note(ev stream.Event) {
	switch {
	case ev.Err != nil:
		d.status = string(ev.Kind) + ": " + ev.Err.Error()
	case ev.Kind == stream.OrderPlaced:
		d.status = "Order placed"
	case ev.Kind == stream.PositionsClosed:
		d.status = "Positions closed"
	case ev.Kind == stream.ChainRefreshed && ev.Underlying == d.app.Chains.Selected():
		d.status = ""
	}
}

func (d *dashboard) render() {
	o := d.output
	if d.clear {
		o.Printf("\033[H\033[2J")
	}
	now := d.now()

	tabs := make([]string, 0, len(d.app.Chains.Underlyings()))
	for _, u := range d.app.Chains.Underlyings() {
		view := d.app.Chains.View(u)
		label := string(u) + " " + chainAge(view, now)
		if u == d.app.Chains.Selected() {
			label = o.BoldText("[" + label + "]")
		} else {
			label = o.DimText(label)
		}
		tabs = append(tabs, label)
	}
	o.Println(strings.Join(tabs, "  ") + "  " + d.market(now) + d.backendState())
	o.Println()

	renderChain(o, d.app.Chains.View(d.app.Chains.Selected()), d.app.Config.UI.TimeFormat)
	o.Println()

	snap := d.app.Tracker.Snapshot()
	renderPositions(o, snap, d.app.Config.UI.TimeFormat)
	if res := d.app.Tracker.Payoff(); !res.Empty() {
		o.Println()
		renderPayoff(o, res, d.app.Config.UI.ChartWidth, d.app.Config.UI.ChartHeight)
	}

	if lines := d.notifications(); len(lines) > 0 {
		o.Println()
		o.Box("Notifications", lines)
	}

	o.Println()
	if d.status != "" {
		o.Info("%s", d.status)
	}
	o.Dim("r refresh · p positions · n next · q quit")
}

func (d *dashboard) notifications() []string {
	if d.app.Overlay == nil {
		return nil
	}
	visible := d.app.Overlay.Visible()
	lines := make([]string, 0, len(visible))
	for _, n := range visible {
		n.Timestamp = n.Timestamp.In(utils.IndiaLocation)
		line := notify.Format(n, d.app.Config.UI.TimeFormat)
		if n.Type == notify.NotificationError {
			line = d.output.Red(line)
		}
		lines = append(lines, line)
	}
	return lines
}
