package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"options-dashboard/internal/broker"
	"options-dashboard/internal/config"
	"options-dashboard/internal/models"
	"options-dashboard/internal/server"
	"options-dashboard/internal/store"
)

func newServeCmd(app *App) *cobra.Command {
	var (
		addr   string
		mode   string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trading backend",
		Long: `Serve the option-chain, positions and order endpoints the dashboard uses.

In paper mode fills are simulated at Black-Scholes prices around the
configured spot levels. In kite mode quotes and orders go to Kite Connect
using the credentials in credentials.toml or KITE_* environment variables.`,
		Example: `  optdash serve
  optdash serve --mode kite --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			cfg := *app.Config
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if mode != "" {
				cfg.Server.Mode = mode
			}
			if dbPath != "" {
				cfg.Server.DBPath = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			b, err := newBroker(&cfg)
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Server.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv, err := server.NewServer(&cfg, b, st, app.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			output.Success("✓ %s backend on %s", b.Name(), srv.Addr())
			output.Dim("Trades: %s", cfg.Server.DBPath)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "", "paper or kite (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")
	return cmd
}

func newBroker(cfg *config.Config) (broker.Broker, error) {
	if !cfg.IsPaperMode() {
		return broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:      cfg.Credentials.Kite.APIKey,
			AccessToken: cfg.Credentials.Kite.AccessToken,
		})
	}

	spots := make(map[models.Underlying]float64, len(models.AllUnderlyings))
	for _, u := range models.AllUnderlyings {
		spots[u] = cfg.SpotPrice(u)
	}
	return broker.NewPaperBroker(broker.PaperBrokerConfig{
		Spots:        spots,
		Volatility:   cfg.Server.Volatility,
		RiskFreeRate: cfg.Server.RiskFreeRate,
	}), nil
}
