// Package cli provides the command-line interface for the options dashboard.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-dashboard/internal/backend"
	"options-dashboard/internal/chain"
	"options-dashboard/internal/config"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/notify"
	"options-dashboard/internal/orders"
	"options-dashboard/internal/payoff"
	"options-dashboard/internal/positions"
	"options-dashboard/internal/stream"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-12-16"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Hub     *stream.Hub
	Client  *backend.Client
	Chains  *chain.Coordinator
	Engine  *payoff.Engine
	Tracker *positions.Tracker
	Planner *orders.Planner

	Notifier *notify.Notifier
	Overlay  *notify.Overlay
}

// NewApp wires the dashboard components from cfg. Nothing is fetched
// until a command asks for it.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	client, err := backend.NewClient(cfg.Backend, logger)
	if err != nil {
		return nil, err
	}

	hub := stream.NewHub(logger)
	engine := payoff.NewEngine(payoff.OptionsFromConfig(cfg.Payoff), logger)

	overlay := notify.NewOverlay(cfg.Notify.MaxVisible, cfg.Notify.ShowFor)
	channels := []notify.Channel{overlay}
	if cfg.Notify.Webhook.Enabled {
		channels = append(channels, notify.NewWebhookNotifier(cfg.Notify.Webhook))
	}
	notifier := notify.NewNotifier(cfg.Notify, logger, channels...)
	hub.RegisterConsumer(notifier)

	return &App{
		Config: cfg,
		Logger: logger,
		Hub:    hub,
		Client: client,
		Chains: chain.NewCoordinator(chain.Options{
			Underlyings:     cfg.Underlyings(),
			Default:         cfg.DefaultUnderlying(),
			TTL:             cfg.Chain.TTL,
			RefreshInterval: cfg.Chain.RefreshInterval,
			FetchTimeout:    cfg.Chain.FetchTimeout,
		}, client, hub, logger),
		Engine: engine,
		Tracker: positions.NewTracker(positions.Options{
			PollInterval: cfg.Positions.PollInterval,
			FetchTimeout: cfg.Chain.FetchTimeout,
		}, client, engine, hub, logger),
		Planner:  orders.NewPlanner(cfg.Orders, client, hub, logger),
		Notifier: notifier,
		Overlay:  overlay,
	}, nil
}

// Close stops background work and releases subscribers.
func (a *App) Close() {
	if a.Chains != nil {
		a.Chains.Stop()
	}
	if a.Tracker != nil {
		a.Tracker.Stop()
	}
	if a.Hub != nil {
		if a.Notifier != nil {
			a.Hub.UnregisterConsumer(a.Notifier)
		}
		a.Hub.Close()
	}
	if a.Notifier != nil {
		a.Notifier.Close()
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	cmd, _ := newRootCmd(cfg, logger)
	return cmd
}

func newRootCmd(cfg *config.Config, logger zerolog.Logger) (*cobra.Command, *App) {
	app := &App{Config: cfg, Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "optdash",
		Short: "Options dashboard for NIFTY, BANKNIFTY and SENSEX",
		Long: `optdash shows cached option chains, open positions and their expiry
payoff, and places or exits option orders through the trading backend.

Run 'optdash serve' to start a paper backend on the configured address,
then 'optdash watch' for the live dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.Logger = logging.NewLoggerWithConfig(loaded.Logging)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}

			wired, err := NewApp(app.Config, app.Logger)
			if err != nil {
				return err
			}
			*app = *wired
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-dashboard)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newChainCmd(app),
		newPayoffCmd(app),
		newPositionsCmd(app),
		newOrderCmd(app),
		newSquareOffCmd(app),
		newExitAllCmd(app),
		newExitSelectedCmd(app),
		newWatchCmd(app),
		newServeCmd(app),
	)
	closeAfterRun(rootCmd, app)

	return rootCmd, app
}

// closeAfterRun releases app when any runnable command returns. Cobra
// skips PersistentPostRun after a failed RunE, so the hook lives here.
func closeAfterRun(cmd *cobra.Command, app *App) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			defer app.Close()
			return run(c, args)
		}
	} else if run := cmd.Run; run != nil {
		cmd.Run = func(c *cobra.Command, args []string) {
			defer app.Close()
			run(c, args)
		}
	}
	for _, sub := range cmd.Commands() {
		closeAfterRun(sub, app)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("optdash v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			NewOutput(cmd).Println(config.DefaultConfigDir())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg without credentials.
func redacted(cfg *config.Config) config.Config {
	cp := *cfg
	cp.Credentials = config.Credentials{}
	return cp
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Backend")
	output.Printf("  URL:             %s\n", cfg.Backend.BaseURL)
	output.Printf("  User:            %s\n", cfg.Backend.UserID)
	output.Printf("  Timeout:         %s\n", cfg.Backend.Timeout)
	output.Println()

	output.Bold("Option Chains")
	output.Printf("  Underlyings:     %v\n", cfg.Chain.Underlyings)
	output.Printf("  Default:         %s\n", cfg.DefaultUnderlying())
	output.Printf("  TTL:             %s\n", cfg.Chain.TTL)
	output.Printf("  Refresh every:   %s\n", cfg.Chain.RefreshInterval)
	output.Printf("  Positions poll:  %s\n", cfg.Positions.PollInterval)
	output.Println()

	output.Bold("Orders")
	for _, u := range cfg.Underlyings() {
		output.Printf("  Lot size %-9s %d\n", string(u)+":", cfg.LotSize(u))
	}
	output.Printf("  Hedge strikes:   %d\n", cfg.Orders.HedgeStrikes)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Mode:            %s\n", cfg.Server.Mode)
	output.Printf("  Database:        %s\n", cfg.Server.DBPath)
	if key := cfg.Credentials.Kite.APIKey; key != "" {
		output.Printf("  Kite API key:    %s\n", config.MaskCredential(key))
	}
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Level:           %s\n", cfg.Notify.Level)
	if cfg.Notify.Webhook.Enabled {
		output.Printf("  Webhook:         %s\n", cfg.Notify.Webhook.URL)
	} else {
		output.Printf("  Webhook:         disabled\n")
	}
}
