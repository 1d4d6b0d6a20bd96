package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Dashboard Configuration

[backend]
# Trading backend base URL
base_url = "http://localhost:8000"
user_id = "1"
timeout = "10s"
max_retries = 3
# Client-side request rate limit
rate_per_second = 5.0
burst = 5

[chain]
# Option chain cache freshness window
ttl = "60s"
# Background refresh interval
refresh_interval = "60s"
fetch_timeout = "15s"
underlyings = ["NIFTY", "SENSEX", "BANKNIFTY"]
default = "NIFTY"

[positions]
poll_interval = "3m"

[payoff]
# Curve samples per strike step
sample_divisor = 2
# P&L reference price: "entry" or "current"
reference = "entry"

[payoff.policies.nifty]
strike_step = 50
range_offset = 1000

[payoff.policies.banknifty]
strike_step = 100
range_offset = 1000

[payoff.policies.sensex]
strike_step = 100
range_offset = 2000

[orders]
default_lots = 1
strategy_name = "Manual Trade"
# Strikes further OTM for the protective leg of a SELL order (0 disables)
hedge_strikes = 0

[orders.lot_sizes]
nifty = 25
banknifty = 15
sensex = 10

[server]
addr = ":8000"
# Backend mode: "paper" or "kite"
mode = "paper"
strike_window = 20
volatility = 0.14
risk_free_rate = 0.065
# Browser origins allowed to call the API
allow_origins = ["http://localhost:3005"]

[ui]
color_enabled = true
time_format = "15:04:05"
chart_width = 60
chart_height = 15

[logging]
level = "info"
console = true
file = true

[tracing]
enabled = false
service_name = "optdash"
pretty_print = true

[notifications]
# "all", "trades_only" or "errors_only"
level = "all"
max_visible = 3
show_for = "30s"

[notifications.webhook]
enabled = false
url = ""
timeout = "10s"
`

const credentialsTemplate = `# Options Dashboard Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
api_secret = ""
access_token = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
