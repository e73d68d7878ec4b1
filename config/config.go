// Package config loads outletwatch agent configuration from the
// environment.
package config

import "os"

// Config holds the agent settings.
type Config struct {
	WSBase     string // WebSocket base URL the channel connects to
	APIBase    string // HTTP API base URL for login
	TokenKey   string // credential store key for the bearer token
	ListenAddr string // status API listen address

	WebhookURL string // alert webhook endpoint, empty disables

	AuthToken    string // static bearer token, seeds the store directly
	AuthEmail    string // login email, used when no static token is set
	AuthPassword string // login password
}

// Default returns the default agent configuration.
func Default() *Config {
	return &Config{
		WSBase:     "ws://localhost:8080/ws",
		APIBase:    "http://localhost:8080/api",
		TokenKey:   "auth_token",
		ListenAddr: ":9090",
	}
}

// FromEnv loads configuration from environment variables, falling back to
// defaults for any missing values.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("OUTLETWATCH_WS_BASE"); v != "" {
		cfg.WSBase = v
	}
	if v := os.Getenv("OUTLETWATCH_API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv("OUTLETWATCH_TOKEN_KEY"); v != "" {
		cfg.TokenKey = v
	}
	if v := os.Getenv("OUTLETWATCH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("OUTLETWATCH_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("OUTLETWATCH_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("OUTLETWATCH_AUTH_EMAIL"); v != "" {
		cfg.AuthEmail = v
	}
	if v := os.Getenv("OUTLETWATCH_AUTH_PASSWORD"); v != "" {
		cfg.AuthPassword = v
	}
	return cfg
}
