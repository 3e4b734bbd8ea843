package config

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"triarb/pkg/crypto"
)

// setRequiredEnv выставляет минимальный набор переменных для успешной загрузки
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "test-key")
	t.Setenv("BINANCE_SECRET_KEY", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Exchange.Name != "binance" {
		t.Errorf("Exchange.Name = %q, want binance", cfg.Exchange.Name)
	}
	if cfg.Exchange.RecvWindow != 5000 {
		t.Errorf("Exchange.RecvWindow = %d, want 5000", cfg.Exchange.RecvWindow)
	}
	if cfg.Bot.SettlementAsset != "USDT" {
		t.Errorf("Bot.SettlementAsset = %q, want USDT", cfg.Bot.SettlementAsset)
	}
	if cfg.Bot.PollInterval != 2*time.Second {
		t.Errorf("Bot.PollInterval = %v, want 2s", cfg.Bot.PollInterval)
	}
	if cfg.Bot.PauseCheckInterval != time.Second {
		t.Errorf("Bot.PauseCheckInterval = %v, want 1s", cfg.Bot.PauseCheckInterval)
	}
	if cfg.Bot.ErrorBackoff != 5*time.Second {
		t.Errorf("Bot.ErrorBackoff = %v, want 5s", cfg.Bot.ErrorBackoff)
	}
	if cfg.Bot.MaxOrderWait != 0 {
		t.Errorf("Bot.MaxOrderWait = %v, want 0 (no limit)", cfg.Bot.MaxOrderWait)
	}
	if cfg.Bot.BalanceUpdateFreq != 3*time.Second {
		t.Errorf("Bot.BalanceUpdateFreq = %v, want 3s", cfg.Bot.BalanceUpdateFreq)
	}
	if cfg.Bot.PriceTolerance != 0.01 || cfg.Bot.StabilityTolerance != 0.005 {
		t.Errorf("tolerances = %v/%v, want 0.01/0.005", cfg.Bot.PriceTolerance, cfg.Bot.StabilityTolerance)
	}
	if cfg.Database.Enabled || cfg.Redis.Enabled {
		t.Error("database and redis should be disabled by default")
	}
	if cfg.Security.APITokenHash != "" {
		t.Error("auth should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SETTLEMENT_ASSET", "btc")
	t.Setenv("MAX_ORDER_WAIT", "90s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("REDIS_EVENT_CHANNEL", "events")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Bot.SettlementAsset != "BTC" {
		t.Errorf("SettlementAsset = %q, want upper-cased BTC", cfg.Bot.SettlementAsset)
	}
	if cfg.Bot.MaxOrderWait != 90*time.Second {
		t.Errorf("MaxOrderWait = %v", cfg.Bot.MaxOrderWait)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Database.Enabled {
		t.Error("Database.Enabled should be true")
	}
	if cfg.Redis.EventChannel != "events" {
		t.Errorf("Redis.EventChannel = %q", cfg.Redis.EventChannel)
	}
}

func TestLoad_InvalidNumberFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("ORDER_POLL_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Bot.PollInterval != 2*time.Second {
		t.Errorf("port = %d, poll = %v", cfg.Server.Port, cfg.Bot.PollInterval)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing api key",
			env:     map[string]string{"BINANCE_API_KEY": ""},
			wantErr: "BINANCE_API_KEY",
		},
		{
			name:    "token hash is not bcrypt",
			env:     map[string]string{"API_TOKEN_HASH": "plain-token"},
			wantErr: "API_TOKEN_HASH",
		},
		{
			name:    "https without cert",
			env:     map[string]string{"USE_HTTPS": "true"},
			wantErr: "CERT_FILE",
		},
		{
			name:    "port out of range",
			env:     map[string]string{"SERVER_PORT": "70000"},
			wantErr: "SERVER_PORT",
		},
		{
			name:    "invalid settlement asset",
			env:     map[string]string{"SETTLEMENT_ASSET": "US-DT"},
			wantErr: "SETTLEMENT_ASSET",
		},
		{
			name:    "negative max order wait",
			env:     map[string]string{"MAX_ORDER_WAIT": "-1s"},
			wantErr: "MAX_ORDER_WAIT",
		},
		{
			name:    "zero poll interval",
			env:     map[string]string{"ORDER_POLL_INTERVAL": "0s"},
			wantErr: "ORDER_POLL_INTERVAL",
		},
		{
			name:    "price tolerance too large",
			env:     map[string]string{"PRICE_TOLERANCE": "1.5"},
			wantErr: "PRICE_TOLERANCE",
		},
		{
			name:    "order book depth zero",
			env:     map[string]string{"ORDER_BOOK_DEPTH": "0"},
			wantErr: "ORDER_BOOK_DEPTH",
		},
		{
			name:    "db port checked only when enabled",
			env:     map[string]string{"DB_ENABLED": "true", "DB_PORT": "0"},
			wantErr: "DB_PORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ValidTokenHash(t *testing.T) {
	setRequiredEnv(t)
	hash, err := crypto.HashTokenWithCost("secret-token", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	t.Setenv("API_TOKEN_HASH", hash)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Security.APITokenHash != hash {
		t.Error("token hash not loaded")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "bot", Password: "s3cret", Name: "triarb", SSLMode: "disable"}

	if dsn := d.DSN(); !strings.Contains(dsn, "password=s3cret") || !strings.Contains(dsn, "dbname=triarb") {
		t.Errorf("DSN() = %q", dsn)
	}
	if dsn := d.DSNWithoutPassword(); strings.Contains(dsn, "s3cret") {
		t.Errorf("DSNWithoutPassword() leaks password: %q", dsn)
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " a ,b,, c ")
	got := getEnvAsList("TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("getEnvAsList = %v", got)
	}
	if def := getEnvAsList("TEST_LIST_MISSING", []string{"x"}); len(def) != 1 || def[0] != "x" {
		t.Errorf("default = %v", def)
	}
}
