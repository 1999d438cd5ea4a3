package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(NewViper(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Trading.Symbol != "WBTCUSDT" || cfg.Trading.QuantityPrecision != 5 || cfg.Trading.PricePrecision != 2 {
		t.Errorf("trading defaults: %+v", cfg.Trading)
	}
	if !cfg.Trading.FeeBuffer.Equal(decimal.RequireFromString("0.995")) || !cfg.Trading.MinBalance.Equal(decimal.RequireFromString("0.00015")) {
		t.Errorf("decimal defaults: %+v", cfg.Trading)
	}
	if cfg.Monitor.PollInterval != 120*time.Second || cfg.Exchange.RecvWindow != 5000 {
		t.Errorf("monitor/exchange defaults: %+v %+v", cfg.Monitor, cfg.Exchange)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
Trading:
  Symbol: ETHUSDT
  BaseAsset: ETH
  QuoteBudget: 15.5
  MinBalance: "0.01"
Monitor:
  PollInterval: 30s
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(NewViper(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Trading.Symbol != "ETHUSDT" || !cfg.Trading.QuoteBudget.Equal(decimal.RequireFromString("15.5")) {
		t.Errorf("trading: %+v", cfg.Trading)
	}
	if !cfg.Trading.MinBalance.Equal(decimal.RequireFromString("0.01")) || cfg.Monitor.PollInterval != 30*time.Second {
		t.Errorf("overrides not applied: %+v %+v", cfg.Trading, cfg.Monitor)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TRADER_TRADING_FEEBUFFER", "1.5")
	if _, err := LoadConfig(NewViper(), t.TempDir()); err == nil {
		t.Error("fee buffer above 1 must be rejected")
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvAPISecret, "")
	missing := filepath.Join(t.TempDir(), ".env")
	if _, err := LoadCredentials(missing); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v", err)
	}

	t.Setenv(EnvAPIKey, "k")
	t.Setenv(EnvAPISecret, "s")
	creds, err := LoadCredentials(missing)
	if err != nil || creds.APIKey != "k" || creds.APISecret != "s" {
		t.Errorf("creds = %+v, err = %v", creds, err)
	}
}

func TestValidateMinBalanceBelowOneTick(t *testing.T) {
	t.Setenv("TRADER_TRADING_MINBALANCE", "0.00001")
	if _, err := LoadConfig(NewViper(), t.TempDir()); err == nil {
		t.Error("min balance that truncates to a zero sell must be rejected")
	}

	t.Setenv("TRADER_TRADING_MINBALANCE", "0.00002")
	cfg, err := LoadConfig(NewViper(), t.TempDir())
	if err != nil {
		t.Fatalf("0.00002 × 0.995 still sells one tick: %v", err)
	}
	if !cfg.Trading.MinBalance.Equal(decimal.RequireFromString("0.00002")) {
		t.Errorf("MinBalance = %s", cfg.Trading.MinBalance)
	}
}
