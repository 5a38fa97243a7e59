package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-3")
	t.Setenv("LOW_STOCK_THRESHOLD", "abc")
	t.Setenv("INVOICE_DELAY_MS", "0")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token ttl fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.LowStockThreshold != 4 {
		t.Fatalf("expected low stock fallback 4, got %d", cfg.LowStockThreshold)
	}
	if cfg.InvoiceDelay() != 0 {
		t.Fatalf("expected zero invoice delay, got %s", cfg.InvoiceDelay())
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.SlogLevel())
	}
	if cfg.ScopeCacheTTL() != 60*time.Second {
		t.Fatalf("expected 60s scope cache ttl, got %s", cfg.ScopeCacheTTL())
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PORT=9999\nDEFAULT_RESET_PASSWORD=0000\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "8181")
	t.Setenv("DEFAULT_RESET_PASSWORD", "")
	os.Unsetenv("DEFAULT_RESET_PASSWORD")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load env: %v", err)
	}
	cfg := Load()
	if cfg.Port != "8181" {
		t.Fatalf("expected existing PORT to win, got %q", cfg.Port)
	}
	if cfg.DefaultResetPassword != "0000" {
		t.Fatalf("expected reset password from file, got %q", cfg.DefaultResetPassword)
	}
}
