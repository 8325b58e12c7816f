package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
postgres:
  url: postgres://file
attempt:
  awayLimit: 2m
auth:
  secret: from-file
cors:
  origins: ["http://a.example", "http://b.example"]
`)
	t.Setenv("AUTH_SECRET", "from-env")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("expected env secret, got %q", cfg.Auth.Secret)
	}
	if cfg.Server.Port != "9090" || len(cfg.CORS.Origins) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.AttemptStore() != StorePostgres {
		t.Fatalf("expected postgres store by default, got %s", cfg.AttemptStore())
	}
	if got := TTLDuration(cfg.Attempt.AwayLimit, time.Minute); got != 2*time.Minute {
		t.Fatalf("expected 2m away limit, got %v", got)
	}
}

func TestLoadRejectsMisconfiguredStore(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("POSTGRES_URL", "")

	if _, err := Load(writeConfig(t, "attempt:\n  store: redis\n")); err == nil {
		t.Fatalf("expected error for redis store without address")
	}
	if _, err := Load(writeConfig(t, "attempt:\n  store: mongo\n")); err == nil {
		t.Fatalf("expected error for unknown store")
	}
	cfg, err := Load(writeConfig(t, "server:\n  port: \"8080\"\n"))
	if err != nil || cfg.AttemptStore() != StoreMemory {
		t.Fatalf("expected memory store, got %q (%v)", cfg.AttemptStore(), err)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("soon", time.Second); got != time.Second {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
}
