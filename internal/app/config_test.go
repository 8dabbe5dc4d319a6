package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
http_addr: ":9090"
postgres:
  dsn: "postgres://from-file"
  max_open_conns: 10
redis:
  addr: "localhost:6379"
  session_ttl: "2h"
auth:
  jwt_secret: "file-secret"
certificates:
  workers: 2
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DB_DSN", "postgres://from-env")
	t.Setenv("CERTIFICATE_WORKERS", "8")
	t.Setenv("CSRF_ENFORCED", "yes")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.Postgres.MaxOpenConns != 10 || cfg.Redis.SessionTTL != "2h" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Postgres.DSN != "postgres://from-env" || cfg.Certificates.Workers != 8 || !cfg.Auth.CSRFEnforced {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Fatalf("expected secret from file, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Storage.SignedURLTTL != "1h" {
		t.Fatalf("defaults should survive a partial file, got %q", cfg.Storage.SignedURLTTL)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Auth.LoginMaxFailures != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("postgres: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("JWT_SECRET", "x")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTTLDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "", want: time.Minute},
		{raw: "90s", want: 90 * time.Second},
		{raw: "bogus", want: time.Minute},
		{raw: "-5m", want: time.Minute},
	}
	for _, tt := range tests {
		if got := TTLDuration(tt.raw, time.Minute); got != tt.want {
			t.Fatalf("TTLDuration(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
