package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("listen %q", cfg.Listen)
	}
	if cfg.Storage != "sqlite" {
		t.Fatalf("storage %q", cfg.Storage)
	}
	if cfg.SweepCron == "" {
		t.Fatal("empty sweep cron")
	}
}

func TestLoadFileAndNormalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
listen: ":9090"
storage: redis
base_url: "https://iglesia.example.org"
admin_emails:
  - pastor@example.org
smtp:
  host: mail.example.org
  port: 587
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.Storage != "redis" {
		t.Fatalf("listen %q storage %q", cfg.Listen, cfg.Storage)
	}
	if cfg.BaseURL != "https://iglesia.example.org" {
		t.Fatalf("base url %q", cfg.BaseURL)
	}
	if len(cfg.AdminEmails) != 1 {
		t.Fatalf("admin emails %v", cfg.AdminEmails)
	}
	if cfg.SMTP.Port != 587 || cfg.SMTP.Host != "mail.example.org" {
		t.Fatalf("smtp %+v", cfg.SMTP)
	}
	// Unset fields fall back to defaults.
	if cfg.RedisAddr == "" || cfg.SMTP.From == "" {
		t.Fatalf("defaults not applied: redis %q from %q", cfg.RedisAddr, cfg.SMTP.From)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("STORAGE", "memory")
	t.Setenv("BASE_URL", "https://env.example.org")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Fatalf("listen %q", cfg.Listen)
	}
	if cfg.Storage != "memory" {
		t.Fatalf("storage %q", cfg.Storage)
	}
	if cfg.BaseURL != "https://env.example.org" {
		t.Fatalf("base url %q", cfg.BaseURL)
	}
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE", "oracle")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Normalize snaps unknown backends to the default.
	if cfg.Storage != "sqlite" {
		t.Fatalf("storage %q, want sqlite", cfg.Storage)
	}
}
