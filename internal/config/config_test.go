package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend:
  baseUrl: https://api.example.com
  wsUrl: wss://api.example.com/ws
  token: secret
game:
  mode: comp
  hearts: 3
  questionTime: 30s
  questionCount: 10
reconnect:
  baseInterval: 500ms
  maxInterval: 10s
  maxAttempts: 5
polling:
  interval: 2s
  maxAttempts: 15
redis:
  addr: localhost:6379
  ttl: 1h
questions:
  ttl: 10m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" || cfg.Backend.Token != "secret" {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Game.Mode != "comp" || cfg.Game.Hearts != 3 || cfg.Game.QuestionCount != 10 {
		t.Fatalf("unexpected game config: %+v", cfg.Game)
	}
	if cfg.Reconnect.MaxAttempts != 5 || cfg.Polling.MaxAttempts != 15 {
		t.Fatalf("unexpected retry config: %+v / %+v", cfg.Reconnect, cfg.Polling)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty value must fall back, got %v", got)
	}
	if got := TTLDuration("not a duration", time.Minute); got != time.Minute {
		t.Fatalf("invalid value must fall back, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected parsed duration, got %v", got)
	}
}
