package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := "redis:\n  addr: localhost:6379\ngrading:\n  remote_timeout: 5s\nlesson:\n  ui_lang: en\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Log.Level != "info" || cfg.Lesson.UILang != "en" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected redis addr, got %q", cfg.Redis.Addr)
	}
	if d := DurationOr(cfg.Grading.RemoteTimeout, 12*time.Second); d != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d)
	}
}

func TestDurationOr(t *testing.T) {
	if d := DurationOr("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback, got %v", d)
	}
	if d := DurationOr("soon", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback for malformed value, got %v", d)
	}
	if d := DurationOr("250ms", time.Minute); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", d)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
