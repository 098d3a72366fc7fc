package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	t.Setenv("TEST_SOFT", "0.55")
	dir := t.TempDir()
	writeFile(t, dir, "moderator.yaml", `
server:
  host: "${TEST_HOST:127.0.0.1}"
moderation:
  soft_threshold: ${TEST_SOFT}
`)

	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(dir, "moderator.yaml"), cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Moderation.SoftThreshold != 0.55 {
		t.Errorf("expected soft threshold 0.55, got %v", cfg.Moderation.SoftThreshold)
	}
	if cfg.Moderation.HardThreshold != 0.85 {
		t.Errorf("expected default hard threshold to survive, got %v", cfg.Moderation.HardThreshold)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	m := cfg.Moderation
	if m.SoftThreshold != 0.60 || m.HardThreshold != 0.85 {
		t.Errorf("unexpected thresholds %v/%v", m.SoftThreshold, m.HardThreshold)
	}
	if m.MaxImagesPerVisionCall != 6 || m.MaxTokens != 300 || m.Timeout != 20*time.Second || m.CallTimeout != 8*time.Second {
		t.Errorf("unexpected limits %+v", m)
	}
	if !m.FailsafeEnabled {
		t.Error("failsafe should default on")
	}
	if m.SkipTextModelWithoutLexicalHit || m.SkipVisionUnlessManagedFlagged {
		t.Error("skip policies should default off")
	}
	if cfg.Managed.Enabled {
		t.Error("managed vision should default off")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"soft above hard", func(c *Config) { c.Moderation.SoftThreshold = 0.9 }},
		{"zero soft", func(c *Config) { c.Moderation.SoftThreshold = 0 }},
		{"hard above one", func(c *Config) { c.Moderation.HardThreshold = 1.5 }},
		{"zero batch", func(c *Config) { c.Moderation.MaxImagesPerVisionCall = 0 }},
		{"zero timeout", func(c *Config) { c.Moderation.Timeout = 0 }},
		{"zero call timeout", func(c *Config) { c.Moderation.CallTimeout = 0 }},
		{"request deadline within call budget", func(c *Config) { c.Moderation.Timeout = c.Moderation.CallTimeout }},
		{"request deadline below two stages", func(c *Config) { c.Moderation.Timeout = 2 * c.Moderation.CallTimeout }},
		{"bad cache", func(c *Config) { c.Cache.Backend = "memcached" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "moderator.yaml", `
moderation:
  skip_text_model_without_lexical_hit: true
  call_timeout: 2s
  timeout: 5s
managed_vision:
  enabled: true
  region: ap-southeast-1
  bucket: uploads
`)
	writeFile(t, dir, "models.yaml", `
roles:
  text:
    primary: {provider: openai, model: gpt-4o-mini}
    fallback:
      - {provider: anthropic, model: claude-haiku}
  vision:
    primary: {provider: openai, model: gpt-4o}
`)
	writeFile(t, dir, "providers.yaml", `
providers:
  openai:
    type: openai
    base_url: https://api.openai.com/v1
    api_key: ${TEST_OPENAI_KEY:sk-test}
    timeout: 15s
`)

	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if !cfg.Moderation.SkipTextModelWithoutLexicalHit {
		t.Error("expected skip_text_model_without_lexical_hit")
	}
	if cfg.Moderation.Timeout != 5*time.Second || cfg.Moderation.CallTimeout != 2*time.Second {
		t.Errorf("expected 5s/2s timeouts, got %v/%v", cfg.Moderation.Timeout, cfg.Moderation.CallTimeout)
	}
	if cfg.Managed.Bucket != "uploads" || cfg.Managed.MinConfidence != 70 {
		t.Errorf("unexpected managed config %+v", cfg.Managed)
	}
	if got := l.Models().Roles["text"].Fallback[0].Provider; got != "anthropic" {
		t.Errorf("expected anthropic fallback, got %s", got)
	}
	if got := l.Providers().Providers["openai"].APIKey; got != "sk-test" {
		t.Errorf("expected expanded api key, got %s", got)
	}
}

func TestLoader_OptionalFilesMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "moderator.yaml", "server:\n  port: 9000\n")

	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if l.Config().Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", l.Config().Server.Port)
	}
	if len(l.Models().Roles) != 0 || len(l.Providers().Providers) != 0 {
		t.Error("expected empty models and providers")
	}
}

func TestLoader_MissingModeratorConfig(t *testing.T) {
	l := NewLoader(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err == nil {
		t.Fatal("expected error without moderator.yaml")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "mod", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/mod?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoader_ShippedConfigs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	l := NewLoader(filepath.Join("..", "..", "configs"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("shipped configs must load: %v", err)
	}

	cfg := l.Config()
	if cfg.Moderation.SoftThreshold != 0.60 || cfg.Moderation.HardThreshold != 0.85 {
		t.Errorf("unexpected thresholds %+v", cfg.Moderation)
	}
	if cfg.Moderation.Timeout != 20*time.Second || cfg.Moderation.CallTimeout != 8*time.Second {
		t.Errorf("expected 20s/8s timeouts, got %v/%v", cfg.Moderation.Timeout, cfg.Moderation.CallTimeout)
	}
	if cfg.Managed.Enabled {
		t.Error("managed vision must default off")
	}
	if cfg.Quota.Limits["vision-model"] != 300 {
		t.Errorf("unexpected quota limits %v", cfg.Quota.Limits)
	}

	for _, role := range []string{"text", "vision"} {
		m, ok := l.Models().Roles[role]
		if !ok {
			t.Fatalf("missing route for role %s", role)
		}
		if _, ok := l.Providers().Providers[m.Primary.Provider]; !ok {
			t.Errorf("role %s routes to unknown provider %s", role, m.Primary.Provider)
		}
	}
	if got := l.Providers().Providers["openai"].APIKey; got != "sk-test" {
		t.Errorf("expected api key from env, got %q", got)
	}
}
