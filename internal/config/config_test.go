package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movievote.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.BaseURL != "http://localhost:5000" {
		t.Errorf("unexpected base URL %q", cfg.Remote.BaseURL)
	}
	if cfg.Voting.FailurePolicy != "rollback" {
		t.Errorf("expected rollback default, got %q", cfg.Voting.FailurePolicy)
	}
	if cfg.Server.Addr() != "127.0.0.1:8090" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr())
	}
	if !cfg.Remote.Breaker.Enabled || cfg.Remote.Breaker.MinRequests != 10 {
		t.Errorf("unexpected breaker defaults %+v", cfg.Remote.Breaker)
	}
	if cfg.Remote.ShareURL() != cfg.Remote.BaseURL {
		t.Error("expected share URL to fall back to the base URL")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://movies.example.com
  public_url: https://www.movies.example.com
  timeout: 5s
  breaker:
    failure_ratio: 0.5
server:
  port: 9000
  cors_origins:
    - https://ui.example.com
voting:
  failure_policy: keep
  refresh_interval: 1m
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.BaseURL != "https://movies.example.com" || cfg.Remote.Timeout != 5*time.Second {
		t.Errorf("unexpected remote %+v", cfg.Remote)
	}
	if cfg.Remote.ShareURL() != "https://www.movies.example.com" {
		t.Errorf("unexpected share URL %q", cfg.Remote.ShareURL())
	}
	if cfg.Remote.Breaker.FailureRatio != 0.5 || cfg.Remote.Breaker.MinRequests != 10 {
		t.Errorf("expected file to override only the ratio, got %+v", cfg.Remote.Breaker)
	}
	if cfg.Server.Port != 9000 || len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("unexpected server %+v", cfg.Server)
	}
	if cfg.Voting.FailurePolicy != "keep" || cfg.Voting.RefreshInterval != time.Minute {
		t.Errorf("unexpected voting %+v", cfg.Voting)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log %+v", cfg.Log)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("MOVIEVOTE_SERVER_PORT", "9100")
	t.Setenv("MOVIEVOTE_REMOTE_BASE_URL", "https://env.example.com")
	t.Setenv("MOVIEVOTE_REMOTE_BREAKER_ENABLED", "false")
	t.Setenv("MOVIEVOTE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MOVIEVOTE_DEMO", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected env port, got %d", cfg.Server.Port)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Errorf("expected env base URL, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Breaker.Enabled {
		t.Error("expected breaker disabled from env")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.Server.CORSOrigins)
	}
	if !cfg.Demo {
		t.Error("expected demo mode from env")
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "store:\n  path: /tmp/other.db\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Path != "/tmp/other.db" {
		t.Errorf("expected store path from file, got %q", cfg.Store.Path)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"bad policy", "voting:\n  failure_policy: retry\n", "FailurePolicy"},
		{"bad url", "remote:\n  base_url: not a url\n", "BaseURL"},
		{"bad port", "server:\n  port: 70000\n", "Port"},
		{"bad level", "log:\n  level: loud\n", "Level"},
		{"bad ratio", "remote:\n  breaker:\n    failure_ratio: 2\n", "FailureRatio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to name %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "remote: [\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"MOVIEVOTE_REMOTE_BASE_URL":              "remote.base_url",
		"MOVIEVOTE_REMOTE_BREAKER_FAILURE_RATIO": "remote.breaker.failure_ratio",
		"MOVIEVOTE_VOTING_FAILURE_POLICY":        "voting.failure_policy",
		"MOVIEVOTE_DEMO":                         "demo",
		"MOVIEVOTE_CONFIG":                       "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
