package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("nlquery", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Limits.RowLimit != 1000 {
		t.Fatalf("Limits.RowLimit = %d", cfg.Limits.RowLimit)
	}
	if cfg.Limits.AllowMutations {
		t.Fatal("Limits.AllowMutations should default to false")
	}
	if cfg.Limits.SchemaCacheTTL != 0 {
		t.Fatalf("Limits.SchemaCacheTTL = %v", cfg.Limits.SchemaCacheTTL)
	}
	if cfg.AI.Provider != "openai" {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.MaxAttempts != 3 {
		t.Fatalf("AI.MaxAttempts = %d", cfg.AI.MaxAttempts)
	}
	if cfg.AI.BackoffBase != 500*time.Millisecond {
		t.Fatalf("AI.BackoffBase = %v", cfg.AI.BackoffBase)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"NLQUERY_PROFILE": "prod"})
	cfg, err := Load("nlquery", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Limits.SchemaCacheTTL != 5*time.Minute {
		t.Fatalf("Limits.SchemaCacheTTL = %v", cfg.Limits.SchemaCacheTTL)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"NLQUERY_HTTP_ADDR":       ":9999",
		"NLQUERY_DATABASE_DSN":    "postgres://app@localhost:5432/app",
		"NLQUERY_ROW_LIMIT":       "50",
		"NLQUERY_ALLOW_MUTATIONS": "true",
		"NLQUERY_AI_PROVIDER":     "anthropic",
		"NLQUERY_AI_TIMEOUT":      "3s",
		"NLQUERY_LOG_LEVEL":       "warn",
	})
	cfg, err := Load("nlquery", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Database.DSN != "postgres://app@localhost:5432/app" {
		t.Fatalf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.Limits.RowLimit != 50 {
		t.Fatalf("Limits.RowLimit = %d", cfg.Limits.RowLimit)
	}
	if !cfg.Limits.AllowMutations {
		t.Fatal("Limits.AllowMutations should be true")
	}
	if cfg.AI.Provider != "anthropic" {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.Timeout != 3*time.Second {
		t.Fatalf("AI.Timeout = %v", cfg.AI.Timeout)
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadAPIKeyFallback(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"NLQUERY_AI_PROVIDER": "anthropic",
		"ANTHROPIC_API_KEY":   "sk-ant-test",
	})
	cfg, err := Load("nlquery", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "sk-ant-test" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
}

func TestLoadExplicitKeyBeatsFallback(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"NLQUERY_AI_API_KEY": "explicit",
		"OPENAI_API_KEY":     "fallback",
	})
	cfg, err := Load("nlquery", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "explicit" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":  {"NLQUERY_PROFILE": "staging"},
		"duration": {"NLQUERY_AI_TIMEOUT": "soon"},
		"int":      {"NLQUERY_ROW_LIMIT": "many"},
		"bool":     {"NLQUERY_ALLOW_MUTATIONS": "yep"},
		"level":    {"NLQUERY_LOG_LEVEL": "loud"},
		"attempts": {"NLQUERY_AI_MAX_ATTEMPTS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load("nlquery", mapLookup(env)); err == nil {
				t.Fatalf("Load() with %v should fail", env)
			}
		})
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
