package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ELEVENLABS_API_KEY", "el-key")
	t.Setenv("X_BEARER_TOKEN", "x-token")
	t.Setenv("OPENAI_API_KEY", "oa-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIPort != "8080" {
		t.Errorf("APIPort = %q, want 8080", cfg.APIPort)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Errorf("CacheTTL = %v, want 24h", cfg.CacheTTL)
	}
	if cfg.XAPIBaseURL != "https://api.twitter.com" {
		t.Errorf("XAPIBaseURL = %q", cfg.XAPIBaseURL)
	}
	if cfg.StorageEnabled() {
		t.Error("storage should be disabled without Supabase settings")
	}
	if !cfg.WorkerEnabled {
		t.Error("worker should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("CACHE_TTL", "90m")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("MAX_CONCURRENT_JOBS", "7")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "svc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIPort != "9090" {
		t.Errorf("APIPort = %q", cfg.APIPort)
	}
	if cfg.CacheTTL != 90*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
	if cfg.WorkerEnabled {
		t.Error("WorkerEnabled should be false")
	}
	if cfg.MaxConcurrentJobs != 7 {
		t.Errorf("MaxConcurrentJobs = %d", cfg.MaxConcurrentJobs)
	}
	if !cfg.StorageEnabled() {
		t.Error("storage should be enabled")
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("MAX_CONCURRENT_JOBS", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Errorf("CacheTTL = %v, want default", cfg.CacheTTL)
	}
	if cfg.MaxConcurrentJobs != 2 {
		t.Errorf("MaxConcurrentJobs = %d, want default", cfg.MaxConcurrentJobs)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ElevenLabsKey:     "k",
			XBearerToken:      "x",
			OpenAIKey:         "o",
			MaxConcurrentJobs: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"gemini only", func(c *Config) { c.OpenAIKey = ""; c.GeminiKey = "g" }, ""},
		{"missing elevenlabs", func(c *Config) { c.ElevenLabsKey = "" }, "ELEVENLABS_API_KEY"},
		{"missing x token", func(c *Config) { c.XBearerToken = "" }, "X_BEARER_TOKEN"},
		{"no analyzer", func(c *Config) { c.OpenAIKey = "" }, "OPENAI_API_KEY"},
		{"half supabase", func(c *Config) { c.SupabaseURL = "https://s" }, "SUPABASE"},
		{"zero jobs", func(c *Config) { c.MaxConcurrentJobs = 0 }, "MAX_CONCURRENT_JOBS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
