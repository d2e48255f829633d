package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	PublicURL          string // Base URL the form uses to reach the action endpoint (empty = in-process)
	BackendAPIKey      string // API key for /v1 and /actions (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	AssetsDir          string // Static files (x.png)
	SessionIdleTTL     time.Duration
	ActionTimeout      time.Duration

	// Database (optional, generation history disabled when empty)
	DatabaseURL string

	// Redis (optional, result cache and worker queue disabled when empty)
	RedisURL string
	CacheTTL time.Duration

	// Supabase (optional, previews are returned inline as data URIs when empty)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// X API (profile lookup)
	XBearerToken string
	XAPIBaseURL  string
	XRecentPosts int

	// OpenAI (preferred profile analyzer)
	OpenAIKey   string
	OpenAIModel string

	// Gemini (used when OpenAI key is not set)
	GeminiKey   string
	GeminiModel string

	// ElevenLabs (voice design)
	ElevenLabsKey        string
	ElevenLabsSaveVoices bool // Persist the first preview as a voice in the ElevenLabs library

	// Worker
	WorkerEnabled     bool
	MaxConcurrentJobs int
	WarmupExamples    bool
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		PublicURL:             getEnv("PUBLIC_URL", ""),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		AssetsDir:             getEnv("ASSETS_DIR", "assets/public"),
		SessionIdleTTL:        getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		ActionTimeout:         getEnvDuration("ACTION_TIMEOUT", 2*time.Minute),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		CacheTTL:              getEnvDuration("CACHE_TTL", 24*time.Hour),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "voice-previews"),
		XBearerToken:          getEnv("X_BEARER_TOKEN", ""),
		XAPIBaseURL:           getEnv("X_API_BASE_URL", "https://api.twitter.com"),
		XRecentPosts:          getEnvInt("X_RECENT_POSTS", 20),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsSaveVoices:  getEnvBool("ELEVENLABS_SAVE_VOICES", false),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		WarmupExamples:        getEnvBool("WARMUP_EXAMPLES", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.ElevenLabsKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required")
	}

	if c.XBearerToken == "" {
		return fmt.Errorf("X_BEARER_TOKEN is required")
	}

	// At least one analyzer must be configured
	if c.OpenAIKey == "" && c.GeminiKey == "" {
		return fmt.Errorf("either OPENAI_API_KEY or GEMINI_API_KEY is required for profile analysis")
	}

	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.MaxConcurrentJobs)
	}

	return nil
}

// StorageEnabled reports whether previews are uploaded to Supabase.
func (c *Config) StorageEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
