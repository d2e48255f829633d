package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/xvoice/internal/action"
	"github.com/bobarin/xvoice/internal/api"
	"github.com/bobarin/xvoice/internal/cache"
	"github.com/bobarin/xvoice/internal/config"
	"github.com/bobarin/xvoice/internal/db"
	"github.com/bobarin/xvoice/internal/form"
	"github.com/bobarin/xvoice/internal/queue"
	"github.com/bobarin/xvoice/internal/services"
	"github.com/bobarin/xvoice/internal/storage"
	"github.com/bobarin/xvoice/internal/worker"
)

func main() {
	log.Println("Starting xvoice...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Upstream services
	profiles := services.NewXProfileService(cfg.XBearerToken, cfg.XAPIBaseURL, cfg.XRecentPosts)
	voices := services.NewElevenLabsService(cfg.ElevenLabsKey)
	analyzer, err := newAnalyzer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize analyzer: %v", err)
	}

	opts := action.Options{}

	// Database (optional)
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		opts.Generations = database
		log.Println("Connected to database")
	} else {
		log.Println("No DATABASE_URL set, generation history disabled")
	}

	// Redis (optional): worker queue and result cache share one client
	var q *queue.Queue
	if cfg.RedisURL != "" {
		rdb, err := queue.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		q = queue.NewWithClient(rdb)
		defer q.Close()
		opts.Cache = cache.New(rdb, cfg.CacheTTL)
		log.Printf("Connected to Redis (cache TTL %v)", cfg.CacheTTL)
	}

	// Storage (optional)
	if cfg.StorageEnabled() {
		opts.Audio = storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		log.Printf("Initialized Supabase storage (bucket: %s)", cfg.SupabaseStorageBucket)
	} else {
		log.Println("Supabase not configured, previews are returned inline")
	}

	if cfg.ElevenLabsSaveVoices {
		opts.Saver = voices
	}

	synth := action.New(profiles, analyzer, voices, opts)

	// The form reaches the action over HTTP when PUBLIC_URL is set, in-process otherwise.
	var formAction form.Action = synth
	if cfg.PublicURL != "" {
		formAction = form.NewHTTPAction(cfg.PublicURL, cfg.BackendAPIKey, &http.Client{Timeout: cfg.ActionTimeout})
		log.Printf("Form action calls %s%s", cfg.PublicURL, form.ActionPath)
	}

	pages, err := api.NewPages()
	if err != nil {
		log.Fatalf("Failed to load pages: %v", err)
	}

	sessions := api.NewSessions(formAction, cfg.SessionIdleTTL)
	go sessions.RunSweeper(ctx, time.Minute)

	deps := api.Deps{
		Action:        synth,
		Sessions:      sessions,
		Pages:         pages,
		AssetsDir:     cfg.AssetsDir,
		ActionTimeout: cfg.ActionTimeout,
	}
	if database != nil {
		deps.Generations = database
	}

	// Background jobs need both the queue and job records
	var w *worker.Worker
	if database != nil && q != nil {
		w = worker.New(q, database, synth)
		deps.Scheduler = w
		deps.Jobs = database
	}

	handler := api.NewHandler(deps)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, JSON endpoints are unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	if cfg.WorkerEnabled && w != nil {
		log.Println("Worker enabled, starting background processing...")
		go w.Start(ctx, cfg.MaxConcurrentJobs)

		if cfg.WarmupExamples {
			go w.Warmup(ctx, form.ExampleHandles())
		}
	} else if cfg.WorkerEnabled {
		log.Println("Worker needs DATABASE_URL and REDIS_URL, background processing disabled")
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stops the worker and the session sweeper
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// newAnalyzer prefers OpenAI and falls back to Gemini.
func newAnalyzer(ctx context.Context, cfg *config.Config) (services.ProfileAnalyzer, error) {
	if cfg.OpenAIKey != "" {
		log.Printf("Profile analyzer: OpenAI (model: %s)", cfg.OpenAIModel)
		return services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel), nil
	}

	log.Printf("Profile analyzer: Gemini (model: %s)", cfg.GeminiModel)
	return services.NewGeminiService(ctx, cfg.GeminiKey, cfg.GeminiModel)
}
