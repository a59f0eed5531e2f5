package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/internal/api"
	"github.com/rawblock/ring-engine/internal/cache"
	"github.com/rawblock/ring-engine/internal/config"
	"github.com/rawblock/ring-engine/internal/db"
	"github.com/rawblock/ring-engine/internal/heuristics"
)

func main() {
	log.Println("Starting RawBlock Ring Detection Engine...")

	// ─── Configuration ──────────────────────────────────────────────────
	// CONFIG_PATH points at a YAML file; without it every setting comes
	// from environment variables. Secrets (API_AUTH_TOKEN, DATABASE_URL)
	// belong in the environment: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	cfg := loadConfig()

	engine := heuristics.NewEngine(cfg.Detection)

	opts := api.Options{
		Engine: engine,
		Server: cfg.Server,
	}

	if cfg.Database.URL != "" {
		dbConn, err := db.Connect(cfg.Database.URL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without report storage. Error: %v", err)
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
			opts.Store = dbConn
		}
	}

	if cfg.Redis.URL != "" {
		resultCache, err := cache.Connect(cfg.Redis.URL, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis, results will not be cached. Error: %v", err)
		} else {
			defer resultCache.Close()
			opts.Cache = resultCache
		}
	}

	// WebSocket hub for live ring alerts
	wsHub := api.NewHub(cfg.Server.AllowedOrigins...)
	go wsHub.Run()
	defer wsHub.Close()
	opts.Hub = wsHub

	alertManager := alerts.NewAlertManager(api.BroadcastRingAlert(wsHub), cfg.Alerts.HistorySize, cfg.Alerts.MaxPerRun)
	for _, wh := range cfg.Alerts.Webhooks {
		if wh.URL == "" {
			continue
		}
		alertManager.RegisterWebhook(wh.Name, wh.URL, wh.MinSeverity, wh.Headers)
	}
	opts.Alerts = alertManager

	r := api.SetupRouter(opts)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Engine running on :%s (cycle depth %d, fan threshold %d)\n",
			cfg.Server.Port, engine.Config().MaxCycleDepth, engine.Config().FanThreshold)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

// loadConfig prefers the YAML file named by CONFIG_PATH and falls back to
// environment variables.
func loadConfig() *config.Config {
	path := getEnvOrDefault("CONFIG_PATH", "")
	if path == "" {
		return config.LoadFromEnv()
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("FATAL: Failed to load config %s: %v", path, err)
	}
	// Secrets stay out of the file
	if token := os.Getenv("API_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	return cfg
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
