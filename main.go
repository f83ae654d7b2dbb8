package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/atomic"

	"quillnote.app/cloud/handlers"
	"quillnote.app/cloud/internal/config"
	"quillnote.app/cloud/internal/logger"
	"quillnote.app/cloud/internal/ratelimit"
	"quillnote.app/cloud/storage"
)

var version = "dev"

func main() {
	if versionBytes, err := os.ReadFile("VERSION"); err == nil {
		version = strings.TrimSpace(string(versionBytes))
	}

	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		logger.Error("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Release:          version,
			TracesSampleRate: 1.0,
		}); err != nil {
			logger.Error("sentry.Init failed", map[string]interface{}{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to open storage", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Readiness is decided once at startup and handed to the server;
	// handlers read it instead of a package-level flag.
	ready := atomic.NewBool(false)
	pingCtx, cancel := context.WithTimeout(context.Background(), storage.DefaultTimeout)
	if err := store.Ping(pingCtx); err != nil {
		logger.Error("Store unreachable at startup", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		ready.Store(true)
	}
	cancel()

	server := handlers.NewServer(store, ready, handlers.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		WebhookSecret:  cfg.StripeWebhookSecret,
		AdminReset:     cfg.AdminReset,
		Version:        version,
		Limiter:        ratelimit.New(30, 10*time.Minute),
	})

	logger.Info("QuillNote Cloud API starting", map[string]interface{}{
		"version": version,
		"port":    cfg.Port,
		"ready":   ready.Load(),
	})

	if err := http.ListenAndServe(":"+cfg.Port, server.Router); err != nil {
		logger.Error("Server stopped", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
