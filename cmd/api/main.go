package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codebook/api/internal/app"
	"codebook/api/internal/codebook"
	"codebook/api/internal/config"
	"codebook/api/internal/dataset"
	"codebook/api/internal/session"
	"codebook/api/internal/settings"
)

func main() {
	cfg := config.Load()

	cb := codebook.Default()
	if strings.TrimSpace(cfg.CodebookPath) != "" {
		loaded, err := codebook.Load(cfg.CodebookPath)
		if err != nil {
			log.Fatalf("codebook load failed: %v", err)
		}
		cb = loaded
	}

	data := dataset.NewStore(cfg.DatasetPath())
	if err := data.Initialize(cb.CoderColumns()); err != nil {
		log.Fatalf("dataset unusable, provision a CSV at %s: %v", cfg.DatasetPath(), err)
	}
	prefs := settings.NewStore(cfg.SettingsPath())

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(data, prefs, redisStore, cb)
	} else {
		log.Printf("Using in-process session storage (set REDIS_URL to persist sessions)")
		service = app.NewWithSessionStore(data, prefs, session.NewMemoryStore(cfg.SessionTTL), cb)
	}

	httpServer := app.NewHTTPServer(service)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Codebook listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
