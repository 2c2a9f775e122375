package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"immersia-backend/internal/channel"
	"immersia-backend/internal/config"
	"immersia-backend/internal/contentkey"
	"immersia-backend/internal/relay"
)

func main() {
	log.Println("🚀 Starting Immersia Relay...")

	cfg := config.LoadRelay()
	log.Println("✓ Environment variables loaded")

	if cfg.BaseURL == "" {
		log.Println("⚠ BASE_URL not set; activities will be skipped, not posted")
	}

	events := channel.New(cfg.ChannelBuffer)
	creds := relay.NewCredentialCache(cfg.WebAppURL, cfg.SessionCookie, nil)
	tabs := relay.NewTabStateStore()

	activityRelay := relay.NewActivityRelay(relay.ActivityRelayConfig{
		BaseURL:        cfg.BaseURL,
		Resolver:       contentkey.DefaultRegistry(),
		Credentials:    creds,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
	})

	loop := relay.New(tabs, activityRelay, events.Envelopes())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	log.Println("✓ Relay loop started")

	listener := relay.NewListener(events, loop)
	mux := http.NewServeMux()
	mux.HandleFunc("/tab", listener.HandleTab)

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("✓ Relay listening for tabs on ws://%s/tab", cfg.ListenAddr)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Relay error: %v", err)
	}
}
