package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"immersia-backend/internal/config"
	"immersia-backend/internal/contentkey"
	"immersia-backend/internal/database"
	"immersia-backend/internal/handlers"
	"immersia-backend/internal/middleware"
	"immersia-backend/internal/repository"
	"immersia-backend/internal/router"
	"immersia-backend/internal/services"
	"immersia-backend/internal/websocket"
	"immersia-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Immersia Ingestion Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)
	labelRepo := repository.NewLabelRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClients.Cache, jwtAuth)
	enrichmentService := services.NewEnrichmentService(labelRepo, userRepo, redisClients.Cache)
	sources := contentkey.DefaultRegistry()

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ Activity feed hub started")

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService, cfg.Env != "development")
	activityHandler := handlers.NewActivityHandler(activityRepo, enrichmentService, jwtAuth, wsHub, sources)

	// ──── Step 6: Start Label Refresh Workers ────
	workerPool := worker.NewPool(redisClients.Cache, enrichmentService, labelRepo, 3)
	workerPool.Start()
	log.Println("✓ Label refresh workers started (3 goroutines)")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, authHandler, activityHandler, wsHub)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Immersia Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  Ingestion: http://localhost:%s/extension/record-content-activity", cfg.Port)
	log.Printf("  Feed WS:   ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
