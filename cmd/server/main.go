// Command main is the entry point for the Glimmer chat backend server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glimmer/internal/bootstrap"
	"glimmer/internal/config"
	"glimmer/internal/database"
	"glimmer/internal/middleware"
	"glimmer/internal/observability"
	"glimmer/internal/server"

	"github.com/gofiber/fiber/v2"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.InitMiddleware(cfg)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  "glimmer-chat",
		Environment:  cfg.Env,
		Enabled:      cfg.TracingEnabled,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplerRatio: 0.1,
	})
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}

	db, redisClient, err := bootstrap.InitRuntime(cfg, bootstrap.Options{
		SeedDemo: cfg.Env == "development",
	})
	if err != nil {
		log.Fatalf("Failed to init runtime: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	srv, err := server.NewServerWithDeps(cfg, db, redisClient)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:   "Glimmer Chat API",
		BodyLimit: 1 * 1024 * 1024, // chat payloads are small
	})

	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)

	// Background loops: presence reconciliation and the initial emote load.
	runCtx, cancelRun := context.WithCancel(context.Background())
	go srv.Presence().Run(runCtx)
	if redisClient != nil {
		if count, err := srv.Emojis().Reload(runCtx, srv.EmojiSource()); err != nil {
			log.Printf("Initial emoji reload failed: %v", err)
		} else {
			log.Printf("Emoji directory loaded with %d entries", count)
		}
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		cancelRun()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server resource shutdown error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
