// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"time"

	"glimmer/internal/cache"
	"glimmer/internal/chathub"
	"glimmer/internal/config"
	"glimmer/internal/database"
	"glimmer/internal/emoji"
	"glimmer/internal/history"
	"glimmer/internal/middleware"
	"glimmer/internal/moderation"
	"glimmer/internal/presence"
	"glimmer/internal/repository"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus

	userRepo    repository.UserRepository
	channelRepo repository.ChannelRepository

	hub         *chathub.ChannelHub
	history     *history.Store
	presence    *presence.Tracker
	emojis      *emoji.Directory
	emojiSource emoji.Source
	moderation  *moderation.Engine
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and
// optionally performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	prom := middleware.InitMetrics("glimmer-chat")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       repository.NewUserRepository(db),
		channelRepo:    repository.NewChannelRepository(db),
		hub:            chathub.NewChannelHub(),
		history:        history.NewStore(redisClient, cfg.ChatHistorySize),
		presence:       presence.NewTracker(redisClient, db, cfg.PresenceTTL(), cfg.PresenceReconcileInterval()),
		emojis:         emoji.NewDirectory(redisClient),
		emojiSource:    emoji.NewGormSource(db),
	}
	server.moderation = moderation.NewEngine(db, redisClient, server.history,
		cfg.ReportRateLimit, cfg.ReportRateWindow())

	return server, nil
}

// Hub exposes the local fan-out table, for the bootstrap shutdown path.
func (s *Server) Hub() *chathub.ChannelHub { return s.hub }

// Presence exposes the presence tracker so the runtime can start its loop.
func (s *Server) Presence() *presence.Tracker { return s.presence }

// Emojis exposes the emoji directory for the initial reload at startup.
func (s *Server) Emojis() *emoji.Directory { return s.emojis }

// EmojiSource exposes the configured directory source.
func (s *Server) EmojiSource() emoji.Source { return s.emojiSource }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Tracing spans per request
	app.Use(middleware.TracingMiddleware())

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit
	// (e.g. limiter) so browser clients still receive CORS headers on error
	// responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/healthz", s.HealthCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Chat websocket: token travels in the query string because browsers
	// cannot set headers on upgrade requests.
	app.Get("/ws/:channel", middleware.WebSocketAuthRequired, s.WebSocketChatHandler())

	api := app.Group("/api")

	// Public viewer count read surface
	api.Get("/channels/:name/viewers", s.GetChannelViewers)

	// Dev-only token minting; production deployments get tokens from the
	// identity provider. Rate limited per IP since it trades a username for
	// a session token.
	if s.config.Env != "production" && s.config.Env != "prod" {
		api.Post("/auth/token",
			middleware.RateLimit(s.redis, 10, time.Minute, "dev_token"),
			s.IssueDevToken)
	}

	// Protected routes
	protected := api.Group("", middleware.AuthRequired)

	// Report routes
	reports := protected.Group("/reports")
	reports.Post("/", s.SubmitReport)
	reports.Get("/", s.GetReports)
	reports.Post("/:id/action", s.ApplyReportAction)

	// Channel moderation routes
	channels := protected.Group("/channels/:name")
	channels.Post("/timeout", s.TimeoutChatUser)
	channels.Post("/ban", s.BanChatUser)
	channels.Post("/unban", s.UnbanChatUser)
	channels.Delete("/messages/:msgId", s.DeleteChannelMessage)
	channels.Post("/rename", s.RenameChannel)

	// Platform-level moderation (admin only, enforced in handlers)
	platform := protected.Group("/platform")
	platform.Post("/bans", s.CreatePlatformBan)
	platform.Delete("/bans/:userId", s.DeletePlatformBan)

	// Emoji directory admin
	protected.Post("/emojis/reload", s.ReloadEmojis)
}

// HealthCheck reports liveness plus backing store reachability.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "up"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"db":     dbStatus,
		"redis":  redisStatus,
		"time":   time.Now(),
	})
}

// Shutdown closes all live websocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.hub.Shutdown(ctx)
}
