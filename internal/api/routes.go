package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	s.app.Get("/api/metrics", s.handleMetricsJSON)

	// The extraction service fetches uploads from here without credentials.
	s.app.Get("/objects/*", s.handleGetObject)

	api := s.app.Group("/api")

	api.Post("/auth/login", s.handleLogin)

	protected := api.Use(s.authMiddleware())

	protected.Post("/imports/duplicates/events", s.handleDuplicateEvents)
	protected.Post("/imports/duplicates/sessions", s.handleDuplicateSessions)
	protected.Post("/imports/:kind", s.handleImport)

	protected.Post("/trips/:trip/imports/:kind", s.handleImport)
	protected.Get("/trips/:trip/imports", s.handleListImports)
	protected.Get("/trips/:trip/calendar.ics", s.handleExportCalendar)
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
