// Package api exposes the import pipeline over HTTP
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chravel/chravel-import/internal/config"
	"github.com/chravel/chravel-import/internal/metrics"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/pipeline"
)

// ObjectSource serves temporary uploads to the extraction service
type ObjectSource interface {
	Get(path string) ([]byte, string, error)
}

// Server handles the HTTP API
type Server struct {
	app      *fiber.App
	config   *config.Config
	pipeline *pipeline.Pipeline
	objects  ObjectSource
	metrics  *metrics.Metrics
	logger   *zap.Logger
	version  string
}

// New creates a new API server. objects may be nil when no object store
// is configured.
func New(cfg *config.Config, p *pipeline.Pipeline, objects ObjectSource, m *metrics.Metrics, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}

	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	// Imports wait on the extraction service, so writes get the longer bound.
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}
	bodyLimit := cfg.Server.BodyLimitMB << 20
	if bodyLimit <= 0 {
		bodyLimit = 25 << 20
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:      app,
		config:   cfg,
		pipeline: p,
		objects:  objects,
		metrics:  m,
		logger:   logger.Named("api"),
		version:  version,
	}

	s.setupRoutes()
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// importBody is the JSON body of a URL or text import
type importBody struct {
	URL     string `json:"url"`
	Text    string `json:"text"`
	Retries int    `json:"retries"`
}

// duplicatesBody asks which parsed items already exist. When Existing is
// empty the trip's stored items are used.
type duplicatesBody struct {
	TripID           string                      `json:"tripId"`
	Events           []model.ParsedEvent         `json:"events"`
	Sessions         []model.ParsedAgendaSession `json:"sessions"`
	ExistingEvents   []existingEvent             `json:"existingEvents"`
	ExistingSessions []existingSession           `json:"existingSessions"`
}

type existingEvent struct {
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type existingSession struct {
	Title       string `json:"title"`
	SessionDate string `json:"session_date"`
	StartTime   string `json:"start_time"`
	Location    string `json:"location"`
}
