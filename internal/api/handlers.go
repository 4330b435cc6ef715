package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/importer"
	"github.com/chravel/chravel-import/internal/importer/dedupe"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/pipeline"
	"github.com/chravel/chravel-import/internal/security"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"store":     s.pipeline.HasStore(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if want := s.config.Security.AdminPassword; want != "" &&
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(want)) != 1 {
		return c.Status(401).JSON(fiber.Map{"error": "invalid password"})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(7 * 24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": tokenString})
}

func (s *Server) handleGetObject(c *fiber.Ctx) error {
	if s.objects == nil {
		return c.Status(404).JSON(fiber.Map{"error": "object not found"})
	}

	raw, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid object path"})
	}
	path, err := security.CleanObjectPath(raw)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid object path"})
	}

	data, contentType, err := s.objects.Get(path)
	if err != nil {
		return s.writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// handleImport serves both trip-scoped and parse-only imports. A multipart
// "file" field takes precedence over a JSON {url} or {text} body.
func (s *Server) handleImport(c *fiber.Ctx) error {
	kind, ok := model.ParseKind(c.Params("kind"))
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "kind must be calendar, agenda or lineup"})
	}

	req := pipeline.Request{
		Kind:    kind,
		TripID:  c.Params("trip"),
		Commit:  c.QueryBool("commit", false),
		Retries: c.QueryInt("retries", 0),
	}

	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "failed to read upload"})
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "failed to read upload"})
		}
		req.File = &importer.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Data:        data,
		}
	} else {
		var body importBody
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		req.URL, req.Text = body.URL, body.Text
		if body.Retries > 0 {
			req.Retries = body.Retries
		}
	}
	if req.Retries > 5 {
		req.Retries = 5
	}

	out, err := s.pipeline.Import(c.UserContext(), req)
	if err != nil {
		if out != nil {
			s.logger.Error("Import commit failed", zap.String("trip", req.TripID), zap.Error(err))
		}
		return s.writeError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleDuplicateEvents(c *fiber.Ctx) error {
	var body duplicatesBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if len(body.ExistingEvents) == 0 && body.TripID != "" {
		dups, err := s.pipeline.DuplicateEvents(c.UserContext(), body.TripID, body.Events)
		if err != nil {
			return s.writeError(c, err)
		}
		return c.JSON(fiber.Map{"duplicates": dups})
	}

	existing := make([]dedupe.ExistingEvent, len(body.ExistingEvents))
	for i, e := range body.ExistingEvents {
		existing[i] = dedupe.ExistingEvent{Title: e.Title, StartTime: e.StartTime, EndTime: e.EndTime}
	}
	return c.JSON(fiber.Map{"duplicates": importer.FindDuplicateEvents(body.Events, existing).Sorted()})
}

func (s *Server) handleDuplicateSessions(c *fiber.Ctx) error {
	var body duplicatesBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if len(body.ExistingSessions) == 0 && body.TripID != "" {
		dups, err := s.pipeline.DuplicateSessions(c.UserContext(), body.TripID, body.Sessions)
		if err != nil {
			return s.writeError(c, err)
		}
		return c.JSON(fiber.Map{"duplicates": dups})
	}

	existing := make([]dedupe.ExistingSession, len(body.ExistingSessions))
	for i, e := range body.ExistingSessions {
		existing[i] = dedupe.ExistingSession{Title: e.Title, SessionDate: e.SessionDate, StartTime: e.StartTime, Location: e.Location}
	}
	return c.JSON(fiber.Map{"duplicates": importer.FindDuplicateAgendaSessions(body.Sessions, existing).Sorted()})
}

func (s *Server) handleListImports(c *fiber.Ctx) error {
	recs, err := s.pipeline.History(c.UserContext(), c.Params("trip"), c.QueryInt("limit", 50))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(recs)
}

func (s *Server) handleExportCalendar(c *fiber.Ctx) error {
	trip := c.Params("trip")
	body, err := s.pipeline.ExportCalendar(c.UserContext(), trip)
	if err != nil {
		return s.writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+trip+`.ics"`)
	return c.Send(body)
}

// writeError maps pipeline and store errors onto HTTP statuses
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status := 500
	switch {
	case errors.Is(err, pipeline.ErrNoStore):
		status = 503
	case errors.Is(err, apperrors.ErrObjectNotFound):
		status = 404
	case errors.Is(err, apperrors.ErrBadRequest):
		status = 400
	}

	if status == 500 {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": apperrors.UserMessage(err),
		"code":  apperrors.GetCode(err),
	})
}
