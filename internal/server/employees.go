package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"attendance/internal/apperr"
	"attendance/internal/spreadsheet"
)

func (s *Server) importEmployees(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, envelope{Error: "file is required", Hint: "upload a roster as multipart field \"file\""})
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	employees, skipped, err := spreadsheet.ReadEmployees(f, fh.Filename)
	switch {
	case errors.Is(err, spreadsheet.ErrUnsupportedFormat), errors.Is(err, spreadsheet.ErrMissingColumn):
		return apperr.Wrap(apperr.Validation, err.Error(), err).
			WithHint("columns: employee id, name, email, site, latitude, longitude, radius")
	case err != nil:
		return apperr.Wrap(apperr.Validation, "could not read spreadsheet", err)
	}

	res, err := s.deps.Attendance.ImportEmployees(c.UserContext(), employees)
	if err != nil {
		return err
	}
	res.Skipped += skipped
	return success(c, fiber.StatusOK, "Roster imported", res)
}

func (s *Server) health(c *fiber.Ctx) error {
	status, code := "ok", fiber.StatusOK
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status, code = "degraded", fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"service":   serviceName,
		"timestamp": s.deps.Now().UTC(),
	})
}
