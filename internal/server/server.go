// Package server exposes the attendance service over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/models"
	"attendance/pkg/geo"
	"attendance/pkg/location"
)

const serviceName = "attendance"

// photos travel inline as base64 data URLs
const bodyLimit = 12 << 20

// AttendanceService is the part of *attendance.Service the handlers use.
type AttendanceService interface {
	RecordAttendance(ctx context.Context, req attendance.CheckinRequest) (models.AttendanceRecord, error)
	List(ctx context.Context, q attendance.ListQuery) ([]models.AttendanceRecord, int, error)
	RemainingAttempts(ctx context.Context, employeeRef string) (attendance.Attempts, error)
	AssignedLocation(ctx context.Context, employeeRef string, at *geo.Coordinates) (attendance.AssignedLocation, error)
	Override(ctx context.Context, req attendance.OverrideRequest) (models.AttendanceOverride, models.AttendanceRecord, error)
	ListOverrides(ctx context.Context, employeeRef string, from, to time.Time) ([]models.AttendanceOverride, error)
	ImportEmployees(ctx context.Context, employees []models.Employee) (attendance.ImportResult, error)
}

// Locator resolves coordinates to a place. It never fails.
type Locator interface {
	Lookup(ctx context.Context, c geo.Coordinates) location.Place
}

// PhotoSource serves stored attendance photos.
type PhotoSource interface {
	Open(ctx context.Context, key string) (io.ReadCloser, minio.ObjectInfo, error)
}

// Pinger reports datastore health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators behind the routes. Photos is optional.
type Dependencies struct {
	Attendance AttendanceService
	Locator    Locator
	Photos     PhotoSource
	Health     Pinger
	// Location renders clock times in exports.
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server wraps a fiber app and its lifecycle.
type Server struct {
	app      *fiber.App
	cfg      config.HTTPConfig
	deps     Dependencies
	logger   *slog.Logger
	validate *validator.Validate
}

func New(cfg config.HTTPConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		validate: newValidator(),
	}
	s.app = fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		BodyLimit:             bodyLimit,
		ErrorHandler:          s.handleError,
	})
	s.setupMiddlewares()
	s.routes()
	return s
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr())
	return s.app.Listen(s.cfg.Addr())
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)
	s.app.Get("/device", s.device)

	s.app.Get("/location", s.location)
	s.app.Post("/location", s.location)
	s.app.Get("/location/:lat/:lng", s.location)

	att := s.app.Group("/attendance")
	att.Post("/", s.recordAttendance)
	att.Post("/admin", s.recordAdminAttendance)
	att.Get("/", s.listAttendance)
	att.Get("/export", s.exportAttendance)
	att.Post("/overrides", s.createOverride)
	att.Get("/photos/*", s.photo)
	att.Get("/:employeeId", s.employeeAttendance)
	att.Get("/:employeeId/remaining-attempts", s.remainingAttempts)
	att.Get("/:employeeId/assigned-location", s.assignedLocation)
	att.Get("/:employeeId/overrides", s.listOverrides)

	s.app.Post("/employees/import", s.importEmployees)
}
