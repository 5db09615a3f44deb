package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"attendance/internal/config"
)

const requestIDKey = "requestid"

func (s *Server) setupMiddlewares() {
	s.app.Use(s.requestLogger())
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins(s.cfg.AllowedOriginsCSV),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	if s.cfg.RateLimit > 0 {
		s.app.Use(limiter.New(limiter.Config{
			Max:        s.cfg.RateLimit,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(envelope{
					Error: "too many requests, please try again later",
				})
			},
		}))
	}
}

// requestLogger tags each request with an id, bounds its context and logs
// the outcome. Handler errors are rendered here so the logged status is final.
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.Locals(requestIDKey, id)

		if s.cfg.WriteTimeout > 0 {
			ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.WriteTimeout)
			defer cancel()
			c.SetUserContext(ctx)
		}

		if err := c.Next(); err != nil {
			if herr := s.handleError(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		s.logger.Info("http request",
			"request_id", id,
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
			"ip", c.IP())
		return nil
	}
}

func allowedOrigins(csv string) string {
	origins := config.SplitCSV(csv)
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}
