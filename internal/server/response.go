package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"attendance/internal/apperr"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message,omitempty"`
	Data     any               `json:"data,omitempty"`
	Error    string            `json:"error,omitempty"`
	Hint     string            `json:"hint,omitempty"`
	Example  string            `json:"example,omitempty"`
	Received any               `json:"received,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func newPagination(page, limit, total int) pagination {
	p := pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + limit - 1) / limit
	}
	return p
}

func success(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(envelope{Success: true, Message: message, Data: data})
}

func badRequest(c *fiber.Ctx, body envelope) error {
	body.Success = false
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// handleError renders any error as an envelope. Messages of unclassified
// and transient errors are replaced so internals never reach clients.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(envelope{Error: fe.Message})
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, f := range ve {
			fields[f.Field()] = f.Tag()
		}
		return badRequest(c, envelope{Error: "Validation failed", Fields: fields})
	}

	kind := apperr.KindOf(err)
	msg, hint := apperr.Public(err)
	if kind == apperr.Internal || kind == apperr.Unavailable {
		s.logger.Error("request failed",
			"request_id", c.Locals(requestIDKey),
			"method", c.Method(),
			"path", c.Path(),
			"kind", kind.String(),
			"error", err)
	}
	return c.Status(kind.HTTPStatus()).JSON(envelope{Error: msg, Hint: hint})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
