package server

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"attendance/internal/apperr"
	"attendance/internal/attendance"
	"attendance/internal/keys"
	"attendance/internal/models"
	"attendance/internal/spreadsheet"
	"attendance/pkg/geo"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	// exports are capped so a single request cannot load the whole table
	maxExportRows = 10000
)

func (s *Server) recordAttendance(c *fiber.Ctx) error {
	var body recordAttendanceRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, envelope{Error: "Invalid request body", Hint: "send a JSON object"})
	}
	if err := s.validate.Struct(body); err != nil {
		return err
	}

	rec, err := s.deps.Attendance.RecordAttendance(c.UserContext(), body.toCheckin(c.IP(), c.Get(fiber.HeaderUserAgent)))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Attendance recorded successfully", rec)
}

func (s *Server) recordAdminAttendance(c *fiber.Ctx) error {
	var body adminAttendanceRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, envelope{Error: "Invalid request body", Hint: "send a JSON object"})
	}
	if err := s.validate.Struct(body); err != nil {
		return err
	}
	req := body.toCheckin(c.IP(), c.Get(fiber.HeaderUserAgent))
	if req.LocationText == "" {
		return apperr.New(apperr.Validation, "Location is required").WithHint("describe where the employee was")
	}

	rec, err := s.deps.Attendance.RecordAttendance(c.UserContext(), req)
	if err != nil {
		return err
	}
	s.logger.Info("admin attendance entry", "admin_id", body.AdminID, "employee_id", rec.EmployeeRef, "locked", rec.Locked)
	return success(c, fiber.StatusCreated, "Attendance recorded successfully", rec)
}

func (s *Server) listQuery(c *fiber.Ctx) (attendance.ListQuery, error) {
	q := attendance.ListQuery{
		EmployeeID: strings.TrimSpace(c.Query("employeeId")),
		Page:       c.QueryInt("page", 1),
		Limit:      c.QueryInt("limit", defaultPageLimit),
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	from, to, err := dateRange(c.Query("date"), c.Query("dateFrom"), c.Query("dateTo"))
	if err != nil {
		return q, err
	}
	q.From, q.To = from, to

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		st, err := models.ParseStatus(strings.ToUpper(raw))
		if err != nil {
			return q, apperr.Wrap(apperr.Validation, "Invalid status", err).WithHint("use PRESENT, LATE or ABSENT")
		}
		q.Status = st
	}
	return q, nil
}

func (s *Server) listAttendance(c *fiber.Ctx) error {
	q, err := s.listQuery(c)
	if err != nil {
		return err
	}
	return s.renderList(c, q)
}

func (s *Server) employeeAttendance(c *fiber.Ctx) error {
	q, err := s.listQuery(c)
	if err != nil {
		return err
	}
	q.EmployeeID = c.Params("employeeId")
	return s.renderList(c, q)
}

func (s *Server) renderList(c *fiber.Ctx, q attendance.ListQuery) error {
	records, total, err := s.deps.Attendance.List(c.UserContext(), q)
	if err != nil {
		return err
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return success(c, fiber.StatusOK, "", fiber.Map{
		"records":    records,
		"pagination": newPagination(q.Page, q.Limit, total),
	})
}

func (s *Server) exportAttendance(c *fiber.Ctx) error {
	q, err := s.listQuery(c)
	if err != nil {
		return err
	}
	q.Page, q.Limit = 1, maxExportRows
	records, _, err := s.deps.Attendance.List(c.UserContext(), q)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteAttendance(&buf, records, s.deps.Location); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Attachment("attendance-" + s.deps.Now().In(s.deps.Location).Format(models.DateLayout) + ".xlsx")
	return c.Send(buf.Bytes())
}

func (s *Server) remainingAttempts(c *fiber.Ctx) error {
	out, err := s.deps.Attendance.RemainingAttempts(c.UserContext(), c.Params("employeeId"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", out)
}

func (s *Server) assignedLocation(c *fiber.Ctx) error {
	var at *geo.Coordinates
	lat, lng := firstNonEmpty(c.Query("lat"), c.Query("latitude")), firstNonEmpty(c.Query("lng"), c.Query("longitude"))
	if lat != "" || lng != "" {
		la, err1 := strconv.ParseFloat(lat, 64)
		lo, err2 := strconv.ParseFloat(lng, 64)
		if err1 != nil || err2 != nil {
			return badRequest(c, envelope{
				Error: "Latitude and longitude must be valid numbers",
				Hint:  "pass both lat and lng as decimal degrees",
			})
		}
		at = &geo.Coordinates{Latitude: la, Longitude: lo}
	}
	out, err := s.deps.Attendance.AssignedLocation(c.UserContext(), c.Params("employeeId"), at)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", out)
}

func (s *Server) createOverride(c *fiber.Ctx) error {
	var body overrideRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, envelope{Error: "Invalid request body", Hint: "send a JSON object"})
	}
	if err := s.validate.Struct(body); err != nil {
		return err
	}
	req, err := body.toOverride()
	if err != nil {
		return err
	}
	o, rec, err := s.deps.Attendance.Override(c.UserContext(), req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Attendance overridden", fiber.Map{
		"override": o,
		"record":   rec,
	})
}

func (s *Server) listOverrides(c *fiber.Ctx) error {
	from, to, err := dateRange("", c.Query("dateFrom"), c.Query("dateTo"))
	if err != nil {
		return err
	}
	out, err := s.deps.Attendance.ListOverrides(c.UserContext(), c.Params("employeeId"), from, to)
	if err != nil {
		return err
	}
	if out == nil {
		out = []models.AttendanceOverride{}
	}
	return success(c, fiber.StatusOK, "", out)
}

func (s *Server) photo(c *fiber.Ctx) error {
	if s.deps.Photos == nil {
		return fiber.NewError(fiber.StatusNotFound, "photo storage is not configured")
	}
	key := c.Params("*")
	if !keys.IsPhoto(key) {
		return fiber.NewError(fiber.StatusNotFound, "photo not found")
	}
	r, info, err := s.deps.Photos.Open(c.UserContext(), key)
	if err != nil {
		s.logger.Warn("photo lookup failed", "key", key, "error", err)
		return fiber.NewError(fiber.StatusNotFound, "photo not found")
	}
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	// fasthttp closes r once the body is written
	return c.SendStream(r, int(info.Size))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
