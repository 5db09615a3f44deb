package server

import (
	"strings"
	"time"

	"attendance/internal/apperr"
	"attendance/internal/attendance"
	"attendance/internal/models"
	"attendance/pkg/geo"
)

type recordAttendanceRequest struct {
	EmployeeID string   `json:"employeeId" validate:"required,max=64"`
	Latitude   *float64 `json:"latitude" validate:"required_with=Longitude"`
	Longitude  *float64 `json:"longitude" validate:"required_with=Latitude"`
	Photo      string   `json:"photo"`
	Status     string   `json:"status" validate:"omitempty,max=16"`
	Action     string   `json:"action" validate:"omitempty,max=16"`
}

func (r recordAttendanceRequest) toCheckin(ip, userAgent string) attendance.CheckinRequest {
	req := attendance.CheckinRequest{
		EmployeeID: r.EmployeeID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Photo:      r.Photo,
		Status:     models.Status(strings.ToUpper(strings.TrimSpace(r.Status))),
		Action:     models.Action(r.Action),
	}
	if r.Latitude != nil && r.Longitude != nil {
		req.Coordinates = &geo.Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	return req
}

// adminAttendanceRequest is a manual entry. Its location is stored verbatim
// and the entry is accepted even when the day is locked.
type adminAttendanceRequest struct {
	recordAttendanceRequest
	AdminID  string `json:"adminId" validate:"required,max=64"`
	Location string `json:"location" validate:"required,max=512"`
}

func (r adminAttendanceRequest) toCheckin(ip, userAgent string) attendance.CheckinRequest {
	req := r.recordAttendanceRequest.toCheckin(ip, userAgent)
	req.LocationText = strings.TrimSpace(r.Location)
	return req
}

type overrideRequest struct {
	EmployeeID string `json:"employeeId" validate:"required,max=64"`
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	AdminID    string `json:"adminId" validate:"required,max=64"`
	NewStatus  string `json:"newStatus" validate:"required,max=16"`
	Reason     string `json:"reason" validate:"max=1000"`
}

func (r overrideRequest) toOverride() (attendance.OverrideRequest, error) {
	out := attendance.OverrideRequest{
		EmployeeID: r.EmployeeID,
		AdminID:    r.AdminID,
		NewStatus:  models.Status(strings.ToUpper(strings.TrimSpace(r.NewStatus))),
		Reason:     r.Reason,
	}
	if r.Date != "" {
		day, err := models.ParseDay(r.Date)
		if err != nil {
			return out, invalidDate("date", err)
		}
		out.Date = day
	}
	return out, nil
}

func invalidDate(field string, err error) error {
	return apperr.Wrap(apperr.Validation, "Invalid "+field, err).WithHint("use YYYY-MM-DD")
}

// dateRange reads date, or dateFrom and dateTo. A single date selects that day.
func dateRange(date, from, to string) (time.Time, time.Time, error) {
	if date != "" {
		day, err := models.ParseDay(date)
		if err != nil {
			return time.Time{}, time.Time{}, invalidDate("date", err)
		}
		return day, day, nil
	}
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = models.ParseDay(from); err != nil {
			return time.Time{}, time.Time{}, invalidDate("dateFrom", err)
		}
	}
	if to != "" {
		if end, err = models.ParseDay(to); err != nil {
			return time.Time{}, time.Time{}, invalidDate("dateTo", err)
		}
	}
	return start, end, nil
}
