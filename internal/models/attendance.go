package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
)

// ParseStatus accepts any casing; an empty string is PRESENT.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case "":
		return StatusPresent, nil
	case StatusPresent, StatusLate, StatusAbsent:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	// ActionOverride only appears on events.
	ActionOverride Action = "override"
)

// ParseAction accepts "check_in"/"check-in"/"checkin" forms; empty is check_in.
func ParseAction(s string) (Action, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "", "check_in", "checkin":
		return ActionCheckIn, nil
	case "check_out", "checkout":
		return ActionCheckOut, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

const DateLayout = "2006-01-02"

// Day truncates t to its calendar day in loc. The result is midnight UTC of
// that day so it compares and stores the same regardless of zone.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses YYYY-MM-DD.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// AttendanceRecord is the single row per employee per calendar day.
type AttendanceRecord struct {
	ID           uuid.UUID  `json:"id"`
	EmployeeID   uuid.UUID  `json:"-"`
	EmployeeRef  string     `json:"employeeId"`
	Date         time.Time  `json:"date"`
	ClockIn      *time.Time `json:"clockIn"`
	ClockOut     *time.Time `json:"clockOut"`
	Status       Status     `json:"status"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	LocationText string     `json:"location"`
	IPAddress    string     `json:"ipAddress"`
	DeviceInfo   string     `json:"deviceInfo"`
	PhotoRef     string     `json:"photo,omitempty"`
	Locked       bool       `json:"locked"`
	LockedReason string     `json:"lockedReason"`
	AttemptCount int        `json:"attemptCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AttendanceOverride is an append-only audit row of an admin status change.
type AttendanceOverride struct {
	ID           uuid.UUID `json:"id"`
	AttendanceID uuid.UUID `json:"attendanceId"`
	EmployeeID   uuid.UUID `json:"-"`
	EmployeeRef  string    `json:"employeeId"`
	Date         time.Time `json:"date"`
	AdminRef     string    `json:"adminId"`
	OldStatus    Status    `json:"oldStatus"`
	NewStatus    Status    `json:"newStatus"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"timestamp"`
}
