package attendance

import (
	"time"

	"attendance/internal/models"
	"attendance/pkg/geo"
)

const (
	locationNotProvided = "Location not provided"
	attemptLimitReason  = "daily attempt limit reached"
)

// CheckinRequest is one attendance event from an employee or an admin.
type CheckinRequest struct {
	EmployeeID  string
	Coordinates *geo.Coordinates
	IPAddress   string
	UserAgent   string
	Photo       string
	// Status is optional on updates; new records default to PRESENT.
	Status models.Status
	Action models.Action
	// LocationText marks an admin entry: it is stored verbatim, skips
	// reverse geocoding and bypasses the daily lock.
	LocationText string
}

func (r CheckinRequest) admin() bool {
	return r.LocationText != ""
}

// OverrideRequest changes the status of an existing day's record.
type OverrideRequest struct {
	EmployeeID string
	// Date defaults to today when zero.
	Date      time.Time
	AdminID   string
	NewStatus models.Status
	Reason    string
}

// ListQuery filters attendance listings. EmployeeID is the external id.
type ListQuery struct {
	EmployeeID string
	From       time.Time
	To         time.Time
	Status     models.Status
	Page       int
	Limit      int
}

// Attempts summarises today's usage of the daily attempt budget.
type Attempts struct {
	EmployeeID   string    `json:"employeeId"`
	Date         time.Time `json:"date"`
	AttemptsUsed int       `json:"attemptsUsed"`
	MaxAttempts  int       `json:"maxAttempts"`
	Remaining    int       `json:"remaining"`
	Locked       bool      `json:"locked"`
	LockedReason string    `json:"lockedReason"`
}

// AssignedLocation is an employee's site, optionally compared to a position.
type AssignedLocation struct {
	EmployeeID     string           `json:"employeeId"`
	Site           models.Site      `json:"site"`
	Position       *geo.Coordinates `json:"position,omitempty"`
	DistanceMeters *float64         `json:"distanceMeters,omitempty"`
	WithinRadius   *bool            `json:"withinRadius,omitempty"`
}

// ImportResult counts roster rows written and rows that could not be used.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// draft collects the values resolved concurrently before the write.
type draft struct {
	req      CheckinRequest
	employee models.Employee
	day      time.Time
	location string
	device   string
	photoRef string
	// photoUploaded is set when photoRef names an object written by this request.
	photoUploaded bool
}
