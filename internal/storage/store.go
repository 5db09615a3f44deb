// Package storage persists employees, attendance records and override audit
// rows, and stores attendance photos in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"attendance/internal/models"
)

// ErrConcurrentWrite reports that another writer created the same
// (employee, day) record between the lookup and the insert.
var ErrConcurrentWrite = errors.New("attendance for this day was created concurrently")

// MutateFunc computes the new state of the day's record. existing is nil when
// no record exists yet. Returning an error aborts the write.
type MutateFunc func(existing *models.AttendanceRecord) (models.AttendanceRecord, error)

// ListFilter selects attendance rows. Zero values mean "no constraint";
// Limit 0 returns every matching row.
type ListFilter struct {
	EmployeeID *uuid.UUID
	From       time.Time
	To         time.Time
	Status     models.Status
	Page       int
	Limit      int
}

// Offset is the row offset for Page/Limit, with pages starting at 1.
func (f ListFilter) Offset() int {
	if f.Limit <= 0 || f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Store is the relational side of the service. Implementations classify their
// failures with apperr kinds: NotFound, Conflict on a lost unique-key race,
// Unavailable for transient connectivity problems.
type Store interface {
	EmployeeByExternalID(ctx context.Context, externalID string) (models.Employee, error)
	UpsertEmployee(ctx context.Context, e models.Employee) (models.Employee, error)

	// FindDaily returns the employee's record for day, NotFound if none.
	FindDaily(ctx context.Context, employeeID uuid.UUID, day time.Time) (models.AttendanceRecord, error)
	// UpsertDaily locks the (employee, day) row if present, applies mutate and
	// writes the result. A concurrent insert of the same key fails with
	// Conflict; the caller re-runs the whole decision.
	UpsertDaily(ctx context.Context, employee models.Employee, day time.Time, mutate MutateFunc) (models.AttendanceRecord, error)
	ListAttendance(ctx context.Context, filter ListFilter) ([]models.AttendanceRecord, int, error)

	// ApplyOverride appends the audit row and sets the record status in one
	// transaction. OldStatus is filled from the record.
	ApplyOverride(ctx context.Context, o models.AttendanceOverride) (models.AttendanceOverride, models.AttendanceRecord, error)
	ListOverrides(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]models.AttendanceOverride, error)

	Ping(ctx context.Context) error
	Close()
}
