package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendance/internal/apperr"
	"attendance/internal/models"
)

type dailyKey struct {
	employee uuid.UUID
	day      string
}

// MemoryStore is an in-process Store used by tests and by the server when no
// DATABASE_URL is configured. Writes can be made to fail with InjectWriteErrors.
type MemoryStore struct {
	mu         sync.Mutex
	employees  map[string]models.Employee
	records    map[dailyKey]models.AttendanceRecord
	overrides  []models.AttendanceOverride
	writeErrs  []error
	writeCalls int
	pingErr    error
}

// NewMemoryStore instantiates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees: make(map[string]models.Employee),
		records:   make(map[dailyKey]models.AttendanceRecord),
	}
}

// InjectWriteErrors queues errors returned, one per call, by the next
// UpsertDaily calls before any state is touched.
func (m *MemoryStore) InjectWriteErrors(errs ...error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrs = append(m.writeErrs, errs...)
	return m
}

// WithPingError forces Ping to return err.
func (m *MemoryStore) WithPingError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// WriteCalls reports how many times UpsertDaily was invoked.
func (m *MemoryStore) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCalls
}

// RecordCount reports the number of stored attendance rows.
func (m *MemoryStore) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func key(employee uuid.UUID, day time.Time) dailyKey {
	return dailyKey{employee: employee, day: day.Format(models.DateLayout)}
}

func (m *MemoryStore) EmployeeByExternalID(_ context.Context, externalID string) (models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[externalID]
	if !ok {
		return models.Employee{}, apperr.Newf(apperr.NotFound, "employee with ID %s not found", externalID)
	}
	return e, nil
}

func (m *MemoryStore) UpsertEmployee(_ context.Context, e models.Employee) (models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.employees[e.ExternalID]; ok {
		e.ID = prev.ID
		e.CreatedAt = prev.CreatedAt
	} else {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	m.employees[e.ExternalID] = e
	return e, nil
}

func (m *MemoryStore) FindDaily(_ context.Context, employeeID uuid.UUID, day time.Time) (models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key(employeeID, day)]
	if !ok {
		return models.AttendanceRecord{}, apperr.New(apperr.NotFound, "no attendance record for this day")
	}
	return r, nil
}

func (m *MemoryStore) UpsertDaily(_ context.Context, employee models.Employee, day time.Time, mutate MutateFunc) (models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if len(m.writeErrs) > 0 {
		err := m.writeErrs[0]
		m.writeErrs = m.writeErrs[1:]
		if err != nil {
			return models.AttendanceRecord{}, err
		}
	}

	k := key(employee.ID, day)
	var current *models.AttendanceRecord
	if r, ok := m.records[k]; ok {
		current = &r
	}
	next, err := mutate(current)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	next.EmployeeID = employee.ID
	next.EmployeeRef = employee.ExternalID
	next.Date = day
	if current != nil {
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
	} else if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	m.records[k] = next
	return next, nil
}

func (m *MemoryStore) ListAttendance(_ context.Context, f ListFilter) ([]models.AttendanceRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]models.AttendanceRecord, 0)
	for _, r := range m.records {
		if f.EmployeeID != nil && r.EmployeeID != *f.EmployeeID {
			continue
		}
		if !f.From.IsZero() && r.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && r.Date.After(f.To) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].EmployeeRef < matched[j].EmployeeRef
	})

	total := len(matched)
	if f.Limit <= 0 {
		return matched, total, nil
	}
	start := f.Offset()
	if start >= total {
		return []models.AttendanceRecord{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) ApplyOverride(_ context.Context, o models.AttendanceOverride) (models.AttendanceOverride, models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(o.EmployeeID, o.Date)
	rec, ok := m.records[k]
	if !ok {
		return models.AttendanceOverride{}, models.AttendanceRecord{}, apperr.Newf(apperr.NotFound,
			"no attendance record for %s on %s", o.EmployeeRef, o.Date.Format(models.DateLayout))
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.AttendanceID = rec.ID
	o.OldStatus = rec.Status
	m.overrides = append(m.overrides, o)

	rec.Status = o.NewStatus
	rec.UpdatedAt = o.CreatedAt
	m.records[k] = rec
	return o, rec, nil
}

func (m *MemoryStore) ListOverrides(_ context.Context, employeeID uuid.UUID, from, to time.Time) ([]models.AttendanceOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.AttendanceOverride, 0)
	for i := len(m.overrides) - 1; i >= 0; i-- {
		o := m.overrides[i]
		if o.EmployeeID != employeeID {
			continue
		}
		if !from.IsZero() && o.Date.Before(from) {
			continue
		}
		if !to.IsZero() && o.Date.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *MemoryStore) Close() {}
