package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance/internal/apperr"
	"attendance/internal/models"
)

func seedEmployee(t *testing.T, s *MemoryStore, ref string) models.Employee {
	t.Helper()
	e, err := s.UpsertEmployee(context.Background(), models.Employee{ExternalID: ref, Name: ref})
	if err != nil {
		t.Fatalf("UpsertEmployee: %v", err)
	}
	return e
}

func setStatus(st models.Status) MutateFunc {
	return func(existing *models.AttendanceRecord) (models.AttendanceRecord, error) {
		var r models.AttendanceRecord
		if existing != nil {
			r = *existing
		}
		r.Status = st
		r.AttemptCount++
		return r, nil
	}
}

func TestMemoryStore_UpsertDailyCreatesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	emp := seedEmployee(t, s, "EMP001")
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.UpsertDaily(ctx, emp, day, setStatus(models.StatusPresent))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := s.UpsertDaily(ctx, emp, day, setStatus(models.StatusLate))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if s.RecordCount() != 1 {
		t.Fatalf("RecordCount = %d; want 1", s.RecordCount())
	}
	if second.AttemptCount != 2 || second.Status != models.StatusLate || second.EmployeeRef != "EMP001" {
		t.Fatalf("second = %+v", second)
	}
}

func TestMemoryStore_InjectWriteErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	emp := seedEmployee(t, s, "EMP002")
	boom := apperr.New(apperr.Unavailable, "pool timeout")
	s.InjectWriteErrors(boom)

	if _, err := s.UpsertDaily(ctx, emp, time.Now(), setStatus(models.StatusPresent)); !errors.Is(err, boom) {
		t.Fatalf("err = %v; want injected", err)
	}
	if s.RecordCount() != 0 {
		t.Fatalf("failed write must not store a record")
	}
	if _, err := s.UpsertDaily(ctx, emp, time.Now(), setStatus(models.StatusPresent)); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if s.WriteCalls() != 2 {
		t.Fatalf("WriteCalls = %d", s.WriteCalls())
	}
}

func TestMemoryStore_ListAttendance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := seedEmployee(t, s, "A")
	b := seedEmployee(t, s, "B")
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		day := base.AddDate(0, 0, i)
		if _, err := s.UpsertDaily(ctx, a, day, setStatus(models.StatusPresent)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.UpsertDaily(ctx, b, day, setStatus(models.StatusLate)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		filter    ListFilter
		wantTotal int
		wantLen   int
	}{
		{"all", ListFilter{}, 6, 6},
		{"paged", ListFilter{Page: 2, Limit: 4}, 6, 2},
		{"past end", ListFilter{Page: 5, Limit: 4}, 6, 0},
		{"employee", ListFilter{EmployeeID: &a.ID}, 3, 3},
		{"status", ListFilter{Status: models.StatusLate}, 3, 3},
		{"range", ListFilter{From: base.AddDate(0, 0, 1), To: base.AddDate(0, 0, 1)}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListAttendance(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.wantTotal || len(got) != tt.wantLen {
				t.Fatalf("got %d/%d; want %d/%d", len(got), total, tt.wantLen, tt.wantTotal)
			}
		})
	}

	all, _, _ := s.ListAttendance(ctx, ListFilter{})
	if !all[0].Date.Equal(base.AddDate(0, 0, 2)) || all[0].EmployeeRef != "A" {
		t.Fatalf("expected newest first ordered by employee, got %+v", all[0])
	}
}

func TestMemoryStore_ApplyOverride(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	emp := seedEmployee(t, s, "EMP003")
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := s.ApplyOverride(ctx, models.AttendanceOverride{EmployeeID: emp.ID, EmployeeRef: emp.ExternalID, Date: day, NewStatus: models.StatusAbsent})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("override without record: err = %v", err)
	}

	if _, err := s.UpsertDaily(ctx, emp, day, setStatus(models.StatusLate)); err != nil {
		t.Fatal(err)
	}
	o, rec, err := s.ApplyOverride(ctx, models.AttendanceOverride{
		EmployeeID: emp.ID, EmployeeRef: emp.ExternalID, Date: day,
		AdminRef: "ADM1", NewStatus: models.StatusPresent, Reason: "traffic", CreatedAt: day.Add(10 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.OldStatus != models.StatusLate || rec.Status != models.StatusPresent || rec.AttemptCount != 1 {
		t.Fatalf("override = %+v, record = %+v", o, rec)
	}

	list, err := s.ListOverrides(ctx, emp.ID, time.Time{}, time.Time{})
	if err != nil || len(list) != 1 || list[0].Reason != "traffic" {
		t.Fatalf("ListOverrides = %+v, %v", list, err)
	}
}
