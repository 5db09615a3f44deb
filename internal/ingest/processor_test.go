package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"attendance/internal/apperr"
	"attendance/internal/attendance"
	"attendance/internal/models"
	"attendance/internal/storage"
)

type fakeIterator struct {
	ch chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newFakeIterator(values ...string) *fakeIterator {
	f := &fakeIterator{ch: make(chan kafka.Message, len(values))}
	for i, v := range values {
		f.ch <- kafka.Message{Topic: "attendance.checkins", Offset: int64(i), Value: []byte(v)}
	}
	close(f.ch)
	return f
}

func (f *fakeIterator) Messages() <-chan kafka.Message { return f.ch }

func (f *fakeIterator) CommitOffset(_ context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msg.Offset)
	return nil
}

type stubRecorder struct {
	mu   sync.Mutex
	seen []attendance.CheckinRequest
	errs map[string]error
}

func (s *stubRecorder) RecordAttendance(_ context.Context, req attendance.CheckinRequest) (models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, req)
	if err := s.errs[req.EmployeeID]; err != nil {
		return models.AttendanceRecord{}, err
	}
	return models.AttendanceRecord{EmployeeRef: req.EmployeeID, Status: models.StatusPresent}, nil
}

func TestProcessor_CommitRules(t *testing.T) {
	source := newFakeIterator(
		`{"employeeId":"EMP001","latitude":12.9716,"longitude":77.5946,"status":"present","action":"check-in"}`,
		`not json`,
		`{"employeeId":"EMP002","latitude":12.9}`,
		`{"employeeId":"GHOST"}`,
		`{"employeeId":"EMP003"}`,
		`{"employeeId":"EMP004"}`,
		`{"employeeId":"EMP005"}`,
	)
	rec := &stubRecorder{errs: map[string]error{
		"GHOST":  apperr.New(apperr.NotFound, "employee not found"),
		"EMP003": apperr.New(apperr.Unavailable, "database connection pool exhausted"),
		"EMP004": apperr.Wrap(apperr.Conflict, "attendance is being recorded concurrently", storage.ErrConcurrentWrite),
		"EMP005": apperr.New(apperr.Conflict, "attendance is locked for today"),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	NewProcessor(source, rec, nil).Run(ctx)

	want := []int64{0, 1, 2, 3, 6}
	if len(source.committed) != len(want) {
		t.Fatalf("committed = %v; want %v", source.committed, want)
	}
	for i := range want {
		if source.committed[i] != want[i] {
			t.Fatalf("committed = %v; want %v", source.committed, want)
		}
	}

	if len(rec.seen) != 5 {
		t.Fatalf("recorder saw %d requests; want 5", len(rec.seen))
	}
	first := rec.seen[0]
	if first.Coordinates == nil || first.Coordinates.Latitude != 12.9716 {
		t.Fatalf("coordinates not decoded: %+v", first.Coordinates)
	}
	if first.Status != models.StatusPresent {
		t.Fatalf("status = %q; want upper-cased PRESENT", first.Status)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
		check   func(t *testing.T, req attendance.CheckinRequest)
	}{
		{
			name:  "minimal",
			value: `{"employeeId":"  EMP001 "}`,
			check: func(t *testing.T, req attendance.CheckinRequest) {
				if req.EmployeeID != "EMP001" || req.Coordinates != nil {
					t.Fatalf("req = %+v", req)
				}
			},
		},
		{
			name:  "device and photo",
			value: `{"employeeId":"E","userAgent":"Mozilla/5.0","ipAddress":"10.0.0.8","photo":"data:image/png;base64,AA=="}`,
			check: func(t *testing.T, req attendance.CheckinRequest) {
				if req.UserAgent != "Mozilla/5.0" || req.IPAddress != "10.0.0.8" || req.Photo == "" {
					t.Fatalf("req = %+v", req)
				}
			},
		},
		{name: "longitude only", value: `{"employeeId":"E","longitude":1}`, wantErr: errPartialCoordinates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := decode([]byte(tt.value))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v; want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tt.check(t, req)
		})
	}
}

func TestIterator_StopsOnContextCancel(t *testing.T) {
	src := &fakeIterator{ch: make(chan kafka.Message)}
	ctx, cancel := context.WithCancel(context.Background())
	out := NewIterator(src, nil).Checkins(ctx)

	go func() {
		src.ch <- kafka.Message{Value: []byte(`{"employeeId":"E"}`)}
		close(src.ch)
	}()
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			// the item may win the race with cancel; the channel must still close
			<-out
		}
	case <-time.After(time.Second):
		t.Fatal("iterator did not stop")
	}
}
