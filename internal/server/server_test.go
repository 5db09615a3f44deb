package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"attendance/internal/apperr"
	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/models"
	"attendance/internal/storage"
	"attendance/pkg/geo"
	"attendance/pkg/location"
)

type stubLocator struct {
	place location.Place
}

func (l stubLocator) Lookup(_ context.Context, c geo.Coordinates) location.Place {
	if l.place.DisplayName == "" {
		return location.Place{Coordinates: c, DisplayName: c.Fallback(), Fallback: true}
	}
	p := l.place
	p.Coordinates = c
	return p
}

type fixture struct {
	srv   *Server
	store *storage.MemoryStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemoryStore(),
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()
	site := &models.Site{Name: "HQ", Latitude: 12.9716, Longitude: 77.5946, RadiusMeters: 200}
	for _, e := range []models.Employee{
		{ExternalID: "EMP001", Name: "Asha", Site: site},
		{ExternalID: "EMP002", Name: "Ben"},
	} {
		if _, err := f.store.UpsertEmployee(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	clock := func() time.Time { return f.now }
	svc := attendance.NewService(
		attendance.Dependencies{
			Store:    f.store,
			Geocoder: location.NewResolver(nil),
		},
		attendance.Options{
			MaxDailyAttempts: 5,
			RetryAttempts:    3,
			RetryDelay:       time.Millisecond,
			Now:              clock,
			Sleep:            func(context.Context, time.Duration) error { return nil },
		},
	)
	f.srv = New(config.HTTPConfig{}, Dependencies{
		Attendance: svc,
		Locator: stubLocator{place: location.Place{
			DisplayName: "MG Road, Bengaluru, Karnataka, India",
			Address:     geo.Address{Road: "MG Road", City: "Bengaluru", State: "Karnataka"},
		}},
		Health: f.store,
		Now:    clock,
	})
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := f.srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRecordAttendance(t *testing.T) {
	f := newFixture(t)

	req := jsonRequest(http.MethodPost, "/attendance",
		`{"employeeId":"EMP001","latitude":12.9716,"longitude":77.5946,"status":"present"}`)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1")
	resp, body := f.do(t, req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Errorf("missing X-Request-ID header")
	}
	data := body["data"].(map[string]any)
	if data["status"] != "PRESENT" || data["clockIn"] == nil {
		t.Fatalf("data = %v", data)
	}
	if data["location"] != "Coordinates: 12.971600, 77.594600" {
		t.Errorf("location = %v; want fallback string", data["location"])
	}
	if !strings.Contains(data["deviceInfo"].(string), "Mobile") {
		t.Errorf("deviceInfo = %v", data["deviceInfo"])
	}

	resp, body = f.do(t, jsonRequest(http.MethodPost, "/attendance", `{"employeeId":"EMP001","status":"LATE"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second status = %d body = %v", resp.StatusCode, body)
	}
	data = body["data"].(map[string]any)
	if data["status"] != "LATE" || data["attemptCount"] != float64(2) {
		t.Fatalf("data = %v", data)
	}
	if f.store.RecordCount() != 1 {
		t.Fatalf("records = %d; want 1", f.store.RecordCount())
	}
}

func TestRecordAttendance_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(f *fixture)
		wantStatus int
		wantError  string
	}{
		{"missing employee", `{"latitude":1,"longitude":2}`, nil, http.StatusBadRequest, "Validation failed"},
		{"half coordinates", `{"employeeId":"EMP001","latitude":1}`, nil, http.StatusBadRequest, "Validation failed"},
		{"out of range", `{"employeeId":"EMP001","latitude":91,"longitude":0}`, nil, http.StatusBadRequest, "Invalid coordinates provided"},
		{"bad status", `{"employeeId":"EMP001","status":"ON_LEAVE"}`, nil, http.StatusBadRequest, "Invalid status"},
		{"unknown employee", `{"employeeId":"NOPE"}`, nil, http.StatusNotFound, "employee with ID NOPE not found"},
		{"malformed json", `{"employeeId":`, nil, http.StatusBadRequest, "Invalid request body"},
		{
			name: "datastore down",
			body: `{"employeeId":"EMP001"}`,
			setup: func(f *fixture) {
				down := apperr.New(apperr.Unavailable, "database connection pool exhausted")
				f.store.InjectWriteErrors(down, down, down)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "service temporarily unavailable, please try again",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			resp, body := f.do(t, jsonRequest(http.MethodPost, "/attendance", tt.body))
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d; want %d (body %v)", resp.StatusCode, tt.wantStatus, body)
			}
			if body["success"] != false || body["error"] != tt.wantError {
				t.Fatalf("body = %v; want error %q", body, tt.wantError)
			}
		})
	}
}

func TestRecordAttendance_ValidationFields(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, jsonRequest(http.MethodPost, "/attendance", `{}`))
	fields, _ := body["fields"].(map[string]any)
	if fields["employeeId"] != "required" {
		t.Fatalf("fields = %v", body["fields"])
	}
}

func TestListAttendance(t *testing.T) {
	f := newFixture(t)
	for _, ref := range []string{"EMP001", "EMP002"} {
		resp, body := f.do(t, jsonRequest(http.MethodPost, "/attendance", `{"employeeId":"`+ref+`"}`))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed %s: %v", ref, body)
		}
	}

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/attendance?limit=500&date=2024-03-01", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	page := data["pagination"].(map[string]any)
	if page["limit"] != float64(200) || page["total"] != float64(2) || page["totalPages"] != float64(1) || page["page"] != float64(1) {
		t.Fatalf("pagination = %v", page)
	}
	if n := len(data["records"].([]any)); n != 2 {
		t.Fatalf("records = %d", n)
	}

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/attendance/EMP002", nil))
	records := body["data"].(map[string]any)["records"].([]any)
	if len(records) != 1 || records[0].(map[string]any)["employeeId"] != "EMP002" {
		t.Fatalf("employee listing = %v", records)
	}

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/attendance?date=2024-02-30", nil))
	if body["error"] != "Invalid date" || body["hint"] != "use YYYY-MM-DD" {
		t.Fatalf("bad date body = %v", body)
	}

	resp, body = f.do(t, httptest.NewRequest(http.MethodGet, "/attendance?dateFrom=2024-03-02&dateTo=2024-03-01", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("inverted range status = %d body = %v", resp.StatusCode, body)
	}

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/attendance?employeeId=GHOST", nil))
	if got := body["data"].(map[string]any)["records"].([]any); len(got) != 0 {
		t.Fatalf("unknown employee should give an empty page, got %v", got)
	}
}

func TestExportAttendance(t *testing.T) {
	f := newFixture(t)
	f.do(t, jsonRequest(http.MethodPost, "/attendance", `{"employeeId":"EMP001","latitude":12.9716,"longitude":77.5946}`))

	resp, err := f.srv.App().Test(httptest.NewRequest(http.MethodGet, "/attendance/export", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "attendance-2024-03-01.xlsx") {
		t.Errorf("Content-Disposition = %q", resp.Header.Get("Content-Disposition"))
	}
	wb, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows(wb.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "EMP001" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestLocation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "query",
			req:        httptest.NewRequest(http.MethodGet, "/location?lat=12.9716&lng=77.5946", nil),
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				loc := body["location"].(map[string]any)
				if loc["address"] != "MG Road" || loc["city"] != "Bengaluru" || loc["state"] != "Karnataka" {
					t.Errorf("location = %v", loc)
				}
				if body["humanReadableLocation"] != "MG Road, Bengaluru, Karnataka, India" {
					t.Errorf("humanReadableLocation = %v", body["humanReadableLocation"])
				}
				if body["timestamp"] != "2024-03-01T09:00:00Z" {
					t.Errorf("timestamp = %v", body["timestamp"])
				}
			},
		},
		{
			name:       "body",
			req:        jsonRequest(http.MethodPost, "/location", `{"latitude":"40.7128","longitude":-74.006}`),
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				c := body["coordinates"].(map[string]any)
				if c["latitude"] != 40.7128 || c["longitude"] != -74.006 {
					t.Errorf("coordinates = %v", c)
				}
			},
		},
		{
			name:       "path",
			req:        httptest.NewRequest(http.MethodGet, "/location/-33.8688/151.2093", nil),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing",
			req:        httptest.NewRequest(http.MethodGet, "/location", nil),
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				if body["error"] != "Latitude and longitude are required" || body["example"] == nil {
					t.Errorf("body = %v", body)
				}
			},
		},
		{
			name:       "not a number",
			req:        httptest.NewRequest(http.MethodGet, "/location?lat=abc&lng=1", nil),
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				if body["hint"] != "Make sure values are numbers between -180 and 180" {
					t.Errorf("body = %v", body)
				}
			},
		},
		{
			name:       "out of range",
			req:        httptest.NewRequest(http.MethodGet, "/location?lat=90.0001&lng=0", nil),
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				if body["error"] != "Coordinates out of range" {
					t.Errorf("body = %v", body)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.req)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d; want %d (body %v)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestLocation_UnknownDefaults(t *testing.T) {
	f := newFixture(t)
	f.srv.deps.Locator = stubLocator{}
	_, body := f.do(t, httptest.NewRequest(http.MethodGet, "/location?latitude=0&longitude=0", nil))
	loc := body["location"].(map[string]any)
	if loc["address"] != "Unknown Address" || loc["city"] != "Unknown City" || loc["state"] != "Unknown State" {
		t.Fatalf("location = %v", loc)
	}
	if body["humanReadableLocation"] != "Coordinates: 0.000000, 0.000000" {
		t.Fatalf("humanReadableLocation = %v", body["humanReadableLocation"])
	}
}

func TestDevice(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/device", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	_, body := f.do(t, req)
	d := body["device"].(map[string]any)
	if d["browser"] != "Chrome 124" || d["device"] != "Desktop" {
		t.Fatalf("device = %v", d)
	}
}

func TestLockedDayNeedsAdminEntry(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		if resp, body := f.do(t, jsonRequest(http.MethodPost, "/attendance", `{"employeeId":"EMP001"}`)); resp.StatusCode != http.StatusCreated {
			t.Fatalf("attempt %d status = %d body = %v", i+1, resp.StatusCode, body)
		}
	}

	resp, _ := f.do(t, jsonRequest(http.MethodPost, "/attendance", `{"employeeId":"EMP001","location":"Head office"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("public entry with location status = %d; want 409", resp.StatusCode)
	}

	resp, _ = f.do(t, jsonRequest(http.MethodPost, "/attendance/admin", `{"employeeId":"EMP001","adminId":"ADM1"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("admin entry without location status = %d; want 400", resp.StatusCode)
	}

	resp, body := f.do(t, jsonRequest(http.MethodPost, "/attendance/admin",
		`{"employeeId":"EMP001","adminId":"ADM1","location":"Head office","status":"late"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin entry status = %d body = %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	if data["location"] != "Head office" || data["status"] != "LATE" {
		t.Fatalf("admin record = %v", data)
	}
}

func TestEmployeeLookups(t *testing.T) {
	f := newFixture(t)
	f.do(t, jsonRequest(http.MethodPost, "/attendance", `{"employeeId":"EMP001"}`))

	_, body := f.do(t, httptest.NewRequest(http.MethodGet, "/attendance/EMP001/remaining-attempts", nil))
	data := body["data"].(map[string]any)
	if data["attemptsUsed"] != float64(1) || data["remaining"] != float64(4) {
		t.Fatalf("attempts = %v", data)
	}

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/attendance/EMP001/assigned-location?lat=12.9716&lng=77.5946", nil))
	data = body["data"].(map[string]any)
	if data["withinRadius"] != true || data["distanceMeters"] != float64(0) {
		t.Fatalf("assigned location = %v", data)
	}

	resp, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/attendance/EMP002/assigned-location", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("no site status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/attendance/EMP001/assigned-location?lat=x&lng=1", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad lat status = %d", resp.StatusCode)
	}
}

func TestOverrides(t *testing.T) {
	f := newFixture(t)
	f.do(t, jsonRequest(http.MethodPost, "/attendance", `{"employeeId":"EMP001"}`))

	resp, body := f.do(t, jsonRequest(http.MethodPost, "/attendance/overrides",
		`{"employeeId":"EMP001","date":"2024-03-01","adminId":"ADM1","newStatus":"late","reason":"traffic"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	if data["record"].(map[string]any)["status"] != "LATE" || data["override"].(map[string]any)["oldStatus"] != "PRESENT" {
		t.Fatalf("data = %v", data)
	}

	resp, _ = f.do(t, jsonRequest(http.MethodPost, "/attendance/overrides",
		`{"employeeId":"EMP002","date":"2024-03-01","adminId":"ADM1","newStatus":"LATE"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("override without record status = %d", resp.StatusCode)
	}

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/attendance/EMP001/overrides?dateFrom=2024-03-01&dateTo=2024-03-01", nil))
	if n := len(body["data"].([]any)); n != 1 {
		t.Fatalf("overrides = %v", body["data"])
	}
}

func TestImportEmployees(t *testing.T) {
	f := newFixture(t)

	wb := excelize.NewFile()
	rows := [][]any{
		{"Employee ID", "Name", "Email", "Site", "Latitude", "Longitude", "Radius"},
		{"EMP010", "Chen", "chen@example.com", "Depot", "51.5", "-0.12", "150"},
		{"EMP011", "Dara", "", "", "", "", ""},
		{"", "No Id", "", "", "", "", ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var file bytes.Buffer
	if _, err := wb.WriteTo(&file); err != nil {
		t.Fatal(err)
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "roster.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(file.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/employees/import", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, body := f.do(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	if data["imported"] != float64(2) || data["skipped"] != float64(1) {
		t.Fatalf("result = %v", data)
	}
	if _, err := f.store.EmployeeByExternalID(context.Background(), "EMP010"); err != nil {
		t.Fatalf("EMP010 not stored: %v", err)
	}

	resp, _ = f.do(t, httptest.NewRequest(http.MethodPost, "/employees/import", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["service"] != "attendance" {
		t.Fatalf("healthy: %d %v", resp.StatusCode, body)
	}

	f.store.WithPingError(errors.New("connection refused"))
	resp, body = f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("degraded: %d %v", resp.StatusCode, body)
	}
}

func TestPhotos_NotConfigured(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/attendance/photos/attendance/EMP001/2024-03-01/x.jpg", nil))
	if resp.StatusCode != http.StatusNotFound || body["success"] != false {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if resp.StatusCode != http.StatusNotFound || body["error"] == nil {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}
