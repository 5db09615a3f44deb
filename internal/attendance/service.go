// Package attendance records daily check-ins and check-outs. Each employee
// has at most one record per calendar day; repeated events update it in
// place.
package attendance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"attendance/internal/apperr"
	"attendance/internal/enrich"
	"attendance/internal/models"
	"attendance/internal/storage"
	"attendance/pkg/device"
	"attendance/pkg/geo"
)

// Geocoder turns coordinates into display text. It must not fail.
type Geocoder interface {
	Reverse(ctx context.Context, c geo.Coordinates) string
}

// Publisher emits domain events keyed by employee.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Dependencies wires the service's collaborators. Photos and Publisher are
// optional.
type Dependencies struct {
	Store     storage.Store
	Geocoder  Geocoder
	Photos    PhotoUploader
	Publisher Publisher
	Logger    *slog.Logger
}

// Options tunes the daily lifecycle and the retry loop.
type Options struct {
	Location         *time.Location
	MaxDailyAttempts int
	RetryAttempts    int
	RetryDelay       time.Duration
	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type Service struct {
	store     storage.Store
	geocoder  Geocoder
	photos    PhotoUploader
	publisher Publisher
	logger    *slog.Logger
	opts      Options
	sleep     func(ctx context.Context, d time.Duration) error
	resolve   *enrich.Pipeline[draft]
}

func NewService(deps Dependencies, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		store:     deps.Store,
		geocoder:  deps.Geocoder,
		photos:    deps.Photos,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		opts:      opts,
		sleep:     opts.Sleep,
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	s.resolve = enrich.NewPipeline(deps.Logger,
		enrich.NewStage("resolve", s.resolveLocation, s.resolveDevice, s.resolvePhoto),
	)
	return s
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

func (s *Service) today() time.Time {
	return models.Day(s.now(), s.opts.Location)
}

// RecordAttendance applies one check-in or check-out to the employee's record
// for today, creating it on the first event of the day.
func (s *Service) RecordAttendance(ctx context.Context, req CheckinRequest) (models.AttendanceRecord, error) {
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if req.EmployeeID == "" {
		return models.AttendanceRecord{}, apperr.New(apperr.Validation, "Employee ID is required")
	}
	if req.Coordinates != nil {
		if err := req.Coordinates.Validate(); err != nil {
			return models.AttendanceRecord{}, apperr.Wrap(apperr.Validation, "Invalid coordinates provided", err).
				WithHint("latitude must be between -90 and 90, longitude between -180 and 180")
		}
	}
	if req.Status != "" {
		st, err := models.ParseStatus(string(req.Status))
		if err != nil {
			return models.AttendanceRecord{}, apperr.Wrap(apperr.Validation, "Invalid status", err).
				WithHint("use PRESENT, LATE or ABSENT")
		}
		req.Status = st
	}
	action, err := models.ParseAction(string(req.Action))
	if err != nil {
		return models.AttendanceRecord{}, apperr.Wrap(apperr.Validation, "Invalid action", err).
			WithHint("use check_in or check_out")
	}
	req.Action = action

	employee, err := withRetry(ctx, s, "employee lookup", func(ctx context.Context) (models.Employee, error) {
		return s.store.EmployeeByExternalID(ctx, req.EmployeeID)
	})
	if err != nil {
		return models.AttendanceRecord{}, err
	}

	d := &draft{req: req, employee: employee, day: s.today()}
	if s.photos != nil && strings.TrimSpace(req.Photo) != "" {
		if err := s.precheck(ctx, d); err != nil {
			return models.AttendanceRecord{}, err
		}
	}
	if err := s.resolve.Run(ctx, d); err != nil {
		s.logger.Warn("attendance enrichment incomplete", "employee_id", req.EmployeeID, "error", err)
	}

	record, err := withRetry(ctx, s, "upsert attendance", func(ctx context.Context) (models.AttendanceRecord, error) {
		return s.store.UpsertDaily(ctx, employee, d.day, func(existing *models.AttendanceRecord) (models.AttendanceRecord, error) {
			return s.apply(existing, d)
		})
	})
	if err != nil {
		s.discardPhoto(ctx, d)
		return models.AttendanceRecord{}, err
	}

	s.logger.Info("attendance recorded",
		"employee_id", record.EmployeeRef, "date", record.Date.Format(models.DateLayout),
		"action", req.Action, "status", record.Status, "attempts", record.AttemptCount)
	s.publish(ctx, req.Action, record)
	return record, nil
}

// precheck rejects a request that today's record would refuse before any
// photo is uploaded for it. A failed read defers the decision to apply.
func (s *Service) precheck(ctx context.Context, d *draft) error {
	var existing *models.AttendanceRecord
	rec, err := s.store.FindDaily(ctx, d.employee.ID, d.day)
	switch {
	case err == nil:
		existing = &rec
	case apperr.Is(err, apperr.NotFound):
	default:
		s.logger.Debug("precheck read failed", "employee_id", d.employee.ExternalID, "error", err)
		return nil
	}
	return admissible(existing, d.req)
}

// admissible reports whether req may be applied on top of existing.
func admissible(existing *models.AttendanceRecord, req CheckinRequest) error {
	if existing == nil {
		if req.Action == models.ActionCheckOut {
			return apperr.New(apperr.Validation, "no check-in recorded today").
				WithHint("check in before checking out")
		}
		return nil
	}
	if existing.Locked && !req.admin() {
		return apperr.Newf(apperr.Conflict, "attendance is locked for today: %s", existing.LockedReason)
	}
	return nil
}

// apply computes the next state of the day's record from the resolved draft.
// It runs inside the store's transaction and is re-run on every retry.
func (s *Service) apply(existing *models.AttendanceRecord, d *draft) (models.AttendanceRecord, error) {
	req := d.req
	now := s.now()

	if err := admissible(existing, req); err != nil {
		return models.AttendanceRecord{}, err
	}

	var rec models.AttendanceRecord
	if existing == nil {
		status := req.Status
		if status == "" {
			status = models.StatusPresent
		}
		rec = models.AttendanceRecord{
			Status:       status,
			LocationText: locationNotProvided,
			DeviceInfo:   device.Summary(""),
			CreatedAt:    now,
		}
		if status == models.StatusPresent {
			rec.ClockIn = &now
		}
	} else {
		rec = *existing
		if req.Status != "" {
			rec.Status = req.Status
		}
	}

	if req.Action == models.ActionCheckOut {
		rec.ClockOut = &now
	}
	if c := req.Coordinates; c != nil {
		lat, lon := c.Latitude, c.Longitude
		rec.Latitude, rec.Longitude = &lat, &lon
	}
	if d.location != "" {
		rec.LocationText = d.location
	}
	if req.IPAddress != "" {
		rec.IPAddress = req.IPAddress
	}
	if d.device != "" {
		rec.DeviceInfo = d.device
	}
	if d.photoRef != "" {
		rec.PhotoRef = d.photoRef
	}

	rec.AttemptCount++
	if limit := s.opts.MaxDailyAttempts; limit > 0 && rec.AttemptCount >= limit && !rec.Locked {
		rec.Locked = true
		rec.LockedReason = attemptLimitReason
	}
	rec.UpdatedAt = now
	return rec, nil
}

func (s *Service) resolveLocation(ctx context.Context, d *draft) error {
	switch {
	case d.req.LocationText != "":
		d.location = d.req.LocationText
	case d.req.Coordinates != nil && s.geocoder != nil:
		d.location = s.geocoder.Reverse(ctx, *d.req.Coordinates)
	case d.req.Coordinates != nil:
		d.location = d.req.Coordinates.Fallback()
	}
	return nil
}

func (s *Service) resolveDevice(_ context.Context, d *draft) error {
	if strings.TrimSpace(d.req.UserAgent) != "" {
		d.device = device.Summary(d.req.UserAgent)
	}
	return nil
}

func (s *Service) resolvePhoto(ctx context.Context, d *draft) error {
	ref, uploaded, err := s.storePhoto(ctx, d.employee.ExternalID, d.day, d.req.Photo)
	if err != nil {
		return fmt.Errorf("store photo: %w", err)
	}
	d.photoRef, d.photoUploaded = ref, uploaded
	return nil
}

func (s *Service) publish(ctx context.Context, action models.Action, record models.AttendanceRecord) {
	if s.publisher == nil {
		return
	}
	event := models.AttendanceEvent{
		Type:       models.EventAttendanceRecorded,
		Action:     action,
		Record:     record,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, record.EmployeeRef, event); err != nil {
		s.logger.Warn("failed to publish attendance event", "employee_id", record.EmployeeRef, "error", err)
	}
}

// Override sets the status of an existing record and appends an audit row.
func (s *Service) Override(ctx context.Context, req OverrideRequest) (models.AttendanceOverride, models.AttendanceRecord, error) {
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.AdminID = strings.TrimSpace(req.AdminID)
	switch {
	case req.EmployeeID == "":
		return models.AttendanceOverride{}, models.AttendanceRecord{}, apperr.New(apperr.Validation, "Employee ID is required")
	case req.AdminID == "":
		return models.AttendanceOverride{}, models.AttendanceRecord{}, apperr.New(apperr.Validation, "Admin ID is required")
	}
	status, err := models.ParseStatus(string(req.NewStatus))
	if err != nil || req.NewStatus == "" {
		return models.AttendanceOverride{}, models.AttendanceRecord{}, apperr.New(apperr.Validation, "Invalid status").
			WithHint("use PRESENT, LATE or ABSENT")
	}

	employee, err := withRetry(ctx, s, "employee lookup", func(ctx context.Context) (models.Employee, error) {
		return s.store.EmployeeByExternalID(ctx, req.EmployeeID)
	})
	if err != nil {
		return models.AttendanceOverride{}, models.AttendanceRecord{}, err
	}

	day := s.today()
	if !req.Date.IsZero() {
		day = models.Day(req.Date, time.UTC)
	}
	o := models.AttendanceOverride{
		EmployeeID:  employee.ID,
		EmployeeRef: employee.ExternalID,
		Date:        day,
		AdminRef:    req.AdminID,
		NewStatus:   status,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedAt:   s.now(),
	}

	type result struct {
		o models.AttendanceOverride
		r models.AttendanceRecord
	}
	res, err := withRetry(ctx, s, "apply override", func(ctx context.Context) (result, error) {
		saved, rec, err := s.store.ApplyOverride(ctx, o)
		return result{saved, rec}, err
	})
	if err != nil {
		return models.AttendanceOverride{}, models.AttendanceRecord{}, err
	}

	s.logger.Info("attendance overridden",
		"employee_id", employee.ExternalID, "date", day.Format(models.DateLayout),
		"admin_id", req.AdminID, "old_status", res.o.OldStatus, "new_status", res.o.NewStatus)
	s.publish(ctx, models.ActionOverride, res.r)
	return res.o, res.r, nil
}

// ListOverrides returns an employee's audit rows, newest first.
func (s *Service) ListOverrides(ctx context.Context, employeeRef string, from, to time.Time) ([]models.AttendanceOverride, error) {
	employee, err := s.store.EmployeeByExternalID(ctx, employeeRef)
	if err != nil {
		return nil, err
	}
	return s.store.ListOverrides(ctx, employee.ID, from, to)
}

// List returns one page of records and the total match count. An unknown
// employee filter yields an empty page.
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.AttendanceRecord, int, error) {
	filter := storage.ListFilter{From: q.From, To: q.To, Status: q.Status, Page: q.Page, Limit: q.Limit}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, 0, apperr.New(apperr.Validation, "dateTo must not be before dateFrom")
	}
	if ref := strings.TrimSpace(q.EmployeeID); ref != "" {
		employee, err := s.store.EmployeeByExternalID(ctx, ref)
		if apperr.Is(err, apperr.NotFound) {
			return []models.AttendanceRecord{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		filter.EmployeeID = &employee.ID
	}
	return s.store.ListAttendance(ctx, filter)
}

// RemainingAttempts reports today's attempt budget for the employee.
func (s *Service) RemainingAttempts(ctx context.Context, employeeRef string) (Attempts, error) {
	employee, err := s.store.EmployeeByExternalID(ctx, employeeRef)
	if err != nil {
		return Attempts{}, err
	}
	day := s.today()
	out := Attempts{
		EmployeeID:  employee.ExternalID,
		Date:        day,
		MaxAttempts: s.opts.MaxDailyAttempts,
	}
	rec, err := s.store.FindDaily(ctx, employee.ID, day)
	switch {
	case err == nil:
		out.AttemptsUsed = rec.AttemptCount
		out.Locked = rec.Locked
		out.LockedReason = rec.LockedReason
	case !apperr.Is(err, apperr.NotFound):
		return Attempts{}, err
	}
	if out.MaxAttempts > 0 {
		out.Remaining = max(out.MaxAttempts-out.AttemptsUsed, 0)
	}
	if out.Locked {
		out.Remaining = 0
	}
	return out, nil
}

// AssignedLocation returns the employee's site. When at is given the
// distance to the site and whether it lies inside the site radius are added.
func (s *Service) AssignedLocation(ctx context.Context, employeeRef string, at *geo.Coordinates) (AssignedLocation, error) {
	employee, err := s.store.EmployeeByExternalID(ctx, employeeRef)
	if err != nil {
		return AssignedLocation{}, err
	}
	if employee.Site == nil {
		return AssignedLocation{}, apperr.Newf(apperr.NotFound, "no assigned location for employee %s", employee.ExternalID)
	}
	out := AssignedLocation{EmployeeID: employee.ExternalID, Site: *employee.Site}
	if at != nil {
		if err := at.Validate(); err != nil {
			return AssignedLocation{}, apperr.Wrap(apperr.Validation, "Invalid coordinates provided", err)
		}
		dist := geo.DistanceMeters(at.Latitude, at.Longitude, employee.Site.Latitude, employee.Site.Longitude)
		within := dist <= employee.Site.RadiusMeters
		out.Position = at
		out.DistanceMeters = &dist
		out.WithinRadius = &within
	}
	return out, nil
}

// ImportEmployees upserts roster rows by external id. Rows the store rejects
// as invalid are counted as skipped; transient failures abort the import.
func (s *Service) ImportEmployees(ctx context.Context, employees []models.Employee) (ImportResult, error) {
	var res ImportResult
	for _, e := range employees {
		if strings.TrimSpace(e.ExternalID) == "" {
			res.Skipped++
			continue
		}
		_, err := withRetry(ctx, s, "import employee", func(ctx context.Context) (models.Employee, error) {
			return s.store.UpsertEmployee(ctx, e)
		})
		if apperr.Is(err, apperr.Validation) {
			s.logger.Warn("skipping roster row", "employee_id", e.ExternalID, "error", err)
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Imported++
	}
	s.logger.Info("roster imported", "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}
