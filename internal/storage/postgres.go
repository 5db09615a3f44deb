package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance/internal/apperr"
	"attendance/internal/config"
	"attendance/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// NewPostgresStore connects a pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	s := &PostgresStore{pool: pool, acquireTimeout: cfg.AcquireTimeout, logger: logger}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to postgres", "max_conns", poolCfg.MaxConns)
	return s, nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return classify("ensure schema", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return classify("ping", s.pool.Ping(ctx))
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// inTx acquires a connection within acquireTimeout and runs fn in a
// transaction. Pool exhaustion surfaces as a deadline error, classified as
// Unavailable.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	acquireCtx := ctx
	if s.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
	}
	conn, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "database connection pool exhausted", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return classify("commit", tx.Commit(ctx))
}

const employeeColumns = `id, external_id, name, email, site_name, site_latitude, site_longitude, site_radius_meters, created_at, updated_at`

func scanEmployee(row pgx.Row) (models.Employee, error) {
	var (
		e                models.Employee
		siteName         *string
		siteLat, siteLon *float64
		siteRadius       *float64
	)
	err := row.Scan(&e.ID, &e.ExternalID, &e.Name, &e.Email, &siteName, &siteLat, &siteLon, &siteRadius, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return models.Employee{}, err
	}
	if siteLat != nil && siteLon != nil {
		e.Site = &models.Site{Latitude: *siteLat, Longitude: *siteLon}
		if siteName != nil {
			e.Site.Name = *siteName
		}
		if siteRadius != nil {
			e.Site.RadiusMeters = *siteRadius
		}
	}
	return e, nil
}

func (s *PostgresStore) EmployeeByExternalID(ctx context.Context, externalID string) (models.Employee, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE external_id = $1`, externalID)
	e, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Employee{}, apperr.Newf(apperr.NotFound, "employee with ID %s not found", externalID)
	}
	return e, classify("employee by external id", err)
}

func (s *PostgresStore) UpsertEmployee(ctx context.Context, e models.Employee) (models.Employee, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var siteName *string
	var siteLat, siteLon, siteRadius *float64
	if e.Site != nil {
		siteName, siteLat, siteLon, siteRadius = &e.Site.Name, &e.Site.Latitude, &e.Site.Longitude, &e.Site.RadiusMeters
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO employees (id, external_id, name, email, site_name, site_latitude, site_longitude, site_radius_meters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			site_name = EXCLUDED.site_name,
			site_latitude = EXCLUDED.site_latitude,
			site_longitude = EXCLUDED.site_longitude,
			site_radius_meters = EXCLUDED.site_radius_meters,
			updated_at = now()
		RETURNING `+employeeColumns,
		e.ID, e.ExternalID, e.Name, e.Email, siteName, siteLat, siteLon, siteRadius)
	out, err := scanEmployee(row)
	return out, classify("upsert employee", err)
}

const recordSelect = `
	SELECT a.id, a.employee_id, e.external_id, a.date, a.clock_in, a.clock_out, a.status,
		a.latitude, a.longitude, a.location, a.ip_address, a.device_info, a.photo,
		a.locked, a.locked_reason, a.attempt_count, a.created_at, a.updated_at
	FROM attendance a
	JOIN employees e ON e.id = a.employee_id`

func scanRecord(row pgx.Row) (models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	err := row.Scan(&r.ID, &r.EmployeeID, &r.EmployeeRef, &r.Date, &r.ClockIn, &r.ClockOut, &r.Status,
		&r.Latitude, &r.Longitude, &r.LocationText, &r.IPAddress, &r.DeviceInfo, &r.PhotoRef,
		&r.Locked, &r.LockedReason, &r.AttemptCount, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) FindDaily(ctx context.Context, employeeID uuid.UUID, day time.Time) (models.AttendanceRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, recordSelect+` WHERE a.employee_id = $1 AND a.date = $2`, employeeID, day))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AttendanceRecord{}, apperr.New(apperr.NotFound, "no attendance record for this day")
	}
	return r, classify("find daily", err)
}

func (s *PostgresStore) UpsertDaily(ctx context.Context, employee models.Employee, day time.Time, mutate MutateFunc) (models.AttendanceRecord, error) {
	var out models.AttendanceRecord
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var current *models.AttendanceRecord
		existing, err := scanRecord(tx.QueryRow(ctx,
			recordSelect+` WHERE a.employee_id = $1 AND a.date = $2 FOR UPDATE OF a`, employee.ID, day))
		switch {
		case err == nil:
			current = &existing
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}
		next.EmployeeID = employee.ID
		next.EmployeeRef = employee.ExternalID
		next.Date = day

		if current == nil {
			if next.ID == uuid.Nil {
				next.ID = uuid.New()
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO attendance (id, employee_id, date, clock_in, clock_out, status, latitude, longitude,
					location, ip_address, device_info, photo, locked, locked_reason, attempt_count, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
				ON CONFLICT (employee_id, date) DO NOTHING`,
				next.ID, next.EmployeeID, next.Date, next.ClockIn, next.ClockOut, next.Status, next.Latitude, next.Longitude,
				next.LocationText, next.IPAddress, next.DeviceInfo, next.PhotoRef, next.Locked, next.LockedReason,
				next.AttemptCount, next.CreatedAt, next.UpdatedAt)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return apperr.Wrap(apperr.Conflict, "attendance is being recorded concurrently", ErrConcurrentWrite)
			}
		} else {
			next.ID = current.ID
			next.CreatedAt = current.CreatedAt
			_, err := tx.Exec(ctx, `
				UPDATE attendance SET clock_in = $2, clock_out = $3, status = $4, latitude = $5, longitude = $6,
					location = $7, ip_address = $8, device_info = $9, photo = $10, locked = $11, locked_reason = $12,
					attempt_count = $13, updated_at = $14
				WHERE id = $1`,
				next.ID, next.ClockIn, next.ClockOut, next.Status, next.Latitude, next.Longitude,
				next.LocationText, next.IPAddress, next.DeviceInfo, next.PhotoRef, next.Locked, next.LockedReason,
				next.AttemptCount, next.UpdatedAt)
			if err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return models.AttendanceRecord{}, classify("upsert daily", err)
	}
	return out, nil
}

func listWhere(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.EmployeeID != nil {
		add("a.employee_id = $%d", *f.EmployeeID)
	}
	if !f.From.IsZero() {
		add("a.date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.date <= $%d", f.To)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListAttendance(ctx context.Context, f ListFilter) ([]models.AttendanceRecord, int, error) {
	where, args := listWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM attendance a`+where, args...).Scan(&total); err != nil {
		return nil, 0, classify("count attendance", err)
	}

	query := recordSelect + where + ` ORDER BY a.date DESC, e.external_id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset())
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, classify("list attendance", err)
	}
	defer rows.Close()

	records := make([]models.AttendanceRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, classify("scan attendance", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("list attendance", err)
	}
	return records, total, nil
}

func (s *PostgresStore) ApplyOverride(ctx context.Context, o models.AttendanceOverride) (models.AttendanceOverride, models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = scanRecord(tx.QueryRow(ctx,
			recordSelect+` WHERE a.employee_id = $1 AND a.date = $2 FOR UPDATE OF a`, o.EmployeeID, o.Date))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Newf(apperr.NotFound, "no attendance record for %s on %s", o.EmployeeRef, o.Date.Format(models.DateLayout))
		}
		if err != nil {
			return err
		}

		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.AttendanceID = rec.ID
		o.OldStatus = rec.Status
		if _, err := tx.Exec(ctx, `
			INSERT INTO attendance_overrides (id, attendance_id, employee_id, date, admin_ref, old_status, new_status, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.ID, o.AttendanceID, o.EmployeeID, o.Date, o.AdminRef, o.OldStatus, o.NewStatus, o.Reason, o.CreatedAt); err != nil {
			return err
		}

		rec.Status = o.NewStatus
		rec.UpdatedAt = o.CreatedAt
		_, err = tx.Exec(ctx, `UPDATE attendance SET status = $2, updated_at = $3 WHERE id = $1`, rec.ID, rec.Status, rec.UpdatedAt)
		return err
	})
	if err != nil {
		return models.AttendanceOverride{}, models.AttendanceRecord{}, classify("apply override", err)
	}
	return o, rec, nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]models.AttendanceOverride, error) {
	query := `
		SELECT o.id, o.attendance_id, o.employee_id, e.external_id, o.date, o.admin_ref,
			o.old_status, o.new_status, o.reason, o.created_at
		FROM attendance_overrides o
		JOIN employees e ON e.id = o.employee_id
		WHERE o.employee_id = $1`
	args := []any{employeeID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND o.date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND o.date <= $%d", len(args))
	}
	query += " ORDER BY o.created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list overrides", err)
	}
	defer rows.Close()

	out := make([]models.AttendanceOverride, 0)
	for rows.Next() {
		var o models.AttendanceOverride
		if err := rows.Scan(&o.ID, &o.AttendanceID, &o.EmployeeID, &o.EmployeeRef, &o.Date, &o.AdminRef,
			&o.OldStatus, &o.NewStatus, &o.Reason, &o.CreatedAt); err != nil {
			return nil, classify("scan override", err)
		}
		out = append(out, o)
	}
	return out, classify("list overrides", rows.Err())
}

// classify attaches an apperr kind to a driver error. Errors that already
// carry a kind pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)

	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, "record not found", wrapped)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return apperr.Wrap(kindForSQLState(pgErr.Code), "database error", wrapped)
	}
	if connectionLost(err) {
		return apperr.Wrap(apperr.Unavailable, "database unavailable", wrapped)
	}
	return apperr.Wrap(apperr.Internal, "database error", wrapped)
}

// connectionLost reports driver and network failures where the statement may
// not have reached the server or the connection dropped mid-flight.
func connectionLost(err error) bool {
	var connErr *pgconn.ConnectError
	var netErr net.Error
	return errors.As(err, &connErr) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &netErr)
}

// kindForSQLState maps SQLSTATE codes onto error kinds.
//
//	23505 unique_violation            -> Conflict
//	23503 foreign_key_violation       -> NotFound
//	22xxx data exception              -> Validation
//	08xxx connection exception        -> Unavailable
//	53xxx insufficient resources      -> Unavailable
//	57xxx operator intervention       -> Unavailable
//	40001 serialization_failure       -> Unavailable
//	40P01 deadlock_detected           -> Unavailable
func kindForSQLState(code string) apperr.Kind {
	switch code {
	case "23505":
		return apperr.Conflict
	case "23503":
		return apperr.NotFound
	case "40001", "40P01":
		return apperr.Unavailable
	}
	if len(code) < 2 {
		return apperr.Internal
	}
	switch code[:2] {
	case "22":
		return apperr.Validation
	case "08", "53", "57":
		return apperr.Unavailable
	}
	return apperr.Internal
}
