package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'citizen',
    phone TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reports (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id),
    category TEXT NOT NULL,
    description TEXT NOT NULL,
    address TEXT NOT NULL DEFAULT '',
    image_url TEXT NOT NULL,
    captured_latitude DOUBLE PRECISION NOT NULL,
    captured_longitude DOUBLE PRECISION NOT NULL,
    captured_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    user_latitude DOUBLE PRECISION,
    user_longitude DOUBLE PRECISION,
    location_distance_m DOUBLE PRECISION,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    priority TEXT,
    reopen_count INT NOT NULL DEFAULT 0,
    rejection_reason TEXT,
    verification_status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports (user_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports (status);
CREATE INDEX IF NOT EXISTS idx_reports_category ON reports (category);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at DESC);
`

// reviewOrderSQL mirrors lifecycle.ReviewRank: reopened reports outrank fresh
// ones per priority tier, closed (null priority) reports sink to the bottom,
// ties break newest first.
const reviewOrderSQL = ` ORDER BY
    CASE
      WHEN priority IS NULL THEN 99
      WHEN reopen_count > 0 AND priority = 'high' THEN 1
      WHEN reopen_count > 0 AND priority = 'medium' THEN 2
      WHEN reopen_count > 0 AND priority = 'low' THEN 3
      WHEN priority = 'high' THEN 4
      WHEN priority = 'medium' THEN 5
      WHEN priority = 'low' THEN 6
      ELSE 7
    END ASC,
    created_at DESC`

const reportColumns = `id, user_id, category, description, address, image_url,
    captured_latitude, captured_longitude, captured_accuracy,
    user_latitude, user_longitude, location_distance_m,
    latitude, longitude, status, priority, reopen_count, rejection_reason,
    verification_status, created_at, resolved_at`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertReport persists a new report inside a transaction and fills in the
// generated ID and created_at.
func (p *Postgres) InsertReport(ctx context.Context, r *models.Report) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `INSERT INTO reports (
        user_id, category, description, address, image_url,
        captured_latitude, captured_longitude, captured_accuracy,
        user_latitude, user_longitude, location_distance_m,
        latitude, longitude, status, priority, reopen_count,
        verification_status
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    RETURNING id, created_at`,
		r.UserID, r.Category, r.Description, r.Address, r.ImageURL,
		r.CapturedLatitude, r.CapturedLongitude, r.CapturedAccuracy,
		r.UserLatitude, r.UserLongitude, r.LocationDistanceM,
		r.Latitude, r.Longitude, r.Status, priorityParam(r.Priority), r.ReopenCount,
		r.VerificationStatus).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// MutateReport runs fn against the current row under a row lock and persists
// the result in the same transaction. Concurrent mutations against the same
// report serialize on the row lock, so fn always observes the latest committed
// state before deciding its own outcome. An error from fn rolls back.
func (p *Postgres) MutateReport(ctx context.Context, id uuid.UUID, fn func(*models.Report) error) (*models.Report, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1 FOR UPDATE`, id)
	r, err := scanReport(row)
	if err != nil {
		return nil, err
	}

	if err := fn(r); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE reports SET
        status = $1, priority = $2, reopen_count = $3, rejection_reason = $4,
        verification_status = $5, resolved_at = $6, address = $7
        WHERE id = $8`,
		r.Status, priorityParam(r.Priority), r.ReopenCount, r.RejectionReason,
		r.VerificationStatus, r.ResolvedAt, r.Address, id)
	if err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return r, nil
}

// DeleteReport removes a report after fn approves the current row. The guard
// runs under the same row lock as the delete, so the status it checks cannot
// change before the row is gone.
func (p *Postgres) DeleteReport(ctx context.Context, id uuid.UUID, fn func(*models.Report) error) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1 FOR UPDATE`, id)
	r, err := scanReport(row)
	if err != nil {
		return err
	}

	if err := fn(r); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// GetReport fetches a report by ID.
func (p *Postgres) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	return scanReport(row)
}

// GetUserReport fetches a report by ID scoped to its owner. Reports owned by
// other users surface as not found.
func (p *Postgres) GetUserReport(ctx context.Context, id, userID uuid.UUID) (*models.Report, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1 AND user_id = $2`, id, userID)
	return scanReport(row)
}

// ListUserReports returns all reports owned by userID in review order.
func (p *Postgres) ListUserReports(ctx context.Context, userID uuid.UUID) ([]models.Report, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE user_id = $1`+reviewOrderSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("query user reports: %w", err)
	}
	return collectReports(rows)
}

// ListReports returns all reports in review order, optionally filtered by
// status and category. Empty filter values match everything.
func (p *Postgres) ListReports(ctx context.Context, status, category string) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	var params []any
	if status != "" && status != "all" {
		params = append(params, status)
		query += fmt.Sprintf(" AND status = $%d", len(params))
	}
	if category != "" && category != "all" {
		params = append(params, category)
		query += fmt.Sprintf(" AND category = $%d", len(params))
	}
	query += reviewOrderSQL

	rows, err := p.DB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	return collectReports(rows)
}

// GetReportDetail fetches a report joined with its reporter for admin views.
func (p *Postgres) GetReportDetail(ctx context.Context, id uuid.UUID) (*models.ReportDetail, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT r.id, r.user_id, r.category, r.description, r.address, r.image_url,
        r.captured_latitude, r.captured_longitude, r.captured_accuracy,
        r.user_latitude, r.user_longitude, r.location_distance_m,
        r.latitude, r.longitude, r.status, r.priority, r.reopen_count, r.rejection_reason,
        r.verification_status, r.created_at, r.resolved_at,
        u.name, u.email, COALESCE(u.phone, '')
        FROM reports r JOIN users u ON r.user_id = u.id WHERE r.id = $1`, id)

	var d models.ReportDetail
	var priority, reason sql.NullString
	var userLat, userLng, dist sql.NullFloat64
	var resolvedAt sql.NullTime
	err := row.Scan(&d.ID, &d.UserID, &d.Category, &d.Description, &d.Address, &d.ImageURL,
		&d.CapturedLatitude, &d.CapturedLongitude, &d.CapturedAccuracy,
		&userLat, &userLng, &dist,
		&d.Latitude, &d.Longitude, &d.Status, &priority, &d.ReopenCount, &reason,
		&d.VerificationStatus, &d.CreatedAt, &resolvedAt,
		&d.UserName, &d.UserEmail, &d.UserPhone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report detail: %w", err)
	}
	applyNullables(&d.Report, priority, reason, userLat, userLng, dist, resolvedAt)
	return &d, nil
}

// ListMapPoints returns the trimmed rows for the admin map, optionally
// filtered by status, newest first.
func (p *Postgres) ListMapPoints(ctx context.Context, status string) ([]models.MapPoint, error) {
	query := `SELECT id, category, priority, status, latitude, longitude, description, address, created_at
        FROM reports WHERE latitude IS NOT NULL AND longitude IS NOT NULL`
	var params []any
	if status != "" {
		params = append(params, status)
		query += " AND status = $1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := p.DB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query map points: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var pts []models.MapPoint
	for rows.Next() {
		var pt models.MapPoint
		var priority sql.NullString
		if err := rows.Scan(&pt.ID, &pt.Category, &priority, &pt.Status, &pt.Latitude, &pt.Longitude, &pt.Description, &pt.Address, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan map point: %w", err)
		}
		if priority.Valid {
			pr := models.Priority(priority.String)
			pt.Priority = &pr
		}
		pts = append(pts, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return pts, nil
}

// StatusCounts aggregates report counts per lifecycle status across all users.
func (p *Postgres) StatusCounts(ctx context.Context) (models.StatusCounts, error) {
	var c models.StatusCounts
	err := p.DB.QueryRowContext(ctx, `SELECT
        COUNT(*),
        COUNT(*) FILTER (WHERE status = 'open'),
        COUNT(*) FILTER (WHERE status = 'in_progress'),
        COUNT(*) FILTER (WHERE status = 'awaiting_user_confirmation'),
        COUNT(*) FILTER (WHERE status = 'reopened'),
        COUNT(*) FILTER (WHERE status = 'closed')
        FROM reports`).Scan(&c.Total, &c.Open, &c.InProgress, &c.AwaitingConfirmation, &c.Reopened, &c.Closed)
	if err != nil {
		return c, fmt.Errorf("count reports: %w", err)
	}
	return c, nil
}

// UserStats aggregates a single reporter's counts and category breakdown.
func (p *Postgres) UserStats(ctx context.Context, userID uuid.UUID) (models.UserStats, error) {
	var s models.UserStats
	err := p.DB.QueryRowContext(ctx, `SELECT
        COUNT(*),
        COUNT(*) FILTER (WHERE status = 'open'),
        COUNT(*) FILTER (WHERE status = 'in_progress'),
        COUNT(*) FILTER (WHERE status = 'awaiting_user_confirmation'),
        COUNT(*) FILTER (WHERE status = 'closed'),
        COUNT(*) FILTER (WHERE verification_status = 'verified')
        FROM reports WHERE user_id = $1`, userID).
		Scan(&s.TotalReports, &s.OpenReports, &s.InProgress, &s.AwaitingReports, &s.ClosedReports, &s.VerifiedReports)
	if err != nil {
		return s, fmt.Errorf("count user reports: %w", err)
	}

	rows, err := p.DB.QueryContext(ctx, `SELECT category, COUNT(*) FROM reports
        WHERE user_id = $1 GROUP BY category ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return s, fmt.Errorf("query category breakdown: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var cc models.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return s, fmt.Errorf("scan category count: %w", err)
		}
		s.Categories = append(s.Categories, cc)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("rows error: %w", err)
	}
	return s, nil
}

// InsertUser creates a new user and fills in the generated ID and created_at.
func (p *Postgres) InsertUser(ctx context.Context, u *models.User) error {
	err := p.DB.QueryRowContext(ctx, `INSERT INTO users (name, email, password_hash, role, phone)
        VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.Phone).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user by email address.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.getUser(ctx, `SELECT id, name, email, password_hash, role, COALESCE(phone, ''), created_at FROM users WHERE email = $1`, email)
}

// GetUserByID fetches a user by ID.
func (p *Postgres) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return p.getUser(ctx, `SELECT id, name, email, password_hash, role, COALESCE(phone, ''), created_at FROM users WHERE id = $1`, id)
}

func (p *Postgres) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := p.DB.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var priority, reason sql.NullString
	var userLat, userLng, dist sql.NullFloat64
	var resolvedAt sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.Category, &r.Description, &r.Address, &r.ImageURL,
		&r.CapturedLatitude, &r.CapturedLongitude, &r.CapturedAccuracy,
		&userLat, &userLng, &dist,
		&r.Latitude, &r.Longitude, &r.Status, &priority, &r.ReopenCount, &reason,
		&r.VerificationStatus, &r.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	applyNullables(&r, priority, reason, userLat, userLng, dist, resolvedAt)
	return &r, nil
}

func applyNullables(r *models.Report, priority, reason sql.NullString, userLat, userLng, dist sql.NullFloat64, resolvedAt sql.NullTime) {
	if priority.Valid {
		p := models.Priority(priority.String)
		r.Priority = &p
	}
	if reason.Valid {
		s := reason.String
		r.RejectionReason = &s
	}
	if userLat.Valid {
		v := userLat.Float64
		r.UserLatitude = &v
	}
	if userLng.Valid {
		v := userLng.Float64
		r.UserLongitude = &v
	}
	if dist.Valid {
		v := dist.Float64
		r.LocationDistanceM = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
}

func collectReports(rows *sql.Rows) ([]models.Report, error) {
	defer func() {
		_ = rows.Close()
	}()
	var out []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func priorityParam(p *models.Priority) any {
	if p == nil {
		return nil
	}
	return string(*p)
}
