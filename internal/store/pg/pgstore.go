package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"aerobaza.org/internal/audit"
	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/billing"
	"aerobaza.org/internal/ids"
)

// Store implements every persistence collaborator of the access-control
// pipeline over a single PostgreSQL pool.
type Store struct {
	db *sql.DB
}

var (
	_ auth.CredentialStore   = (*Store)(nil)
	_ auth.LoginAttemptStore = (*Store)(nil)
	_ audit.Store            = (*Store)(nil)
	_ billing.Store          = (*Store)(nil)
)

// Open connects to PostgreSQL with pool defaults tuned for request-parallel
// guard lookups.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing pool (tests use this with sqlmock).
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Users ---------------------------------------------------------------------

const userColumns = `id, email, name, role, password_hash, is_active,
	billing_pin_hash, billing_pin_failed_attempts, billing_pin_locked_until,
	created_at, updated_at`

func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetBillingPINState(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	var locked sql.NullTime
	if lockedUntil != nil {
		locked = sql.NullTime{Time: lockedUntil.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`update users set billing_pin_failed_attempts = $2, billing_pin_locked_until = $3, updated_at = now() where id = $1`,
		userID, failedAttempts, locked)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u        auth.User
		name     sql.NullString
		pinHash  sql.NullString
		lockedNT sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &name, &u.Role, &u.PasswordHash, &u.IsActive,
		&pinHash, &u.BillingPINFailedAttempts, &lockedNT, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.Name = name.String
	u.BillingPINHash = pinHash.String
	if lockedNT.Valid {
		t := lockedNT.Time
		u.BillingPINLockedUntil = &t
	}
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Login attempts ------------------------------------------------------------

func (s *Store) RecordLoginAttempt(ctx context.Context, email, ip string, success bool) error {
	var ipValue sql.NullString
	if ip != "" && ip != "unknown" {
		ipValue = sql.NullString{String: ip, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`insert into login_attempts(id, email, ip_address, success, created_at)
		 values($1, lower($2), $3, $4, now())`,
		ids.New(), email, ipValue, success)
	return err
}

func (s *Store) CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from login_attempts
		 where email = lower($1) and success = false and created_at >= $2`,
		email, since.UTC()).Scan(&count)
	return count, err
}

func (s *Store) OldestRecentFailure(ctx context.Context, email string, since time.Time) (time.Time, error) {
	// min() yields a single NULL row when nothing matches, not ErrNoRows.
	var oldest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`select min(created_at) from login_attempts
		 where email = lower($1) and success = false and created_at >= $2`,
		email, since.UTC()).Scan(&oldest)
	if err != nil {
		return time.Time{}, err
	}
	if !oldest.Valid {
		return time.Time{}, auth.ErrNotFound
	}
	return oldest.Time, nil
}

func (s *Store) ClearFailures(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from login_attempts where email = lower($1) and success = false`, email)
	return err
}

func (s *Store) PurgeAttemptsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`delete from login_attempts where created_at < $1`, cutoff.UTC())
	return err
}

// Audit log -----------------------------------------------------------------

func (s *Store) AppendAuditLog(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, user_id, action, entity_type, entity_id, metadata, ip_address, user_agent, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, nullString(entry.UserID), entry.Action, entry.EntityType,
		nullString(entry.EntityID), meta, nullString(entry.IPAddress),
		nullString(entry.UserAgent), entry.CreatedAt.UTC(),
	)
	return err
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// Billing reports -----------------------------------------------------------

func (s *Store) SaveReport(ctx context.Context, report *billing.Report) error {
	if report.ID == "" {
		report.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into billing_reports(id, type, period_start, data, created_at, updated_at)
		 values($1,$2,$3,$4,now(),now())
		 on conflict (type, period_start) do update
		   set data = excluded.data, updated_at = now()
		 returning id, created_at, updated_at`,
		report.ID, report.Type, report.PeriodStart.UTC(), []byte(report.Data),
	).Scan(&report.ID, &report.CreatedAt, &report.UpdatedAt)
}

func (s *Store) FindReport(ctx context.Context, reportType string, periodStart time.Time) (*billing.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, type, period_start, data, created_at, updated_at
		 from billing_reports where type = $1 and period_start = $2`,
		reportType, periodStart.UTC())
	var (
		report billing.Report
		data   []byte
	)
	if err := row.Scan(&report.ID, &report.Type, &report.PeriodStart, &data, &report.CreatedAt, &report.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrNotFound
		}
		return nil, err
	}
	report.Data = data
	return &report, nil
}

func (s *Store) ListReports(ctx context.Context, reportType string, limit int) ([]*billing.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, type, period_start, data, created_at, updated_at
		 from billing_reports where type = $1
		 order by period_start desc limit $2`,
		reportType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*billing.Report
	for rows.Next() {
		var (
			report billing.Report
			data   []byte
		)
		if err := rows.Scan(&report.ID, &report.Type, &report.PeriodStart, &data, &report.CreatedAt, &report.UpdatedAt); err != nil {
			return nil, err
		}
		report.Data = data
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}
