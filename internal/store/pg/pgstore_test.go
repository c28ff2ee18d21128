package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"aerobaza.org/internal/audit"
	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/billing"
)

var userRows = []string{
	"id", "email", "name", "role", "password_hash", "is_active",
	"billing_pin_hash", "billing_pin_failed_attempts", "billing_pin_locked_until",
	"created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserByID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	locked := now.Add(5 * time.Minute)

	mock.ExpectQuery("select id, email, name, role, password_hash.*from users where id =").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userRows).AddRow(
			"user-1", "ana@aerobaza.org", "Ana", "NAPLATE", "hash", true,
			"pin-hash", 3, locked, now, now))

	user, err := store.FindUserByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if user.Email != "ana@aerobaza.org" || user.Role != auth.RoleNaplate {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.BillingPINFailedAttempts != 3 || user.BillingPINLockedUntil == nil {
		t.Fatalf("pin state not mapped: %+v", user)
	}
	expectMet(t, mock)
}

func TestFindUserByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, email, name, role, password_hash.*from users where id =").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.FindUserByID(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected auth.ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestFindUserByEmailNullColumns(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("from users where lower\\(email\\) = lower").
		WithArgs("ana@aerobaza.org").
		WillReturnRows(sqlmock.NewRows(userRows).AddRow(
			"user-1", "ana@aerobaza.org", nil, "VIEWER", "hash", true,
			nil, 0, nil, now, now))

	user, err := store.FindUserByEmail(context.Background(), " ana@aerobaza.org ")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if user.Name != "" || user.BillingPINHash != "" || user.BillingPINLockedUntil != nil {
		t.Fatalf("null columns not mapped to zero values: %+v", user)
	}
	expectMet(t, mock)
}

func TestUpdatePassword(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users set password_hash =").
		WithArgs("user-1", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.UpdatePassword(context.Background(), "user-1", "new-hash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	mock.ExpectExec("update users set password_hash =").
		WithArgs("ghost", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.UpdatePassword(context.Background(), "ghost", "new-hash"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected auth.ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestSetBillingPINState(t *testing.T) {
	store, mock := newMockStore(t)
	until := time.Now().Add(10 * time.Minute)

	mock.ExpectExec("update users set billing_pin_failed_attempts =").
		WithArgs("user-1", 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.SetBillingPINState(context.Background(), "user-1", 5, &until); err != nil {
		t.Fatalf("SetBillingPINState: %v", err)
	}

	mock.ExpectExec("update users set billing_pin_failed_attempts =").
		WithArgs("user-1", 0, sql.NullTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.SetBillingPINState(context.Background(), "user-1", 0, nil); err != nil {
		t.Fatalf("SetBillingPINState reset: %v", err)
	}
	expectMet(t, mock)
}

func TestLoginAttemptQueries(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Now().Add(-15 * time.Minute)

	mock.ExpectExec("insert into login_attempts").
		WithArgs(sqlmock.AnyArg(), "Ana@aerobaza.org", sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.RecordLoginAttempt(context.Background(), "Ana@aerobaza.org", "10.0.0.1", false); err != nil {
		t.Fatalf("RecordLoginAttempt: %v", err)
	}

	mock.ExpectQuery("select count\\(\\*\\) from login_attempts").
		WithArgs("ana@aerobaza.org", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	count, err := store.CountRecentFailures(context.Background(), "ana@aerobaza.org", since)
	if err != nil || count != 4 {
		t.Fatalf("CountRecentFailures: count=%d err=%v", count, err)
	}

	oldestAt := time.Now().Add(-10 * time.Minute)
	mock.ExpectQuery("select min\\(created_at\\) from login_attempts").
		WithArgs("ana@aerobaza.org", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(oldestAt))
	oldest, err := store.OldestRecentFailure(context.Background(), "ana@aerobaza.org", since)
	if err != nil || !oldest.Equal(oldestAt) {
		t.Fatalf("OldestRecentFailure: oldest=%v err=%v", oldest, err)
	}

	mock.ExpectQuery("select min\\(created_at\\) from login_attempts").
		WithArgs("ana@aerobaza.org", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))
	if _, err := store.OldestRecentFailure(context.Background(), "ana@aerobaza.org", since); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected auth.ErrNotFound for null min, got %v", err)
	}

	mock.ExpectExec("delete from login_attempts where email =").
		WithArgs("ana@aerobaza.org").
		WillReturnResult(sqlmock.NewResult(0, 4))
	if err := store.ClearFailures(context.Background(), "ana@aerobaza.org"); err != nil {
		t.Fatalf("ClearFailures: %v", err)
	}

	mock.ExpectExec("delete from login_attempts where created_at <").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))
	if err := store.PurgeAttemptsBefore(context.Background(), time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("PurgeAttemptsBefore: %v", err)
	}
	expectMet(t, mock)
}

func TestAppendAuditLog(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into audit_log").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "auth.login", "User",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &audit.Entry{
		UserID:     "user-1",
		Action:     "auth.login",
		EntityType: "User",
		Metadata:   map[string]any{"ip": "10.0.0.1"},
		CreatedAt:  time.Now(),
	}
	if err := store.AppendAuditLog(context.Background(), entry); err != nil {
		t.Fatalf("AppendAuditLog: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected generated id")
	}
	expectMet(t, mock)
}

func TestBillingReports(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reportRows := []string{"id", "type", "period_start", "data", "created_at", "updated_at"}

	mock.ExpectQuery("insert into billing_reports").
		WithArgs(sqlmock.AnyArg(), billing.TypeDaily, period, []byte(`{"totals":1}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("report-1", now, now))
	report := &billing.Report{Type: billing.TypeDaily, PeriodStart: period, Data: []byte(`{"totals":1}`)}
	if err := store.SaveReport(context.Background(), report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if report.ID != "report-1" {
		t.Fatalf("returned id not applied: %+v", report)
	}

	mock.ExpectQuery("from billing_reports where type = .* and period_start =").
		WithArgs(billing.TypeDaily, period).
		WillReturnRows(sqlmock.NewRows(reportRows).
			AddRow("report-1", billing.TypeDaily, period, []byte(`{"totals":1}`), now, now))
	found, err := store.FindReport(context.Background(), billing.TypeDaily, period)
	if err != nil || found.ID != "report-1" {
		t.Fatalf("FindReport: report=%+v err=%v", found, err)
	}

	mock.ExpectQuery("from billing_reports where type = .* and period_start =").
		WithArgs(billing.TypeDaily, period).
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindReport(context.Background(), billing.TypeDaily, period); !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected billing.ErrNotFound, got %v", err)
	}

	mock.ExpectQuery("order by period_start desc limit").
		WithArgs(billing.TypeMonthly, 12).
		WillReturnRows(sqlmock.NewRows(reportRows).
			AddRow("report-2", billing.TypeMonthly, period, []byte(`{}`), now, now).
			AddRow("report-3", billing.TypeMonthly, period.AddDate(0, -1, 0), []byte(`{}`), now, now))
	listed, err := store.ListReports(context.Background(), billing.TypeMonthly, 12)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListReports: n=%d err=%v", len(listed), err)
	}
	expectMet(t, mock)
}
