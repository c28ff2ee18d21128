// Package billing holds the accounting report records gated by the step-up
// guard. Only storage and validation live here; authorization is decided
// before any of this code runs.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Report types recognized by the importer.
const (
	TypeDaily   = "DAILY"
	TypeMonthly = "MONTHLY"
)

var (
	ErrNotFound      = errors.New("billing: report not found")
	ErrInvalidType   = errors.New("billing: invalid report type")
	ErrInvalidPeriod = errors.New("billing: invalid report period")
	ErrEmptyData     = errors.New("billing: report data is empty")
)

// Report is one imported reconciliation snapshot, unique per (type, period).
type Report struct {
	ID          string
	Type        string
	PeriodStart time.Time
	Data        json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store persists reports.
type Store interface {
	SaveReport(ctx context.Context, report *Report) error
	FindReport(ctx context.Context, reportType string, periodStart time.Time) (*Report, error)
	ListReports(ctx context.Context, reportType string, limit int) ([]*Report, error)
}

// Service validates and stores reports.
type Service struct {
	store Store
}

// NewService constructs the report service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Import validates and upserts one report for the given period.
func (s *Service) Import(ctx context.Context, reportType, period string, data json.RawMessage) (*Report, error) {
	reportType = strings.ToUpper(strings.TrimSpace(reportType))
	if reportType != TypeDaily && reportType != TypeMonthly {
		return nil, ErrInvalidType
	}
	periodStart, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || !json.Valid(data) {
		return nil, ErrEmptyData
	}
	report := &Report{Type: reportType, PeriodStart: periodStart, Data: data}
	if err := s.store.SaveReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Daily returns the daily report for the given date.
func (s *Service) Daily(ctx context.Context, date string) (*Report, error) {
	periodStart, err := ParsePeriod(date)
	if err != nil {
		return nil, err
	}
	return s.store.FindReport(ctx, TypeDaily, periodStart)
}

// List returns recent reports of the given type, newest first.
func (s *Service) List(ctx context.Context, reportType string, limit int) ([]*Report, error) {
	reportType = strings.ToUpper(strings.TrimSpace(reportType))
	if reportType == "" {
		reportType = TypeDaily
	}
	if reportType != TypeDaily && reportType != TypeMonthly {
		return nil, ErrInvalidType
	}
	if limit <= 0 || limit > 100 {
		limit = 31
	}
	return s.store.ListReports(ctx, reportType, limit)
}

// ParsePeriod parses a YYYY-MM-DD period start in UTC.
func ParsePeriod(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return t.UTC(), nil
}
