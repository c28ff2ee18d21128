package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	saved    []*Report
	found    *Report
	listed   []*Report
	lastType string
	lastLim  int
}

func (f *fakeStore) SaveReport(ctx context.Context, report *Report) error {
	report.ID = "report-1"
	report.CreatedAt = time.Now()
	report.UpdatedAt = report.CreatedAt
	f.saved = append(f.saved, report)
	return nil
}

func (f *fakeStore) FindReport(ctx context.Context, reportType string, periodStart time.Time) (*Report, error) {
	if f.found == nil {
		return nil, ErrNotFound
	}
	return f.found, nil
}

func (f *fakeStore) ListReports(ctx context.Context, reportType string, limit int) ([]*Report, error) {
	f.lastType = reportType
	f.lastLim = limit
	return f.listed, nil
}

func TestImportValidReport(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	report, err := svc.Import(context.Background(), "daily", "2026-03-01", json.RawMessage(`{"totals":{"km":1200}}`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Type != TypeDaily {
		t.Fatalf("type not normalized: %s", report.Type)
	}
	if !report.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period: %v", report.PeriodStart)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(store.saved))
	}
}

func TestImportRejections(t *testing.T) {
	svc := NewService(&fakeStore{})
	ctx := context.Background()

	cases := []struct {
		name    string
		typ     string
		period  string
		data    string
		wantErr error
	}{
		{"unknown type", "WEEKLY", "2026-03-01", `{}`, ErrInvalidType},
		{"bad period", "DAILY", "01.03.2026", `{}`, ErrInvalidPeriod},
		{"empty data", "DAILY", "2026-03-01", ``, ErrEmptyData},
		{"invalid json", "DAILY", "2026-03-01", `{broken`, ErrEmptyData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Import(ctx, tc.typ, tc.period, json.RawMessage(tc.data))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDaily(t *testing.T) {
	store := &fakeStore{found: &Report{ID: "report-1", Type: TypeDaily}}
	svc := NewService(store)

	report, err := svc.Daily(context.Background(), "2026-03-01")
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if report.ID != "report-1" {
		t.Fatalf("unexpected report: %+v", report)
	}

	if _, err := svc.Daily(context.Background(), "ne-datum"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}

	store.found = nil
	if _, err := svc.Daily(context.Background(), "2026-03-01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDefaultsAndBounds(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	if _, err := svc.List(context.Background(), "", 0); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.lastType != TypeDaily || store.lastLim != 31 {
		t.Fatalf("defaults not applied: type=%s limit=%d", store.lastType, store.lastLim)
	}

	if _, err := svc.List(context.Background(), "monthly", 500); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.lastType != TypeMonthly || store.lastLim != 31 {
		t.Fatalf("bounds not applied: type=%s limit=%d", store.lastType, store.lastLim)
	}

	if _, err := svc.List(context.Background(), "GODISNJI", 10); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}
