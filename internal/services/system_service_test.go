package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lahm-market/api/internal/domain"
)

type stubHealthRepo struct {
	collectFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepo) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFn != nil {
		return s.collectFn(ctx)
	}
	return domain.SystemHealthReport{}, nil
}

func TestSystemServiceHealthReportFillsBuildMetadata(t *testing.T) {
	started := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	now := started.Add(3 * time.Hour)

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepo{
			collectFn: func(ctx context.Context) (domain.SystemHealthReport, error) {
				return domain.SystemHealthReport{
					Status: domain.HealthStatusOK,
					Checks: map[string]domain.SystemHealthCheck{
						"postgres": {Status: domain.HealthStatusOK, Detail: "ok"},
						"redis":    {Status: domain.HealthStatusOK, Detail: "ok"},
					},
				}, nil
			},
		},
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "1.4.0", CommitSHA: "abc123", Environment: "production", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("NewSystemService returned error: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport returned error: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %s", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc123" || report.Environment != "production" {
		t.Fatalf("unexpected build metadata: %+v", report)
	}
	if report.Uptime != 3*time.Hour {
		t.Fatalf("expected 3h uptime, got %s", report.Uptime)
	}
	if report.GeneratedAt != now {
		t.Fatalf("expected generated at %s, got %s", now, report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportPropagatesCollectError(t *testing.T) {
	collectErr := errors.New("probe failed to start")
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepo{
			collectFn: func(ctx context.Context) (domain.SystemHealthReport, error) {
				return domain.SystemHealthReport{}, collectErr
			},
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService returned error: %v", err)
	}

	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, collectErr) {
		t.Fatalf("expected collect error, got %v", err)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error when health repository is missing")
	}
}
