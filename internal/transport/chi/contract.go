package chi

import (
	"context"

	"github.com/kailas-cloud/docrag/internal/domain"
	healthuc "github.com/kailas-cloud/docrag/internal/usecase/health"
)

// Engine is the retrieval engine as seen by the HTTP layer.
type Engine interface {
	Ingest(ctx context.Context, folder string) (domain.IngestStats, error)
	Query(ctx context.Context, question string) (domain.Answer, error)
	Retrieve(ctx context.Context, question string) ([]domain.QueryResult, error)
	Status() domain.IndexStatus
}

// UsageReporter builds token budget reports.
type UsageReporter interface {
	GetReport(ctx context.Context, period domain.UsagePeriod) domain.UsageReport
}

// HealthChecker aggregates component checks.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// IngestLog reads the persisted summary of the last ingest.
type IngestLog interface {
	Last(ctx context.Context) (domain.IngestRecord, bool, error)
}
