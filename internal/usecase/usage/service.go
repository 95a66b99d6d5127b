// Package usage reports token spend against the embedding budget.
package usage

import (
	"context"
	"time"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// Service builds usage reports.
type Service struct {
	budget BudgetReader
	totals TotalsReader
	now    func() time.Time
}

// New creates a Service. A nil budget means unlimited; totals may be nil.
func New(budget BudgetReader, totals TotalsReader) *Service {
	return &Service{budget: budget, totals: totals, now: time.Now}
}

// GetReport returns the report of one period. Day and month carry their UTC
// bounds; total has none.
func (s *Service) GetReport(_ context.Context, period domain.UsagePeriod) domain.UsageReport {
	r := domain.UsageReport{Period: period}

	now := s.now().UTC()
	switch period {
	case domain.PeriodDay:
		r.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 0, 1)
	case domain.PeriodMonth:
		r.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 1, 0)
	}

	if s.budget != nil {
		r.Budget = s.budget.Status(period)
	}
	if s.totals != nil {
		r.Session = s.totals.Totals()
	}
	return r
}
