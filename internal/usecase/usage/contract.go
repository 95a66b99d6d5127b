package usage

import "github.com/kailas-cloud/docrag/internal/domain"

// BudgetReader reports the embedding budget of a period.
type BudgetReader interface {
	Status(period domain.UsagePeriod) domain.BudgetStatus
}

// TotalsReader reports counters kept since process start.
type TotalsReader interface {
	Totals() domain.UsageTotals
}
