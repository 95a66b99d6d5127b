package domain

import "time"

// UsagePeriod is the aggregation granularity of a usage report.
type UsagePeriod string

// Aggregation period constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
	PeriodTotal UsagePeriod = "total"
)

// ParseUsagePeriod maps a query value to a period; empty means month.
func ParseUsagePeriod(s string) (UsagePeriod, bool) {
	switch UsagePeriod(s) {
	case "", PeriodMonth:
		return PeriodMonth, true
	case PeriodDay, PeriodTotal:
		return UsagePeriod(s), true
	}
	return "", false
}

// UsageTotals counts work done since process start.
type UsageTotals struct {
	Ingests          int64
	Queries          int64
	EmbeddingTokens  int64
	GenerationTokens int64
}

// BudgetStatus describes the embedding token budget for a period.
// A zero Limit means unlimited.
type BudgetStatus struct {
	Limit     int64
	Used      int64
	Remaining int64
	Exhausted bool
	ResetsAt  time.Time
}

// UsageReport is a usage snapshot for one period.
type UsageReport struct {
	Period UsagePeriod
	// Start and End bound the period; both are zero for PeriodTotal.
	Start   time.Time
	End     time.Time
	Budget  BudgetStatus
	Session UsageTotals
}
