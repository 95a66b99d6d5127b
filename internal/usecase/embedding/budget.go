package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/metrics"
)

const persistTimeout = 2 * time.Second

// CounterStore persists per-period token counters. Add must create the key
// with ttl on first write and never extend it afterwards.
type CounterStore interface {
	Add(ctx context.Context, key string, tokens int64, ttl time.Duration) error
	Load(ctx context.Context, key string) (int64, error)
}

// Limits configures a Budget. A zero limit leaves its period unlimited.
type Limits struct {
	Daily   int64
	Monthly int64
	// Reject fails embedding calls once a limit is reached. Otherwise the
	// overrun is logged and the call goes through.
	Reject bool
}

// Budget caps embedding tokens per UTC day and per UTC month. Check is served
// from memory. Record updates memory, then persists the delta when a
// CounterStore is attached.
type Budget struct {
	mu       sync.Mutex
	day      *window
	month    *window
	reject   bool
	provider string
	store    CounterStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudget creates a budget for one provider.
func NewBudget(provider string, limits Limits, logger *zap.Logger) *Budget {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Budget{
		day:      &window{period: domain.PeriodDay, limit: limits.Daily},
		month:    &window{period: domain.PeriodMonth, limit: limits.Monthly},
		reject:   limits.Reject,
		provider: provider,
		now:      time.Now,
		logger:   logger,
	}
	b.roll()
	return b
}

// WithStore attaches persistence and seeds the counters of the current periods.
func (b *Budget) WithStore(ctx context.Context, store CounterStore) *Budget {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	b.roll()
	for _, w := range b.windows() {
		used, err := store.Load(ctx, b.key(w))
		if err != nil {
			b.logger.Warn("Failed to load budget counter",
				zap.String("period", string(w.period)), zap.Error(err))
			continue
		}
		w.used = used
	}
	b.logger.Info("Budget counters loaded",
		zap.String("provider", b.provider),
		zap.Int64("day_used", b.day.used),
		zap.Int64("month_used", b.month.used),
	)
	return b
}

// Check fails with ErrEmbeddingQuotaExceeded when a limit is reached and the
// budget rejects overruns.
func (b *Budget) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.roll()
	for _, w := range b.windows() {
		if !w.exhausted() {
			continue
		}
		if b.reject {
			return fmt.Errorf("%s limit of %d tokens reached: %w", w.period, w.limit, domain.ErrEmbeddingQuotaExceeded)
		}
		b.logger.Warn("Embedding token budget exceeded",
			zap.String("provider", b.provider),
			zap.String("period", string(w.period)),
			zap.Int64("used", w.used),
			zap.Int64("limit", w.limit),
		)
	}
	return nil
}

// Record charges tokens to both periods.
func (b *Budget) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	type write struct {
		key string
		ttl time.Duration
	}
	b.mu.Lock()
	b.roll()
	writes := make([]write, 0, 2)
	for _, w := range b.windows() {
		w.used += tokens
		metrics.BudgetTokensRemaining.WithLabelValues(b.provider, string(w.period)).Set(float64(w.remaining()))
		writes = append(writes, write{key: b.key(w), ttl: w.retention()})
	}
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}
	// Persisting must not hold up or fail the embedding call that spent the tokens.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, wr := range writes {
		if err := store.Add(ctx, wr.key, tokens, wr.ttl); err != nil {
			b.logger.Warn("Failed to persist budget counter", zap.String("key", wr.key), zap.Error(err))
		}
	}
}

// Status reports the budget of a period. PeriodTotal reports the monthly
// window, the longest one enforced.
func (b *Budget) Status(period domain.UsagePeriod) domain.BudgetStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.roll()
	w := b.month
	if period == domain.PeriodDay {
		w = b.day
	}
	st := domain.BudgetStatus{Limit: w.limit, Used: w.used, ResetsAt: w.end()}
	if w.limit > 0 {
		st.Remaining = w.remaining()
		st.Exhausted = st.Remaining == 0
	}
	return st
}

func (b *Budget) windows() [2]*window { return [2]*window{b.day, b.month} }

// roll resets every window whose period has ended. Callers hold mu.
func (b *Budget) roll() {
	now := b.now().UTC()
	for _, w := range b.windows() {
		if start := w.startAt(now); start.After(w.start) {
			w.start = start
			w.used = 0
		}
	}
}

func (b *Budget) key(w *window) string {
	layout := "2006-01"
	if w.period == domain.PeriodDay {
		layout = "2006-01-02"
	}
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, b.provider, w.period, w.start.Format(layout))
}

// window is the running count of one budget period.
type window struct {
	period domain.UsagePeriod
	limit  int64
	used   int64
	start  time.Time
}

func (w *window) startAt(t time.Time) time.Time {
	if w.period == domain.PeriodDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (w *window) end() time.Time {
	if w.period == domain.PeriodDay {
		return w.start.AddDate(0, 0, 1)
	}
	return w.start.AddDate(0, 1, 0)
}

// retention keeps a counter past its period so a late reader still sees it.
func (w *window) retention() time.Duration {
	if w.period == domain.PeriodDay {
		return 48 * time.Hour
	}
	return 62 * 24 * time.Hour
}

func (w *window) exhausted() bool { return w.limit > 0 && w.used >= w.limit }

// remaining is -1 for an unlimited window.
func (w *window) remaining() int64 {
	if w.limit <= 0 {
		return -1
	}
	return max(w.limit-w.used, 0)
}
