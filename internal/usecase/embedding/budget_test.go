package embedding

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// --- Mocks ---

type addCall struct {
	key    string
	tokens int64
	ttl    time.Duration
}

type mockCounters struct {
	values  map[string]int64
	adds    []addCall
	loadErr error
	addErr  error
}

func (m *mockCounters) Add(_ context.Context, key string, tokens int64, ttl time.Duration) error {
	m.adds = append(m.adds, addCall{key: key, tokens: tokens, ttl: ttl})
	return m.addErr
}

func (m *mockCounters) Load(_ context.Context, key string) (int64, error) {
	if m.loadErr != nil {
		return 0, m.loadErr
	}
	return m.values[key], nil
}

// budgetAt returns a budget whose clock reads *at.
func budgetAt(limits Limits, at *time.Time) *Budget {
	b := NewBudget("openai", limits, nil)
	b.now = func() time.Time { return *at }
	b.day.start, b.month.start = time.Time{}, time.Time{}
	b.roll()
	return b
}

// --- Tests ---

func TestBudget_RejectsWhenDailyLimitReached(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 100, Reject: true}, &now)

	b.Record(99)
	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("below limit: %v", err)
	}
	b.Record(1)
	err := b.Check(context.Background())
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "day limit of 100 tokens reached") {
		t.Errorf("message = %q", err)
	}
}

func TestBudget_MonthlyLimitAlsoBinds(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 1000, Monthly: 50, Reject: true}, &now)

	b.Record(60)
	if !errors.Is(b.Check(context.Background()), domain.ErrEmbeddingQuotaExceeded) {
		t.Fatal("monthly limit must reject")
	}
}

func TestBudget_WarnModeAllows(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 10}, &now)

	b.Record(500)
	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("warn mode must allow, got %v", err)
	}
	if !b.Status(domain.PeriodDay).Exhausted {
		t.Error("status must still report exhaustion")
	}
}

func TestBudget_ResetsAtPeriodBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 100, Monthly: 1000, Reject: true}, &now)
	b.Record(100)

	now = now.Add(2 * time.Hour) // April 1st
	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("new day and month must reset: %v", err)
	}
	if st := b.Status(domain.PeriodMonth); st.Used != 0 {
		t.Errorf("month used = %d after rollover", st.Used)
	}
}

func TestBudget_Status(t *testing.T) {
	now := time.Date(2026, 12, 31, 8, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 100, Monthly: 1000}, &now)
	b.Record(30)

	day := b.Status(domain.PeriodDay)
	if day.Limit != 100 || day.Used != 30 || day.Remaining != 70 || day.Exhausted {
		t.Errorf("day = %+v", day)
	}
	if want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC); !day.ResetsAt.Equal(want) {
		t.Errorf("day resets at %v", day.ResetsAt)
	}

	month := b.Status(domain.PeriodMonth)
	if month.Remaining != 970 || !month.ResetsAt.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("month = %+v", month)
	}
	if total := b.Status(domain.PeriodTotal); total != month {
		t.Errorf("total = %+v, want the monthly window", total)
	}
}

func TestBudget_StatusUnlimited(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{}, &now)
	b.Record(42)

	st := b.Status(domain.PeriodDay)
	if st.Limit != 0 || st.Remaining != 0 || st.Exhausted || st.Used != 42 {
		t.Errorf("unlimited = %+v", st)
	}
}

func TestBudget_WithStoreLoadsCurrentPeriods(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 100, Reject: true}, &now)
	store := &mockCounters{values: map[string]int64{
		"docrag:budget:openai:day:2026-03-14": 100,
		"docrag:budget:openai:month:2026-03":  400,
		"docrag:budget:openai:day:2026-03-13": 999,
	}}
	b.WithStore(context.Background(), store)

	if got := b.Status(domain.PeriodMonth).Used; got != 400 {
		t.Errorf("month used = %d", got)
	}
	if !errors.Is(b.Check(context.Background()), domain.ErrEmbeddingQuotaExceeded) {
		t.Error("loaded daily usage must count against the limit")
	}
}

func TestBudget_WithStoreLoadErrorKeepsZero(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 100}, &now)
	b.WithStore(context.Background(), &mockCounters{loadErr: errors.New("down")})

	if got := b.Status(domain.PeriodDay).Used; got != 0 {
		t.Errorf("used = %d", got)
	}
}

func TestBudget_RecordPersistsWithRetention(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 100}, &now)
	store := &mockCounters{}
	b.WithStore(context.Background(), store)

	b.Record(25)
	b.Record(0) // ignored

	want := []addCall{
		{key: "docrag:budget:openai:day:2026-03-14", tokens: 25, ttl: 48 * time.Hour},
		{key: "docrag:budget:openai:month:2026-03", tokens: 25, ttl: 62 * 24 * time.Hour},
	}
	if len(store.adds) != len(want) {
		t.Fatalf("adds = %+v", store.adds)
	}
	for i := range want {
		if store.adds[i] != want[i] {
			t.Errorf("add %d = %+v, want %+v", i, store.adds[i], want[i])
		}
	}
}

func TestBudget_PersistErrorKeepsMemoryCount(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := budgetAt(Limits{Daily: 100}, &now)
	b.WithStore(context.Background(), &mockCounters{addErr: errors.New("down")})

	b.Record(10)
	if got := b.Status(domain.PeriodDay).Used; got != 10 {
		t.Errorf("used = %d", got)
	}
}
