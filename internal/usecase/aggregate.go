package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"coach-agent/internal/domain"
)

const (
	spendingWindowDays = 30
	topSpendingK       = 5
	maxActiveGoals     = 10
)

// Ledger is the read side of the financial data layer.
type Ledger interface {
	User(ctx context.Context, id int64) (domain.User, error)
	ActiveGoals(ctx context.Context, userID int64, limit int) ([]domain.Goal, error)
	SpendingSince(ctx context.Context, userID int64, since time.Time) ([]domain.SpendingAggregate, error)
	TotalSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	TagSummarySince(ctx context.Context, userID int64, tag string, since time.Time) (domain.TagSummary, error)
	Expense(ctx context.Context, userID, id int64) (domain.Expense, error)
}

// Aggregator assembles per-request read models from the ledger. It never
// caches; every call reflects the ledger as of that call.
type Aggregator struct {
	ledger Ledger
	now    func() time.Time
}

func NewAggregator(l Ledger) (*Aggregator, error) {
	if l == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	return &Aggregator{ledger: l, now: time.Now}, nil
}

// windowStart returns midnight of the day spendingWindowDays before now.
func (a *Aggregator) windowStart() time.Time {
	t := a.now().AddDate(0, 0, -spendingWindowDays)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Aggregate builds the conversation context for userID. A missing user
// surfaces as domain.ErrNotFound.
func (a *Aggregator) Aggregate(ctx context.Context, userID int64) (domain.ConversationContext, error) {
	user, err := a.ledger.User(ctx, userID)
	if err != nil {
		return domain.ConversationContext{}, fmt.Errorf("aggregate: load user: %w", err)
	}
	goals, err := a.ledger.ActiveGoals(ctx, userID, maxActiveGoals)
	if err != nil {
		return domain.ConversationContext{}, fmt.Errorf("aggregate: load goals: %w", err)
	}
	if len(goals) > maxActiveGoals {
		goals = goals[:maxActiveGoals]
	}

	since := a.windowStart()
	spending, err := a.ledger.SpendingSince(ctx, userID, since)
	if err != nil {
		return domain.ConversationContext{}, fmt.Errorf("aggregate: load spending: %w", err)
	}

	var total int64
	for _, s := range spending {
		total += s.TotalAmount
	}
	top := make([]domain.SpendingAggregate, len(spending))
	copy(top, spending)
	sort.SliceStable(top, func(i, j int) bool { return top[i].TotalAmount > top[j].TotalAmount })
	if len(top) > topSpendingK {
		top = top[:topSpendingK]
	}
	if goals == nil {
		goals = []domain.Goal{}
	}

	return domain.ConversationContext{
		User:          user,
		ActiveGoals:   goals,
		TopSpending:   top,
		TotalSpending: total,
		WindowStart:   since,
	}, nil
}

// FeedbackContext computes the month-to-date picture around a freshly
// recorded expense. The month is taken from the expense date.
func (a *Aggregator) FeedbackContext(ctx context.Context, userID int64, e domain.Expense) (domain.FeedbackContext, error) {
	user, err := a.ledger.User(ctx, userID)
	if err != nil {
		return domain.FeedbackContext{}, fmt.Errorf("feedback: load user: %w", err)
	}
	monthStart := domain.MonthStart(e.Date)
	total, err := a.ledger.TotalSince(ctx, userID, monthStart)
	if err != nil {
		return domain.FeedbackContext{}, fmt.Errorf("feedback: load month total: %w", err)
	}

	fc := domain.FeedbackContext{
		User:            user,
		Expense:         e,
		MonthTotal:      total,
		RemainingBudget: user.MonthlyBudget - total,
	}
	if tag := strings.TrimSpace(e.Tag); tag != "" {
		ts, err := a.ledger.TagSummarySince(ctx, userID, tag, monthStart)
		if err != nil {
			return domain.FeedbackContext{}, fmt.Errorf("feedback: load tag summary: %w", err)
		}
		fc.Tag = &ts
	}
	return fc, nil
}
