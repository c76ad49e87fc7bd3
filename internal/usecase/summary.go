package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"coach-agent/internal/domain"
)

// HomeSummary is the month-to-date budget picture shown on the home screen.
type HomeSummary struct {
	UserID          int64     `json:"userId"`
	Nickname        string    `json:"nickname"`
	MonthStart      time.Time `json:"monthStart"`
	MonthlyBudget   int64     `json:"monthlyBudget"`
	TotalSpent      int64     `json:"totalSpent"`
	RemainingBudget int64     `json:"remainingBudget"`
	// ProgressRate is spent/budget rounded to four places, 0 without a budget.
	ProgressRate float64 `json:"progressRate"`
}

// Summary reports the user's spending since the start of the current month.
func (a *Aggregator) Summary(ctx context.Context, userID int64) (HomeSummary, error) {
	user, err := a.ledger.User(ctx, userID)
	if err != nil {
		return HomeSummary{}, err
	}
	monthStart := domain.MonthStart(a.now())
	total, err := a.ledger.TotalSince(ctx, userID, monthStart)
	if err != nil {
		return HomeSummary{}, err
	}
	return summarize(user, total, monthStart), nil
}

func summarize(user domain.User, total int64, monthStart time.Time) HomeSummary {
	s := HomeSummary{
		UserID:          user.ID,
		Nickname:        user.Nickname,
		MonthStart:      monthStart,
		MonthlyBudget:   user.MonthlyBudget,
		TotalSpent:      total,
		RemainingBudget: user.MonthlyBudget - total,
	}
	if user.HasBudget() {
		s.ProgressRate = decimal.NewFromInt(total).
			DivRound(decimal.NewFromInt(user.MonthlyBudget), 4).
			InexactFloat64()
	}
	return s
}
