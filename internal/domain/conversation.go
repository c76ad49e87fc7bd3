package domain

import (
	"fmt"
	"strings"
	"time"
)

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser Sender = "USER"
	SenderAI   Sender = "AI"
)

// Intent is the conversational purpose tag attached to a turn.
type Intent string

const (
	IntentGoalSetting           Intent = "GOAL_SETTING"
	IntentExpenseConsult        Intent = "EXPENSE_CONSULT"
	IntentFreeChat              Intent = "FREE_CHAT"
	IntentExpenseRecordFeedback Intent = "EXPENSE_RECORD_FEEDBACK"
)

// ParseIntent maps a wire value onto the canonical intent set. Matching is
// case-insensitive; superseded names are rejected.
func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToUpper(strings.TrimSpace(s))) {
	case IntentGoalSetting:
		return IntentGoalSetting, nil
	case IntentExpenseConsult:
		return IntentExpenseConsult, nil
	case IntentFreeChat:
		return IntentFreeChat, nil
	case IntentExpenseRecordFeedback:
		return IntentExpenseRecordFeedback, nil
	default:
		return "", fmt.Errorf("domain: unknown intent %q", s)
	}
}

// Turn is a single persisted conversation message. Turns are immutable once
// written; for one user they are ordered by CreatedAt, then ID.
type Turn struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Sender    Sender    `json:"sender"`
	Intent    Intent    `json:"intent"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Before reports whether t sorts strictly before o in the turn log.
func (t Turn) Before(o Turn) bool {
	if !t.CreatedAt.Equal(o.CreatedAt) {
		return t.CreatedAt.Before(o.CreatedAt)
	}
	return t.ID < o.ID
}

// ChatRole maps the turn's sender onto the completion backend's role names.
func (t Turn) ChatRole() string {
	if t.Sender == SenderAI {
		return RoleModel
	}
	return RoleUser
}

// GoalSuggestion is a goal heuristically extracted from AI output. It is
// transient; nothing persists it.
type GoalSuggestion struct {
	GoalType       string `json:"goalType"`
	TargetAmount   int64  `json:"targetAmount"`
	DurationMonths int    `json:"durationMonths"`
	Method         string `json:"method,omitempty"`
}

// ConversationContext is the per-request snapshot used to build a prompt.
// It is never cached across requests.
type ConversationContext struct {
	User          User
	ActiveGoals   []Goal
	TopSpending   []SpendingAggregate
	TotalSpending int64
	WindowStart   time.Time
}

// FeedbackContext carries what the expense-record feedback prompt needs.
// Tag is nil when the expense has no tag.
type FeedbackContext struct {
	User            User
	Expense         Expense
	MonthTotal      int64
	RemainingBudget int64
	Tag             *TagSummary
}
