package domain

import (
	"fmt"
	"strings"
	"time"
)

// AgeGroup is the user's coarse age bracket.
type AgeGroup string

const (
	AgeTeens    AgeGroup = "TEENS"
	AgeTwenties AgeGroup = "TWENTIES"
	AgeThirties AgeGroup = "THIRTIES"
	AgeForties  AgeGroup = "FORTIES"
)

// Label returns the display label used in prompts.
func (a AgeGroup) Label() string {
	switch a {
	case AgeTeens:
		return "10대"
	case AgeTwenties:
		return "20대"
	case AgeThirties:
		return "30대"
	case AgeForties:
		return "40대+"
	default:
		return "미입력"
	}
}

// Job is the user's occupation bucket.
type Job string

const (
	JobStudent      Job = "STUDENT"
	JobOfficeWorker Job = "OFFICE_WORKER"
	JobFreelancer   Job = "FREELANCER"
	JobEtc          Job = "ETC"
)

// Label returns the display label used in prompts.
func (j Job) Label() string {
	switch j {
	case JobStudent:
		return "학생"
	case JobOfficeWorker:
		return "직장인"
	case JobFreelancer:
		return "프리랜서"
	case JobEtc:
		return "기타"
	default:
		return "미입력"
	}
}

// User is the profile snapshot of a person being coached. A zero
// MonthlyBudget means no budget was set.
type User struct {
	ID            int64
	Nickname      string
	AgeGroup      AgeGroup
	Job           Job
	MonthlyBudget int64
}

// HasBudget reports whether a positive monthly budget is configured.
func (u User) HasBudget() bool {
	return u.MonthlyBudget > 0
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "ACTIVE"
	GoalCompleted GoalStatus = "COMPLETED"
	GoalCancelled GoalStatus = "CANCELLED"
)

// Goal is a savings or spending target owned by a user.
type Goal struct {
	ID            int64
	UserID        int64
	GoalType      string
	TargetAmount  int64
	CurrentAmount int64
	StartDate     time.Time
	EndDate       time.Time
	Method        string
	Status        GoalStatus
}

// Progress returns the percent complete, truncated. ok is false when the
// target is not positive and progress is undefined.
func (g Goal) Progress() (percent int64, ok bool) {
	if g.TargetAmount <= 0 {
		return 0, false
	}
	return g.CurrentAmount * 100 / g.TargetAmount, true
}

// ExpenseCategory classifies an expense record.
type ExpenseCategory string

const (
	CategoryFood           ExpenseCategory = "FOOD"
	CategoryCafe           ExpenseCategory = "CAFE"
	CategoryShopping       ExpenseCategory = "SHOPPING"
	CategoryTransportation ExpenseCategory = "TRANSPORTATION"
	CategoryLiving         ExpenseCategory = "LIVING"
	CategoryCulture        ExpenseCategory = "CULTURE"
	CategoryEtc            ExpenseCategory = "ETC"
)

var categoryLabels = map[ExpenseCategory]string{
	CategoryFood:           "음식",
	CategoryCafe:           "카페",
	CategoryShopping:       "쇼핑",
	CategoryTransportation: "교통",
	CategoryLiving:         "주거",
	CategoryCulture:        "문화생활",
	CategoryEtc:            "기타",
}

// Label returns the display label used in prompts.
func (c ExpenseCategory) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory accepts either the enum name or its display label.
func ParseCategory(s string) (ExpenseCategory, error) {
	s = strings.TrimSpace(s)
	for c, label := range categoryLabels {
		if strings.EqualFold(s, string(c)) || s == label {
			return c, nil
		}
	}
	return "", fmt.Errorf("domain: unknown expense category %q", s)
}

// PaymentMethod is how an expense was paid.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "CARD"
	PaymentCash         PaymentMethod = "CASH"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Expense is a single recorded spending event. Amounts are whole currency
// units.
type Expense struct {
	ID            int64
	UserID        int64
	Name          string
	Amount        int64
	Category      ExpenseCategory
	Tag           string
	Memo          string
	PaymentMethod PaymentMethod
	Date          time.Time
}

// SpendingAggregate is the per-category sum and count over a window.
type SpendingAggregate struct {
	Category    ExpenseCategory
	TotalAmount int64
	Count       int64
}

// TagSummary is the occurrence count and cumulative amount of one tag.
type TagSummary struct {
	Tag         string
	Count       int64
	TotalAmount int64
}

// MonthStart returns midnight on the first day of t's month, in t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
