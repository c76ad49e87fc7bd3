package usecase

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"coach-agent/internal/domain"
)

const (
	goalTypeReduction  = "expense reduction"
	goalTypeInvestment = "investment"
	goalTypeSavings    = "savings"

	// defaultDurationMonths is applied to every suggestion; the text is not
	// scanned for a period.
	defaultDurationMonths = 1
)

// amountPattern matches an amount such as "300,000원", "30만원" or
// "1.5만 원". Group 1 is the number, group 2 the optional 만 marker.
var amountPattern = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(만)?\s*원`)

var (
	tenThousand = decimal.NewFromInt(10000)
	maxAmount   = decimal.NewFromInt(math.MaxInt64)
)

var (
	reductionKeywords  = []string{"줄이", "절약", "아끼", "cut", "save on", "reduce"}
	investmentKeywords = []string{"투자", "invest"}
)

// ExtractGoal pulls a goal suggestion out of free-form AI text. It returns
// nil when no amount is present or the amount does not fit an int64;
// unparseable text is never an error.
func ExtractGoal(text string) *domain.GoalSuggestion {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	if m[2] != "" {
		amount = amount.Mul(tenThousand)
	}
	if amount.IsNegative() || amount.GreaterThan(maxAmount) {
		return nil
	}

	return &domain.GoalSuggestion{
		GoalType:       classifyGoalType(text),
		TargetAmount:   amount.IntPart(),
		DurationMonths: defaultDurationMonths,
	}
}

func classifyGoalType(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, reductionKeywords):
		return goalTypeReduction
	case containsAny(lower, investmentKeywords):
		return goalTypeInvestment
	default:
		return goalTypeSavings
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
