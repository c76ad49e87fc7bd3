package usecase

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"coach-agent/internal/domain"
)

const personaLine = "당신은 Finz의 친근한 AI 재무 코치입니다."

// BuildPrompt renders the system prompt for intent. It is a pure function of
// its inputs. Intents without a dedicated template use the free-chat one.
func BuildPrompt(intent domain.Intent, cc domain.ConversationContext) string {
	switch intent {
	case domain.IntentGoalSetting:
		return buildGoalSettingPrompt(cc)
	case domain.IntentExpenseConsult:
		return buildExpenseConsultPrompt(cc)
	default:
		return buildFreeChatPrompt(cc)
	}
}

func formatWon(n int64) string {
	return humanize.Comma(n) + "원"
}

func budgetLine(u domain.User) string {
	if !u.HasBudget() {
		return "- 월 목표 예산: 미설정"
	}
	return "- 월 목표 예산: " + formatWon(u.MonthlyBudget)
}

func profileLines(u domain.User, withBudget bool) []string {
	lines := []string{
		"## 사용자 정보",
		"- 이름: " + u.Nickname,
		"- 연령대: " + u.AgeGroup.Label(),
		"- 직업: " + u.Job.Label(),
	}
	if withBudget {
		lines = append(lines, budgetLine(u))
	}
	return append(lines, "")
}

func goalLines(goals []domain.Goal) []string {
	lines := make([]string, 0, len(goals))
	for _, g := range goals {
		progress := "진행률 미정"
		if pct, ok := g.Progress(); ok {
			progress = fmt.Sprintf("현재 %d%% 달성", pct)
		}
		lines = append(lines, fmt.Sprintf("- %s: %s 목표 (%s)", g.GoalType, formatWon(g.TargetAmount), progress))
	}
	return lines
}

func buildGoalSettingPrompt(cc domain.ConversationContext) string {
	lines := []string{
		personaLine,
		"사용자가 '목표 설정' 버튼을 눌러서 대화를 시작했습니다.",
		"",
	}
	lines = append(lines, profileLines(cc.User, true)...)

	lines = append(lines, "## 현재 진행 중인 목표")
	if len(cc.ActiveGoals) == 0 {
		lines = append(lines, "- 아직 설정된 목표가 없습니다.")
	} else {
		lines = append(lines, goalLines(cc.ActiveGoals)...)
	}
	lines = append(lines, "")

	if len(cc.TopSpending) > 0 {
		lines = append(lines, fmt.Sprintf("## 최근 %d일 지출 패턴 (상위 %d개)", spendingWindowDays, topSpendingK))
		for _, s := range cc.TopSpending {
			lines = append(lines, fmt.Sprintf("- %s: %s (%d회 사용)", s.Category.Label(), formatWon(s.TotalAmount), s.Count))
		}
		lines = append(lines, "")
	}

	lines = append(lines,
		"## 당신의 역할과 말투",
		"1. 친근하고 격려하는 존댓말 사용",
		"2. 이모지를 적절히 활용 (🎯, 💰, 😊, 🔥, 💪 등)",
		"3. 사용자의 연령대와 직업을 고려한 맞춤형 조언",
		"4. 지출 패턴을 분석해 구체적인 목표 제안",
		"5. 목표는 현실적이고 달성 가능한 수준으로",
		"",
		"## 대화 진행 방법",
		"1. 먼저 친근하게 인사하며 목표 설정 시작",
		"2. 사용자의 지출 패턴을 언급하며 목표 후보 제시",
		"3. 사용자가 원하는 목표 유형 파악",
		"4. 구체적인 금액과 기간 질문",
		"5. 실행 가능한 방법 함께 고민",
		"6. 최종적으로 명확한 목표 제안",
		"",
		"## 첫 메시지 작성 가이드",
		fmt.Sprintf("- %s님의 이름을 부르며 친근하게 시작하세요", cc.User.Nickname),
	)
	if len(cc.TopSpending) > 0 {
		top := cc.TopSpending[0]
		lines = append(lines, fmt.Sprintf("- 최근 '%s' 지출이 %s으로 가장 많다는 점을 자연스럽게 언급하세요",
			top.Category.Label(), formatWon(top.TotalAmount)))
	}
	return strings.Join(lines, "\n") + "\n"
}

// budgetStatus reports the spend-to-budget ratio. ok is false when no budget
// is set.
func budgetStatus(cc domain.ConversationContext) (ratio int64, over bool, ok bool) {
	if !cc.User.HasBudget() {
		return 0, false, false
	}
	return cc.TotalSpending * 100 / cc.User.MonthlyBudget, cc.TotalSpending > cc.User.MonthlyBudget, true
}

func buildExpenseConsultPrompt(cc domain.ConversationContext) string {
	lines := []string{
		personaLine,
		"사용자가 '지출 상담' 버튼을 눌러서 대화를 시작했습니다.",
		"",
	}
	lines = append(lines, profileLines(cc.User, true)...)

	ratio, over, hasBudget := budgetStatus(cc)
	if len(cc.TopSpending) == 0 {
		lines = append(lines,
			fmt.Sprintf("## 최근 %d일 지출 패턴", spendingWindowDays),
			"- 아직 지출 내역이 없습니다.",
			"",
		)
	} else {
		lines = append(lines,
			fmt.Sprintf("## 최근 %d일 지출 패턴 (중요!)", spendingWindowDays),
			"- 총 지출액: "+formatWon(cc.TotalSpending),
		)
		switch {
		case !hasBudget:
			lines = append(lines, "- 예산 대비: 산정 불가 (월 예산 미설정)")
		case over:
			lines = append(lines,
				fmt.Sprintf("- 예산 대비: %d%%", ratio),
				fmt.Sprintf("- 예산 상태: ⚠️ 예산 초과 (%s 초과)", formatWon(cc.TotalSpending-cc.User.MonthlyBudget)),
			)
		default:
			lines = append(lines,
				fmt.Sprintf("- 예산 대비: %d%%", ratio),
				fmt.Sprintf("- 예산 상태: ✅ 예산 이내 (%s 남음)", formatWon(cc.User.MonthlyBudget-cc.TotalSpending)),
			)
		}
		lines = append(lines, "")

		if cc.TotalSpending > 0 {
			lines = append(lines, fmt.Sprintf("### 카테고리별 지출 (상위 %d개)", topSpendingK))
			for i, s := range cc.TopSpending {
				lines = append(lines, fmt.Sprintf("%d. %s: %s (%d%%, %d회)",
					i+1, s.Category.Label(), formatWon(s.TotalAmount), s.TotalAmount*100/cc.TotalSpending, s.Count))
			}
			lines = append(lines, "")
		}
	}

	if len(cc.ActiveGoals) > 0 {
		lines = append(lines, "## 현재 진행 중인 목표")
		lines = append(lines, goalLines(cc.ActiveGoals)...)
		lines = append(lines, "")
	}

	lines = append(lines,
		"## 당신의 역할과 말투",
		"1. 친근하고 격려하는 존댓말 사용",
		"2. 이모지를 적절히 활용 (💰, 📊, 💡, 🎯, 👍 등)",
		"3. 지출 패턴을 분석해 구체적인 절약 방법 제안",
		"4. 비난하지 말고, 개선점을 긍정적으로 제시",
		"5. 실천 가능한 작은 변화 제안",
		"",
		"## 대화 진행 방법",
		"1. 친근하게 인사하며 지출 패턴 언급",
		"2. 가장 많이 지출한 카테고리 지적",
		"3. 예산 대비 사용률 피드백",
		"4. 구체적인 절약 방법 제안",
		"5. 사용자의 의견 물어보기",
		"",
		"## 첫 메시지 작성 가이드",
		fmt.Sprintf("- %s님의 이름을 부르며 시작하세요", cc.User.Nickname),
	)
	if len(cc.TopSpending) > 0 {
		lines = append(lines, fmt.Sprintf("- 최근 '%s'에 가장 많이 지출했다는 점을 자연스럽게 언급하세요", cc.TopSpending[0].Category.Label()))
		switch {
		case !hasBudget:
			lines = append(lines, "- 월 예산을 설정하면 더 정확한 코칭이 가능하다고 안내하세요")
		case over:
			lines = append(lines, "- 예산을 초과했다는 점을 부드럽게 지적하고 절약 방법을 제안하세요")
		default:
			lines = append(lines, "- 예산 안에서 잘 관리하고 있다고 칭찬하되, 더 절약할 수 있는 팁을 제공하세요")
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func buildFreeChatPrompt(cc domain.ConversationContext) string {
	lines := []string{personaLine, ""}
	lines = append(lines, profileLines(cc.User, false)...)
	lines = append(lines,
		"## 역할",
		"친근하고 격려하는 톤으로 사용자의 재무 관련 질문에 답변하세요.",
		"이모지를 적절히 사용하고, 구체적이고 실행 가능한 조언을 제공하세요.",
	)
	return strings.Join(lines, "\n") + "\n"
}

// BuildFeedbackPrompt renders the short-feedback prompt for a newly recorded
// expense.
func BuildFeedbackPrompt(fc domain.FeedbackContext) string {
	e := fc.Expense
	lines := []string{
		"당신은 Finz의 긍정적이고 격려하는 AI 재무 코치입니다.",
		"사용자가 방금 앱에 지출 내역을 기록했으며, 당신은 이 지출에 대해 즉각적이고 짧은 피드백을 제공해야 합니다.",
		"",
		"## 1. 사용자 정보",
		"- 이름: " + fc.User.Nickname,
		budgetLine(fc.User),
		"",
		"## 2. 방금 기록된 지출 (분석 대상)",
		"- 카테고리: " + e.Category.Label(),
		"- 금액: " + formatWon(e.Amount),
		"- 내용: " + e.Name,
	}
	if tag := strings.TrimSpace(e.Tag); tag != "" {
		lines = append(lines, "- 태그: #"+tag)
	}
	lines = append(lines,
		"",
		"## 3. 현재 재무 상태 (중요 맥락)",
		"- 이번 달 총 지출액: "+formatWon(fc.MonthTotal),
		"- 남은 예산: "+formatWon(fc.RemainingBudget),
		"",
		"## 4. 태그 심층 분석",
	)
	tagCount := int64(1)
	if fc.Tag != nil {
		tagCount = fc.Tag.Count
		lines = append(lines,
			fmt.Sprintf("- 사용자는 '#%s' 태그를 이번 달에 %d회 사용했습니다.", fc.Tag.Tag, fc.Tag.Count),
			fmt.Sprintf("- 이 태그로만 총 %s을 지출했습니다.", formatWon(fc.Tag.TotalAmount)),
		)
	} else {
		lines = append(lines, "- 이 지출에는 태그가 없습니다.")
	}
	lines = append(lines,
		"",
		"## 5. 당신의 임무",
		"두 부분으로 구성된 매우 짧은 피드백을 생성하세요.",
		"1. (코멘트) 방금 기록된 지출(2번)에 대해 1~2문장으로 긍정적이거나 중립적인 코멘트를 하세요.",
		"2. (브리핑) 현재 재무 상태(3번)와 태그 분석(4번)을 결합하여 남은 예산과 태그 사용 현황을 간결하게 브리핑하세요.",
		"",
		"## 6. 말투 및 제약사항",
		"- 절대 비난 금지. (나쁜 예: '또 돈을 쓰셨네요.')",
		"- 긍정적이고 격려하는 톤, 친근한 존댓말, 이모지 1~2개 사용.",
		"- 반드시 한두 문장으로 매우 짧게 요약하세요.",
		fmt.Sprintf("- UI 예시 (태그 O): '기분 전환 간식이군요! 🧁 이번 달 '#스트레스' 태그로 %d번째 지출이네요. 남은 예산은 %s입니다! 🔥'",
			tagCount, formatWon(fc.RemainingBudget)),
		fmt.Sprintf("- UI 예시 (태그 X): '기록 완료! 꼼꼼하시네요 👍. 남은 예산은 %s입니다!'", formatWon(fc.RemainingBudget)),
		"",
		"위 모든 정보를 바탕으로, 사용자의 방금 지출(2번)에 대한 코멘트와 브리핑을 포함한 피드백을 작성하세요:",
	)
	return strings.Join(lines, "\n") + "\n"
}
