package usecase

import "coach-agent/internal/domain"

const defaultMission = "오늘 하루 지출을 꼼꼼히 기록해봐요 📝"

var missionsByCategory = map[domain.ExpenseCategory]string{
	domain.CategoryCafe:           "오늘은 커피 대신 물 한 잔 어때요? ☕➡️💧",
	domain.CategoryFood:           "오늘 한 끼는 집밥으로 해결해봐요 🍚",
	domain.CategoryShopping:       "장바구니에 담긴 물건, 하루만 더 고민해봐요 🛒",
	domain.CategoryTransportation: "가까운 거리는 걸어서 이동해봐요 🚶",
	domain.CategoryCulture:        "오늘은 무료 문화생활을 찾아봐요 🎨",
	domain.CategoryLiving:         "사용하지 않는 구독 서비스가 있는지 확인해봐요 🔍",
}

// MissionFor picks the mission of the day from the largest spending
// category. Ordering of top is trusted as given.
func MissionFor(top []domain.SpendingAggregate) string {
	if len(top) == 0 {
		return defaultMission
	}
	if m, ok := missionsByCategory[top[0].Category]; ok {
		return m
	}
	return defaultMission
}
