package policy

import (
	"fmt"
	"time"

	"orchestrator/internal/models"
)

// RiskInputs - наблюдения, на которых принимается решение о торговле
//
// Флаги *Known отражают best-effort природу опроса движка: если данных
// нет, соответствующая проверка пропускается, а не трактуется как провал.
type RiskInputs struct {
	Now time.Time

	PortfolioValue float64
	PortfolioKnown bool

	RealizedPnL float64 // реализованный PnL за день, отрицательный = убыток
	PnLKnown    bool

	MarketCrash bool // сигнал детектора обвала
}

// IsTradingAllowed решает, разрешена ли инстансу торговля
//
// Проверки применяются по порядку, первая провалившаяся даёт причину:
//  1. торговое окно расписания
//  2. дневной лимит убытка
//  3. аварийная остановка по обвалу рынка
func IsTradingAllowed(settings *models.FeatureSettings, in RiskInputs) (bool, string) {
	if settings.Schedule.Enabled && !withinSchedule(settings.Schedule, in.Now) {
		return false, fmt.Sprintf("outside trading window %02d:00-%02d:00 UTC",
			settings.Schedule.StartHour, settings.Schedule.EndHour)
	}

	if settings.Risk.DailyLossLimit > 0 && in.PortfolioKnown && in.PnLKnown {
		limit := settings.Risk.DailyLossLimit * in.PortfolioValue
		if in.RealizedPnL < 0 && -in.RealizedPnL > limit {
			return false, fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -in.RealizedPnL, limit)
		}
	}

	if settings.Risk.EmergencyStopEnabled && in.MarketCrash {
		return false, "market crash detected, emergency stop"
	}

	return true, ""
}

// withinSchedule проверяет попадание в торговое окно (часы UTC)
//
// StartHour == EndHour - круглосуточно; StartHour > EndHour - окно
// через полночь (22-06 = вечер и ночь)
func withinSchedule(s models.ScheduleSettings, now time.Time) bool {
	hour := now.UTC().Hour()

	switch {
	case s.StartHour == s.EndHour:
		return true
	case s.StartHour < s.EndHour:
		return hour >= s.StartHour && hour < s.EndHour
	default:
		return hour >= s.StartHour || hour < s.EndHour
	}
}
