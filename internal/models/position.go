package models

import "time"

// OpenPosition - открытая позиция торгового движка
//
// Владелец данных - движок инстанса; ядро держит read-through представление
// плюс производные поля, которые вычисляет само (ProfitPercent)
type OpenPosition struct {
	Pair         string    `json:"pair"`
	TradeID      int64     `json:"trade_id"`
	EntryPrice   float64   `json:"entry_price"`
	Amount       float64   `json:"amount"`
	OpenedAt     time.Time `json:"opened_at"`
	CurrentPrice float64   `json:"current_price,omitempty"` // из кэша цен или тикера

	// Производное: (current - entry) / entry * 100
	ProfitPercent float64 `json:"profit_percent"`
}

// PositionState - долговечное состояние контроля позиции
//
// Переживает рестарт процесса: high-water-mark трейлинг-стопа и уже
// сработавшие уровни take-profit нельзя терять, иначе выходы будут
// срабатывать повторно каждый цикл.
type PositionState struct {
	InstanceID     string    `json:"instance_id" db:"instance_id"`
	TradeID        int64     `json:"trade_id" db:"trade_id"`
	Pair           string    `json:"pair" db:"pair"`
	HighWaterMark  float64   `json:"high_water_mark" db:"high_water_mark"`
	TrailingActive bool      `json:"trailing_active" db:"trailing_active"`
	TriggeredTiers []float64 `json:"triggered_tiers" db:"triggered_tiers"` // profit_percent сработавших уровней
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TierTriggered проверяет, срабатывал ли уже уровень с данным порогом
func (ps *PositionState) TierTriggered(profitPercent float64) bool {
	for _, t := range ps.TriggeredTiers {
		if t == profitPercent {
			return true
		}
	}
	return false
}
