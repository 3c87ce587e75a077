package models

import "time"

// BotInstance представляет один торговый бот пользователя
//
// Запись принадлежит реестру ботов (CRUD-бэкенд); ядро только читает её.
// Пароль локального API хранится в виде AES-256-GCM шифротекста.
type BotInstance struct {
	InstanceID     string    `json:"instance_id" db:"instance_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Port           int       `json:"port" db:"port"`                           // порт локального API движка
	APIUsername    string    `json:"api_username" db:"api_username"`
	APIPasswordEnc string    `json:"-" db:"api_password_enc"`                  // шифротекст, наружу не отдаём
	PoolID         string    `json:"pool_id,omitempty" db:"-"`                 // из документа размещения
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// InstanceRuntime - эфемерное состояние инстанса внутри цикла мониторинга
// Не персистится: восстанавливается с нуля при рестарте
type InstanceRuntime struct {
	LastCheckedAt     time.Time `json:"last_checked_at"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	TradingPaused     bool      `json:"trading_paused"`
	PauseReason       string    `json:"pause_reason,omitempty"`
	OpenPositions     int       `json:"open_positions"`
}
