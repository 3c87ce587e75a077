package models

import "time"

// Виды действий контроля позиций
const (
	ActionTakeProfit        = "take_profit"         // полный выход по уровню (exit 100%)
	ActionPartialTakeProfit = "partial_take_profit" // частичный выход: требует оператора
	ActionTrailingStopExit  = "trailing_stop_exit"  // выход по трейлинг-стопу
)

// PendingAction - действие, поставленное в очередь оценкой политик
//
// Жизненный цикл: enqueue при оценке позиции -> dequeue и исполнение строго
// по одному после завершения всех батчей цикла -> запись в журнал.
// Неудачное исполнение логируется и НЕ повторяется в рамках цикла:
// устаревшее решение нельзя форсировать против изменившейся позиции.
type PendingAction struct {
	Kind        string  `json:"kind"`
	InstanceID  string  `json:"instance_id"`
	TradeID     int64   `json:"trade_id"`
	Pair        string  `json:"pair"`
	ExitPercent float64 `json:"exit_percent"`          // 100 = полный выход
	TierPercent float64 `json:"tier_percent,omitempty"` // порог сработавшего уровня
	Price       float64 `json:"price"`                  // цена на момент решения
	Reason      string  `json:"reason"`
}

// ActionLogEntry - запись журнала исполненных действий
//
// Журнал append-only и обрезается до последних N записей на инстанс;
// читается внешними инструментами отчётности.
type ActionLogEntry struct {
	ID         string    `json:"id" db:"id"`
	InstanceID string    `json:"instance_id" db:"instance_id"`
	Kind       string    `json:"kind" db:"kind"`
	TradeID    int64     `json:"trade_id" db:"trade_id"`
	Pair       string    `json:"pair" db:"pair"`
	Detail     string    `json:"detail" db:"detail"`
	Success    bool      `json:"success" db:"success"`
	ExecutedAt time.Time `json:"executed_at" db:"executed_at"`
}
