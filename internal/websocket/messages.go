package websocket

import (
	"time"

	"orchestrator/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeActionExecuted - контур исполнил действие (или не смог)
	MessageTypeActionExecuted MessageType = "actionExecuted"

	// MessageTypeTradingPaused - инстансу запрещена торговля риск-проверкой
	MessageTypeTradingPaused MessageType = "tradingPaused"

	// MessageTypeCycleSummary - итог одного цикла мониторинга
	MessageTypeCycleSummary MessageType = "cycleSummary"

	// MessageTypeReconcileReport - итог сверки размещения
	MessageTypeReconcileReport MessageType = "reconcileReport"
)

// BaseMessage - базовая структура всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// ActionExecutedMessage - исполненное (или проваленное) действие контура
//
// Частичный take-profit доводится до оператора этим же сообщением:
// движок такой выход не поддерживает, и решение остаётся за человеком.
type ActionExecutedMessage struct {
	BaseMessage
	Data *ActionExecutedData `json:"data"`
}

// ActionExecutedData - данные исполненного действия
type ActionExecutedData struct {
	InstanceID  string  `json:"instance_id"`
	Kind        string  `json:"kind"`
	TradeID     int64   `json:"trade_id"`
	Pair        string  `json:"pair"`
	ExitPercent float64 `json:"exit_percent"`
	Price       float64 `json:"price"`
	Reason      string  `json:"reason"`
	Success     bool    `json:"success"`
	Error       string  `json:"error,omitempty"`
}

// TradingPausedMessage - инстанс не прошёл риск-проверку
type TradingPausedMessage struct {
	BaseMessage
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason"`
}

// CycleSummaryMessage - итог цикла мониторинга
type CycleSummaryMessage struct {
	BaseMessage
	Data *CycleSummaryData `json:"data"`
}

// CycleSummaryData - агрегаты одного цикла
type CycleSummaryData struct {
	Instances      int           `json:"instances"`
	Errors         int           `json:"errors"`
	ActionsQueued  int           `json:"actions_queued"`
	ActionsDone    int           `json:"actions_done"`
	Duration       time.Duration `json:"duration_ns"`
	DurationMillis int64         `json:"duration_ms"`
}

// ReconcileReportMessage - итог сверки размещения
// Data - отчёт сверки как есть (структура internal/placement)
type ReconcileReportMessage struct {
	BaseMessage
	Data interface{} `json:"data"`
}

// NewActionExecutedMessage создает сообщение об исполненном действии
func NewActionExecutedMessage(action models.PendingAction, success bool, execErr error) *ActionExecutedMessage {
	data := &ActionExecutedData{
		InstanceID:  action.InstanceID,
		Kind:        action.Kind,
		TradeID:     action.TradeID,
		Pair:        action.Pair,
		ExitPercent: action.ExitPercent,
		Price:       action.Price,
		Reason:      action.Reason,
		Success:     success,
	}
	if execErr != nil {
		data.Error = execErr.Error()
	}
	return &ActionExecutedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeActionExecuted, Timestamp: time.Now()},
		Data:        data,
	}
}

// NewTradingPausedMessage создает сообщение о запрете торговли
func NewTradingPausedMessage(instanceID, reason string) *TradingPausedMessage {
	return &TradingPausedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTradingPaused, Timestamp: time.Now()},
		InstanceID:  instanceID,
		Reason:      reason,
	}
}

// NewCycleSummaryMessage создает сообщение с итогом цикла
func NewCycleSummaryMessage(data *CycleSummaryData) *CycleSummaryMessage {
	data.DurationMillis = data.Duration.Milliseconds()
	return &CycleSummaryMessage{
		BaseMessage: BaseMessage{Type: MessageTypeCycleSummary, Timestamp: time.Now()},
		Data:        data,
	}
}

// NewReconcileReportMessage создает сообщение с отчётом сверки
func NewReconcileReportMessage(report interface{}) *ReconcileReportMessage {
	return &ReconcileReportMessage{
		BaseMessage: BaseMessage{Type: MessageTypeReconcileReport, Timestamp: time.Now()},
		Data:        report,
	}
}
