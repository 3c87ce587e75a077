package policy

import (
	"orchestrator/internal/models"
)

// TrailingDecision - результат одного шага трейлинг-стопа
type TrailingDecision struct {
	Exit      bool    // позицию пора закрывать
	StopPrice float64 // текущий уровень стопа (0, если не активирован)
	Changed   bool    // состояние позиции изменилось и требует сохранения
}

// ManageTrailingStop обновляет трейлинг-стоп позиции и решает, выходить ли
//
// High-water-mark строго монотонен: откат цены его не снижает. Стоп
// активируется, когда профит достигает порога активации, и с этого
// момента держится на фиксированном отступе от максимума:
//
//	stop = hwm * (1 - distance/100)
//
// Выход - при цене на стопе или ниже. Состояние мутируется на месте;
// вызывающий сохраняет его, если Changed.
func ManageTrailingStop(pos models.OpenPosition, settings models.TrailingStopSettings, state *models.PositionState) TrailingDecision {
	var d TrailingDecision

	if !settings.Enabled || pos.CurrentPrice <= 0 {
		return d
	}

	if pos.CurrentPrice > state.HighWaterMark {
		state.HighWaterMark = pos.CurrentPrice
		d.Changed = true
	}

	if !state.TrailingActive && pos.ProfitPercent >= settings.ActivationPercent {
		state.TrailingActive = true
		d.Changed = true
	}

	if !state.TrailingActive {
		return d
	}

	d.StopPrice = state.HighWaterMark * (1 - settings.DistancePercent/100)
	if pos.CurrentPrice <= d.StopPrice {
		d.Exit = true
	}
	return d
}

// TrailingStopAction строит действие выхода по трейлинг-стопу
func TrailingStopAction(instanceID string, pos models.OpenPosition, stopPrice float64) models.PendingAction {
	return models.PendingAction{
		Kind:        models.ActionTrailingStopExit,
		InstanceID:  instanceID,
		TradeID:     pos.TradeID,
		Pair:        pos.Pair,
		ExitPercent: 100,
		Price:       stopPrice,
		Reason:      "price fell to trailing stop",
	}
}
