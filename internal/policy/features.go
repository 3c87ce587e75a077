package policy

import (
	"orchestrator/internal/models"
)

// CheckTakeProfitLevels выбирает сработавший уровень лестницы take-profit
//
// Из уровней, чей порог достигнут текущим профитом и которые ещё не
// срабатывали для этой позиции, выбирается самый высокий: при резком
// движении цены через несколько уровней исполняется один, верхний.
// Возвращает nil, если исполнять нечего.
func CheckTakeProfitLevels(pos models.OpenPosition, tiers []models.TakeProfitTier, state *models.PositionState) *models.TakeProfitTier {
	var best *models.TakeProfitTier
	for i := range tiers {
		tier := &tiers[i]
		if pos.ProfitPercent < tier.ProfitPercent {
			continue
		}
		if state != nil && state.TierTriggered(tier.ProfitPercent) {
			continue
		}
		if best == nil || tier.ProfitPercent > best.ProfitPercent {
			best = tier
		}
	}
	return best
}

// TakeProfitAction строит действие по сработавшему уровню
//
// ExitPercent = 100 - полный выход через движок; меньшие значения -
// частичный выход, который движок не поддерживает: действие остаётся
// отдельным видом и доводится до оператора, а не молча игнорируется.
func TakeProfitAction(instanceID string, pos models.OpenPosition, tier models.TakeProfitTier) models.PendingAction {
	kind := models.ActionPartialTakeProfit
	if tier.ExitPercent >= 100 {
		kind = models.ActionTakeProfit
	}
	return models.PendingAction{
		Kind:        kind,
		InstanceID:  instanceID,
		TradeID:     pos.TradeID,
		Pair:        pos.Pair,
		ExitPercent: tier.ExitPercent,
		TierPercent: tier.ProfitPercent,
		Price:       pos.CurrentPrice,
		Reason:      "take-profit tier reached",
	}
}
