package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"orchestrator/internal/models"
	"orchestrator/internal/policy"
	"orchestrator/internal/repository"
	"orchestrator/internal/websocket"
	"orchestrator/pkg/utils"
)

// RunCycle выполняет один цикл мониторинга
//
// Инстансы опрашиваются батчами: внутри батча конкурентно, батчи строго
// последовательно, чтобы не выстрелить сотней запросов одновременно.
// Очередь действий разбирается после завершения всех батчей.
func (m *Monitor) RunCycle(ctx context.Context) {
	start := time.Now()

	instances, err := m.registry.List()
	if err != nil {
		m.logger.Error("list instances", utils.Err(err))
		return
	}

	var errCount, queued int64

	for batchStart := 0; batchStart < len(instances); batchStart += m.cfg.BatchSize {
		batchEnd := batchStart + m.cfg.BatchSize
		if batchEnd > len(instances) {
			batchEnd = len(instances)
		}

		var wg sync.WaitGroup
		for _, inst := range instances[batchStart:batchEnd] {
			wg.Add(1)
			go func(inst *models.BotInstance) {
				defer wg.Done()
				n, err := m.processInstance(ctx, inst)
				atomic.AddInt64(&queued, int64(n))
				if err != nil {
					atomic.AddInt64(&errCount, 1)
				}
			}(inst)
		}
		wg.Wait()
	}

	done := m.drainQueue(ctx)

	elapsed := time.Since(start)
	CycleDuration.Observe(elapsed.Seconds())
	InstancesProcessed.Add(float64(len(instances)))

	m.mu.Lock()
	m.lastRun = time.Now()
	m.cycles++
	m.mu.Unlock()

	m.prices.Evict()

	m.logger.Info("cycle complete",
		utils.Int("instances", len(instances)),
		utils.Int64("errors", errCount),
		utils.Int64("actions_queued", queued),
		utils.Int("actions_done", done),
		utils.Latency(float64(elapsed.Milliseconds())))

	if m.hub != nil {
		m.hub.BroadcastCycleSummary(&websocket.CycleSummaryData{
			Instances:     len(instances),
			Errors:        int(errCount),
			ActionsQueued: int(queued),
			ActionsDone:   done,
			Duration:      elapsed,
		})
	}
}

// processInstance обрабатывает один инстанс в пределах цикла
//
// Любой сбой изолирован границей инстанса: ошибка учитывается в
// счётчике и не влияет на соседей по батчу. Возвращает количество
// поставленных в очередь действий.
func (m *Monitor) processInstance(ctx context.Context, inst *models.BotInstance) (int, error) {
	rt := m.runtime(inst.InstanceID)
	log := m.logger.WithInstance(inst.InstanceID)

	// Политика перечитывается каждый цикл; битый файл - пропуск цикла
	settings, err := m.settings.Load(inst.InstanceID)
	if err != nil {
		InstanceErrors.WithLabelValues("settings").Inc()
		log.Error("load feature settings, skipping instance", utils.Err(err))
		return 0, err
	}

	client, err := m.client(inst)
	if err != nil {
		InstanceErrors.WithLabelValues("settings").Inc()
		log.Error("build engine client", utils.Err(err))
		return 0, err
	}

	positions, err := client.Status(ctx)
	if err != nil {
		InstanceErrors.WithLabelValues("status").Inc()
		m.recordInstanceError(rt, log, err)
		return 0, err
	}
	m.recordInstanceSuccess(rt, len(positions))

	// Наблюдения цен позиций пополняют общий кэш
	for _, pos := range positions {
		if pos.CurrentPrice > 0 {
			m.prices.Set(pos.Pair, pos.CurrentPrice)
		}
	}

	allowed, reason := m.checkTradingAllowed(ctx, client, settings)
	if !allowed {
		m.markPaused(rt, inst.InstanceID, reason, log)
		return 0, nil
	}
	m.markResumed(rt)

	queued := 0
	for _, pos := range positions {
		n, err := m.evaluatePosition(inst.InstanceID, pos, settings, log)
		if err != nil {
			InstanceErrors.WithLabelValues("policy").Inc()
			log.Error("evaluate position", utils.TradeID(pos.TradeID), utils.Err(err))
			continue
		}
		queued += n
	}

	// Состояние закрытых сделок больше не нужно
	openIDs := make([]int64, 0, len(positions))
	for _, pos := range positions {
		openIDs = append(openIDs, pos.TradeID)
	}
	if err := m.positions.PruneClosed(inst.InstanceID, openIDs); err != nil {
		log.Warn("prune closed position state", utils.Err(err))
	}

	return queued, nil
}

// checkTradingAllowed собирает риск-наблюдения и применяет политику
func (m *Monitor) checkTradingAllowed(ctx context.Context, client EngineAPI, settings *models.FeatureSettings) (bool, string) {
	in := policy.RiskInputs{Now: time.Now()}

	if total, err := client.Balance(ctx); err == nil {
		in.PortfolioValue = total
		in.PortfolioKnown = true
	}
	if profit, err := client.Profit(ctx); err == nil {
		in.RealizedPnL = profit.ClosedCoin
		in.PnLKnown = true
	}
	if m.crash != nil {
		in.MarketCrash = m.crash.Crashed()
	}

	return policy.IsTradingAllowed(settings, in)
}

// evaluatePosition применяет политики к одной позиции
func (m *Monitor) evaluatePosition(instanceID string, pos models.OpenPosition, settings *models.FeatureSettings, log *utils.Logger) (int, error) {
	state, err := m.positions.Get(instanceID, pos.TradeID)
	if err != nil {
		if !errors.Is(err, repository.ErrPositionStateNotFound) {
			return 0, err
		}
		state = &models.PositionState{
			InstanceID: instanceID,
			TradeID:    pos.TradeID,
			Pair:       pos.Pair,
		}
	}

	queued := 0
	fullExitQueued := false

	if tier := policy.CheckTakeProfitLevels(pos, settings.TakeProfitTiers, state); tier != nil {
		action := policy.TakeProfitAction(instanceID, pos, *tier)
		m.queue.Enqueue(action)
		queued++
		if tier.ExitPercent >= 100 {
			fullExitQueued = true
		}

		// Уровень помечается сработавшим при постановке в очередь:
		// повторный прогон по той же цене не должен дублировать действие
		state.TriggeredTiers = append(state.TriggeredTiers, tier.ProfitPercent)
		state.UpdatedAt = time.Now()
		if err := m.positions.Save(state); err != nil {
			return queued, fmt.Errorf("save triggered tier: %w", err)
		}

		log.Info("take-profit tier reached",
			utils.TradeID(pos.TradeID), utils.Pair(pos.Pair),
			utils.Float64("tier_percent", tier.ProfitPercent),
			utils.Float64("exit_percent", tier.ExitPercent))
	}

	decision := policy.ManageTrailingStop(pos, settings.TrailingStop, state)
	if decision.Changed {
		state.UpdatedAt = time.Now()
		if err := m.positions.Save(state); err != nil {
			return queued, fmt.Errorf("save trailing state: %w", err)
		}
	}
	// Если полный выход уже в очереди, трейлинг не дублирует закрытие
	if decision.Exit && !fullExitQueued {
		m.queue.Enqueue(policy.TrailingStopAction(instanceID, pos, decision.StopPrice))
		queued++
		log.Info("trailing stop hit",
			utils.TradeID(pos.TradeID), utils.Pair(pos.Pair),
			utils.Price(decision.StopPrice))
	}

	return queued, nil
}

// recordInstanceError учитывает ошибку опроса
// Порог срабатывает предупреждением: инстанс не снимается с мониторинга
func (m *Monitor) recordInstanceError(rt *models.InstanceRuntime, log *utils.Logger, err error) {
	m.mu.Lock()
	rt.ConsecutiveErrors++
	count := rt.ConsecutiveErrors
	m.mu.Unlock()

	if count == m.cfg.RetryThreshold {
		log.Warn("instance unreachable for consecutive cycles",
			utils.Int("consecutive_errors", count), utils.Err(err))
		return
	}
	log.Debug("instance poll failed", utils.Int("consecutive_errors", count), utils.Err(err))
}

func (m *Monitor) recordInstanceSuccess(rt *models.InstanceRuntime, openPositions int) {
	m.mu.Lock()
	rt.ConsecutiveErrors = 0
	rt.OpenPositions = openPositions
	rt.LastCheckedAt = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) markPaused(rt *models.InstanceRuntime, instanceID, reason string, log *utils.Logger) {
	m.mu.Lock()
	wasPaused := rt.TradingPaused
	rt.TradingPaused = true
	rt.PauseReason = reason
	m.mu.Unlock()

	if !wasPaused {
		log.Warn("trading not allowed", utils.String("reason", reason))
		if m.hub != nil {
			m.hub.BroadcastTradingPaused(instanceID, reason)
		}
	}
}

func (m *Monitor) markResumed(rt *models.InstanceRuntime) {
	m.mu.Lock()
	rt.TradingPaused = false
	rt.PauseReason = ""
	m.mu.Unlock()
}

// drainQueue разбирает очередь действий строго последовательно
// Сбой исполнения логируется и не повторяется до следующего цикла
func (m *Monitor) drainQueue(ctx context.Context) int {
	done := 0
	for {
		action, ok := m.queue.Dequeue()
		if !ok {
			return done
		}
		m.executeAction(ctx, action)
		done++
	}
}

// executeAction исполняет одно действие
func (m *Monitor) executeAction(ctx context.Context, action models.PendingAction) {
	log := m.logger.WithInstance(action.InstanceID)

	var execErr error
	switch action.Kind {
	case models.ActionTakeProfit, models.ActionTrailingStopExit:
		m.mu.Lock()
		client, ok := m.clients[action.InstanceID]
		m.mu.Unlock()
		if !ok {
			execErr = fmt.Errorf("no engine client for %s", action.InstanceID)
		} else {
			execErr = client.ForceExit(ctx, action.TradeID)
		}

	case models.ActionPartialTakeProfit:
		// Движок не поддерживает частичный выход; действие доводится
		// до оператора через журнал и broadcast
		log.Info("partial take-profit requires operator action",
			utils.TradeID(action.TradeID), utils.Pair(action.Pair),
			utils.Float64("exit_percent", action.ExitPercent),
			utils.Float64("tier_percent", action.TierPercent))

	default:
		execErr = fmt.Errorf("unknown action kind %q", action.Kind)
	}

	success := execErr == nil
	result := "ok"
	if !success {
		result = "error"
		log.Error("action failed", utils.Action(action.Kind),
			utils.TradeID(action.TradeID), utils.Err(execErr))
	} else {
		log.Info("action executed", utils.Action(action.Kind),
			utils.TradeID(action.TradeID), utils.Pair(action.Pair),
			utils.Price(action.Price))
	}
	ActionsExecuted.WithLabelValues(action.Kind, result).Inc()

	entry := &models.ActionLogEntry{
		InstanceID: action.InstanceID,
		Kind:       action.Kind,
		TradeID:    action.TradeID,
		Pair:       action.Pair,
		Detail:     actionDetail(action, execErr),
		Success:    success,
		ExecutedAt: time.Now(),
	}
	if err := m.actionLog.Append(entry); err != nil {
		log.Error("append action log", utils.Err(err))
	}

	if m.hub != nil {
		m.hub.BroadcastActionExecuted(websocket.NewActionExecutedMessage(action, success, execErr))
	}
}

func actionDetail(action models.PendingAction, execErr error) string {
	detail := action.Reason
	if action.TierPercent > 0 {
		detail = fmt.Sprintf("%s (tier %.1f%%, exit %.0f%%)", detail, action.TierPercent, action.ExitPercent)
	}
	if execErr != nil {
		detail = fmt.Sprintf("%s: %v", detail, execErr)
	}
	return detail
}
