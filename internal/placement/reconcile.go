package placement

import (
	"context"
	"time"

	"orchestrator/internal/models"
	"orchestrator/pkg/retry"
	"orchestrator/pkg/utils"
)

// ReconcileReport - результат одной сверки
type ReconcileReport struct {
	StartedAt  time.Time `json:"started_at"`
	BackupPath string    `json:"backup_path,omitempty"`

	// Stale: были в документе, но не запущены -> удалены
	Removed []PlacementRef `json:"removed"`

	// Orphans: запущены, но не числятся в документе -> только warning,
	// принадлежность пользователю безопасно вывести нельзя
	Orphans []PlacementRef `json:"orphans"`

	// Mapping'и на несуществующие пулы, разрешённые в пользу записей пулов
	RepairedMappings []string `json:"repaired_mappings"`

	// Пулы, которые не удалось опросить (их записи не тронуты)
	SkippedPools []string `json:"skipped_pools"`

	Changed bool `json:"changed"`
}

// PlacementRef - пара инстанс/пул в отчёте сверки
type PlacementRef struct {
	InstanceID string `json:"instance_id"`
	PoolID     string `json:"pool_id"`
}

// Reconcile сверяет документ размещения с наблюдаемой реальностью
//
// ground: instance_id'ы, реально запущенные в каждом пуле. Пулы,
// отсутствующие в ground, считаются неопрошенными и не трогаются -
// недоступность супервизора не повод выбрасывать живые размещения.
//
// Последовательность:
//  1. backup текущего документа (до любой мутации)
//  2. починка mapping'ов на несуществующие пулы (запись пула первична)
//  3. удаление stale-инстансов (persisted - ground)
//  4. warning на осиротевшие процессы (ground - persisted), без усыновления
//  5. атомарная запись исправленного состояния
//
// Операция идемпотентна: повторный запуск с тем же ground ничего не меняет.
func (m *Manager) Reconcile(ground map[string][]string) (*ReconcileReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &ReconcileReport{StartedAt: nowFunc()}

	backupPath, err := m.store.Backup()
	if err != nil {
		ReconcileRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	report.BackupPath = backupPath

	// Шаг 2: mapping без пула -> удаляем mapping
	for instanceID, poolID := range m.state.BotMapping {
		if _, ok := m.state.Pools[poolID]; !ok {
			delete(m.state.BotMapping, instanceID)
			report.RepairedMappings = append(report.RepairedMappings, instanceID)
			report.Changed = true
			m.logger.Warn("mapping to nonexistent pool dropped",
				utils.Instance(instanceID), utils.Pool(poolID))
		}
	}

	// Шаг 2б: инстанс в пуле без mapping'а (дубликат или рассинхрон) -
	// запись пула первична, восстанавливаем mapping
	for poolID, pool := range m.state.Pools {
		for _, instanceID := range pool.Instances {
			if mapped, ok := m.state.BotMapping[instanceID]; !ok {
				m.state.BotMapping[instanceID] = poolID
				report.RepairedMappings = append(report.RepairedMappings, instanceID)
				report.Changed = true
				m.logger.Warn("mapping restored from pool record",
					utils.Instance(instanceID), utils.Pool(poolID))
			} else if mapped != poolID {
				// Дубликат размещения: предпочитаем пул, чья запись содержит инстанс
				if other, ok := m.state.Pools[mapped]; !ok || !other.Contains(instanceID) {
					m.state.BotMapping[instanceID] = poolID
					report.RepairedMappings = append(report.RepairedMappings, instanceID)
					report.Changed = true
					m.logger.Warn("duplicate placement resolved",
						utils.Instance(instanceID), utils.Pool(poolID), utils.String("was", mapped))
				}
			}
		}
	}

	// Шаги 3-4: пер-пуловый дифф с ground truth
	for poolID, pool := range m.state.Pools {
		running, polled := ground[poolID]
		if !polled {
			report.SkippedPools = append(report.SkippedPools, poolID)
			continue
		}

		runningSet := make(map[string]struct{}, len(running))
		for _, id := range running {
			runningSet[id] = struct{}{}
		}

		// persisted - ground = stale
		kept := make([]string, 0, len(pool.Instances))
		for _, instanceID := range pool.Instances {
			if _, ok := runningSet[instanceID]; ok {
				kept = append(kept, instanceID)
				continue
			}
			delete(m.state.BotMapping, instanceID)
			report.Removed = append(report.Removed, PlacementRef{InstanceID: instanceID, PoolID: poolID})
			report.Changed = true
			ReconcileRemoved.Inc()
			m.logger.Warn("stale placement removed", utils.Instance(instanceID), utils.Pool(poolID))
		}
		pool.Instances = kept

		// ground - persisted = orphan
		for _, instanceID := range running {
			if !pool.Contains(instanceID) {
				report.Orphans = append(report.Orphans, PlacementRef{InstanceID: instanceID, PoolID: poolID})
				ReconcileOrphans.Inc()
				m.logger.Warn("orphaned bot process observed, not adopting",
					utils.Instance(instanceID), utils.Pool(poolID))
			}
		}

		if len(pool.Instances) == 0 && pool.Status == models.PoolStatusDraining {
			pool.Status = models.PoolStatusStopped
			report.Changed = true
		} else {
			prev := pool.Status
			m.refreshStatus(pool)
			if pool.Status != prev {
				report.Changed = true
			}
		}
	}

	if report.Changed {
		if err := m.persist(); err != nil {
			ReconcileRuns.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	ReconcileRuns.WithLabelValues("ok").Inc()
	m.updateMetrics()
	return report, nil
}

// Sweeper - внеполосная сверка: собирает ground truth у супервизора
// каждого пула и прогоняет его через Reconcile
type Sweeper struct {
	manager    *Manager
	controller PoolController
	logger     *utils.Logger
	retryCfg   retry.Config
}

// NewSweeper создает сверку поверх менеджера и контроллера пулов
func NewSweeper(manager *Manager, controller PoolController, logger *utils.Logger) *Sweeper {
	return &Sweeper{
		manager:    manager,
		controller: controller,
		logger:     logger.WithComponent("reconcile"),
		retryCfg:   retry.ConservativeConfig(),
	}
}

// Sweep выполняет одну сверку
//
// Пул, супервизор которого не ответил, исключается из ground truth и
// остаётся нетронутым (попадает в SkippedPools отчёта).
func (s *Sweeper) Sweep(ctx context.Context) (*ReconcileReport, error) {
	snapshot := s.manager.Snapshot()

	ground := make(map[string][]string, len(snapshot.Pools))
	for poolID := range snapshot.Pools {
		poolID := poolID
		running, err := retry.DoWithResult(ctx, func() ([]string, error) {
			return s.controller.ListRunning(ctx, poolID)
		}, s.retryCfg)
		if err != nil {
			s.logger.Warn("pool supervisor unreachable, skipping pool",
				utils.Pool(poolID), utils.Err(err))
			continue
		}
		ground[poolID] = running
	}

	return s.manager.Reconcile(ground)
}
