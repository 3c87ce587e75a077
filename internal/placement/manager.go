package placement

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"orchestrator/internal/models"
	"orchestrator/pkg/utils"
)

// подменяется в тестах
var nowFunc = time.Now

// Ошибки менеджера размещения
var (
	ErrAlreadyPlaced     = errors.New("instance already placed in a pool")
	ErrNotPlaced         = errors.New("instance is not placed in any pool")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrCapacityExhausted = errors.New("pool capacity exhausted: pool creation refused")
)

// Provisioner уведомляется о создании нового пула
//
// Это хук в окружающую инфраструктуру (супервизор процессов): если она
// отказывает в создании пула, размещение завершается ErrCapacityExhausted.
// nil-provisioner означает, что создание пулов всегда разрешено.
type Provisioner interface {
	ProvisionPool(poolID string, capacity int) error
}

// Manager владеет долговечным отображением инстанс -> пул
//
// Все мутации сериализуются мьютексом и завершаются полной перезаписью
// персистентного снапшота через Store.
type Manager struct {
	mu          sync.Mutex
	state       *models.PlacementState
	store       *Store
	capacity    int // фиксированная ёмкость новых пулов
	provisioner Provisioner
	logger      *utils.Logger
}

// NewManager создает менеджер и загружает состояние с диска
func NewManager(store *Store, capacity int, provisioner Provisioner, logger *utils.Logger) (*Manager, error) {
	state, err := store.Load()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		state:       state,
		store:       store,
		capacity:    capacity,
		provisioner: provisioner,
		logger:      logger.WithComponent("placement"),
	}
	m.updateMetrics()
	return m, nil
}

// Place размещает инстанс: первый пул со свободной ёмкостью, в порядке
// создания. First fit, не best fit - простота важнее плотности упаковки.
// Если свободного пула нет, создаётся новый с фиксированной ёмкостью.
func (m *Manager) Place(instanceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if poolID, ok := m.state.BotMapping[instanceID]; ok {
		return poolID, fmt.Errorf("%w: %s in %s", ErrAlreadyPlaced, instanceID, poolID)
	}

	pool := m.firstFit()
	if pool == nil {
		var err error
		pool, err = m.createPool()
		if err != nil {
			return "", err
		}
	}

	pool.Instances = append(pool.Instances, instanceID)
	m.state.BotMapping[instanceID] = pool.ID
	m.refreshStatus(pool)

	if err := m.persist(); err != nil {
		// Откат мутации: снапшот не записан, память не должна разъехаться с диском
		pool.Instances = pool.Instances[:len(pool.Instances)-1]
		delete(m.state.BotMapping, instanceID)
		m.refreshStatus(pool)
		return "", err
	}

	m.logger.Info("instance placed", utils.Instance(instanceID), utils.Pool(pool.ID),
		utils.Int("occupancy", len(pool.Instances)), utils.Int("capacity", pool.Capacity))
	m.updateMetrics()
	return pool.ID, nil
}

// Remove удаляет размещение инстанса
// Опустевший пул помечается stopped, но запись сохраняется для истории
func (m *Manager) Remove(instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	poolID, ok := m.state.BotMapping[instanceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPlaced, instanceID)
	}

	pool, ok := m.state.Pools[poolID]
	if !ok {
		// Висячий mapping без пула: убираем и его (инвариант важнее записи)
		delete(m.state.BotMapping, instanceID)
		if err := m.persist(); err != nil {
			m.state.BotMapping[instanceID] = poolID
			return err
		}
		m.logger.Warn("dangling mapping removed", utils.Instance(instanceID), utils.Pool(poolID))
		return nil
	}

	prevInstances := pool.Instances
	prevStatus := pool.Status
	pool.Instances = removeString(pool.Instances, instanceID)
	delete(m.state.BotMapping, instanceID)

	if len(pool.Instances) == 0 && pool.Status != models.PoolStatusStopped {
		pool.Status = models.PoolStatusStopped
	} else {
		m.refreshStatus(pool)
	}

	if err := m.persist(); err != nil {
		pool.Instances = prevInstances
		pool.Status = prevStatus
		m.state.BotMapping[instanceID] = poolID
		return err
	}

	m.logger.Info("instance removed", utils.Instance(instanceID), utils.Pool(poolID),
		utils.State(pool.Status))
	m.updateMetrics()
	return nil
}

// Drain запрещает новые размещения в пул; существующие инстансы продолжают работать
func (m *Manager) Drain(poolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.state.Pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}

	if !models.CanTransitionPool(pool.Status, models.PoolStatusDraining) {
		return fmt.Errorf("pool %s cannot drain from status %s", poolID, pool.Status)
	}

	prev := pool.Status
	pool.Status = models.PoolStatusDraining
	if err := m.persist(); err != nil {
		pool.Status = prev
		return err
	}

	m.logger.Info("pool draining", utils.Pool(poolID))
	return nil
}

// PoolFor возвращает идентификатор пула инстанса
func (m *Manager) PoolFor(instanceID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	poolID, ok := m.state.BotMapping[instanceID]
	return poolID, ok
}

// Snapshot возвращает глубокую копию состояния для API и отчётов
func (m *Manager) Snapshot() *models.PlacementState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.Clone()
}

// firstFit возвращает первый пул со свободной ёмкостью в порядке создания
// ВАЖНО: вызывается под lock'ом
func (m *Manager) firstFit() *models.Pool {
	var best *models.Pool
	for _, pool := range m.state.Pools {
		if !models.PoolAcceptsPlacements(pool) {
			continue
		}
		if best == nil || pool.CreatedAt.Before(best.CreatedAt) {
			best = pool
		}
	}
	return best
}

// createPool создаёт новый пул с фиксированной ёмкостью
// ВАЖНО: вызывается под lock'ом
func (m *Manager) createPool() (*models.Pool, error) {
	poolID := "pool-" + uuid.NewString()[:8]

	if m.provisioner != nil {
		if err := m.provisioner.ProvisionPool(poolID, m.capacity); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapacityExhausted, err)
		}
	}

	pool := &models.Pool{
		ID:        poolID,
		Capacity:  m.capacity,
		Instances: []string{},
		Status:    models.PoolStatusActive,
		CreatedAt: nowFunc(),
	}
	m.state.Pools[poolID] = pool

	m.logger.Info("pool created", utils.Pool(poolID), utils.Int("capacity", m.capacity))
	return pool, nil
}

// refreshStatus пересчитывает active/full по заполненности
// Статусы draining и stopped заполненностью не управляются
// ВАЖНО: вызывается под lock'ом
func (m *Manager) refreshStatus(pool *models.Pool) {
	switch pool.Status {
	case models.PoolStatusDraining, models.PoolStatusStopped:
		return
	}
	if len(pool.Instances) >= pool.Capacity {
		pool.Status = models.PoolStatusFull
	} else {
		pool.Status = models.PoolStatusActive
	}
}

// persist записывает полный снапшот состояния
// ВАЖНО: вызывается под lock'ом
func (m *Manager) persist() error {
	return m.store.Save(m.state)
}

// updateMetrics обновляет prometheus-гейджи размещения
// ВАЖНО: вызывается под lock'ом (или из конструктора)
func (m *Manager) updateMetrics() {
	byStatus := map[string]int{}
	for _, p := range m.state.Pools {
		byStatus[p.Status]++
	}
	for _, status := range []string{
		models.PoolStatusActive, models.PoolStatusFull,
		models.PoolStatusDraining, models.PoolStatusStopped,
	} {
		PoolsGauge.WithLabelValues(status).Set(float64(byStatus[status]))
	}
	PlacedInstancesGauge.Set(float64(len(m.state.BotMapping)))
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
