package monitor

import (
	"errors"
	"os"
	"sort"

	"orchestrator/internal/models"
	"orchestrator/internal/repository"
	"orchestrator/pkg/utils"
)

// PlacementSource отдает снимок документа размещения
type PlacementSource interface {
	Snapshot() *models.PlacementState
}

// InstanceLookup резолвит инстанс в реестре ботов
type InstanceLookup interface {
	Get(instanceID string) (*models.BotInstance, error)
}

// Discovery собирает рабочий список инстансов для цикла контура
//
// Источник истины - документ размещения: обходим пулы в порядке создания,
// инстансы в порядке размещения. Дополнительно поддерживается каталог
// старого формата (боты, заведённые до пулов): его подкаталоги считаются
// идентификаторами инстансов и добавляются в хвост списка.
//
// Учётные данные и порт каждого найденного инстанса резолвятся через
// реестр. Инстанс, размещённый в пуле, но отсутствующий в реестре,
// пропускается с предупреждением: запускать бота без учётных данных
// контур не может.
type Discovery struct {
	placement PlacementSource
	lookup    InstanceLookup
	legacyDir string
	logger    *utils.Logger
}

// NewDiscovery создает discovery поверх размещения и реестра
// legacyDir может быть пустым - тогда fallback отключен
func NewDiscovery(placement PlacementSource, lookup InstanceLookup, legacyDir string, logger *utils.Logger) *Discovery {
	return &Discovery{
		placement: placement,
		lookup:    lookup,
		legacyDir: legacyDir,
		logger:    logger.WithComponent("discovery"),
	}
}

// List возвращает инстансы в детерминированном порядке обхода
func (d *Discovery) List() ([]*models.BotInstance, error) {
	state := d.placement.Snapshot()

	pools := make([]*models.Pool, 0, len(state.Pools))
	for _, p := range state.Pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].CreatedAt.Before(pools[j].CreatedAt)
	})

	seen := make(map[string]bool)
	var ids []string
	for _, pool := range pools {
		for _, id := range pool.Instances {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	for _, id := range d.legacyInstances() {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	instances := make([]*models.BotInstance, 0, len(ids))
	for _, id := range ids {
		inst, err := d.lookup.Get(id)
		if err != nil {
			if errors.Is(err, repository.ErrInstanceNotFound) {
				d.logger.Warn("placed instance missing from registry", utils.Instance(id))
				continue
			}
			return nil, err
		}
		instances = append(instances, inst)
	}

	return instances, nil
}

// legacyInstances перечисляет подкаталоги каталога старого формата
// Отсутствие каталога - не ошибка: fallback просто не срабатывает
func (d *Discovery) legacyInstances() []string {
	if d.legacyDir == "" {
		return nil
	}

	entries, err := os.ReadDir(d.legacyDir)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("read legacy instances dir", utils.Err(err))
		}
		return nil
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids
}
