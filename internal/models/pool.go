package models

import "time"

// Pool - исполнительная единица фиксированной ёмкости,
// в которой запускаются процессы торговых ботов
type Pool struct {
	ID        string    `json:"id"`
	Capacity  int       `json:"capacity"`
	Instances []string  `json:"instances"` // в порядке размещения
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Статусы пула
const (
	PoolStatusActive   = "active"   // есть свободная ёмкость
	PoolStatusFull     = "full"     // ёмкость исчерпана, но пул обслуживает
	PoolStatusDraining = "draining" // новые размещения запрещены
	PoolStatusStopped  = "stopped"  // пуст, запись сохранена для истории
)

// ValidPoolTransitions определяет допустимые переходы между статусами пула
//
// Переходы управляются только счётчиками размещения и явным запросом drain;
// автоматического удаления пулов нет.
var ValidPoolTransitions = map[string][]string{
	PoolStatusActive:   {PoolStatusFull, PoolStatusDraining, PoolStatusStopped},
	PoolStatusFull:     {PoolStatusActive, PoolStatusDraining},
	PoolStatusDraining: {PoolStatusStopped},
	PoolStatusStopped:  {}, // терминальное состояние
}

// CanTransitionPool проверяет допустимость перехода статуса пула
func CanTransitionPool(from, to string) bool {
	allowed, ok := ValidPoolTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// PoolAcceptsPlacements возвращает true если пул может принять новый инстанс
func PoolAcceptsPlacements(p *Pool) bool {
	return p.Status == PoolStatusActive && len(p.Instances) < p.Capacity
}

// Contains проверяет, размещён ли инстанс в пуле
func (p *Pool) Contains(instanceID string) bool {
	for _, id := range p.Instances {
		if id == instanceID {
			return true
		}
	}
	return false
}

// PlacementState - персистируемый агрегат размещения
//
// Инвариант: Pools и BotMapping взаимно согласованы (каждый инстанс из
// BotMapping присутствует ровно в одном пуле и наоборот). Нарушается только
// транзиентно внутри сверки, которая обязана восстановить согласованность
// до возврата.
type PlacementState struct {
	Pools      map[string]*Pool  `json:"pools"`
	BotMapping map[string]string `json:"bot_mapping"` // instance_id -> pool_id
}

// NewPlacementState создаёт пустое состояние размещения
func NewPlacementState() *PlacementState {
	return &PlacementState{
		Pools:      make(map[string]*Pool),
		BotMapping: make(map[string]string),
	}
}

// Clone возвращает глубокую копию состояния (для snapshot'ов и отчётов)
func (s *PlacementState) Clone() *PlacementState {
	out := NewPlacementState()
	for id, p := range s.Pools {
		cp := *p
		cp.Instances = append([]string(nil), p.Instances...)
		out.Pools[id] = &cp
	}
	for k, v := range s.BotMapping {
		out.BotMapping[k] = v
	}
	return out
}
