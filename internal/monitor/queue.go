package monitor

import (
	"sync"

	"orchestrator/internal/models"
)

// ActionQueue - FIFO очередь отложенных действий контура
//
// Батчи опроса наполняют очередь конкурентно, разбор строго
// последовательный: исполнение действий не должно пересекаться ни друг
// с другом, ни со следующим опросом того же инстанса.
type ActionQueue struct {
	mu      sync.Mutex
	actions []models.PendingAction
}

// NewActionQueue создает пустую очередь
func NewActionQueue() *ActionQueue {
	return &ActionQueue{}
}

// Enqueue добавляет действие в хвост очереди
func (q *ActionQueue) Enqueue(action models.PendingAction) {
	q.mu.Lock()
	q.actions = append(q.actions, action)
	q.mu.Unlock()
}

// Dequeue снимает действие с головы очереди
func (q *ActionQueue) Dequeue() (models.PendingAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return models.PendingAction{}, false
	}
	action := q.actions[0]
	q.actions = q.actions[1:]
	return action, true
}

// Len возвращает текущую глубину очереди
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
