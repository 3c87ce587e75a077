package monitor

import (
	"sync"
	"testing"

	"orchestrator/internal/models"
)

func TestActionQueueFIFO(t *testing.T) {
	q := NewActionQueue()

	for i := int64(1); i <= 3; i++ {
		q.Enqueue(models.PendingAction{Kind: models.ActionTakeProfit, TradeID: i})
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	for i := int64(1); i <= 3; i++ {
		action, ok := q.Dequeue()
		if !ok || action.TradeID != i {
			t.Errorf("Dequeue() = (%+v, %v), want trade %d", action, ok, i)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() on empty queue returned ok")
	}
}

func TestActionQueueConcurrentEnqueue(t *testing.T) {
	q := NewActionQueue()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			q.Enqueue(models.PendingAction{TradeID: n})
		}(int64(i))
	}
	wg.Wait()

	if q.Len() != 50 {
		t.Errorf("Len() = %d, want 50", q.Len())
	}
}
