// Package monitor реализует контур активного управления позициями:
// периодический опрос инстансов движка, применение политик и
// последовательное исполнение накопленных действий.
package monitor

import (
	"sync"
	"time"
)

// PriceCache - разделяемый TTL-кэш цен пар
//
// Цена, полученная для одного инстанса, переиспользуется остальными в
// пределах TTL. Вытеснение ленивое: протухшая запись перезаписывается
// при следующем обновлении или отбрасывается при чтении.
type PriceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]priceEntry
}

type priceEntry struct {
	price      float64
	observedAt time.Time
}

// NewPriceCache создает кэш с указанным TTL
func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &PriceCache{
		ttl:     ttl,
		entries: make(map[string]priceEntry),
	}
}

// Get возвращает цену пары, если она ещё свежая
func (c *PriceCache) Get(pair string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[pair]
	c.mu.RUnlock()

	if !ok || time.Since(entry.observedAt) > c.ttl {
		return 0, false
	}
	return entry.price, true
}

// Set записывает наблюдение цены
func (c *PriceCache) Set(pair string, price float64) {
	c.mu.Lock()
	c.entries[pair] = priceEntry{price: price, observedAt: time.Now()}
	c.mu.Unlock()
	PriceCacheSize.Set(float64(len(c.entries)))
}

// Len возвращает количество записей, включая протухшие
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Evict удаляет протухшие записи
// Вызывается периодически из контура, чтобы кэш не рос бесконечно
func (c *PriceCache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for pair, entry := range c.entries {
		if now.Sub(entry.observedAt) > c.ttl {
			delete(c.entries, pair)
		}
	}
	PriceCacheSize.Set(float64(len(c.entries)))
}
