package monitor

import (
	"testing"
	"time"
)

func TestPriceCacheGetSet(t *testing.T) {
	c := NewPriceCache(time.Minute)

	if _, ok := c.Get("BTC/USDT"); ok {
		t.Error("Get() on empty cache returned ok")
	}

	c.Set("BTC/USDT", 60000)
	price, ok := c.Get("BTC/USDT")
	if !ok || price != 60000 {
		t.Errorf("Get() = (%v, %v), want (60000, true)", price, ok)
	}
}

func TestPriceCacheTTLExpiry(t *testing.T) {
	c := NewPriceCache(20 * time.Millisecond)

	c.Set("BTC/USDT", 60000)
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("BTC/USDT"); ok {
		t.Error("Get() returned stale price past TTL")
	}

	// Запись остаётся до Evict - вытеснение ленивое
	if c.Len() != 1 {
		t.Errorf("Len() = %d before Evict, want 1", c.Len())
	}
	c.Evict()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Evict, want 0", c.Len())
	}
}

func TestPriceCacheOverwrite(t *testing.T) {
	c := NewPriceCache(time.Minute)
	c.Set("ETH/USDT", 100)
	c.Set("ETH/USDT", 106)

	price, _ := c.Get("ETH/USDT")
	if price != 106 {
		t.Errorf("Get() = %v, want latest 106", price)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
