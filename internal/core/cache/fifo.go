package cache

import (
	"sync"

	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
)

// FIFO 有容量上限的快取，超過容量時淘汰最早插入的項目
//
// 覆寫已存在的鍵不會改變它的插入順序。
type FIFO[V any] struct {
	name     string
	capacity int

	mu    sync.RWMutex
	order []string
	store map[string]V
	stats Stats
}

// Stats 快取統計
type Stats struct {
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// NewFIFO 創建新的 FIFO 快取
func NewFIFO[V any](name string, capacity int) *FIFO[V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &FIFO[V]{
		name:     name,
		capacity: capacity,
		store:    make(map[string]V, capacity),
	}
}

// Get 獲取快取值
func (c *FIFO[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store[key]
	if ok {
		c.stats.Hits++
		common.LogCacheHit(c.name, key)
	} else {
		c.stats.Misses++
		common.LogCacheMiss(c.name, key)
	}
	return v, ok
}

// Peek 獲取快取值但不更新統計
func (c *FIFO[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.store[key]
	return v, ok
}

// Set 設置快取值，回傳被淘汰的鍵（若有）
func (c *FIFO[V]) Set(key string, value V) (evicted string, didEvict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; exists {
		c.store[key] = value
		return "", false
	}

	c.store[key] = value
	c.order = append(c.order, key)

	if len(c.order) > c.capacity {
		evicted = c.order[0]
		c.order = c.order[1:]
		delete(c.store, evicted)
		c.stats.Evictions++
		common.LogDebug("快取已淘汰(FIFO)",
			zap.String("類型", c.name),
			zap.String("鍵", evicted),
		)
		return evicted, true
	}
	return "", false
}

// Len 目前項目數
func (c *FIFO[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Clear 清空快取
func (c *FIFO[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.store = make(map[string]V, c.capacity)
	common.LogDebug("快取已清空", zap.String("類型", c.name))
}

// GetStats 獲取快取統計
func (c *FIFO[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = len(c.store)
	s.Capacity = c.capacity
	return s
}
