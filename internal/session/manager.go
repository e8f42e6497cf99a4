package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
)

// Mirror 工作階段快照的外部儲存（例如 Redis）
type Mirror interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Manager 工作階段管理器：記憶體內保存，閒置超過 TTL 即清除
type Manager struct {
	factory *Factory
	mirror  Mirror
	ttl     time.Duration

	mu    sync.RWMutex
	store map[string]*entry
	stats managerStats

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	session    *Session
	expiresAt  time.Time
	lastAccess time.Time
}

type managerStats struct {
	hits      int64
	misses    int64
	restored  int64
	evictions int64
}

// NewManager 創建工作階段管理器，mirror 可為 nil
func NewManager(factory *Factory, mirror Mirror, ttl, cleanupInterval time.Duration) *Manager {
	m := &Manager{
		factory: factory,
		mirror:  mirror,
		ttl:     ttl,
		store:   make(map[string]*entry),
		stop:    make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go m.startCleanup(cleanupInterval)
	}

	common.LogInfo("工作階段管理員已初始化",
		zap.Duration("存活時間", ttl),
		zap.Duration("清理間隔", cleanupInterval),
		zap.Bool("redis", mirror != nil),
	)
	return m
}

// Create 建立新的工作階段
func (m *Manager) Create(ctx context.Context, init Init) (*Session, error) {
	s, err := m.factory.New(ctx, init)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.store[s.ID] = m.newEntry(s)
	m.mu.Unlock()

	m.Save(ctx, s)
	common.LogInfo("Session created",
		zap.String("session", s.ID),
		zap.Int("rows", len(init.Rows)),
	)
	return s, nil
}

func (m *Manager) newEntry(s *Session) *entry {
	now := time.Now()
	return &entry{session: s, expiresAt: now.Add(m.ttl), lastAccess: now}
}

// Get 取得工作階段並延長存活時間；記憶體沒有時嘗試從 mirror 還原
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	now := time.Now()

	m.mu.Lock()
	if e, ok := m.store[id]; ok {
		if m.ttl <= 0 || now.Before(e.expiresAt) {
			e.lastAccess = now
			e.expiresAt = now.Add(m.ttl)
			m.stats.hits++
			m.mu.Unlock()
			return e.session, nil
		}
		delete(m.store, id)
		m.stats.evictions++
		e.session.Close()
	}
	m.stats.misses++
	m.mu.Unlock()

	if m.mirror == nil {
		return nil, common.ErrSessionNotFound
	}

	snap, err := m.mirror.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrSessionNotFound) {
			common.LogWarn("Failed to load session snapshot", zap.String("session", id), zap.Error(err))
		}
		return nil, common.ErrSessionNotFound
	}
	s, err := m.factory.Restore(snap)
	if err != nil {
		common.LogWarn("Discarding unusable session snapshot", zap.String("session", id), zap.Error(err))
		return nil, common.ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// 並行還原時以先放入的為準
	if e, ok := m.store[id]; ok {
		s.Close()
		return e.session, nil
	}
	m.store[id] = m.newEntry(s)
	m.stats.restored++
	common.LogInfo("Session restored from snapshot", zap.String("session", id))
	return s, nil
}

// Save 將工作階段快照寫入 mirror；失敗只記錄
func (m *Manager) Save(ctx context.Context, s *Session) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.Save(ctx, s.Snapshot()); err != nil {
		common.LogWarn("Failed to save session snapshot", zap.String("session", s.ID), zap.Error(err))
	}
}

// Delete 刪除工作階段
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.store[id]
	delete(m.store, id)
	m.mu.Unlock()

	if ok {
		e.session.Close()
	}
	if m.mirror != nil {
		switch err := m.mirror.Delete(ctx, id); {
		case err == nil:
			ok = true
		case !errors.Is(err, common.ErrSessionNotFound):
			common.LogWarn("Failed to delete session snapshot", zap.String("session", id), zap.Error(err))
		}
	}
	if !ok {
		return common.ErrSessionNotFound
	}
	common.LogInfo("Session deleted", zap.String("session", id))
	return nil
}

// startCleanup 定期清理過期的工作階段
func (m *Manager) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

// cleanup 清理過期的工作階段
func (m *Manager) cleanup() int {
	if m.ttl <= 0 {
		return 0
	}
	now := time.Now()

	m.mu.Lock()
	var expired []*Session
	for id, e := range m.store {
		if now.After(e.expiresAt) {
			expired = append(expired, e.session)
			delete(m.store, id)
			m.stats.evictions++
		}
	}
	remaining := len(m.store)
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		common.LogInfo("Cleaned up expired sessions",
			zap.Int("count", len(expired)),
			zap.Int("remaining_size", remaining),
		)
	}
	return len(expired)
}

// Len 目前記憶體中的工作階段數
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// GetStats 獲取統計信息
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"size":      len(m.store),
		"hits":      m.stats.hits,
		"misses":    m.stats.misses,
		"restored":  m.stats.restored,
		"evictions": m.stats.evictions,
		"redis":     m.mirror != nil,
	}
}

// Close 關閉管理器並停止所有工作階段的計時器
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.store {
		e.session.Close()
		delete(m.store, id)
	}
	common.LogInfo("工作階段管理員已關閉",
		zap.Int64("命中次數", m.stats.hits),
		zap.Int64("未命中次數", m.stats.misses),
		zap.Int64("淘汰次數", m.stats.evictions),
	)
	return nil
}
