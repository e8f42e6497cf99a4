package importer

import (
	"sync"
	"time"
)

// BannerLevel 匯入狀態橫幅等級
type BannerLevel string

const (
	BannerInfo    BannerLevel = "info"
	BannerSuccess BannerLevel = "success"
	BannerWarning BannerLevel = "warning"
	BannerError   BannerLevel = "error"
)

// Banner 全域匯入狀態橫幅
type Banner struct {
	Level     BannerLevel `json:"level,omitempty"`
	Message   string      `json:"message,omitempty"`
	Visible   bool        `json:"visible"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// Board 持有目前的橫幅；success 與 info 會在 ttl 後自動隱藏
type Board struct {
	mu     sync.Mutex
	ttl    time.Duration
	banner Banner
	now    func() time.Time
}

// NewBoard 創建橫幅
func NewBoard(ttl time.Duration) *Board {
	return &Board{ttl: ttl, now: time.Now}
}

// Show 顯示橫幅
func (b *Board) Show(level BannerLevel, message string) Banner {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.banner = Banner{Level: level, Message: message, Visible: true}
	if b.ttl > 0 && (level == BannerSuccess || level == BannerInfo) {
		exp := b.now().Add(b.ttl)
		b.banner.ExpiresAt = &exp
	}
	return b.banner
}

// Hide 隱藏橫幅
func (b *Board) Hide() {
	b.mu.Lock()
	b.banner = Banner{}
	b.mu.Unlock()
}

// Current 目前的橫幅（已過期則為隱藏）
func (b *Board) Current() Banner {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.banner.ExpiresAt != nil && !b.now().Before(*b.banner.ExpiresAt) {
		b.banner = Banner{}
	}
	return b.banner
}
