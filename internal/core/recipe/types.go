package recipe

import (
	"strconv"
	"strings"
	"sync"
)

// ManagedIngredient 標準食材（由伺服器擁有）
type ManagedIngredient struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Valid 是否為有效的標準食材
func (m ManagedIngredient) Valid() bool {
	return m.ID > 0 && strings.TrimSpace(m.Name) != ""
}

// ManagedMatch 爬蟲回傳的標準食材比對結果，ID 為 0 代表只有名稱（尚未建立）
type ManagedMatch struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	Action string `json:"action,omitempty"` // match / create
}

// ParsedIngredient 爬蟲解析出的單一食材
type ParsedIngredient struct {
	OriginalName   string        `json:"original_name"`
	QuantitySource string        `json:"quantity_source,omitempty"`
	QuantityParsed *float64      `json:"quantity_parsed,omitempty"`
	Unit           string        `json:"unit"`
	ManagedMatch   *ManagedMatch `json:"managed_match,omitempty"`
}

// QuantityText 依優先順序取得數量文字：原始文字 > 解析後數值 > 空字串
func (p ParsedIngredient) QuantityText() string {
	if s := strings.TrimSpace(p.QuantitySource); s != "" {
		return s
	}
	if p.QuantityParsed != nil {
		return strconv.FormatFloat(*p.QuantityParsed, 'f', -1, 64)
	}
	return ""
}

// Metadata 爬蟲取得的食譜基本資料，nil 欄位代表來源沒有提供
type Metadata struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Servings    *int    `json:"servings,omitempty"`
}

// DetailsView 食譜基本欄位快照
type DetailsView struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Servings    int    `json:"servings"`
}

// Details 可編輯的食譜基本欄位（標題、描述、份量）
type Details struct {
	mu   sync.RWMutex
	view DetailsView
}

// NewDetails 以初始值建立食譜基本欄位
func NewDetails(initial DetailsView) *Details {
	return &Details{view: initial}
}

// Merge 覆寫有提供的欄位，未提供的欄位保持不變，回傳實際更新的欄位名稱
func (d *Details) Merge(meta Metadata) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var updated []string
	if meta.Title != nil {
		d.view.Title = *meta.Title
		updated = append(updated, "title")
	}
	if meta.Description != nil {
		d.view.Description = *meta.Description
		updated = append(updated, "description")
	}
	if meta.Servings != nil {
		d.view.Servings = *meta.Servings
		updated = append(updated, "servings")
	}
	return updated
}

// Set 直接設定全部欄位（使用者手動編輯）
func (d *Details) Set(view DetailsView) {
	d.mu.Lock()
	d.view = view
	d.mu.Unlock()
}

// Snapshot 取得目前欄位值
func (d *Details) Snapshot() DetailsView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}
