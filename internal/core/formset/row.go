package formset

import (
	"time"

	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/pkg/common"
)

// Level 列狀態訊息等級
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Status 列上的暫時狀態訊息
type Status struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Row 一個食材表單列
type Row struct {
	Key           string            `json:"key"`
	Index         int               `json:"index"`
	PersistedID   int64             `json:"persisted_id,omitempty"`
	ManagedID     int64             `json:"managed_id,omitempty"`
	DisplayName   string            `json:"display_name"`
	Quantity      string            `json:"quantity"`
	QuantityValue *float64          `json:"quantity_value,omitempty"`
	Unit          string            `json:"unit"`
	Deleted       bool              `json:"deleted"`
	Fields        map[string]string `json:"fields"`
	Status        *Status           `json:"status,omitempty"`
}

// IsNew 是否為本次編輯才新增（尚未存檔）的列
func (r Row) IsNew() bool {
	return r.PersistedID == 0
}

// Visible 列是否顯示在畫面上
func (r Row) Visible() bool {
	return !r.Deleted
}

// Managed 列目前連結的標準食材
func (r Row) Managed() (recipe.ManagedIngredient, bool) {
	if r.ManagedID == 0 {
		return recipe.ManagedIngredient{}, false
	}
	return recipe.ManagedIngredient{ID: r.ManagedID, Name: r.DisplayName}, true
}

func (r Row) clone() Row {
	out := r
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	if r.QuantityValue != nil {
		v := *r.QuantityValue
		out.QuantityValue = &v
	}
	if r.Status != nil {
		s := *r.Status
		out.Status = &s
	}
	return out
}

// RowData 建立列時提供的資料
type RowData struct {
	PersistedID int64  `json:"persisted_id,omitempty"`
	ManagedID   int64  `json:"managed_id,omitempty"`
	Name        string `json:"name"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
}

// RowDataFromParsed 依優先順序將解析結果轉成列資料：
// 已比對的標準食材 ID > 標準名稱 > 原始名稱
func RowDataFromParsed(p recipe.ParsedIngredient) RowData {
	data := RowData{
		Name:     p.OriginalName,
		Quantity: p.QuantityText(),
		Unit:     p.Unit,
	}
	if m := p.ManagedMatch; m != nil {
		if m.ID > 0 {
			data.ManagedID = m.ID
		}
		if m.Name != "" {
			data.Name = m.Name
		}
	}
	return data
}

// RowPatch 使用者手動修改的欄位，nil 代表不變
type RowPatch struct {
	Name     *string `json:"name,omitempty"`
	Quantity *string `json:"quantity,omitempty"`
	Unit     *string `json:"unit,omitempty"`
}

// Resolver 以名稱查詢標準食材（不呼叫網路）
type Resolver interface {
	Resolve(name string) (recipe.ManagedIngredient, bool)
}

// Builder 以範本建立列
type Builder struct {
	tmpl     *Template
	resolver Resolver
	newKey   func() string
}

// NewBuilder 創建新的列建構器，resolver 可為 nil
func NewBuilder(tmpl *Template, resolver Resolver) *Builder {
	return &Builder{
		tmpl:     tmpl,
		resolver: resolver,
		newKey:   common.GenerateUUID,
	}
}

// Template 建構器使用的範本
func (b *Builder) Template() *Template {
	return b.tmpl
}

// Build 建立指定索引的列；只給名稱時嘗試從登錄表補上標準食材 ID
//
// 不修改任何表單狀態，插入與計數由呼叫端負責。
func (b *Builder) Build(index int, data RowData) Row {
	row := Row{
		Key:         b.newKey(),
		Index:       index,
		PersistedID: data.PersistedID,
		ManagedID:   data.ManagedID,
		DisplayName: data.Name,
		Quantity:    data.Quantity,
		Unit:        data.Unit,
		Fields:      b.tmpl.Identifiers(index),
	}

	if row.ManagedID == 0 && b.resolver != nil {
		if ing, ok := b.resolver.Resolve(data.Name); ok {
			row.ManagedID = ing.ID
			row.DisplayName = ing.Name
		}
	}
	if v, ok := recipe.ParseQuantity(row.Quantity); ok {
		row.QuantityValue = &v
	}
	return row
}

// rewrite 將列的索引與欄位名稱改寫為新索引
func (b *Builder) rewrite(row *Row, index int) {
	row.Index = index
	row.Fields = b.tmpl.Identifiers(index)
}
