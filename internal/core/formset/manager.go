package formset

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
)

// Django 表單集管理欄位
const (
	TotalForms   = "TOTAL_FORMS"
	InitialForms = "INITIAL_FORMS"
	MinNumForms  = "MIN_NUM_FORMS"
	MaxNumForms  = "MAX_NUM_FORMS"

	defaultMaxNumForms = 1000
)

// State 表單集狀態快照
type State struct {
	Prefix        string `json:"prefix"`
	DeclaredCount int    `json:"declared_count"`
	InitialCount  int    `json:"initial_count"`
	Rows          []Row  `json:"rows"`
}

// Visible 只回傳畫面上可見的列
func (s State) Visible() []Row {
	out := make([]Row, 0, len(s.Rows))
	for _, r := range s.Rows {
		if r.Visible() {
			out = append(out, r)
		}
	}
	return out
}

// Manager 表單集索引管理器，持有有序列集合與對伺服器宣告的列數
//
// 所有變更（含重新編號）都在同一個鎖內完成，鎖內不做任何 I/O。
type Manager struct {
	mu        sync.Mutex
	builder   *Builder
	rows      []Row
	declared  int
	initial   int
	statusTTL time.Duration
	now       func() time.Time
}

// NewManager 創建新的表單集管理器
func NewManager(builder *Builder, statusTTL time.Duration) *Manager {
	return &Manager{
		builder:   builder,
		statusTTL: statusTTL,
		now:       time.Now,
	}
}

// Template 表單集使用的列範本
func (m *Manager) Template() *Template {
	return m.builder.Template()
}

// Load 載入編輯開始前已存在的列；只能在新增任何新列之前呼叫
func (m *Manager) Load(existing []RowData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.declared != m.initial {
		return common.ErrValidation.WithMessage("existing rows must be loaded before new rows are added")
	}
	for _, data := range existing {
		if data.PersistedID <= 0 {
			return common.NewValidationError(fmt.Sprintf("existing row %q has no persisted id", data.Name))
		}
	}
	for _, data := range existing {
		m.rows = append(m.rows, m.builder.Build(m.declared, data))
		m.declared++
		m.initial++
	}
	return nil
}

// AddRow 在最後新增一列，索引等於目前宣告的列數
func (m *Manager) AddRow(data RowData) Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	data.PersistedID = 0
	row := m.appendLocked(data)
	common.LogDebug("Row added", zap.String("key", row.Key), zap.Int("index", row.Index))
	return row.clone()
}

func (m *Manager) appendLocked(data RowData) *Row {
	m.rows = append(m.rows, m.builder.Build(m.declared, data))
	m.declared++
	return &m.rows[len(m.rows)-1]
}

// RemoveRow 移除列：新列直接刪除並重新編號，既有列只標記刪除並隱藏
//
// 找不到列時不做任何事，回傳 false。
func (m *Manager) RemoveRow(key string) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOfLocked(key)
	if i < 0 {
		common.LogDebug("Remove ignored, row not in formset", zap.String("key", key))
		return Row{}, false
	}

	row := m.rows[i]
	if !row.IsNew() {
		m.rows[i].Deleted = true
		common.LogDebug("Row marked for deletion", zap.String("key", key), zap.Int64("persisted_id", row.PersistedID))
		return m.rows[i].clone(), true
	}

	m.rows = append(m.rows[:i], m.rows[i+1:]...)
	m.declared--
	m.reindexLocked()
	common.LogDebug("Row removed", zap.String("key", key), zap.Int("declared", m.declared))
	return row, true
}

// reindexLocked 將所有列的索引與欄位名稱改寫為連續的 0..n-1
func (m *Manager) reindexLocked() {
	for i := range m.rows {
		if m.rows[i].Index != i {
			m.builder.rewrite(&m.rows[i], i)
		}
	}
}

// ReplaceAll 匯入用：丟棄所有新列、既有列標記刪除，再依序加入匯入的列
//
// 回傳加入的列，以及被丟棄或剛標記刪除的列鍵。
func (m *Manager) ReplaceAll(items []RowData) ([]Row, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	discarded := m.resetLocked()
	added := make([]Row, 0, len(items))
	for _, data := range items {
		data.PersistedID = 0
		added = append(added, m.appendLocked(data).clone())
	}
	return added, discarded
}

// Reset 清空表單：丟棄所有新列、既有列標記刪除
func (m *Manager) Reset() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLocked()
}

func (m *Manager) resetLocked() []string {
	var discarded []string
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.IsNew() {
			discarded = append(discarded, r.Key)
			continue
		}
		if !r.Deleted {
			discarded = append(discarded, r.Key)
			r.Deleted = true
		}
		kept = append(kept, r)
	}
	// 清掉殘留的尾端參照
	for i := len(kept); i < len(m.rows); i++ {
		m.rows[i] = Row{}
	}
	m.rows = kept
	m.declared = len(kept)
	m.reindexLocked()
	return discarded
}

// SetManaged 將列連結到標準食材
func (m *Manager) SetManaged(key string, ing recipe.ManagedIngredient) (Row, error) {
	return m.mutate(key, func(r *Row) error {
		if !ing.Valid() {
			return common.NewValidationError("managed ingredient requires an id and a name")
		}
		r.ManagedID = ing.ID
		r.DisplayName = ing.Name
		return nil
	})
}

// SetText 使用者輸入食材名稱；文字與已連結的標準名稱不同時解除連結
func (m *Manager) SetText(key, text string) (Row, error) {
	return m.mutate(key, func(r *Row) error {
		setText(r, text)
		return nil
	})
}

func setText(r *Row, text string) {
	if r.ManagedID != 0 && !strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(r.DisplayName)) {
		r.ManagedID = 0
	}
	r.DisplayName = text
}

// Update 套用使用者手動修改
func (m *Manager) Update(key string, patch RowPatch) (Row, error) {
	return m.mutate(key, func(r *Row) error {
		if patch.Name != nil {
			setText(r, *patch.Name)
		}
		if patch.Quantity != nil {
			r.Quantity = *patch.Quantity
			r.QuantityValue = nil
			if v, ok := recipe.ParseQuantity(r.Quantity); ok {
				r.QuantityValue = &v
			}
		}
		if patch.Unit != nil {
			r.Unit = *patch.Unit
		}
		return nil
	})
}

// SetStatus 在列上顯示暫時狀態訊息
func (m *Manager) SetStatus(key string, level Level, message string) (Row, error) {
	return m.mutate(key, func(r *Row) error {
		s := &Status{Level: level, Message: message}
		if m.statusTTL > 0 {
			s.ExpiresAt = m.now().Add(m.statusTTL)
		}
		r.Status = s
		return nil
	})
}

func (m *Manager) mutate(key string, fn func(r *Row) error) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOfLocked(key)
	if i < 0 {
		common.LogDebug("Update ignored, row not in formset", zap.String("key", key))
		return Row{}, common.ErrRowNotFound
	}
	// 先在副本上修改，失敗時不留下半套變更
	r := m.rows[i].clone()
	if err := fn(&r); err != nil {
		return Row{}, err
	}
	m.rows[i] = r
	return m.viewLocked(i), nil
}

// Row 依鍵取得列
func (m *Manager) Row(key string) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOfLocked(key)
	if i < 0 {
		return Row{}, false
	}
	return m.viewLocked(i), true
}

// DeclaredCount 對伺服器宣告的列數（TOTAL_FORMS）
func (m *Manager) DeclaredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declared
}

// Snapshot 取得目前狀態（過期的狀態訊息會被清掉）
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]Row, len(m.rows))
	for i := range m.rows {
		rows[i] = m.viewLocked(i)
	}
	return State{
		Prefix:        m.builder.Template().Prefix(),
		DeclaredCount: m.declared,
		InitialCount:  m.initial,
		Rows:          rows,
	}
}

// Restore 以快照還原狀態（session 重新載入時使用）
func (m *Manager) Restore(s State) error {
	if s.Prefix != "" && s.Prefix != m.builder.Template().Prefix() {
		return common.NewValidationError(fmt.Sprintf("snapshot prefix %q does not match %q", s.Prefix, m.builder.Template().Prefix()))
	}
	if s.DeclaredCount != len(s.Rows) || s.InitialCount > len(s.Rows) {
		return common.NewValidationError("snapshot row count is inconsistent")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = make([]Row, len(s.Rows))
	for i, r := range s.Rows {
		m.rows[i] = r.clone()
		m.builder.rewrite(&m.rows[i], i)
	}
	m.declared = s.DeclaredCount
	m.initial = s.InitialCount
	return nil
}

// FormData 依 Django 表單集格式編碼送出資料
func (m *Manager) FormData() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmpl := m.builder.Template()
	values := url.Values{}
	values.Set(tmpl.ManagementName(TotalForms), strconv.Itoa(m.declared))
	values.Set(tmpl.ManagementName(InitialForms), strconv.Itoa(m.initial))
	values.Set(tmpl.ManagementName(MinNumForms), "0")
	values.Set(tmpl.ManagementName(MaxNumForms), strconv.Itoa(defaultMaxNumForms))

	for _, r := range m.rows {
		for field, name := range r.Fields {
			switch field {
			case FieldID:
				if r.PersistedID > 0 {
					values.Set(name, strconv.FormatInt(r.PersistedID, 10))
				} else {
					values.Set(name, "")
				}
			case FieldName:
				if r.ManagedID > 0 {
					values.Set(name, strconv.FormatInt(r.ManagedID, 10))
				} else {
					values.Set(name, "")
				}
			case FieldQuantity:
				values.Set(name, r.Quantity)
			case FieldUnit:
				values.Set(name, r.Unit)
			case FieldDelete:
				// 未勾選的 checkbox 不會送出
				if r.Deleted && !r.IsNew() {
					values.Set(name, "on")
				}
			}
		}
	}
	return values
}

// Render 將所有列輸出為 HTML
func (m *Manager) Render() (string, error) {
	state := m.Snapshot()
	tmpl := m.builder.Template()

	var sb strings.Builder
	for _, r := range state.Rows {
		html, err := tmpl.Render(r)
		if err != nil {
			return "", err
		}
		sb.WriteString(html)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (m *Manager) indexOfLocked(key string) int {
	for i := range m.rows {
		if m.rows[i].Key == key {
			return i
		}
	}
	return -1
}

// viewLocked 回傳列的副本，並清除已過期的狀態訊息
func (m *Manager) viewLocked(i int) Row {
	if s := m.rows[i].Status; s != nil && !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
		m.rows[i].Status = nil
	}
	return m.rows[i].clone()
}
