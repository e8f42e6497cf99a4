package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"recipe-importer/internal/core/formset"
	"recipe-importer/internal/core/importer"
	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/core/registry"
	"recipe-importer/internal/core/suggest"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
)

// Backend 編輯工作階段需要的所有網路端點
type Backend interface {
	suggest.Querier
	registry.Creator
	importer.Fetcher
}

// Init 建立工作階段時的初始資料
type Init struct {
	Rows    []formset.RowData  `json:"rows"`
	Details recipe.DetailsView `json:"details"`
}

// Snapshot 工作階段狀態快照
type Snapshot struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Details   recipe.DetailsView `json:"details"`
	Formset   formset.State      `json:"formset"`
	Banner    importer.Banner    `json:"banner"`
	Importing bool               `json:"importing"`
}

// Session 一個食譜編輯工作階段（一份表單集狀態）
type Session struct {
	ID        string
	CreatedAt time.Time

	rows     *formset.Manager
	details  *recipe.Details
	registry *registry.Registry
	engine   *suggest.Engine
	importer *importer.Orchestrator

	closeOnce sync.Once
}

// Factory 依設定組裝工作階段
type Factory struct {
	cfg     *config.Config
	backend Backend
	tmpl    *formset.Template
}

// NewFactory 創建工作階段工廠
func NewFactory(cfg *config.Config, backend Backend) (*Factory, error) {
	tmpl, err := formset.LoadTemplate(cfg.Formset.TemplateFile, cfg.Formset.Prefix)
	if err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, backend: backend, tmpl: tmpl}, nil
}

func (f *Factory) build(id string, createdAt time.Time) *Session {
	reg := registry.New(f.cfg.Registry.Capacity, f.backend)
	rows := formset.NewManager(formset.NewBuilder(f.tmpl, reg), f.cfg.RowStatusTTL)
	details := recipe.NewDetails(recipe.DetailsView{})

	engine := suggest.NewEngine(suggest.Options{
		Debounce:       f.cfg.Suggest.Debounce,
		MinQueryLength: f.cfg.Suggest.MinQueryLength,
		CacheSize:      f.cfg.Suggest.CacheSize,
		BlurGrace:      f.cfg.Suggest.BlurGrace,
		RequestTimeout: f.cfg.Suggest.RequestTimeout,
	}, f.backend, rows, reg)

	orch := importer.New(importer.Options{
		Domains:   f.cfg.Import.SupportedDomains,
		Timeout:   f.cfg.Import.Timeout,
		BannerTTL: f.cfg.Import.BannerTTL,
	}, f.backend, rows, details)

	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		rows:      rows,
		details:   details,
		registry:  reg,
		engine:    engine,
		importer:  orch,
	}
}

// New 建立新的工作階段，並視設定預先載入標準食材
func (f *Factory) New(ctx context.Context, init Init) (*Session, error) {
	s := f.build(common.GenerateUUID(), time.Now())
	// 先載入標準食材，既有列才能自動連結
	if f.cfg.Registry.PrimeOnStart {
		s.registry.Prime(ctx, f.backend)
	}
	s.details.Set(init.Details)
	if err := s.rows.Load(init.Rows); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Restore 以快照重建工作階段
func (f *Factory) Restore(snap Snapshot) (*Session, error) {
	s := f.build(snap.ID, snap.CreatedAt)
	s.details.Set(snap.Details)
	if err := s.rows.Restore(snap.Formset); err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", snap.ID, err)
	}
	// 已存在的標準食材重新登錄，讓建列時仍可自動連結
	for _, r := range snap.Formset.Rows {
		if ing, ok := r.Managed(); ok {
			s.registry.Register(ing)
		}
	}
	return s, nil
}

// Snapshot 取得目前狀態
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Details:   s.details.Snapshot(),
		Formset:   s.rows.Snapshot(),
		Banner:    s.importer.Board().Current(),
		Importing: s.importer.Importing(),
	}
}

// Details 目前的食譜基本欄位
func (s *Session) Details() recipe.DetailsView {
	return s.details.Snapshot()
}

// SetDetails 手動編輯食譜基本欄位
func (s *Session) SetDetails(view recipe.DetailsView) {
	s.details.Set(view)
}

// AddRow 新增一列
func (s *Session) AddRow(data formset.RowData) formset.Row {
	return s.rows.AddRow(data)
}

// RemoveRow 移除一列，並釋放該列的建議狀態
func (s *Session) RemoveRow(key string) (formset.Row, bool) {
	s.engine.Forget(key)
	return s.rows.RemoveRow(key)
}

// UpdateRow 套用手動修改；名稱變更等同輸入文字
func (s *Session) UpdateRow(key string, patch formset.RowPatch) (formset.Row, error) {
	row, err := s.rows.Update(key, patch)
	if err != nil {
		return formset.Row{}, err
	}
	if patch.Name != nil {
		s.engine.Input(key, *patch.Name)
	}
	return row, nil
}

// Row 依鍵取得列
func (s *Session) Row(key string) (formset.Row, error) {
	row, ok := s.rows.Row(key)
	if !ok {
		return formset.Row{}, common.ErrRowNotFound
	}
	return row, nil
}

// Input 使用者在列上輸入食材名稱
func (s *Session) Input(key, text string) (formset.Row, suggest.View, error) {
	row, err := s.rows.SetText(key, text)
	if err != nil {
		return formset.Row{}, suggest.View{}, err
	}
	return row, s.engine.Input(key, text), nil
}

// Focus 列的名稱欄位取得焦點
func (s *Session) Focus(key string) (suggest.View, error) {
	if _, err := s.Row(key); err != nil {
		return suggest.View{}, err
	}
	return s.engine.Focus(key), nil
}

// Blur 列的名稱欄位失去焦點
func (s *Session) Blur(key string) (suggest.View, error) {
	if _, err := s.Row(key); err != nil {
		return suggest.View{}, err
	}
	return s.engine.Blur(key), nil
}

// Key 鍵盤操作
func (s *Session) Key(key, k string) (suggest.View, error) {
	if _, err := s.Row(key); err != nil {
		return suggest.View{}, err
	}
	return s.engine.Key(key, k)
}

// Select 點選建議
func (s *Session) Select(key string, index int) (suggest.View, error) {
	if _, err := s.Row(key); err != nil {
		return suggest.View{}, err
	}
	return s.engine.Select(key, index)
}

// Suggestions 列目前的建議狀態
func (s *Session) Suggestions(key string) (suggest.View, error) {
	if _, err := s.Row(key); err != nil {
		return suggest.View{}, err
	}
	return s.engine.View(key), nil
}

// CreateManaged 以列目前的文字建立標準食材；結果顯示在列的狀態訊息
func (s *Session) CreateManaged(ctx context.Context, key string) (formset.Row, error) {
	row, err := s.Row(key)
	if err != nil {
		return formset.Row{}, err
	}

	ing, err := s.registry.CreateManaged(ctx, row.DisplayName)
	if err != nil {
		msg := err.Error()
		var ce *common.CustomError
		switch {
		case common.IsValidationError(err):
		case errors.As(err, &ce):
			msg = "Error: " + ce.Message
		default:
			msg = "Error: " + msg
		}
		if updated, serr := s.rows.SetStatus(key, formset.LevelError, msg); serr == nil {
			row = updated
		}
		return row, err
	}

	if _, err := s.engine.Commit(key, ing); err != nil {
		return formset.Row{}, err
	}
	return s.rows.SetStatus(key, formset.LevelSuccess, fmt.Sprintf("Created '%s' successfully!", ing.Name))
}

// Import 從網址匯入食譜
func (s *Session) Import(ctx context.Context, recipeURL string) (importer.Result, error) {
	res, err := s.importer.Import(ctx, recipeURL)
	if err != nil {
		return res, err
	}
	// 只釋放被匯入取代的列，匯入期間使用者新增的列不受影響
	for _, key := range res.Discarded {
		s.engine.Forget(key)
	}
	return res, nil
}

// Clear 清空表單：基本欄位清空、新列丟棄、既有列標記刪除、隱藏橫幅
func (s *Session) Clear() {
	s.details.Set(recipe.DetailsView{})
	s.rows.Reset()
	s.engine.Reset()
	s.importer.Board().Hide()
	common.LogInfo("Cleared all ingredient forms", zap.String("session", s.ID))
}

// FormData Django 表單集送出資料
func (s *Session) FormData() url.Values {
	return s.rows.FormData()
}

// RenderRows 所有列的 HTML
func (s *Session) RenderRows() (string, error) {
	return s.rows.Render()
}

// Stats 快取統計
func (s *Session) Stats() map[string]interface{} {
	return map[string]interface{}{
		"registry":    s.registry.Stats(),
		"suggestions": s.engine.CacheStats(),
	}
}

// ClearSuggestionCache 清空建議快取
func (s *Session) ClearSuggestionCache() {
	s.engine.ClearCache()
}

// Close 停止所有計時器
func (s *Session) Close() {
	s.closeOnce.Do(s.engine.Close)
}
