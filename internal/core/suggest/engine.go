package suggest

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"recipe-importer/internal/core/cache"
	"recipe-importer/internal/core/formset"
	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
)

// Phase 輸入欄位的建議狀態
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePending   Phase = "pending"
	PhaseDisplayed Phase = "displayed"
)

// 鍵盤操作
const (
	KeyArrowDown = "ArrowDown"
	KeyArrowUp   = "ArrowUp"
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
)

// Querier 查詢建議的網路端點
type Querier interface {
	Suggest(ctx context.Context, query string) ([]recipe.ManagedIngredient, error)
}

// Committer 將選取的標準食材寫回列上
type Committer interface {
	SetManaged(key string, ing recipe.ManagedIngredient) (formset.Row, error)
}

// Registrar 登錄查詢到的標準食材
type Registrar interface {
	RegisterAll(ings []recipe.ManagedIngredient)
}

// Options 建議引擎參數
type Options struct {
	Debounce       time.Duration
	MinQueryLength int
	CacheSize      int
	BlurGrace      time.Duration
	RequestTimeout time.Duration
}

// DefaultOptions 預設參數
func DefaultOptions() Options {
	return Options{
		Debounce:       300 * time.Millisecond,
		MinQueryLength: 2,
		CacheSize:      100,
		BlurGrace:      200 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
}

// View 欄位目前的建議狀態
type View struct {
	Key         string                     `json:"key"`
	Phase       Phase                      `json:"phase"`
	Text        string                     `json:"text"`
	Query       string                     `json:"query,omitempty"`
	Suggestions []recipe.ManagedIngredient `json:"suggestions"`
	Highlight   int                        `json:"highlight"`
}

type field struct {
	text      string
	phase     Phase
	seq       uint64
	query     string
	results   []recipe.ManagedIngredient
	highlight int
	debounce  *time.Timer
	blur      *time.Timer
}

func (f *field) stopTimers() {
	if f.debounce != nil {
		f.debounce.Stop()
		f.debounce = nil
	}
	if f.blur != nil {
		f.blur.Stop()
		f.blur = nil
	}
}

// hide 回到 Idle，並讓所有進行中的查詢失效
func (f *field) hide() {
	f.seq++
	f.phase = PhaseIdle
	f.query = ""
	f.results = nil
	f.highlight = -1
	if f.debounce != nil {
		f.debounce.Stop()
		f.debounce = nil
	}
}

// Engine 建議引擎：每個欄位各自的防抖計時器、共用的查詢快取
type Engine struct {
	opts      Options
	querier   Querier
	committer Committer
	registrar Registrar
	cache     *cache.FIFO[[]recipe.ManagedIngredient]

	mu     sync.Mutex
	fields map[string]*field
	closed bool
}

// NewEngine 創建新的建議引擎，registrar 可為 nil
func NewEngine(opts Options, querier Querier, committer Committer, registrar Registrar) *Engine {
	def := DefaultOptions()
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = def.MinQueryLength
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	return &Engine{
		opts:      opts,
		querier:   querier,
		committer: committer,
		registrar: registrar,
		cache:     cache.NewFIFO[[]recipe.ManagedIngredient]("suggestion", opts.CacheSize),
		fields:    make(map[string]*field),
	}
}

func (e *Engine) fieldLocked(key string) *field {
	f, ok := e.fields[key]
	if !ok {
		f = &field{phase: PhaseIdle, highlight: -1}
		e.fields[key] = f
	}
	return f
}

// Input 文字變更：長度足夠時進入 Pending 並重新開始防抖計時
func (e *Engine) Input(key, text string) View {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.fieldLocked(key)
	f.text = text
	e.scheduleLocked(key, f, e.opts.Debounce)
	return e.viewLocked(key, f)
}

// Focus 取得焦點：文字長度足夠時立即重新查詢（通常由快取回應）
func (e *Engine) Focus(key string) View {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.fieldLocked(key)
	if f.blur != nil {
		f.blur.Stop()
		f.blur = nil
	}
	if e.longEnough(f.text) {
		e.scheduleLocked(key, f, 0)
	}
	return e.viewLocked(key, f)
}

// Blur 失去焦點：寬限時間後隱藏建議，讓點擊有機會先完成
func (e *Engine) Blur(key string) View {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.fieldLocked(key)
	if f.blur != nil {
		f.blur.Stop()
	}
	if e.opts.BlurGrace <= 0 {
		f.hide()
		return e.viewLocked(key, f)
	}
	f.blur = time.AfterFunc(e.opts.BlurGrace, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if cur, ok := e.fields[key]; ok && cur == f {
			f.blur = nil
			f.hide()
		}
	})
	return e.viewLocked(key, f)
}

func (e *Engine) longEnough(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= e.opts.MinQueryLength
}

func (e *Engine) scheduleLocked(key string, f *field, delay time.Duration) {
	if !e.longEnough(f.text) {
		f.hide()
		return
	}
	if e.closed {
		return
	}
	if f.debounce != nil {
		f.debounce.Stop()
	}
	f.seq++
	f.phase = PhasePending
	seq := f.seq
	f.debounce = time.AfterFunc(delay, func() { e.fire(key, seq) })
}

// fire 防抖時間到：先查快取，未命中才呼叫網路
func (e *Engine) fire(key string, seq uint64) {
	e.mu.Lock()
	f, ok := e.fields[key]
	if !ok || f.seq != seq {
		e.mu.Unlock()
		return
	}
	f.debounce = nil
	query := strings.TrimSpace(f.text)
	cacheKey := common.NormalizeName(query)
	if results, hit := e.cache.Get(cacheKey); hit {
		e.applyLocked(f, query, results)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.RequestTimeout)
	defer cancel()
	start := time.Now()
	results, err := e.querier.Suggest(ctx, query)
	if err != nil {
		common.LogWarn("Error fetching suggestions",
			zap.String("query", query),
			zap.Duration("耗時", time.Since(start)),
			zap.Error(err),
		)
		e.mu.Lock()
		if cur, ok := e.fields[key]; ok && cur == f && f.seq == seq {
			f.hide()
		}
		e.mu.Unlock()
		return
	}

	// 空結果也快取，避免重複查詢
	e.cache.Set(cacheKey, results)
	if e.registrar != nil {
		e.registrar.RegisterAll(results)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.fields[key]; !ok || cur != f || f.seq != seq {
		common.LogDebug("Discarding stale suggestions",
			zap.String("query", query),
			zap.String("code", common.ErrStaleResponse.Code),
		)
		return
	}
	e.applyLocked(f, query, results)
}

func (e *Engine) applyLocked(f *field, query string, results []recipe.ManagedIngredient) {
	f.query = query
	f.highlight = -1
	if len(results) == 0 {
		f.phase = PhaseIdle
		f.results = nil
		return
	}
	f.phase = PhaseDisplayed
	f.results = results
}

// Key 鍵盤操作：方向鍵移動選取、Enter 確認、Escape 取消
func (e *Engine) Key(key, k string) (View, error) {
	e.mu.Lock()
	f := e.fieldLocked(key)

	switch k {
	case KeyArrowDown, KeyArrowUp:
		if f.phase == PhaseDisplayed && len(f.results) > 0 {
			if k == KeyArrowDown {
				f.highlight = min(f.highlight+1, len(f.results)-1)
			} else {
				f.highlight = max(f.highlight-1, 0)
			}
		}
	case KeyEscape:
		f.hide()
	case KeyEnter:
		if f.phase == PhaseDisplayed && f.highlight >= 0 && f.highlight < len(f.results) {
			index := f.highlight
			e.mu.Unlock()
			return e.Select(key, index)
		}
	default:
		e.mu.Unlock()
		return View{}, common.NewValidationError("unsupported key: " + k)
	}

	v := e.viewLocked(key, f)
	e.mu.Unlock()
	return v, nil
}

// Select 選取目前顯示的第 index 個建議，寫回列上並回到 Idle
func (e *Engine) Select(key string, index int) (View, error) {
	e.mu.Lock()
	f := e.fieldLocked(key)
	if f.phase != PhaseDisplayed || index < 0 || index >= len(f.results) {
		e.mu.Unlock()
		return View{}, common.NewValidationError("no suggestion at that position")
	}
	ing := f.results[index]
	e.mu.Unlock()

	return e.Commit(key, ing)
}

// Commit 將標準食材寫回列上，並關閉該欄位的建議
func (e *Engine) Commit(key string, ing recipe.ManagedIngredient) (View, error) {
	if _, err := e.committer.SetManaged(key, ing); err != nil {
		return View{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.fieldLocked(key)
	f.text = ing.Name
	f.hide()
	if f.blur != nil {
		f.blur.Stop()
		f.blur = nil
	}
	common.LogDebug("Selected suggestion", zap.String("name", ing.Name), zap.Int64("id", ing.ID))
	return e.viewLocked(key, f), nil
}

// View 取得欄位目前狀態
func (e *Engine) View(key string) View {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.fields[key]
	if !ok {
		return View{Key: key, Phase: PhaseIdle, Highlight: -1}
	}
	return e.viewLocked(key, f)
}

func (e *Engine) viewLocked(key string, f *field) View {
	out := make([]recipe.ManagedIngredient, len(f.results))
	copy(out, f.results)
	return View{
		Key:         key,
		Phase:       f.phase,
		Text:        f.text,
		Query:       f.query,
		Suggestions: out,
		Highlight:   f.highlight,
	}
}

// Forget 列被移除時釋放欄位狀態
func (e *Engine) Forget(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.fields[key]; ok {
		f.stopTimers()
		delete(e.fields, key)
	}
}

// Reset 釋放所有欄位狀態（快取保留）
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, f := range e.fields {
		f.stopTimers()
		delete(e.fields, key)
	}
}

// Close 停止所有計時器，之後不再發出查詢
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.Reset()
}

// CacheStats 查詢快取統計
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.GetStats()
}

// ClearCache 清空查詢快取
func (e *Engine) ClearCache() {
	e.cache.Clear()
}
