package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"recipe-importer/internal/core/cache"
	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
)

// DefaultCapacity 預設快取容量
const DefaultCapacity = 100

// Creator 建立標準食材的後端端點
type Creator interface {
	CreateManaged(ctx context.Context, name string) (recipe.ManagedIngredient, error)
}

// Lister 列出標準食材（以空字串查詢自動完成端點）
type Lister interface {
	Suggest(ctx context.Context, query string) ([]recipe.ManagedIngredient, error)
}

// Registry 標準食材登錄表：以小寫名稱為鍵的有界快取
//
// 同名的 CreateManaged 並行呼叫不會在這裡合併，伺服器負責唯一性。
type Registry struct {
	entries *cache.FIFO[recipe.ManagedIngredient]
	creator Creator
}

// New 創建新的標準食材登錄表
func New(capacity int, creator Creator) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		entries: cache.NewFIFO[recipe.ManagedIngredient]("managed_ingredient", capacity),
		creator: creator,
	}
}

// Resolve 不分大小寫查詢標準食材，不會呼叫網路
func (r *Registry) Resolve(name string) (recipe.ManagedIngredient, bool) {
	key := common.NormalizeName(name)
	if key == "" {
		return recipe.ManagedIngredient{}, false
	}
	return r.entries.Peek(key)
}

// Register 新增或覆寫快取項目，超過容量時淘汰最早插入的項目
func (r *Registry) Register(ing recipe.ManagedIngredient) {
	if !ing.Valid() {
		common.LogDebug("Ignoring invalid managed ingredient",
			zap.Int64("id", ing.ID),
			zap.String("name", ing.Name),
		)
		return
	}
	r.entries.Set(common.NormalizeName(ing.Name), ing)
}

// RegisterAll 批次登錄
func (r *Registry) RegisterAll(ings []recipe.ManagedIngredient) {
	for _, ing := range ings {
		r.Register(ing)
	}
}

// CreateManaged 透過後端建立新的標準食材，成功後登錄並回傳
func (r *Registry) CreateManaged(ctx context.Context, name string) (recipe.ManagedIngredient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return recipe.ManagedIngredient{}, common.NewValidationError("Please enter an ingredient name first.")
	}
	if r.creator == nil {
		return recipe.ManagedIngredient{}, common.ErrCreationFailed.WithMessage("no creation endpoint configured")
	}

	start := time.Now()
	ing, err := r.creator.CreateManaged(ctx, name)
	if err != nil {
		common.LogWarn("Failed to create managed ingredient",
			zap.String("name", name),
			zap.Duration("耗時", time.Since(start)),
			zap.Error(err),
		)
		if errors.Is(err, common.ErrCreationFailed) || errors.Is(err, common.ErrNetworkFailure) {
			return recipe.ManagedIngredient{}, err
		}
		return recipe.ManagedIngredient{}, common.ErrCreationFailed.Wrap(err)
	}
	if !ing.Valid() {
		return recipe.ManagedIngredient{}, common.ErrCreationFailed.WithMessage("server returned an incomplete ingredient")
	}

	r.Register(ing)
	common.LogInfo("Managed ingredient created",
		zap.Int64("id", ing.ID),
		zap.String("name", ing.Name),
		zap.Duration("耗時", time.Since(start)),
	)
	return ing, nil
}

// Prime 從自動完成端點載入全部標準食材；失敗只記錄，不視為致命錯誤
func (r *Registry) Prime(ctx context.Context, lister Lister) int {
	if lister == nil {
		return 0
	}
	ings, err := lister.Suggest(ctx, "")
	if err != nil {
		common.LogWarn("Failed to load ingredient cache", zap.Error(err))
		return 0
	}
	r.RegisterAll(ings)
	common.LogInfo("Loaded ingredient cache", zap.Int("count", r.Len()))
	return len(ings)
}

// Len 目前快取項目數
func (r *Registry) Len() int {
	return r.entries.Len()
}

// Stats 快取統計
func (r *Registry) Stats() cache.Stats {
	return r.entries.GetStats()
}
