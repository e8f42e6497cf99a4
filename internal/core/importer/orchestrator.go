package importer

import (
	"context"
	"sync"
	"time"

	"recipe-importer/internal/core/formset"
	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome 匯入結果
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailure        Outcome = "failure"
)

// 匯入的兩個子作業
const (
	StepMetadata    = "metadata"
	StepIngredients = "ingredients"
)

// Fetcher 爬蟲端點
type Fetcher interface {
	ScrapeMetadata(ctx context.Context, recipeURL string) (recipe.Metadata, error)
	ScrapeIngredients(ctx context.Context, recipeURL string) ([]recipe.ParsedIngredient, error)
}

// RowSink 接收匯入的食材列
type RowSink interface {
	ReplaceAll(items []formset.RowData) ([]formset.Row, []string)
}

// DetailsSink 接收匯入的食譜基本欄位
type DetailsSink interface {
	Merge(meta recipe.Metadata) []string
}

// Options 匯入參數
type Options struct {
	Domains   []string
	Timeout   time.Duration
	BannerTTL time.Duration
}

// StepError 子作業失敗原因
type StepError struct {
	Step    string `json:"step"`
	Code    string `json:"code"`
	Message string `json:"message"`
	err     error
}

// Unwrap 回傳原始錯誤
func (e StepError) Unwrap() error {
	return e.err
}

func (e StepError) Error() string {
	return e.Step + ": " + e.Message
}

// Result 一次匯入的結果
type Result struct {
	URL           string        `json:"url"`
	Outcome       Outcome       `json:"outcome"`
	UpdatedFields []string      `json:"updated_fields"`
	Rows          []formset.Row `json:"rows"`
	Discarded     []string      `json:"discarded,omitempty"`
	Errors        []StepError   `json:"errors,omitempty"`
	Banner        Banner        `json:"banner"`
	Duration      time.Duration `json:"duration"`
}

// Failed 失敗的子作業
func (r Result) Failed() []string {
	steps := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		steps = append(steps, e.Step)
	}
	return steps
}

// Orchestrator 匯入流程：驗證網址、並行抓取基本資料與食材、各自套用
type Orchestrator struct {
	opts    Options
	fetcher Fetcher
	rows    RowSink
	details DetailsSink
	board   *Board

	mu        sync.Mutex
	importing bool
}

// New 創建匯入流程
func New(opts Options, fetcher Fetcher, rows RowSink, details DetailsSink) *Orchestrator {
	if len(opts.Domains) == 0 {
		opts.Domains = DefaultDomains
	}
	return &Orchestrator{
		opts:    opts,
		fetcher: fetcher,
		rows:    rows,
		details: details,
		board:   NewBoard(opts.BannerTTL),
	}
}

// Board 匯入狀態橫幅
func (o *Orchestrator) Board() *Board {
	return o.board
}

// Importing 是否有匯入正在進行
func (o *Orchestrator) Importing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.importing
}

// Import 從網址匯入食譜
//
// 兩個抓取互不影響：任一方失敗時另一方的結果仍會套用。
// 兩方都失敗時 Outcome 為 failure，不會回傳 error；error 只用於網址不合法或已有匯入進行中。
func (o *Orchestrator) Import(ctx context.Context, rawURL string) (Result, error) {
	u, err := ValidateURL(rawURL, o.opts.Domains)
	if err != nil {
		o.board.Show(BannerError, invalidURLMessage)
		return Result{}, err
	}
	recipeURL := u.String()

	o.mu.Lock()
	if o.importing {
		o.mu.Unlock()
		return Result{}, common.ErrImportInProgress
	}
	o.importing = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.importing = false
		o.mu.Unlock()
	}()

	o.board.Show(BannerInfo, "Importing recipe...")
	start := time.Now()
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	var (
		result           = Result{URL: recipeURL}
		metaErr, ingrErr error
	)
	// 不使用 WithContext：一方失敗不可取消另一方
	var g errgroup.Group
	g.Go(func() error {
		meta, err := o.fetcher.ScrapeMetadata(ctx, recipeURL)
		if err != nil {
			metaErr = err
			return nil
		}
		result.UpdatedFields = o.details.Merge(meta)
		return nil
	})
	g.Go(func() error {
		items, err := o.fetcher.ScrapeIngredients(ctx, recipeURL)
		if err != nil {
			ingrErr = err
			return nil
		}
		if len(items) == 0 {
			common.LogWarn("No ingredients found in scraped recipe", zap.String("url", recipeURL))
			return nil
		}
		data := make([]formset.RowData, len(items))
		for i, item := range items {
			data[i] = formset.RowDataFromParsed(item)
		}
		result.Rows, result.Discarded = o.rows.ReplaceAll(data)
		return nil
	})
	_ = g.Wait()

	if metaErr != nil {
		result.Errors = append(result.Errors, stepError(StepMetadata, metaErr))
	}
	if ingrErr != nil {
		result.Errors = append(result.Errors, stepError(StepIngredients, ingrErr))
	}

	switch len(result.Errors) {
	case 0:
		result.Outcome = OutcomeSuccess
		result.Banner = o.board.Show(BannerSuccess, "Recipe imported successfully!")
	case 1:
		result.Outcome = OutcomePartialFailure
		result.Banner = o.board.Show(BannerWarning, "Recipe imported with some errors. Please check the form.")
	default:
		result.Outcome = OutcomeFailure
		result.Banner = o.board.Show(BannerError, "Import failed: "+result.Errors[0].Message)
	}
	result.Duration = time.Since(start)

	common.LogInfo("Recipe import finished",
		zap.String("url", recipeURL),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("rows", len(result.Rows)),
		zap.Strings("updated_fields", result.UpdatedFields),
		zap.Strings("failed", result.Failed()),
		zap.Duration("耗時", result.Duration),
	)
	return result, nil
}

func stepError(step string, err error) StepError {
	common.LogWarn("Failed to import recipe "+step, zap.Error(err))
	return StepError{Step: step, Code: common.CodeOf(err), Message: err.Error(), err: err}
}
