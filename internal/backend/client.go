package backend

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// 食譜網站後端端點
const (
	PathAutocomplete  = "/recipes/ingredients/autocomplete/"
	PathCreateManaged = "/add-managed-ingredient/"
	PathScrapeDetails = "/scrape-recipe-details/"
	PathScrapeRecipe  = "/scrape-recipe/"

	csrfHeader = "X-CSRFToken"
	csrfCookie = "csrftoken"
)

// Client 食譜網站後端客戶端
type Client struct {
	client    *resty.Client
	csrfToken string
}

// NewClient 創建後端客戶端
func NewClient(cfg config.BackendConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryIdempotent)

	return &Client{
		client:    client,
		csrfToken: cfg.CSRFToken,
	}
}

// retryIdempotent 只重試 GET，且只在連線錯誤或 5xx 時重試
func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

// Suggest 查詢名稱包含 query 的標準食材；空字串會回傳全部
func (c *Client) Suggest(ctx context.Context, query string) ([]recipe.ManagedIngredient, error) {
	body, err := c.get(ctx, PathAutocomplete, "q", query)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, common.ErrNetworkFailure.WithMessage("autocomplete returned a non-list payload")
	}
	var out []recipe.ManagedIngredient
	parsed.ForEach(func(_, item gjson.Result) bool {
		ing := recipe.ManagedIngredient{ID: item.Get("id").Int(), Name: item.Get("name").String()}
		if ing.Valid() {
			out = append(out, ing)
		}
		return true
	})
	return out, nil
}

// CreateManaged 建立標準食材（伺服器以不分大小寫的名稱 get-or-create）
func (c *Client) CreateManaged(ctx context.Context, name string) (recipe.ManagedIngredient, error) {
	if c.csrfToken == "" {
		return recipe.ManagedIngredient{}, common.ErrCreationFailed.WithMessage("CSRF token not found")
	}

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(csrfHeader, c.csrfToken).
		SetCookie(&http.Cookie{Name: csrfCookie, Value: c.csrfToken}).
		SetFormData(map[string]string{"name": name}).
		Post(PathCreateManaged)
	common.LogBackendCall(PathCreateManaged, time.Since(start), err)
	if err != nil {
		return recipe.ManagedIngredient{}, common.ErrNetworkFailure.Wrap(err)
	}

	body := gjson.ParseBytes(resp.Body())
	reason := body.Get("error").String()
	switch {
	case resp.StatusCode() >= http.StatusInternalServerError:
		return recipe.ManagedIngredient{}, common.ErrNetworkFailure.WithMessage(
			fmt.Sprintf("HTTP error! status: %d", resp.StatusCode()))
	case resp.StatusCode() != http.StatusOK || reason != "":
		if reason == "" {
			reason = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode())
		}
		return recipe.ManagedIngredient{}, common.ErrCreationFailed.WithMessage(reason)
	}

	ing := recipe.ManagedIngredient{ID: body.Get("id").Int(), Name: body.Get("name").String()}
	if !ing.Valid() {
		return recipe.ManagedIngredient{}, common.ErrCreationFailed.WithMessage("Failed to create ingredient")
	}
	return ing, nil
}

// ScrapeMetadata 取得食譜標題、描述與份量；來源沒有提供的欄位保持 nil
func (c *Client) ScrapeMetadata(ctx context.Context, recipeURL string) (recipe.Metadata, error) {
	body, err := c.get(ctx, PathScrapeDetails, "url", recipeURL)
	if err != nil {
		return recipe.Metadata{}, err
	}

	parsed := gjson.ParseBytes(body)
	if reason := parsed.Get("error"); reason.Exists() && reason.String() != "" {
		return recipe.Metadata{}, common.ErrNetworkFailure.WithMessage(reason.String())
	}

	var meta recipe.Metadata
	if v := parsed.Get("title"); v.Exists() && v.Type != gjson.Null {
		s := v.String()
		meta.Title = &s
	}
	if v := parsed.Get("description"); v.Exists() && v.Type != gjson.Null {
		s := v.String()
		meta.Description = &s
	}
	if n, ok := parseServings(parsed.Get("servings")); ok {
		meta.Servings = &n
	}
	return meta, nil
}

var servingsUnit = regexp.MustCompile(`\s+\p{L}.*$`)

// parseServings 份量可能是數字或「4 portioner」「4-6 portioner」這類文字，範圍取上限
func parseServings(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		return int(v.Int()), true
	case gjson.String:
		text := servingsUnit.ReplaceAllString(strings.TrimSpace(v.String()), "")
		n, ok := recipe.ParseQuantity(text)
		if !ok || n <= 0 {
			return 0, false
		}
		return int(math.Ceil(n)), true
	}
	return 0, false
}

// ScrapeIngredients 取得解析後的食材清單
func (c *Client) ScrapeIngredients(ctx context.Context, recipeURL string) ([]recipe.ParsedIngredient, error) {
	body, err := c.get(ctx, PathScrapeRecipe, "url", recipeURL)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if reason := parsed.Get("error"); reason.Exists() && reason.String() != "" {
		return nil, common.ErrNetworkFailure.WithMessage(reason.String())
	}
	list := parsed.Get("ingredients")
	if !list.IsArray() {
		return nil, common.ErrNetworkFailure.WithMessage("scrape response has no ingredient list")
	}

	out := make([]recipe.ParsedIngredient, 0, len(list.Array()))
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, parseIngredient(item))
		return true
	})
	return out, nil
}

func parseIngredient(item gjson.Result) recipe.ParsedIngredient {
	p := recipe.ParsedIngredient{
		OriginalName: item.Get("original_name").String(),
		Unit:         item.Get("unit").String(),
	}
	if p.OriginalName == "" {
		p.OriginalName = item.Get("name").String()
	}

	// 數量可能是 {source, parsedValue} 物件或單純的值
	q := item.Get("quantity")
	switch {
	case q.IsObject():
		p.QuantitySource = q.Get("source").String()
		if v := q.Get("parsedValue"); v.Type == gjson.Number {
			f := v.Float()
			p.QuantityParsed = &f
		}
	case q.Type == gjson.Number:
		f := q.Float()
		p.QuantityParsed = &f
		p.QuantitySource = q.Raw
	case q.Type == gjson.String:
		p.QuantitySource = q.String()
	}

	if m := item.Get("managed_ingredient"); m.IsObject() {
		match := &recipe.ManagedMatch{
			Name:   m.Get("name").String(),
			Action: m.Get("action").String(),
		}
		if id := m.Get("id"); id.Type == gjson.Number {
			match.ID = id.Int()
		}
		p.ManagedMatch = match
	}
	return p
}

func (c *Client) get(ctx context.Context, path, param, value string) ([]byte, error) {
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam(param, value).
		Get(path)
	common.LogBackendCall(path, time.Since(start), err)
	if err != nil {
		return nil, common.ErrNetworkFailure.Wrap(err)
	}
	if resp.StatusCode() != http.StatusOK {
		msg := fmt.Sprintf("%s returned status %d", path, resp.StatusCode())
		if reason := gjson.GetBytes(resp.Body(), "error").String(); reason != "" {
			msg = reason
		}
		common.LogWarn("Backend returned error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
		)
		return nil, common.ErrNetworkFailure.WithMessage(msg)
	}
	return resp.Body(), nil
}
