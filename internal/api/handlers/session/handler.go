package session

import (
	"errors"
	"net/http"

	"recipe-importer/internal/core/formset"
	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/pkg/common"
	sessionSvc "recipe-importer/internal/session"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 編輯工作階段 API
type Handler struct {
	sessions *sessionSvc.Manager
	debug    bool
}

// NewHandler 創建處理器；debug 時錯誤回應附上原始錯誤
func NewHandler(sessions *sessionSvc.Manager, debug bool) *Handler {
	return &Handler{sessions: sessions, debug: debug}
}

// CreateSessionRequest 建立工作階段請求
// rows: 已存在於資料庫的食材列（需帶 persisted_id）
type CreateSessionRequest struct {
	Rows    []formset.RowData   `json:"rows"`
	Details *recipe.DetailsView `json:"details,omitempty"`
}

// HandleCreate 建立工作階段
func (h *Handler) HandleCreate(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := common.DecodeJSONStrict(c.Request.Body, &req); err != nil {
			common.LogWarn("請求格式無效",
				zap.Error(err),
				zap.String("request_id", requestid.Get(c)),
			)
			h.respondError(c, common.NewValidationError("Invalid request format"))
			return
		}
	}

	init := sessionSvc.Init{Rows: req.Rows}
	if req.Details != nil {
		init.Details = *req.Details
	}

	s, err := h.sessions.Create(c.Request.Context(), init)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.Snapshot())
}

// HandleGet 取得工作階段快照
func (h *Handler) HandleGet(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// HandleDelete 刪除工作階段
func (h *Handler) HandleDelete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSetDetails 手動編輯食譜基本欄位
func (h *Handler) HandleSetDetails(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var view recipe.DetailsView
	if !h.bind(c, &view) {
		return
	}
	if view.Servings < 0 {
		h.respondError(c, common.NewValidationError("servings must not be negative"))
		return
	}

	s.SetDetails(view)
	h.save(c, s)
	c.JSON(http.StatusOK, s.Details())
}

// HandleClear 清空表單
func (h *Handler) HandleClear(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Clear()
	h.save(c, s)
	c.JSON(http.StatusOK, s.Snapshot())
}

// FormDataResponse 表單集送出資料
type FormDataResponse struct {
	Fields  map[string]string `json:"fields"`
	Encoded string            `json:"encoded"`
}

// HandleFormData 取得 Django 表單集送出資料
func (h *Handler) HandleFormData(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	values := s.FormData()
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	c.JSON(http.StatusOK, FormDataResponse{Fields: fields, Encoded: values.Encode()})
}

// HandleRenderRows 取得所有列的 HTML
func (h *Handler) HandleRenderRows(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	html, err := s.RenderRows()
	if err != nil {
		h.respondError(c, common.ErrInternalError.Wrap(err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// HandleStats 快取統計
func (h *Handler) HandleStats(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Stats())
}

// HandleClearSuggestionCache 清空建議快取
func (h *Handler) HandleClearSuggestionCache(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.ClearSuggestionCache()
	c.Status(http.StatusNoContent)
}

// session 依路徑參數取得工作階段，找不到時直接回應錯誤
func (h *Handler) session(c *gin.Context) (*sessionSvc.Session, bool) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return s, true
}

// save 變更後同步快照
func (h *Handler) save(c *gin.Context, s *sessionSvc.Session) {
	h.sessions.Save(c.Request.Context(), s)
}

// bind 解析 JSON 請求體
func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		common.LogWarn("請求格式無效",
			zap.Error(err),
			zap.String("request_id", requestid.Get(c)),
			zap.String("path", c.FullPath()),
		)
		h.respondError(c, common.NewValidationError("Invalid request format"))
		return false
	}
	return true
}

// errorBody 將錯誤轉為 API 錯誤響應
func (h *Handler) errorBody(err error) common.ErrorResponse {
	resp := common.ErrorResponse{Code: common.CodeOf(err)}
	var ce *common.CustomError
	switch {
	case common.IsValidationError(err):
		resp.Message = err.Error()
	case errors.As(err, &ce):
		resp.Message = ce.Message
		if h.debug && ce.Err != nil {
			resp.Details = ce.Err.Error()
		}
	default:
		resp.Message = "Internal server error"
		if h.debug {
			resp.Details = err.Error()
		}
	}
	return resp
}

// respondError 依錯誤類型回應對應狀態碼
func (h *Handler) respondError(c *gin.Context, err error) {
	status := common.StatusOf(err)
	if status >= http.StatusInternalServerError {
		common.LogError("Request failed",
			zap.Error(err),
			zap.String("request_id", requestid.Get(c)),
			zap.String("path", c.FullPath()),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, h.errorBody(err))
}
