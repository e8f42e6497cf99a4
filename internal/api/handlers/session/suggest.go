package session

import (
	"net/http"

	"recipe-importer/internal/core/suggest"

	"github.com/gin-gonic/gin"
)

// InputRequest 名稱欄位輸入
type InputRequest struct {
	Text string `json:"text"`
}

// KeyRequest 鍵盤操作：ArrowDown / ArrowUp / Enter / Escape
type KeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// SelectRequest 點選第幾個建議
type SelectRequest struct {
	Index *int `json:"index" binding:"required"`
}

// HandleInput 名稱欄位輸入文字，回傳列與建議狀態
func (h *Handler) HandleInput(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req InputRequest
	if !h.bind(c, &req) {
		return
	}

	row, view, err := s.Input(c.Param("key"), req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.save(c, s)
	c.JSON(http.StatusOK, RowResponse{Row: row, Suggestions: &view})
}

// HandleFocus 名稱欄位取得焦點
func (h *Handler) HandleFocus(c *gin.Context) {
	h.respondView(c, func(key string, s sessionView) (suggest.View, error) {
		return s.Focus(key)
	})
}

// HandleBlur 名稱欄位失去焦點
func (h *Handler) HandleBlur(c *gin.Context) {
	h.respondView(c, func(key string, s sessionView) (suggest.View, error) {
		return s.Blur(key)
	})
}

// HandleSuggestions 取得目前的建議狀態
func (h *Handler) HandleSuggestions(c *gin.Context) {
	h.respondView(c, func(key string, s sessionView) (suggest.View, error) {
		return s.Suggestions(key)
	})
}

// HandleKey 鍵盤操作建議清單
func (h *Handler) HandleKey(c *gin.Context) {
	var req KeyRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondCommit(c, func(key string, s sessionView) (suggest.View, error) {
		return s.Key(key, req.Key)
	})
}

// HandleSelect 點選建議
func (h *Handler) HandleSelect(c *gin.Context) {
	var req SelectRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondCommit(c, func(key string, s sessionView) (suggest.View, error) {
		return s.Select(key, *req.Index)
	})
}

// sessionView 建議操作需要的工作階段方法
type sessionView interface {
	Focus(key string) (suggest.View, error)
	Blur(key string) (suggest.View, error)
	Suggestions(key string) (suggest.View, error)
	Key(key, k string) (suggest.View, error)
	Select(key string, index int) (suggest.View, error)
}

func (h *Handler) respondView(c *gin.Context, fn func(key string, s sessionView) (suggest.View, error)) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	view, err := fn(c.Param("key"), s)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// respondCommit 操作可能把建議寫回列上，回傳列與建議狀態
func (h *Handler) respondCommit(c *gin.Context, fn func(key string, s sessionView) (suggest.View, error)) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	key := c.Param("key")
	view, err := fn(key, s)
	if err != nil {
		h.respondError(c, err)
		return
	}
	row, err := s.Row(key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.save(c, s)
	c.JSON(http.StatusOK, RowResponse{Row: row, Suggestions: &view})
}
