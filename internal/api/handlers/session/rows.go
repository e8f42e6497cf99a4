package session

import (
	"net/http"

	"recipe-importer/internal/core/formset"
	"recipe-importer/internal/core/suggest"
	"recipe-importer/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// RowResponse 列操作回應
type RowResponse struct {
	Row         formset.Row   `json:"row"`
	Suggestions *suggest.View `json:"suggestions,omitempty"`
}

// RemoveRowResponse 移除列回應；removed 為 false 表示該列不存在
type RemoveRowResponse struct {
	Removed       bool         `json:"removed"`
	Row           *formset.Row `json:"row,omitempty"`
	DeclaredCount int          `json:"declared_count"`
}

// ManagedResponse 建立標準食材回應，失敗時列上會帶錯誤狀態
type ManagedResponse struct {
	Row   formset.Row           `json:"row"`
	Error *common.ErrorResponse `json:"error,omitempty"`
}

// HandleAddRow 新增一列
func (h *Handler) HandleAddRow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var data formset.RowData
	if c.Request.ContentLength != 0 && !h.bind(c, &data) {
		return
	}

	row := s.AddRow(data)
	h.save(c, s)
	c.JSON(http.StatusCreated, RowResponse{Row: row})
}

// HandleGetRow 取得一列
func (h *Handler) HandleGetRow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	row, err := s.Row(c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RowResponse{Row: row})
}

// HandleUpdateRow 修改列的名稱、數量或單位
func (h *Handler) HandleUpdateRow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var patch formset.RowPatch
	if !h.bind(c, &patch) {
		return
	}

	key := c.Param("key")
	row, err := s.UpdateRow(key, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.save(c, s)

	resp := RowResponse{Row: row}
	if patch.Name != nil {
		if view, err := s.Suggestions(key); err == nil {
			resp.Suggestions = &view
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRemoveRow 移除一列；不存在的列不視為錯誤
func (h *Handler) HandleRemoveRow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	row, removed := s.RemoveRow(c.Param("key"))
	resp := RemoveRowResponse{Removed: removed}
	if removed {
		h.save(c, s)
		resp.Row = &row
	}
	resp.DeclaredCount = s.Snapshot().Formset.DeclaredCount
	c.JSON(http.StatusOK, resp)
}

// HandleCreateManaged 以列目前的文字建立標準食材
func (h *Handler) HandleCreateManaged(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	row, err := s.CreateManaged(c.Request.Context(), c.Param("key"))
	if err != nil {
		if row.Key == "" {
			h.respondError(c, err)
			return
		}
		// 失敗訊息已寫在列上
		h.save(c, s)
		body := h.errorBody(err)
		_ = c.Error(err)
		c.JSON(common.StatusOf(err), ManagedResponse{Row: row, Error: &body})
		return
	}

	h.save(c, s)
	c.JSON(http.StatusCreated, ManagedResponse{Row: row})
}
