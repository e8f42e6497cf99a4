package session

import (
	"net/http"

	"recipe-importer/internal/core/importer"
	"recipe-importer/internal/pkg/common"
	sessionSvc "recipe-importer/internal/session"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImportRequest 匯入請求
type ImportRequest struct {
	URL string `json:"url"`
}

// ImportResponse 匯入結果與匯入後的工作階段
type ImportResponse struct {
	Result  importer.Result     `json:"result"`
	Session sessionSvc.Snapshot `json:"session"`
}

// HandleImport 從 ICA / Köket 網址匯入食譜
func (h *Handler) HandleImport(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req ImportRequest
	if !h.bind(c, &req) {
		return
	}

	common.LogInfo("開始匯入食譜",
		zap.String("session", s.ID),
		zap.String("url", req.URL),
		zap.String("request_id", requestid.Get(c)),
	)

	res, err := s.Import(c.Request.Context(), req.URL)
	if err != nil {
		// 網址錯誤會顯示在橫幅上
		h.save(c, s)
		h.respondError(c, err)
		return
	}

	h.save(c, s)
	c.JSON(http.StatusOK, ImportResponse{Result: res, Session: s.Snapshot()})
}
