package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// BodySizeLimit 限制請求體大小
//
// 已宣告長度的請求直接比對 Content-Length；分塊傳輸（長度未知）的請求體
// 先讀入至多 maxSize+1 位元組，超過即拒絕，之後交給處理器的是已緩衝的內容。
func BodySizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		if req.Body == nil || req.Body == http.NoBody {
			c.Next()
			return
		}

		if req.ContentLength > maxSize {
			rejectBody(c, req.ContentLength, maxSize)
			return
		}

		if req.ContentLength < 0 {
			buf, err := io.ReadAll(io.LimitReader(req.Body, maxSize+1))
			req.Body.Close()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, common.ErrorResponse{
					Code:    common.ErrCodeInvalidRequest,
					Message: "Failed to read request body",
				})
				return
			}
			if int64(len(buf)) > maxSize {
				rejectBody(c, -1, maxSize)
				return
			}
			req.Body = io.NopCloser(bytes.NewReader(buf))
			req.ContentLength = int64(len(buf))
			c.Next()
			return
		}

		req.Body = http.MaxBytesReader(c.Writer, req.Body, maxSize)
		c.Next()
	}
}

func rejectBody(c *gin.Context, length, maxSize int64) {
	common.LogWarn("請求體過大",
		zap.Int64("content_length", length),
		zap.Int64("max_size", maxSize),
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
		Code:    common.ErrCodeBodyTooLarge,
		Message: "Request body too large",
	})
}
