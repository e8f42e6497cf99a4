package common

import (
	"errors"
	"net/http"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string `json:"code"`              // 錯誤代碼
	Message string `json:"message"`           // 錯誤信息
	Details string `json:"details,omitempty"` // 詳細信息（僅在開發模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 回傳原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Is 依錯誤代碼比對，讓 errors.Is 可以對應到預定義錯誤
func (e *CustomError) Is(target error) bool {
	var t *CustomError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Wrap 以預定義錯誤為基礎包裝原始錯誤
func (e *CustomError) Wrap(err error) *CustomError {
	return &CustomError{Code: e.Code, Message: e.Message, Status: e.Status, Err: err}
}

// WithMessage 以預定義錯誤為基礎替換錯誤信息
func (e *CustomError) WithMessage(message string) *CustomError {
	return &CustomError{Code: e.Code, Message: message, Status: e.Status, Err: e.Err}
}

// ValidationError 表示驗證錯誤
type ValidationError struct {
	message string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	return e.message
}

// Is 讓 errors.Is(err, ErrValidation) 對 ValidationError 成立
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(message string) error {
	return &ValidationError{
		message: message,
	}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// StatusOf 取得錯誤對應的 HTTP 狀態碼
func StatusOf(err error) int {
	if IsValidationError(err) {
		return http.StatusBadRequest
	}
	var ce *CustomError
	if errors.As(err, &ce) && ce.Status != 0 {
		return ce.Status
	}
	return http.StatusInternalServerError
}

// CodeOf 取得錯誤代碼
func CodeOf(err error) string {
	if IsValidationError(err) {
		return ErrCodeInvalidRequest
	}
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternalError
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest   = "INVALID_REQUEST"    // 400
	ErrCodeNotFound         = "NOT_FOUND"          // 404
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"  // 404
	ErrCodeRowNotFound      = "ROW_NOT_FOUND"      // 404
	ErrCodeTooManyRequests  = "TOO_MANY_REQUESTS"  // 429
	ErrCodeBodyTooLarge     = "BODY_TOO_LARGE"     // 413
	ErrCodeUnsupportedSrc   = "UNSUPPORTED_SOURCE" // 422
	ErrCodeCreationFailed   = "CREATION_FAILED"    // 422
	ErrCodeImportInProgress = "IMPORT_IN_PROGRESS" // 409

	// 服務器錯誤 (5xx)
	ErrCodeInternalError  = "INTERNAL_ERROR"  // 500
	ErrCodeNetworkFailure = "NETWORK_FAILURE" // 502
	ErrCodeRequestTimeout = "REQUEST_TIMEOUT" // 504
	ErrCodeStaleResponse  = "STALE_RESPONSE"
)

// 預定義錯誤
var (
	// 客戶端錯誤
	ErrValidation        = NewError(ErrCodeInvalidRequest, "無效的請求", http.StatusBadRequest, nil)
	ErrSessionNotFound   = NewError(ErrCodeSessionNotFound, "編輯工作階段不存在", http.StatusNotFound, nil)
	ErrRowNotFound       = NewError(ErrCodeRowNotFound, "食材列不存在", http.StatusNotFound, nil)
	ErrUnsupportedSource = NewError(ErrCodeUnsupportedSrc, "不支援的食譜來源網站", http.StatusUnprocessableEntity, nil)
	ErrCreationFailed    = NewError(ErrCodeCreationFailed, "建立食材失敗", http.StatusUnprocessableEntity, nil)
	ErrImportInProgress  = NewError(ErrCodeImportInProgress, "匯入進行中", http.StatusConflict, nil)

	// 服務器錯誤
	ErrInternalError  = NewError(ErrCodeInternalError, "服務器內部錯誤", http.StatusInternalServerError, nil)
	ErrNetworkFailure = NewError(ErrCodeNetworkFailure, "後端服務無法連線", http.StatusBadGateway, nil)

	// 過期回應只用於內部丟棄，不會回給使用者
	ErrStaleResponse = NewError(ErrCodeStaleResponse, "過期的回應", 0, nil)
)
