package common

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// NormalizeName 名稱比對用的正規化（去除前後空白、轉小寫）
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
