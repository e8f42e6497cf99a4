package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func fieldsWithToken() []zap.Field {
	return []zap.Field{
		zap.String("csrf_token", "secret"),
		zap.String("Cookie", "csrftoken=secret"),
		zap.String("url", "https://www.ica.se/recept/x"),
	}
}

func TestFilterFieldsDropsSecrets(t *testing.T) {
	got := filterFields(fieldsWithToken())
	assert.Len(t, got, 1)
	assert.Equal(t, "url", got[0].Key)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}
