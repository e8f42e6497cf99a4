package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App          AppConfig       `mapstructure:"app"`
	Server       ServerConfig    `mapstructure:"server"`
	Backend      BackendConfig   `mapstructure:"backend"`
	Suggest      SuggestConfig   `mapstructure:"suggest"`
	Registry     RegistryConfig  `mapstructure:"registry"`
	Import       ImportConfig    `mapstructure:"import"`
	Formset      FormsetConfig   `mapstructure:"formset"`
	Session      SessionConfig   `mapstructure:"session"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	DedupWindow  time.Duration   `mapstructure:"dedup_window"`
	RowStatusTTL time.Duration   `mapstructure:"row_status_ttl"`
	LogLevel     string          `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// BackendConfig 食譜網站後端（自動完成、建立食材、爬蟲）設定
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	CSRFToken  string        `mapstructure:"csrf_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// SuggestConfig 自動完成設定
type SuggestConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	MinQueryLength int           `mapstructure:"min_query_length"`
	CacheSize      int           `mapstructure:"cache_size"`
	BlurGrace      time.Duration `mapstructure:"blur_grace"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RegistryConfig 標準食材快取設定
type RegistryConfig struct {
	Capacity     int  `mapstructure:"capacity"`
	PrimeOnStart bool `mapstructure:"prime_on_start"`
}

// ImportConfig 匯入設定
type ImportConfig struct {
	SupportedDomains []string      `mapstructure:"supported_domains"`
	BannerTTL        time.Duration `mapstructure:"banner_ttl"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// FormsetConfig 表單集設定
type FormsetConfig struct {
	Prefix       string `mapstructure:"prefix"`
	TemplateFile string `mapstructure:"template_file"`
}

// SessionConfig 編輯工作階段設定
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	RedisEnabled    bool          `mapstructure:"redis_enabled"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 不存在時只使用環境變數與預設值
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	v.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	v.BindEnv("backend.csrf_token", "BACKEND_CSRF_TOKEN")
	v.BindEnv("session.redis_enabled", "REDIS_ENABLED")
	v.BindEnv("session.redis_addr", "REDIS_ADDR")
	v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("dedup_window", "DEDUP_WINDOW")
	v.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// 讀取設定檔
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 環境變數給的網域清單是逗號分隔字串
	if raw := os.Getenv("APP_IMPORT_SUPPORTED_DOMAINS"); raw != "" {
		v.Set("import.supported_domains", splitList(raw))
	}

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default 只使用預設值建立設定（測試與嵌入使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return &config
}

// splitList 解析逗號分隔的清單
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MaskToken 遮罩 token，只顯示前後各 4 個字符
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-importer")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 1<<20) // 1MB

	// 後端設定
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.retry_count", 2)

	// 自動完成設定
	v.SetDefault("suggest.debounce", "300ms")
	v.SetDefault("suggest.min_query_length", 2)
	v.SetDefault("suggest.cache_size", 100)
	v.SetDefault("suggest.blur_grace", "200ms")
	v.SetDefault("suggest.request_timeout", "5s")

	// 標準食材設定
	v.SetDefault("registry.capacity", 100)
	v.SetDefault("registry.prime_on_start", true)

	// 匯入設定
	v.SetDefault("import.supported_domains", []string{"ica.se", "koket.se"})
	v.SetDefault("import.banner_ttl", "5s")
	v.SetDefault("import.timeout", "60s")

	// 表單集設定
	v.SetDefault("formset.prefix", "ingredient_set")
	v.SetDefault("formset.template_file", "")

	// 工作階段設定
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.cleanup_interval", "10m")
	v.SetDefault("session.redis_enabled", false)
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_db", 0)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 300)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("row_status_ttl", "3s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}
	if config.Backend.BaseURL == "" {
		return fmt.Errorf("backend base url is required")
	}
	if config.Suggest.MinQueryLength < 1 {
		return fmt.Errorf("invalid suggest min query length")
	}
	if config.Suggest.CacheSize <= 0 {
		return fmt.Errorf("invalid suggest cache size")
	}
	if config.Suggest.Debounce < 0 {
		return fmt.Errorf("invalid suggest debounce")
	}
	if config.Registry.Capacity <= 0 {
		return fmt.Errorf("invalid registry capacity")
	}
	if len(config.Import.SupportedDomains) == 0 {
		return fmt.Errorf("at least one supported import domain is required")
	}
	if config.Formset.Prefix == "" {
		return fmt.Errorf("formset prefix is required")
	}
	if config.Session.TTL <= 0 || config.Session.CleanupInterval <= 0 {
		return fmt.Errorf("invalid session ttl or cleanup interval")
	}
	if config.Session.RedisEnabled && config.Session.RedisAddr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}
	return nil
}
