package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	OpenRouter  OpenRouterConfig `mapstructure:"openrouter"`
	AI          AIConfig         `mapstructure:"ai"`
	Scraper     ScraperConfig    `mapstructure:"scraper"`
	Render      RenderConfig     `mapstructure:"render"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Matching    MatchingConfig   `mapstructure:"matching"`
	Batch       BatchConfig      `mapstructure:"batch"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	LogLevel    string           `mapstructure:"log_level"`
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
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// AIConfig 輔助呼叫設定
type AIConfig struct {
	EnableCache      bool          `mapstructure:"enable_cache"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	ExpansionTimeout time.Duration `mapstructure:"expansion_timeout"`
	RerankTimeout    time.Duration `mapstructure:"rerank_timeout"`
}

// ScraperConfig 比價網站抓取設定
type ScraperConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	SearchURL         string        `mapstructure:"search_url"`
	DetailURLTemplate string        `mapstructure:"detail_url_template"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RateLimitWait     time.Duration `mapstructure:"rate_limit_wait"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	AcceptLanguage    string        `mapstructure:"accept_language"`
	UserAgents        []string      `mapstructure:"user_agents"`
}

// RenderConfig 無頭瀏覽器設定
type RenderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Headless     bool          `mapstructure:"headless"`
	Timeout      time.Duration `mapstructure:"timeout"`
	WaitSelector string        `mapstructure:"wait_selector"`
	CaptureDelay time.Duration `mapstructure:"capture_delay"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"`
	Dir             string        `mapstructure:"dir"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	TTL             time.Duration `mapstructure:"ttl"`
	PriceTTL        time.Duration `mapstructure:"price_ttl"`
	MaxEntries      int           `mapstructure:"max_entries"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig Redis 連線設定
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	EventsEnabled bool   `mapstructure:"events_enabled"`
	EventsChannel string `mapstructure:"events_channel"`
}

// MatchingConfig 比對流程設定
type MatchingConfig struct {
	CandidateLimit     int      `mapstructure:"candidate_limit"`
	ExpansionMaxLength int      `mapstructure:"expansion_max_length"`
	ExclusionKeywords  []string `mapstructure:"exclusion_keywords"`
}

// BatchConfig 批次比價設定
type BatchConfig struct {
	Workers  int `mapstructure:"workers"`
	MaxItems int `mapstructure:"max_items"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// 支援的快取後端
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// DefaultExclusionKeywords 預設排除關鍵字：零食、甜點、化妝品與調味變體
var DefaultExclusionKeywords = []string{
	"cips", "çikolata", "çikolatalı", "gofret", "bisküvi", "kraker", "şekerleme", "sakız",
	"lokum", "dondurma", "kek", "jelibon", "bar", "atıştırmalık",
	"aromalı", "aroma", "soslu", "çeşnili",
	"losyon", "body lotion", "lotion", "şampuan", "sabun", "duş jeli", "deodorant",
	"parfüm", "kozmetik", "nemlendirici", "vücut", "el kremi", "yüz kremi", "maske",
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 為選用
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment and defaults")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	fmt.Println("Loading configuration", "openrouter_api_key:", maskAPIKey(v.GetString("openrouter.api_key")), "openrouter_model:", v.GetString("openrouter.model"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// bindEnv 綁定常用的非前綴環境變數
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	_ = v.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	_ = v.BindEnv("cache.enabled", "CACHE_ENABLED")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.dir", "CACHE_DIR")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("scraper.search_url", "SCRAPER_SEARCH_URL")
	_ = v.BindEnv("render.enabled", "RENDER_ENABLED")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
}

// maskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "price-discovery")
	v.SetDefault("log_level", "info")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "120s")

	// OpenRouter 設定
	v.SetDefault("openrouter.enabled", false)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "google/gemini-2.0-flash-001")
	v.SetDefault("openrouter.max_tokens", 300)
	v.SetDefault("openrouter.timeout", "20s")
	v.SetDefault("openrouter.requests_per_minute", 30)

	// 輔助呼叫設定
	v.SetDefault("ai.enable_cache", true)
	v.SetDefault("ai.cache_ttl", "24h")
	v.SetDefault("ai.expansion_timeout", "8s")
	v.SetDefault("ai.rerank_timeout", "15s")

	// 抓取設定
	v.SetDefault("scraper.base_url", "https://www.cimri.com")
	v.SetDefault("scraper.search_url", "https://www.cimri.com/arama")
	v.SetDefault("scraper.detail_url_template", "https://www.cimri.com/%s")
	v.SetDefault("scraper.min_delay", "1s")
	v.SetDefault("scraper.max_delay", "3s")
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.retry_base_delay", "1s")
	v.SetDefault("scraper.rate_limit_wait", "5s")
	v.SetDefault("scraper.request_timeout", "30s")
	v.SetDefault("scraper.max_body_bytes", 8*1024*1024)
	v.SetDefault("scraper.accept_language", "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7")

	// 無頭瀏覽器設定
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.headless", true)
	v.SetDefault("render.timeout", "45s")
	v.SetDefault("render.capture_delay", "2s")

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.dir", ".cache/pages")
	v.SetDefault("cache.sqlite_path", ".cache/cache.db")
	v.SetDefault("cache.ttl", "6h")
	v.SetDefault("cache.price_ttl", "1h")
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.cleanup_interval", "10m")

	// Redis 設定
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "price:cache:")
	v.SetDefault("redis.events_enabled", false)
	v.SetDefault("redis.events_channel", "price:matched")

	// 比對設定
	v.SetDefault("matching.candidate_limit", 5)
	v.SetDefault("matching.expansion_max_length", 100)
	v.SetDefault("matching.exclusion_keywords", DefaultExclusionKeywords)

	// 批次設定
	v.SetDefault("batch.workers", 3)
	v.SetDefault("batch.max_items", 30)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	if strings.TrimSpace(config.Scraper.SearchURL) == "" {
		return fmt.Errorf("scraper search url is required")
	}
	if !strings.Contains(config.Scraper.DetailURLTemplate, "%s") {
		return fmt.Errorf("scraper detail url template must contain %%s")
	}
	if config.Scraper.MinDelay < 0 || config.Scraper.MaxDelay < config.Scraper.MinDelay {
		return fmt.Errorf("invalid scraper delay window [%s, %s]", config.Scraper.MinDelay, config.Scraper.MaxDelay)
	}
	if config.Scraper.MaxRetries <= 0 {
		return fmt.Errorf("invalid scraper max retries")
	}
	if config.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("invalid scraper request timeout")
	}

	if config.Cache.Enabled {
		switch config.Cache.Backend {
		case BackendFile, BackendMemory, BackendRedis, BackendSQLite:
		default:
			return fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
		}
		if config.Cache.MaxEntries <= 0 {
			return fmt.Errorf("invalid cache max entries")
		}
		if config.Cache.TTL <= 0 || config.Cache.PriceTTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	if config.Matching.CandidateLimit <= 0 {
		return fmt.Errorf("invalid matching candidate limit")
	}
	if config.Batch.Workers <= 0 || config.Batch.MaxItems <= 0 {
		return fmt.Errorf("invalid batch settings")
	}

	return nil
}
