package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxTrendTopN matches the selector's keyword cap.
const maxTrendTopN = 5

// ConfigPath is the default config file. TRENDSCRIBE_CONFIG overrides it.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("TRENDSCRIBE_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// store: memory | postgres | mongo
	StoreBackend  string `yaml:"storeBackend"`
	DatabaseURL   string `yaml:"databaseURL"`
	MongoURI      string `yaml:"mongoURI"`
	MongoDatabase string `yaml:"mongoDatabase"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SerpAPIKey        string  `yaml:"serpapiKey"`
	SerpAPIBaseURL    string  `yaml:"serpapiBaseURL"`
	TrendWindowHours  int     `yaml:"trendWindowHours"`
	TrendTopN         int     `yaml:"trendTopN"`
	TrendFetchTimeout string  `yaml:"trendFetchTimeout"`
	TrendRatePerSec   float64 `yaml:"trendRatePerSecond"`
	TrendBurst        int     `yaml:"trendBurst"`
	// trend cache: none | memory | redis
	TrendCache    string `yaml:"trendCache"`
	TrendCacheTTL string `yaml:"trendCacheTTL"`

	// generation provider: gemini | ollama | openai-compat
	GenerationProvider string `yaml:"generationProvider"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`
	GenerationModel    string `yaml:"generationModel"`
	GenerationTimeout  string `yaml:"generationTimeout"`
	RerankEnabled      bool   `yaml:"rerankEnabled"`
	RerankModel        string `yaml:"rerankModel"`

	// chat: extra models a chat request may name, and how many earlier
	// messages are replayed per turn
	ChatModels  []string `yaml:"chatModels"`
	ChatHistory int      `yaml:"chatHistory"`

	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	GenerateRateLimitPerMinute int      `yaml:"generateRateLimitPerMinute"`
	TrendsRateLimitPerMinute   int      `yaml:"trendsRateLimitPerMinute"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins         []string `yaml:"corsAllowedOrigins"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	ExportURLTTL   string `yaml:"exportURLTTL"`

	// events: none | redis | amqp
	EventsBackend   string `yaml:"eventsBackend"`
	EventsStream    string `yaml:"eventsStream"`
	EventsStreamMax int64  `yaml:"eventsStreamMaxLen"`
	AMQPURL         string `yaml:"amqpURL"`
	AMQPExchange    string `yaml:"amqpExchange"`

	StaleCheckInterval string `yaml:"staleCheckInterval"`
	StaleAfter         string `yaml:"staleAfter"`
}

// Load reads config from path (defaults to ConfigPath), applies environment
// overrides and defaults, then validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("PORT", &cfg.Port)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("TRENDSCRIBE_STORE_BACKEND", &cfg.StoreBackend)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("MONGO_URI", &cfg.MongoURI)
	setString("MONGO_DATABASE", &cfg.MongoDatabase)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("SERPAPI_KEY", &cfg.SerpAPIKey)
	setString("SERPAPI_BASE_URL", &cfg.SerpAPIBaseURL)
	setString("TRENDSCRIBE_TREND_CACHE", &cfg.TrendCache)
	setString("TRENDSCRIBE_GENERATION_PROVIDER", &cfg.GenerationProvider)
	setString("TRENDSCRIBE_GENERATION_BASE_URL", &cfg.GenerationBaseURL)
	setString("TRENDSCRIBE_GENERATION_MODEL", &cfg.GenerationModel)
	setString("GEMINI_API_KEY", &cfg.GenerationAPIKey)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setString("JWT_ISSUER", &cfg.JWTIssuer)
	setString("JWT_AUDIENCE", &cfg.JWTAudience)
	setString("JWT_LEEWAY", &cfg.JWTLeeway)
	setString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	setString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	setString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	setString("MINIO_BUCKET", &cfg.MinioBucket)
	setString("TRENDSCRIBE_EVENTS_BACKEND", &cfg.EventsBackend)
	setString("AMQP_URL", &cfg.AMQPURL)

	if v := os.Getenv("TRENDSCRIBE_TREND_WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.TrendWindowHours = n
		}
	}
	if v := os.Getenv("TRENDSCRIBE_GENERATE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.GenerateRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("TRENDSCRIBE_RERANK_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.RerankEnabled = b
		}
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("TRENDSCRIBE_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("TRENDSCRIBE_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "memory"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "trendscribe"
	}
	if cfg.TrendCache == "" {
		cfg.TrendCache = "memory"
	}
	if cfg.TrendCacheTTL == "" {
		cfg.TrendCacheTTL = "10m"
	}
	if cfg.TrendFetchTimeout == "" {
		cfg.TrendFetchTimeout = "15s"
	}
	if cfg.TrendRatePerSec == 0 {
		cfg.TrendRatePerSec = 1
	}
	if cfg.TrendBurst == 0 {
		cfg.TrendBurst = 2
	}
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = "gemini"
	}
	if cfg.GenerationTimeout == "" {
		cfg.GenerationTimeout = "30s"
	}
	if cfg.RerankModel == "" {
		cfg.RerankModel = cfg.GenerationModel
	}
	if cfg.ChatHistory == 0 {
		cfg.ChatHistory = 10
	}
	if cfg.EventsBackend == "" {
		cfg.EventsBackend = "none"
	}
	if cfg.EventsStream == "" {
		cfg.EventsStream = "trendscribe:events"
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = "trendscribe.events"
	}
	if cfg.ExportURLTTL == "" {
		cfg.ExportURLTTL = "15m"
	}
	if cfg.StaleCheckInterval == "" {
		cfg.StaleCheckInterval = "1m"
	}
	if cfg.StaleAfter == "" {
		cfg.StaleAfter = "10m"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.StoreBackend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	case "mongo":
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return errors.New("config: mongoURI is required for the mongo store (set in config.yaml or MONGO_URI)")
		}
	default:
		return fmt.Errorf("config: storeBackend %q must be one of memory, postgres, mongo", cfg.StoreBackend)
	}
	switch cfg.TrendCache {
	case "none", "memory":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis trend cache")
		}
	default:
		return fmt.Errorf("config: trendCache %q must be one of none, memory, redis", cfg.TrendCache)
	}
	switch cfg.GenerationProvider {
	case "gemini", "ollama", "openai-compat":
	default:
		return fmt.Errorf("config: generationProvider %q must be one of gemini, ollama, openai-compat", cfg.GenerationProvider)
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("config: jwtSecret is required and must be at least 32 bytes (set in config.yaml or JWT_SECRET)")
	}
	if cfg.GenerateRateLimitPerMinute < 0 || cfg.TrendsRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if (cfg.GenerateRateLimitPerMinute > 0 || cfg.TrendsRateLimitPerMinute > 0) && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if cfg.TrendWindowHours < 0 || cfg.TrendTopN < 0 {
		return errors.New("config: trendWindowHours and trendTopN must be >= 0")
	}
	if cfg.TrendTopN > maxTrendTopN {
		return fmt.Errorf("config: trendTopN must be <= %d", maxTrendTopN)
	}
	if cfg.ChatHistory < 0 {
		return errors.New("config: chatHistory must be >= 0")
	}
	switch cfg.EventsBackend {
	case "none":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for redis events")
		}
	case "amqp":
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required for amqp events (set in config.yaml or AMQP_URL)")
		}
	default:
		return fmt.Errorf("config: eventsBackend %q must be one of none, redis, amqp", cfg.EventsBackend)
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	for name, value := range map[string]string{
		"trendFetchTimeout":  cfg.TrendFetchTimeout,
		"trendCacheTTL":      cfg.TrendCacheTTL,
		"generationTimeout":  cfg.GenerationTimeout,
		"exportURLTTL":       cfg.ExportURLTTL,
		"staleCheckInterval": cfg.StaleCheckInterval,
		"staleAfter":         cfg.StaleAfter,
	} {
		if _, err := ParseDuration(name, value); err != nil {
			return err
		}
	}
	if _, err := ParseDuration("jwtLeeway", cfg.JWTLeeway); err != nil {
		return err
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration field. Empty yields zero.
func ParseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must be >= 0", name)
	}
	return dur, nil
}

// Duration returns the parsed value of a field already checked by Load.
func Duration(value string) time.Duration {
	d, _ := ParseDuration("", value)
	return d
}
