package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/infra/setup"
	redisstate "collaborative-board/internal/infra/state/redis"
	"collaborative-board/internal/service"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	AppEnv     string // development / production
	LogLevel   string
	ServerPort string
	InstanceID string

	DB setup.DBConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	JWTSecret      string
	JWTExpiryHours int

	CORSAllowedOrigin string
	RateLimitMax      int
	RateLimitWindow   time.Duration

	PresenceTTL          time.Duration
	WSPongWait           time.Duration
	HistoryReplayLimit   int
	HistoryCacheSize     int
	HistoryRetention     int
	HistoryPruneSchedule string

	ArchiveBucket string
	ArchivePrefix string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:     envOr("APP_ENV", "development"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		ServerPort: envOr("SERVER_PORT", "8080"),
		InstanceID: os.Getenv("INSTANCE_ID"),
		DB: setup.DBConfig{
			Driver:     envOr("DB_DRIVER", setup.DriverMySQL),
			User:       os.Getenv("DB_USER"),
			Password:   os.Getenv("DB_PASSWORD"),
			Host:       os.Getenv("DB_HOST"),
			Port:       os.Getenv("DB_PORT"),
			Name:       os.Getenv("DB_NAME"),
			SQLitePath: os.Getenv("SQLITE_PATH"),
		},
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:            envOr("REDIS_KEY_PREFIX", redisstate.DefaultKeyPrefix),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		CORSAllowedOrigin:    envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		HistoryPruneSchedule: envOr("HISTORY_PRUNE_SCHEDULE", "@every 10m"),
		ArchiveBucket:        os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchivePrefix:        envOr("ARCHIVE_S3_PREFIX", "board-history"),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTExpiryHours, err = envInt("JWT_EXPIRY_HOURS", 24); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}
	if cfg.PresenceTTL, err = envDuration("PRESENCE_TTL", redisstate.DefaultPresenceTTL); err != nil {
		return nil, err
	}
	if cfg.WSPongWait, err = envDuration("WS_PONG_WAIT", 0); err != nil {
		return nil, err
	}
	if cfg.HistoryReplayLimit, err = envInt("HISTORY_REPLAY_LIMIT", service.DefaultReplayLimit); err != nil {
		return nil, err
	}
	if cfg.HistoryCacheSize, err = envInt("HISTORY_CACHE_SIZE", redisstate.DefaultHistoryWindow); err != nil {
		return nil, err
	}
	if cfg.HistoryRetention, err = envInt("HISTORY_RETENTION", 10000); err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.HistoryCacheSize < cfg.HistoryReplayLimit {
		return nil, fmt.Errorf("HISTORY_CACHE_SIZE (%d) must not be smaller than HISTORY_REPLAY_LIMIT (%d)", cfg.HistoryCacheSize, cfg.HistoryReplayLimit)
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	cfg.DB.Debug = cfg.LogLevel == "debug" || cfg.LogLevel == "trace"

	return cfg, nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return d, nil
}
