package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
	Environment  string
	LogLevel     string

	// Транзакции и расписание
	LockTimeout     time.Duration
	RoundGap        time.Duration
	SessionDuration time.Duration

	// Периодические задачи
	AuditInterval       time.Duration
	ResyncInterval      time.Duration
	RewardRetryInterval time.Duration

	// Награды
	RewardBaseCredits    int64
	RewardBaseExperience int64
	RewardConcurrency    int

	// Правила валидации оценок навыков
	ValidationLevelThreshold int
	AssessorTenureDays       int
	CriticalSkillCategories  []string
	PassPercent              float64

	// Кэш рейтингов: пустой REDIS_URL включает кэш в памяти
	RedisURL    string
	RankingsTTL time.Duration

	// Архив итоговых рейтингов в S3/R2; пустой бакет отключает архив
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	OTELEndpoint string

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	p := &parser{}
	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   p.getInt("SERVER_PORT", 8080),
		Environment:  getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		LockTimeout:     p.getDuration("LOCK_TIMEOUT", 5*time.Second),
		RoundGap:        p.getDuration("ROUND_GAP", time.Hour),
		SessionDuration: p.getDuration("SESSION_DURATION", time.Hour),

		AuditInterval:       p.getDuration("AUDIT_INTERVAL", 5*time.Minute),
		ResyncInterval:      p.getDuration("RESYNC_INTERVAL", 6*time.Hour),
		RewardRetryInterval: p.getDuration("REWARD_RETRY_INTERVAL", 15*time.Minute),

		RewardBaseCredits:    p.getInt64("REWARD_BASE_CREDITS", 100),
		RewardBaseExperience: p.getInt64("REWARD_BASE_EXPERIENCE", 100),
		RewardConcurrency:    p.getInt("REWARD_CONCURRENCY", 4),

		ValidationLevelThreshold: p.getInt("ASSESSMENT_VALIDATION_LEVEL", 5),
		AssessorTenureDays:       p.getInt("ASSESSOR_TENURE_DAYS", 180),
		CriticalSkillCategories:  getList("CRITICAL_SKILL_CATEGORIES", []string{"safety"}),
		PassPercent:              p.getFloat("ASSESSMENT_PASS_PERCENT", 60),

		RedisURL:    os.Getenv("REDIS_URL"),
		RankingsTTL: p.getDuration("RANKINGS_CACHE_TTL", time.Minute),

		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),

		OTELEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		RateLimitRPS:   p.getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: p.getInt("RATE_LIMIT_BURST", 40),
		CORSOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	for name, d := range map[string]time.Duration{
		"LOCK_TIMEOUT":          c.LockTimeout,
		"AUDIT_INTERVAL":        c.AuditInterval,
		"RESYNC_INTERVAL":       c.ResyncInterval,
		"REWARD_RETRY_INTERVAL": c.RewardRetryInterval,
		"RANKINGS_CACHE_TTL":    c.RankingsTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.RewardBaseCredits < 0 || c.RewardBaseExperience < 0 {
		return fmt.Errorf("reward base amounts cannot be negative")
	}
	if c.RewardConcurrency < 1 {
		return fmt.Errorf("REWARD_CONCURRENCY must be at least 1, got %d", c.RewardConcurrency)
	}
	if c.PassPercent < 0 || c.PassPercent > 100 {
		return fmt.Errorf("ASSESSMENT_PASS_PERCENT must be between 0 and 100, got %v", c.PassPercent)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}
	if c.S3Bucket != "" && (c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
		return fmt.Errorf("S3_BUCKET is set but S3 credentials are missing")
	}
	return nil
}

// parser запоминает первую ошибку разбора.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s environment variable %q: %w", key, raw, err)
	}
}

func (p *parser) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getInt64(key string, def int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
