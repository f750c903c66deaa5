package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Backend driver names shared by the storage, ledger and rate limit settings.
const (
	DriverMemory     = "memory"
	DriverFilesystem = "filesystem"
	DriverRedis      = "redis"
	DriverMinio      = "minio"
)

type Config struct {
	Env           string
	Port          int
	PublicBaseURL string
	// TrustedProxies lists proxy addresses or CIDRs allowed to set the
	// client IP through forwarding headers. Empty trusts none.
	TrustedProxies []string

	Database  DatabaseConfig
	Redis     RedisConfig
	Minio     MinioConfig
	CORS      CORSConfig
	Log       LogConfig
	Storage   StorageConfig
	Ledger    LedgerConfig
	RateLimit RateLimitConfig
	Upload    UploadConfig
	Links     LinksConfig
	Unlock    UnlockConfig
	BotVerify BotVerifyConfig
	Contact   ContactConfig
	Janitor   JanitorConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MinioConfig points the artifact store at an S3 compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where artifact bytes live.
type StorageConfig struct {
	Driver string
	Dir    string
}

// LedgerConfig selects the access policy backend.
type LedgerConfig struct {
	Driver string
}

// RateLimitConfig bounds anonymous upload throughput per origin.
type RateLimitConfig struct {
	Driver        string
	Max           int
	Window        time.Duration
	SweepInterval time.Duration
}

// UploadConfig limits a single ingestion batch.
type UploadConfig struct {
	MaxFiles    int
	MaxFileSize int64
}

// LinksConfig signs short-lived raw byte links.
type LinksConfig struct {
	Secret string
	TTL    time.Duration
}

// UnlockConfig signs the cookie issued after a correct password.
type UnlockConfig struct {
	Secret string
	TTL    time.Duration
}

// BotVerifyConfig configures the reCAPTCHA compatible verifier.
type BotVerifyConfig struct {
	Enabled  bool
	Secret   string
	URL      string
	MinScore float64
	Timeout  time.Duration
}

// ContactConfig controls uploader contact normalisation.
type ContactConfig struct {
	Required      bool
	DefaultRegion string
}

// JanitorConfig tunes the background artifact cleanup queue.
type JanitorConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Minio = MinioConfig{
		Endpoint:  v.GetString("MINIO_ENDPOINT"),
		AccessKey: v.GetString("MINIO_ACCESS_KEY"),
		SecretKey: v.GetString("MINIO_SECRET_KEY"),
		Bucket:    v.GetString("MINIO_BUCKET"),
		UseSSL:    v.GetBool("MINIO_USE_SSL"),
	}

	cfg.TrustedProxies = splitAndTrim(v.GetString("TRUSTED_PROXIES"))

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		Dir:    v.GetString("STORAGE_DIR"),
	}

	cfg.Ledger = LedgerConfig{Driver: strings.ToLower(v.GetString("LEDGER_DRIVER"))}

	maxUploads := v.GetInt("RATE_LIMIT_MAX")
	if maxUploads <= 0 {
		maxUploads = 10
	}
	cfg.RateLimit = RateLimitConfig{
		Driver:        strings.ToLower(v.GetString("RATE_LIMIT_DRIVER")),
		Max:           maxUploads,
		Window:        parseDuration(v.GetString("RATE_LIMIT_WINDOW"), 5*time.Minute),
		SweepInterval: parseDuration(v.GetString("RATE_LIMIT_SWEEP_INTERVAL"), time.Minute),
	}

	maxFileSize := v.GetInt64("UPLOAD_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	cfg.Upload = UploadConfig{
		MaxFiles:    v.GetInt("UPLOAD_MAX_FILES"),
		MaxFileSize: maxFileSize,
	}

	cfg.Links = LinksConfig{
		Secret: v.GetString("SIGNED_URL_SECRET"),
		TTL:    parseDuration(v.GetString("SIGNED_URL_TTL"), 10*time.Minute),
	}

	cfg.Unlock = UnlockConfig{
		Secret: v.GetString("UNLOCK_SECRET"),
		TTL:    parseDuration(v.GetString("UNLOCK_TTL"), time.Hour),
	}

	cfg.BotVerify = BotVerifyConfig{
		Enabled:  v.GetBool("BOT_VERIFY_ENABLED"),
		Secret:   v.GetString("BOT_VERIFY_SECRET"),
		URL:      v.GetString("BOT_VERIFY_URL"),
		MinScore: v.GetFloat64("BOT_VERIFY_MIN_SCORE"),
		Timeout:  parseDuration(v.GetString("BOT_VERIFY_TIMEOUT"), 5*time.Second),
	}

	cfg.Contact = ContactConfig{
		Required:      v.GetBool("CONTACT_REQUIRED"),
		DefaultRegion: strings.ToUpper(v.GetString("CONTACT_DEFAULT_REGION")),
	}

	cfg.Janitor = JanitorConfig{
		Workers:    v.GetInt("JANITOR_WORKERS"),
		Retries:    v.GetInt("JANITOR_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JANITOR_RETRY_DELAY"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3000)
	v.SetDefault("PUBLIC_BASE_URL", "")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "imgdrop")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "images")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", DriverFilesystem)
	v.SetDefault("STORAGE_DIR", "./storage")
	v.SetDefault("LEDGER_DRIVER", DriverMemory)

	v.SetDefault("RATE_LIMIT_DRIVER", DriverMemory)
	v.SetDefault("RATE_LIMIT_MAX", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "5m")
	v.SetDefault("RATE_LIMIT_SWEEP_INTERVAL", "1m")

	v.SetDefault("UPLOAD_MAX_FILES", 20)
	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 10*1024*1024)

	v.SetDefault("SIGNED_URL_SECRET", "dev_links_secret")
	v.SetDefault("SIGNED_URL_TTL", "10m")
	v.SetDefault("UNLOCK_SECRET", "dev_unlock_secret")
	v.SetDefault("UNLOCK_TTL", "1h")

	v.SetDefault("BOT_VERIFY_ENABLED", false)
	v.SetDefault("BOT_VERIFY_SECRET", "")
	v.SetDefault("BOT_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("BOT_VERIFY_MIN_SCORE", 0.5)
	v.SetDefault("BOT_VERIFY_TIMEOUT", "5s")

	v.SetDefault("CONTACT_REQUIRED", false)
	v.SetDefault("CONTACT_DEFAULT_REGION", "RU")

	v.SetDefault("JANITOR_WORKERS", 1)
	v.SetDefault("JANITOR_RETRIES", 5)
	v.SetDefault("JANITOR_RETRY_DELAY", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
