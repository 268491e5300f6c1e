package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cidadeplus/backend/internal/tenancy"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Log      LogConfig
	Tenancy  TenancyConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the bucket incident summaries are archived to.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ReportsBucket        string // empty disables the archive sink
	PresignExpireMinutes int
}

// LogConfig selects zap level and encoding.
type LogConfig struct {
	Level   string
	Format  string // json or console
	Service string
}

// TenancyConfig controls how the city of a request is resolved and how anomalies are reported.
type TenancyConfig struct {
	OverrideHeader string
	PathParam      string
	Precedence     []string // signal kinds, highest first

	CityHeader     string
	TimezoneHeader string
	KeyHeader      string

	SelectionCookie string
	SelectionQuery  string

	ResolveTimeout     time.Duration
	MinRebuildInterval time.Duration

	IncidentBufferSize int
	IncidentDelivery   string // direct or queue
	Realtime           bool

	SummaryInterval time.Duration
	SummaryWindow   time.Duration
}

// Incident delivery modes.
const (
	DeliveryDirect = "direct"
	DeliveryQueue  = "queue"
)

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "cidadeplus"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 12),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ReportsBucket:        getEnv("AWS_S3_REPORTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_S3_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: getEnv("SERVICE_NAME", "cidadeplus"),
		},
		Tenancy: TenancyConfig{
			OverrideHeader:     getEnv("TENANCY_OVERRIDE_HEADER", "X-City"),
			PathParam:          getEnv("TENANCY_PATH_PARAM", "city"),
			Precedence:         splitTrim(strings.ToLower(getEnv("TENANCY_PRECEDENCE", "header,path,domain")), ","),
			CityHeader:         getEnv("TENANCY_CITY_HEADER", "X-Tenant-City"),
			TimezoneHeader:     getEnv("TENANCY_TIMEZONE_HEADER", "X-Tenant-Timezone"),
			KeyHeader:          getEnv("TENANCY_KEY_HEADER", "X-Tenant-Key"),
			SelectionCookie:    getEnv("TENANCY_SELECTION_COOKIE", "admin_city"),
			SelectionQuery:     getEnv("TENANCY_SELECTION_QUERY", "city"),
			ResolveTimeout:     getEnvDuration("TENANCY_RESOLVE_TIMEOUT", 2*time.Second),
			MinRebuildInterval: getEnvDuration("TENANCY_MIN_REBUILD_INTERVAL", 5*time.Second),
			IncidentBufferSize: getEnvInt("TENANCY_INCIDENT_BUFFER", 1000),
			IncidentDelivery:   getEnv("TENANCY_INCIDENT_DELIVERY", DeliveryDirect),
			Realtime:           getEnvBool("TENANCY_REALTIME", true),
			SummaryInterval:    getEnvDuration("TENANCY_SUMMARY_INTERVAL", 15*time.Minute),
			SummaryWindow:      getEnvDuration("TENANCY_SUMMARY_WINDOW", time.Hour),
		},
	}
	if err := cfg.Tenancy.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the precedence list and delivery mode.
func (t TenancyConfig) Validate() error {
	if _, err := tenancy.ParsePrecedence(t.Precedence); err != nil {
		return fmt.Errorf("tenancy precedence: %w", err)
	}
	switch t.IncidentDelivery {
	case DeliveryDirect, DeliveryQueue:
	default:
		return fmt.Errorf("tenancy incident delivery: unknown mode %q", t.IncidentDelivery)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
