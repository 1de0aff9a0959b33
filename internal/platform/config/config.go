package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pkgstrings "certexport/pkg/platform/strings"
)

// Server captures process level configuration. Empty backend URLs disable
// that backend; main falls back to in-memory implementations.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Export      ExportConfig
	Auth        AuthConfig
}

// DatabaseConfig configures the certificate store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the document cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event stream.
type KafkaConfig struct {
	Brokers         []string
	AuditTopic      string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// ExportConfig tunes the export pipeline.
type ExportConfig struct {
	QRSize           int
	PageSize         string
	RenderTimeout    time.Duration
	StrictTemplates  bool
	CacheTTL         time.Duration
	BatchConcurrency int
	MaxBatchSize     int
	DateLayout       string
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	Disabled      bool
}

// IsProduction reports whether the process runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	env := getenvDefault("CERTEXPORT_ENV", "development")

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:        getenvDefault("CERTEXPORT_ADDR", ":8080"),
		Environment: env,
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getenvInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getenvInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         pkgstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:      getenvDefault("KAFKA_AUDIT_TOPIC", "certexport.audit"),
			Acks:            getenvDefault("KAFKA_ACKS", "all"),
			Retries:         getenvInt("KAFKA_RETRIES", 3),
			DeliveryTimeout: getenvDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
		},
		Export: ExportConfig{
			QRSize:           getenvInt("EXPORT_QR_SIZE", 1000),
			PageSize:         getenvDefault("EXPORT_PAGE_SIZE", "A4"),
			RenderTimeout:    getenvDuration("EXPORT_RENDER_TIMEOUT", 10*time.Second),
			StrictTemplates:  getenvBool("EXPORT_STRICT_TEMPLATES", env != "production"),
			CacheTTL:         getenvDuration("EXPORT_CACHE_TTL", 24*time.Hour),
			BatchConcurrency: getenvInt("EXPORT_BATCH_CONCURRENCY", 4),
			MaxBatchSize:     getenvInt("EXPORT_MAX_BATCH_SIZE", 50),
			DateLayout:       getenvDefault("EXPORT_DATE_LAYOUT", "2006-01-02"),
		},
		Auth: AuthConfig{
			JWTSigningKey: jwtSigningKey,
			Issuer:        os.Getenv("JWT_ISSUER"),
			Audience:      os.Getenv("JWT_AUDIENCE"),
			Disabled:      getenvBool("AUTH_DISABLED", false),
		},
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
