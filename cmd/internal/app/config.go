package app

import "time"

// Store backends selectable with AUTHGATE_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamo   = "dynamodb"
	StoreRedis    = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// Store selects the account backend: memory, postgres, dynamodb or redis.
	Store string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string
	DBMigrate   bool

	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
	// DynamoBackfill sets the normalized email key on items written by
	// earlier deployments before the server starts.
	DynamoBackfill bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// If true:
	// - /readyz returns 503 unless the store answers a ping.
	// - the memory store is never considered ready.
	ReadinessRequireStore bool

	MetricsEnabled bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("AUTHGATE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("AUTHGATE_LOG_LEVEL", "info"),
		LogFormat: EnvString("AUTHGATE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("AUTHGATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AUTHGATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AUTHGATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AUTHGATE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("AUTHGATE_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("AUTHGATE_HTTP_MAX_HEADER_BYTES", 1<<20),

		Store: EnvString("AUTHGATE_STORE", StoreMemory),

		DatabaseURL: EnvString("AUTHGATE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("AUTHGATE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("AUTHGATE_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("AUTHGATE_DB_SCHEMA", ""),
		DBMigrate:   EnvBool("AUTHGATE_DB_MIGRATE", false),

		DynamoTable:    EnvString("AUTHGATE_DYNAMO_TABLE", ""),
		DynamoRegion:   EnvString("AUTHGATE_DYNAMO_REGION", ""),
		DynamoEndpoint: EnvString("AUTHGATE_DYNAMO_ENDPOINT", ""),
		DynamoBackfill: EnvBool("AUTHGATE_DYNAMO_BACKFILL", false),

		RedisAddr:     EnvString("AUTHGATE_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: EnvString("AUTHGATE_REDIS_PASSWORD", ""),
		RedisDB:       EnvNonNegativeInt("AUTHGATE_REDIS_DB", 0),
		RedisPrefix:   EnvString("AUTHGATE_REDIS_PREFIX", ""),

		ReadinessRequireStore: EnvBool("AUTHGATE_READINESS_REQUIRE_STORE", false),

		MetricsEnabled: EnvBool("AUTHGATE_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvCSV("AUTHGATE_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("AUTHGATE_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("AUTHGATE_CORS_MAX_AGE_SECONDS", 600),
	}
}
