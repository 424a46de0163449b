package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/saransh1220/s3files/internal/shared/infrastructure/database"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   database.PostgresConfig
	Redis      database.RedisConfig
	JWT        JWTConfig
	Migrations MigrationConfig
	S3         S3Config
	Files      FilesConfig
	Workers    WorkerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	AllowedOrigins  string
	ShutdownTimeout time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

type MigrationConfig struct {
	Path string
	Auto bool
}

// S3Config holds the bucket files are migrated to.
type S3Config struct {
	Region         string
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	Bucket         string
	BucketDir      string
}

// FilesConfig controls upload handling, naming and serving.
type FilesConfig struct {
	AutoExpire        time.Duration // zero disables expiry
	CheckImages       bool
	RemoteMode        string // local or s3
	LocalDir          string
	SplitChars        int
	SplitLevels       int
	InternalURL       string
	ExternalURL       string
	ServerType        string // nginx, apache or direct
	HashSecret        string
	DerivationsFile   string
	NodeID            string
	ResultDerivations []string
	MaxUploadSize     int64
	MaxFetchSize      int64
	FetchTimeout      time.Duration
	FetchAllowPrivate bool          // lets imports reach loopback and private networks
	PresignTTL        time.Duration // zero hands out public bucket URLs
	CacheTTL          time.Duration
	DumpResponses     bool
	DumpDerivations   bool
}

// WorkerConfig tunes the background migrator, sweeper and event pruning.
type WorkerConfig struct {
	MigrateInterval    time.Duration
	MigrateBatch       int
	MigrateWorkers     int
	MigrateMaxAttempts int
	ClaimTimeout       time.Duration
	SweepInterval      time.Duration
	SweepBatch         int
	EventRetention     time.Duration
}

// Load reads configuration from environment variables
func Load() Config {
	hostname, _ := os.Hostname()

	return Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:4200"),
			ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "20s"), 20*time.Second),
		},
		Database: database.PostgresConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "s3files"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: database.RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-dev-secret"),
		},
		Migrations: MigrationConfig{
			Path: getEnv("MIGRATIONS_PATH", "migrations"),
			Auto: parseBool(getEnv("AUTO_MIGRATE", "true"), true),
		},
		S3: S3Config{
			Region:         getEnv("S3_REGION", "us-east-1"),
			Endpoint:       getEnv("S3_ENDPOINT", ""),
			PublicEndpoint: getEnv("S3_PUBLIC_ENDPOINT", getEnv("S3_ENDPOINT", "")),
			AccessKey:      getEnv("S3_ACCESS_KEY", ""),
			SecretKey:      getEnv("S3_SECRET_KEY", ""),
			UseSSL:         parseBool(getEnv("S3_USE_SSL", "true"), true),
			Bucket:         getEnv("S3FILES_BUCKET", ""),
			BucketDir:      getEnv("S3FILES_BUCKET_DIR", ""),
		},
		Files: FilesConfig{
			AutoExpire:        parseExpiry(getEnv("S3FILES_AUTO_EXPIRE_UPLOADS", "1"), 24*time.Hour),
			CheckImages:       parseBool(getEnv("S3FILES_CHECK_IMAGES", "true"), true),
			RemoteMode:        strings.ToLower(getEnv("S3FILES_REMOTE_MODE", "local")),
			LocalDir:          getEnv("S3FILES_LOCAL_DIR", "./media"),
			SplitChars:        parseInt(getEnv("S3FILES_SPLIT_CHARS", "1"), 1),
			SplitLevels:       parseInt(getEnv("S3FILES_SPLIT_LEVELS", "2"), 2),
			InternalURL:       getEnv("S3FILES_INTERNAL_URL", "/media/"),
			ExternalURL:       getEnv("S3FILES_EXTERNAL_URL", "/media/"),
			ServerType:        strings.ToLower(getEnv("S3FILES_SERVER_TYPE", "nginx")),
			HashSecret:        getEnv("S3FILES_HASH_SECRET", ""),
			DerivationsFile:   getEnv("S3FILES_DERIVATIONS_FILE", ""),
			NodeID:            getEnv("S3FILES_NODE_ID", hostname),
			ResultDerivations: parseList(getEnv("S3FILES_RESULT_DERIVATIONS", "")),
			MaxUploadSize:     parseInt64(getEnv("S3FILES_MAX_UPLOAD_SIZE", "104857600"), 100<<20),
			MaxFetchSize:      parseInt64(getEnv("S3FILES_MAX_FETCH_SIZE", "104857600"), 100<<20),
			FetchTimeout:      parseDuration(getEnv("S3FILES_FETCH_TIMEOUT", "30s"), 30*time.Second),
			FetchAllowPrivate: parseBool(getEnv("S3FILES_FETCH_ALLOW_PRIVATE", "false"), false),
			PresignTTL:        parseDuration(getEnv("S3FILES_PRESIGN_TTL", "15m"), 15*time.Minute),
			CacheTTL:          parseDuration(getEnv("S3FILES_CACHE_TTL", "24h"), 24*time.Hour),
			DumpResponses:     parseBool(getEnv("S3FILES_DUMP_RESPONSES", "false"), false),
			DumpDerivations:   parseBool(getEnv("S3FILES_DUMP_DERIVATIONS", "false"), false),
		},
		Workers: WorkerConfig{
			MigrateInterval:    parseDuration(getEnv("S3FILES_MIGRATE_INTERVAL", "30s"), 30*time.Second),
			MigrateBatch:       parseInt(getEnv("S3FILES_MIGRATE_BATCH", "20"), 20),
			MigrateWorkers:     parseInt(getEnv("S3FILES_MIGRATE_WORKERS", "4"), 4),
			MigrateMaxAttempts: parseInt(getEnv("S3FILES_MIGRATE_MAX_ATTEMPTS", "3"), 3),
			ClaimTimeout:       parseDuration(getEnv("S3FILES_CLAIM_TIMEOUT", "10m"), 10*time.Minute),
			SweepInterval:      parseDuration(getEnv("S3FILES_SWEEP_INTERVAL", "10m"), 10*time.Minute),
			SweepBatch:         parseInt(getEnv("S3FILES_SWEEP_BATCH", "100"), 100),
			EventRetention:     parseDuration(getEnv("S3FILES_EVENT_RETENTION", "168h"), 7*24*time.Hour),
		},
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration string or returns a default value
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func parseInt(value string, defaultValue int) int {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return defaultValue
}

func parseInt64(value string, defaultValue int64) int64 {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	return defaultValue
}

// parseExpiry accepts a number of days ("1", "0.5") or a duration ("36h").
// "0" and "none" disable expiry.
func parseExpiry(value string, defaultValue time.Duration) time.Duration {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "none" || v == "off" {
		return 0
	}
	if days, err := strconv.ParseFloat(v, 64); err == nil {
		if days <= 0 {
			return 0
		}
		return time.Duration(days * float64(24*time.Hour))
	}
	return parseDuration(v, defaultValue)
}

func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
