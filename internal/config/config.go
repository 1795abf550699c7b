package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration. Endpoints and credentials are
// passed through to the store clients without validation.
type Config struct {
	AppName     string
	AppVersion  string
	Mode        string
	Environment string
	InstanceID  string

	OTLPEndpoint string

	Cloud CloudConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Blob BlobConfig

	HTTPAddr string

	SeedSampleRecords int
}

// BlobConfig selects the blob backend per tier. Containers default to the
// hot/cold pair the service has always used.
type BlobConfig struct {
	Tier2Backend   string
	Tier3Backend   string
	Tier2Container string
	Tier3Container string

	FilesystemRoot string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
}

type CloudConfig struct {
	OrganizationID   string
	OrganizationName string
	Metrics          CloudMetricsConfig
}

type CloudMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

const (
	BlobBackendMemory     = "memory"
	BlobBackendFilesystem = "filesystem"
	BlobBackendRedis      = "redis"
	BlobBackendS3         = "s3"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "stratum"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Mode:        normalizeMode(getenv("APP_MODE", ModeOSS)),
		Environment: getenv("ENVIRONMENT", "development"),
		InstanceID:  strings.TrimSpace(getenv("INSTANCE_ID", "")),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		Cloud: CloudConfig{
			OrganizationID:   strings.TrimSpace(getenv("CLOUD_ORGANIZATION_ID", "")),
			OrganizationName: getenv("CLOUD_ORGANIZATION_NAME", ""),
			Metrics: CloudMetricsConfig{
				Enabled:   getenvBool("CLOUD_METRICS_ENABLED", true),
				Exporter:  strings.ToLower(getenv("CLOUD_METRICS_EXPORTER", "")),
				Endpoint:  strings.TrimSpace(getenv("CLOUD_METRICS_ENDPOINT", "")),
				AuthToken: strings.TrimSpace(getenv("CLOUD_METRICS_AUTH_TOKEN", "")),
			},
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Blob: BlobConfig{
			Tier2Backend:   normalizeBackend(getenv("BLOB_TIER2_BACKEND", BlobBackendFilesystem)),
			Tier3Backend:   normalizeBackend(getenv("BLOB_TIER3_BACKEND", BlobBackendFilesystem)),
			Tier2Container: getenv("BLOB_TIER2_CONTAINER", "billing-hot"),
			Tier3Container: getenv("BLOB_TIER3_CONTAINER", "billing-cold"),
			FilesystemRoot: getenv("BLOB_FS_ROOT", "./data/blobs"),
			S3Endpoint:     strings.TrimSpace(getenv("BLOB_S3_ENDPOINT", "")),
			S3AccessKey:    strings.TrimSpace(getenv("BLOB_S3_ACCESS_KEY", "")),
			S3SecretKey:    getenv("BLOB_S3_SECRET_KEY", ""),
			S3Region:       strings.TrimSpace(getenv("BLOB_S3_REGION", "")),
			S3UseSSL:       getenvBool("BLOB_S3_USE_SSL", true),
		},

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		SeedSampleRecords: getenvInt("SEED_SAMPLE_RECORDS", 0),
	}

	return cfg
}

const (
	ModeOSS   = "oss"
	ModeCloud = "cloud"
)

func (c Config) IsCloud() bool {
	return c.Mode == ModeCloud
}

func normalizeMode(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == ModeCloud {
		return ModeCloud
	}
	return ModeOSS
}

func normalizeBackend(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case BlobBackendMemory, BlobBackendFilesystem, BlobBackendRedis, BlobBackendS3:
		return value
	default:
		return BlobBackendFilesystem
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewTieringPolicyHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
