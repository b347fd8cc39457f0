package infrastructure

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSheetTypes is the sheet allow-list used when nothing is configured
var DefaultSheetTypes = []string{"DSA", "SQL", "System Design", "Web Development"}

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Telemetry TelemetryConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Catalog   CatalogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
	LogLevel     string
	CORSOrigins  []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver          string
	SQLitePath      string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig holds JWT authentication configuration
type JWTConfig struct {
	SecretKey          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled         bool
	ServiceName     string
	ServiceVersion  string
	OTLPEndpoint    string
	MetricsEndpoint string
	Environment     string
	SampleRatio     float64
	Insecure        bool
}

// RedisConfig holds the catalog cache configuration. The cache is skipped when disabled.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// KafkaConfig holds the catalog event publisher configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// CatalogConfig holds catalog policy: the sheet allow-list, admin emails and seeding
type CatalogConfig struct {
	ConfigPath  string
	SheetTypes  []string
	AdminEmails []string
	Seed        bool
	BatchPolicy string
}

// catalogFile is the optional YAML file overriding catalog policy
type catalogFile struct {
	SheetTypes  []string `yaml:"sheet_types"`
	AdminEmails []string `yaml:"admin_emails"`
	Permissive  bool     `yaml:"permissive"`
}

// defaultCORSOrigins are the local dev servers of the web client
var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	env := getEnv("ENVIRONMENT", "development")
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 10)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			Environment:  env,
			LogLevel:     getEnv("LOG_LEVEL", ""),
			CORSOrigins:  getEnvList("CORS_ORIGINS", defaultCORSOrigins),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			SQLitePath:      getEnv("DB_SQLITE_PATH", "sheet_tracker.db"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "sheet_tracker"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			SecretKey:          getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
			AccessTokenExpiry:  time.Duration(getEnvInt("JWT_ACCESS_EXPIRY_MINUTES", 15)) * time.Minute,
			RefreshTokenExpiry: time.Duration(getEnvInt("JWT_REFRESH_EXPIRY_HOURS", 168)) * time.Hour,
			Issuer:             getEnv("JWT_ISSUER", "sheet-tracker"),
		},
		Telemetry: TelemetryConfig{
			Enabled:         getEnvBool("TELEMETRY_ENABLED", true),
			ServiceName:     getEnv("SERVICE_NAME", "sheet-tracker-api"),
			ServiceVersion:  getEnv("SERVICE_VERSION", "1.0.0"),
			OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4318"),
			MetricsEndpoint: getEnv("METRICS_ENDPOINT", "/metrics"),
			Environment:     env,
			SampleRatio:     getEnvFloat("OTEL_TRACES_SAMPLER_RATIO", 0.1),
			Insecure:        getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheTTL: time.Duration(getEnvInt("REDIS_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_CATALOG_TOPIC", "catalog-events"),
		},
		Catalog: CatalogConfig{
			ConfigPath:  getEnv("CATALOG_CONFIG_PATH", ""),
			SheetTypes:  getEnvList("CATALOG_SHEET_TYPES", DefaultSheetTypes),
			AdminEmails: getEnvList("ADMIN_EMAILS", nil),
			Seed:        getEnvBool("SEED_CATALOG", true),
			BatchPolicy: getEnv("CATALOG_BATCH_POLICY", "continue"),
		},
	}

	if getEnvBool("CATALOG_PERMISSIVE_SHEET_TYPES", false) {
		config.Catalog.SheetTypes = nil
	}

	if config.Catalog.ConfigPath != "" {
		if err := config.Catalog.loadFile(config.Catalog.ConfigPath); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// loadFile overlays the YAML catalog file onto c. Lists present in the file replace
// the environment values.
func (c *CatalogConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog config: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse catalog config: %w", err)
	}

	if len(file.SheetTypes) > 0 {
		c.SheetTypes = file.SheetTypes
	}
	if file.Permissive {
		c.SheetTypes = nil
	}
	if len(file.AdminEmails) > 0 {
		c.AdminEmails = file.AdminEmails
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blank entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}
