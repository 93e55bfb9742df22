// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Engine   EngineConfig
	LogLevel string
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN is the lib/pq key/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL is the postgres:// form accepted by the pgx driver.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	ParamsTTLSeconds int
}

// StorageConfig points at the S3-compatible bucket that receives snapshot exports.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type EngineConfig struct {
	ReclassifyCron      string // empty disables the scheduler
	ClassificationScope string // network | store
	SalesWindowDays     int
	ResolveWorkers      int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		instance = load(viper.New())
	})

	return instance
}

func load(v *viper.Viper) *Config {
	// Set default values
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "autopo")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_PARAMS_TTL_SECONDS", 300)
	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "replenishment-params")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("ENGINE_RECLASSIFY_CRON", "0 3 * * *")
	v.SetDefault("ENGINE_CLASSIFICATION_SCOPE", "network")
	v.SetDefault("ENGINE_SALES_WINDOW_DAYS", 30)
	v.SetDefault("ENGINE_RESOLVE_WORKERS", 4)
	v.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("CACHE_ENABLED"),
			RedisURL:         v.GetString("REDIS_URL"),
			RedisHost:        v.GetString("REDIS_HOST"),
			RedisPort:        v.GetString("REDIS_PORT"),
			RedisPassword:    v.GetString("REDIS_PASSWORD"),
			RedisDB:          v.GetInt("REDIS_DB"),
			ParamsTTLSeconds: v.GetInt("CACHE_PARAMS_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("STORAGE_ENABLED"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		},
		Engine: EngineConfig{
			ReclassifyCron:      v.GetString("ENGINE_RECLASSIFY_CRON"),
			ClassificationScope: v.GetString("ENGINE_CLASSIFICATION_SCOPE"),
			SalesWindowDays:     v.GetInt("ENGINE_SALES_WINDOW_DAYS"),
			ResolveWorkers:      v.GetInt("ENGINE_RESOLVE_WORKERS"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}
}
