package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Insecure defaults that must never survive into release mode
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"admin-api-key":                        true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Admin          AdminConfig
	Hostycare      HostycareConfig
	SmartVPS       SmartVPSConfig
	Notify         NotifyConfig
	Provision      ProvisionConfig
	InternalSecret string
	LogLevel       string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

type AdminConfig struct {
	APIKey string
}

type HostycareConfig struct {
	APIURL string
	APIKey string
}

type SmartVPSConfig struct {
	APIURL   string
	APIToken string
}

type NotifyConfig struct {
	ServiceURL string
}

type ProvisionConfig struct {
	// Worker pool size for batch runs; kept small to respect provider
	// rate limits
	Concurrency int
	// Extra attempts per order on transient failures
	RetryLimit int
	// Delay between retry attempts
	RetryDelay time.Duration
	// Age after which a 'provisioning' lease is considered abandoned
	StaleAfter time.Duration
	// Background reaper sweep interval
	ReaperInterval time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8007"),
			Mode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "vps_user"),
			Password: getEnv("DB_PASSWORD", "vps_pass"),
			DBName:   getEnv("DB_NAME", "vps_db"),
			Schema:   getEnv("DB_SCHEMA", "provisioning"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Admin: AdminConfig{
			APIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Hostycare: HostycareConfig{
			APIURL: getEnv("HOSTYCARE_API_URL", "https://hostycare.com/api"),
			APIKey: getEnv("HOSTYCARE_API_KEY", ""),
		},
		SmartVPS: SmartVPSConfig{
			APIURL:   getEnv("SMARTVPS_API_URL", "https://api.smartvps.net"),
			APIToken: getEnv("SMARTVPS_API_TOKEN", ""),
		},
		Notify: NotifyConfig{
			ServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8008"),
		},
		Provision: ProvisionConfig{
			Concurrency:    getEnvInt("PROVISION_CONCURRENCY", 3),
			RetryLimit:     getEnvInt("PROVISION_RETRY_LIMIT", 2),
			RetryDelay:     getEnvDuration("PROVISION_RETRY_DELAY", 5*time.Second),
			StaleAfter:     getEnvDuration("PROVISION_STALE_AFTER", 15*time.Minute),
			ReaperInterval: getEnvDuration("PROVISION_REAPER_INTERVAL", 5*time.Minute),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	// No secrets in the startup log
	logrus.Infof("[config] Provision Service loaded: port=%s db=%s/%s.%s concurrency=%d",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Database.Schema,
		cfg.Provision.Concurrency)

	return cfg
}

// Validate checks that release deployments carry real secrets
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.Admin.APIKey] {
		return fmt.Errorf("ADMIN_API_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.Admin.APIKey) < 32 {
		return fmt.Errorf("ADMIN_API_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}

	if c.Provision.Concurrency < 1 {
		return fmt.Errorf("PROVISION_CONCURRENCY must be at least 1")
	}
	if c.Provision.RetryLimit < 0 {
		return fmt.Errorf("PROVISION_RETRY_LIMIT must not be negative")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
