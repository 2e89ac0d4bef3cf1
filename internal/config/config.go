package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Port     string `yaml:"port"`
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	DBConnectAttempts int           `yaml:"db_connect_attempts"`
	DBConnectDelay    time.Duration `yaml:"db_connect_delay"`

	SessionSecret      string        `yaml:"session_secret"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	SessionMaxLifetime time.Duration `yaml:"session_max_lifetime"`
	SecureCookies      bool          `yaml:"secure_cookies"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	AuthRatePerMinute int `yaml:"auth_rate_per_minute"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// friends. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

func Default() *Config {
	return &Config{
		Port:               "8080",
		DBDriver:           "sqlite3",
		DBDSN:              "taskboard.db",
		DBConnectAttempts:  5,
		DBConnectDelay:     500 * time.Millisecond,
		SessionIdleTimeout: 30 * time.Minute,
		SessionMaxLifetime: 12 * time.Hour,
		LogLevel:           "info",
		LogFormat:          "json",
		AuthRatePerMinute:  20,
	}
}

// Load reads filename over the defaults and then applies environment
// overrides. A missing file is not an error.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", filename, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBDSN = getEnv("DB_DSN", c.DBDSN)
	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	var err error
	if c.DBConnectAttempts, err = getEnvAsInt("DB_CONNECT_ATTEMPTS", c.DBConnectAttempts); err != nil {
		return err
	}
	if c.AuthRatePerMinute, err = getEnvAsInt("AUTH_RATE_PER_MINUTE", c.AuthRatePerMinute); err != nil {
		return err
	}
	if c.DBConnectDelay, err = getEnvAsDuration("DB_CONNECT_DELAY", c.DBConnectDelay); err != nil {
		return err
	}
	if c.SessionIdleTimeout, err = getEnvAsDuration("SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout); err != nil {
		return err
	}
	if c.SessionMaxLifetime, err = getEnvAsDuration("SESSION_MAX_LIFETIME", c.SessionMaxLifetime); err != nil {
		return err
	}
	if c.SecureCookies, err = getEnvAsBool("SECURE_COOKIES", c.SecureCookies); err != nil {
		return err
	}
	if c.TrustProxyHeaders, err = getEnvAsBool("TRUST_PROXY_HEADERS", c.TrustProxyHeaders); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port is required")
	}
	if c.DBDriver == "" || c.DBDSN == "" {
		return errors.New("config: db_driver and db_dsn are required")
	}
	if c.DBConnectAttempts < 1 {
		return errors.New("config: db_connect_attempts must be at least 1")
	}
	if c.SessionIdleTimeout <= 0 || c.SessionMaxLifetime <= 0 {
		return errors.New("config: session timeouts must be positive")
	}
	if c.SessionIdleTimeout > c.SessionMaxLifetime {
		return errors.New("config: session_idle_timeout exceeds session_max_lifetime")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
