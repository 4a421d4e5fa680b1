package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	StartURL       string
	Concurrency    int
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	MaxRetries     int
	ScrapeTime     string
	DumpTime       string
	Timezone       string
	DumpDir        string
}

type BrowserConfig struct {
	Enabled        bool
	Headless       bool
	Timeout        time.Duration
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr         string
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

const defaultStartURL = "https://auto.ria.com/uk/search/?indexName=auto,order_auto,newauto_search" +
	"&categories.main.id=1&country.import.usa.not=-1&price.currency=1" +
	"&abroad.not=0&custom.not=1&page=0&size=100"

func Load() (*Config, error) {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			StartURL:       getEnvOrDefault("START_URL", defaultStartURL),
			Concurrency:    getIntOrDefault("CONCURRENCY", 5),
			RequestTimeout: getDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
			RequestDelay:   getDurationOrDefault("REQUEST_DELAY", 1*time.Second),
			MaxRetries:     getIntOrDefault("MAX_RETRIES", 3),
			ScrapeTime:     getEnvOrDefault("SCRAPE_SCHEDULE_TIME", "12:00"),
			DumpTime:       getEnvOrDefault("DUMP_SCHEDULE_TIME", "00:00"),
			Timezone:       getEnvOrDefault("TIMEZONE", "Europe/Kiev"),
			DumpDir:        getEnvOrDefault("DUMP_DIR", "dumps"),
		},
		Browser: BrowserConfig{
			Enabled:        getBoolOrDefault("BROWSER_ENABLED", false),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "uk-UA,uk;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Kiev"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "uk-UA"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "db"),
			Port:     getIntOrDefault("POSTGRES_PORT", 5432),
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnvOrDefault("POSTGRES_DB", "autoria"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:listings"),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.StartURL == "" {
		return fmt.Errorf("START_URL must not be empty")
	}

	if c.Scraper.Concurrency < 1 {
		return fmt.Errorf("CONCURRENCY must be at least 1")
	}

	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative")
	}

	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	for _, t := range []struct{ key, value string }{
		{"SCRAPE_SCHEDULE_TIME", c.Scraper.ScrapeTime},
		{"DUMP_SCHEDULE_TIME", c.Scraper.DumpTime},
	} {
		if _, err := time.Parse("15:04", t.value); err != nil {
			return fmt.Errorf("%s must be in HH:MM format: %w", t.key, err)
		}
	}

	if _, err := time.LoadLocation(c.Scraper.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationOrDefault accepts either a Go duration string ("30s") or a bare
// number of seconds ("30"), matching how the original deployment configured
// timeouts.
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}
