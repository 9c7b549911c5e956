package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"rentbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Worker     WorkerConfig     `yaml:"worker"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

// BookingConfig holds the booking policy. Zero values fall back to the built-in policy.
type BookingConfig struct {
	MinHourlyDuration   int     `yaml:"min_hourly_duration"`
	MaxHourlyDuration   int     `yaml:"max_hourly_duration"`
	CleaningBufferHours int     `yaml:"cleaning_buffer_hours"`
	LatestEndHour       int     `yaml:"latest_end_hour"`
	LateCutoffHour      int     `yaml:"late_cutoff_hour"`
	BusinessStartHour   int     `yaml:"business_start_hour"`
	BusinessEndHour     int     `yaml:"business_end_hour"`
	MultiNightPremium   float64 `yaml:"multi_night_premium"`
	LateCheckoutRate    float64 `yaml:"late_checkout_rate"`
	HourlyMarkup        float64 `yaml:"hourly_markup"`
	IdempotencyTTL      int     `yaml:"idempotency_ttl"`
	ListingsFile        string  `yaml:"listings_file"`
}

type WorkerConfig struct {
	QueueSize   int `yaml:"queue_size"`
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	HeaderUserID string         `yaml:"header_user_id"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile    string `yaml:"credentials_file"`
	ReservationSpreadSheetID string `yaml:"reservations_spreadsheet_id"`
	ReservationSheetName     string `yaml:"reservations_sheet_name"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен, переменные могут прийти из окружения
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api keys are configured")
	}

	return c.Booking.Validate()
}

func (b *BookingConfig) Validate() error {
	if b.MinHourlyDuration < 1 {
		return fmt.Errorf("booking.min_hourly_duration must be positive, got %d", b.MinHourlyDuration)
	}
	if b.MaxHourlyDuration < b.MinHourlyDuration {
		return fmt.Errorf("booking.max_hourly_duration %d is below the minimum %d", b.MaxHourlyDuration, b.MinHourlyDuration)
	}
	if b.LatestEndHour < 1 || b.LatestEndHour > 24 {
		return fmt.Errorf("booking.latest_end_hour must be within 1..24, got %d", b.LatestEndHour)
	}
	if b.BusinessStartHour >= b.BusinessEndHour {
		return fmt.Errorf("booking business hours %d..%d are empty", b.BusinessStartHour, b.BusinessEndHour)
	}
	if b.CleaningBufferHours < 0 {
		return fmt.Errorf("booking.cleaning_buffer_hours must not be negative, got %d", b.CleaningBufferHours)
	}
	if b.MultiNightPremium < 1 || b.HourlyMarkup <= 0 || b.LateCheckoutRate < 0 {
		return errors.New("booking price multipliers are out of range")
	}
	return nil
}

// ValidateListings checks a listing catalog before it is seeded into storage.
func ValidateListings(listings []models.Listing) error {
	ids := make(map[string]bool)
	for _, l := range listings {
		id := strings.TrimSpace(l.ID)
		if id == "" {
			return fmt.Errorf("listing '%s' has empty ID", l.Title)
		}
		if ids[id] {
			return fmt.Errorf("duplicate listing ID found: %s", id)
		}
		if l.OwnerID == "" {
			return fmt.Errorf("listing %s has no owner", id)
		}
		if l.Price < 0 {
			return fmt.Errorf("listing %s has negative price %d", id, l.Price)
		}
		ids[id] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.Auth.HeaderUserID == "" {
		c.API.Auth.HeaderUserID = "x-user-id"
	}

	c.Booking.applyDefaults()

	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = models.WorkerQueueSize
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelayMS == 0 {
		c.Worker.BaseDelayMS = 1000
	}
	if c.Worker.MaxDelayMS == 0 {
		c.Worker.MaxDelayMS = 60000
	}

	if c.Google.ReservationSheetName == "" {
		c.Google.ReservationSheetName = "Reservations"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

func (b *BookingConfig) applyDefaults() {
	if b.MinHourlyDuration == 0 {
		b.MinHourlyDuration = models.MinHourlyDuration
	}
	if b.MaxHourlyDuration == 0 {
		b.MaxHourlyDuration = models.MaxHourlyDuration
	}
	if b.CleaningBufferHours == 0 {
		b.CleaningBufferHours = models.CleaningBufferHours
	}
	if b.LatestEndHour == 0 {
		b.LatestEndHour = models.LatestEndHour
	}
	if b.LateCutoffHour == 0 {
		b.LateCutoffHour = models.LateCutoffHour
	}
	if b.BusinessStartHour == 0 {
		b.BusinessStartHour = models.BusinessStartHour
	}
	if b.BusinessEndHour == 0 {
		b.BusinessEndHour = models.BusinessEndHour
	}
	if b.MultiNightPremium == 0 {
		b.MultiNightPremium = models.MultiNightPremium
	}
	if b.LateCheckoutRate == 0 {
		b.LateCheckoutRate = models.LateCheckoutRate
	}
	if b.HourlyMarkup == 0 {
		b.HourlyMarkup = models.HourlyMarkup
	}
	if b.IdempotencyTTL == 0 {
		b.IdempotencyTTL = models.IdempotencyTTL
	}
	if b.ListingsFile == "" {
		b.ListingsFile = "configs/listings.yaml"
	}
}
