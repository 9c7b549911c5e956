package config

import (
	"os"
	"path/filepath"
	"testing"

	"rentbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("RENTBOOK_TEST_KEY", "secret-key")

	yamlContent := `
database:
  path: "test.db"
api:
  enabled: true
  auth:
    enabled: true
    api_keys:
      - key: "${RENTBOOK_TEST_KEY}"
        name: "frontend"
        permissions: ["read:calendar"]
booking:
  min_hourly_duration: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test.db", cfg.Database.Path)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "secret-key", cfg.API.Auth.APIKeys[0].Key)
	assert.True(t, cfg.API.HTTP.Enabled)
	assert.Equal(t, 2, cfg.Booking.MinHourlyDuration)
	assert.Equal(t, models.MaxHourlyDuration, cfg.Booking.MaxHourlyDuration)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidBooking(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
database:
  path: "test.db"
booking:
  min_hourly_duration: 6
  max_hourly_duration: 4
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	_, err := Load(configPath)
	assert.ErrorContains(t, err, "config validation failed")
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{Database: DatabaseConfig{Path: "path"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "auth without keys", mutate: func(c *Config) { c.API.Auth.Enabled = true }, wantErr: true},
		{
			name: "auth with keys",
			mutate: func(c *Config) {
				c.API.Auth.Enabled = true
				c.API.Auth.APIKeys = []APIClientKey{{Key: "k"}}
			},
		},
		{name: "empty business hours", mutate: func(c *Config) { c.Booking.BusinessEndHour = c.Booking.BusinessStartHour }, wantErr: true},
		{name: "latest end past midnight", mutate: func(c *Config) { c.Booking.LatestEndHour = 25 }, wantErr: true},
		{name: "discount instead of premium", mutate: func(c *Config) { c.Booking.MultiNightPremium = 0.9 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "x-user-id", cfg.API.Auth.HeaderUserID)
	assert.Equal(t, models.MinHourlyDuration, cfg.Booking.MinHourlyDuration)
	assert.Equal(t, models.CleaningBufferHours, cfg.Booking.CleaningBufferHours)
	assert.Equal(t, models.LatestEndHour, cfg.Booking.LatestEndHour)
	assert.InDelta(t, models.MultiNightPremium, cfg.Booking.MultiNightPremium, 1e-9)
	assert.Equal(t, models.IdempotencyTTL, cfg.Booking.IdempotencyTTL)
	assert.Equal(t, models.WorkerQueueSize, cfg.Worker.QueueSize)
	assert.Equal(t, "Reservations", cfg.Google.ReservationSheetName)
}

func TestValidateListings(t *testing.T) {
	tests := []struct {
		name     string
		listings []models.Listing
		wantErr  bool
	}{
		{
			name: "Valid listings",
			listings: []models.Listing{
				{ID: "loft", OwnerID: "u1", Price: 100},
				{ID: "cabin", OwnerID: "u2", Price: 80},
			},
		},
		{
			name: "Duplicate ID",
			listings: []models.Listing{
				{ID: "loft", OwnerID: "u1", Price: 100},
				{ID: "loft", OwnerID: "u2", Price: 80},
			},
			wantErr: true,
		},
		{name: "Empty ID", listings: []models.Listing{{OwnerID: "u1"}}, wantErr: true},
		{name: "No owner", listings: []models.Listing{{ID: "loft"}}, wantErr: true},
		{name: "Negative price", listings: []models.Listing{{ID: "loft", OwnerID: "u1", Price: -5}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateListings(tt.listings)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateListings() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
