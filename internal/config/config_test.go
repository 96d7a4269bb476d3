package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "postgres", cfg.DBDriver)
				assert.Equal(t, 25, cfg.DBMaxOpenConnections)
				assert.Equal(t, 5, cfg.DBMaxIdleConnections)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "aes-gcm", cfg.KeysAlgorithm)
				assert.Equal(t, 90*24*time.Hour, cfg.KeysRotationInterval)
				assert.Equal(t, time.Hour, cfg.KeysCacheTTL)
				assert.True(t, cfg.KeysAutoGenerate)
				assert.Equal(t, 100000, cfg.KDFIterations)
				assert.Equal(t, time.Hour, cfg.TransactionsCacheTTL)
				assert.Equal(t, "memory", cfg.CacheDriver)
				assert.Equal(t, "file:///var/lib/e2ee/backups", cfg.BackupBucketURL)
				assert.Equal(t, 5.0, cfg.RestoreRateLimitPerMinute)
				assert.Equal(t, 3, cfg.RestoreRateLimitBurst)
				assert.True(t, cfg.AuditEnabled)
				assert.True(t, cfg.MetricsEnabled)
				assert.Equal(t, "e2ee", cfg.MetricsNamespace)
			},
		},
		{
			name: "load custom database configuration",
			envVars: map[string]string{
				"DB_DRIVER":               "mysql",
				"DB_CONNECTION_STRING":    "user:password@tcp(localhost:3306)/testdb",
				"DB_MAX_OPEN_CONNECTIONS": "50",
				"DB_MAX_IDLE_CONNECTIONS": "10",
				"DB_CONN_MAX_LIFETIME":    "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/testdb", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
				assert.Equal(t, 10, cfg.DBMaxIdleConnections)
				assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
			},
		},
		{
			name: "load custom key lifecycle configuration",
			envVars: map[string]string{
				"KEYS_ALGORITHM":              "chacha20-poly1305",
				"KEYS_ROTATION_INTERVAL_DAYS": "30",
				"KEYS_CACHE_TTL_SECONDS":      "60",
				"KEYS_AUTO_GENERATE":          "false",
				"KDF_ITERATIONS":              "250000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "chacha20-poly1305", cfg.KeysAlgorithm)
				assert.Equal(t, 30*24*time.Hour, cfg.KeysRotationInterval)
				assert.Equal(t, time.Minute, cfg.KeysCacheTTL)
				assert.False(t, cfg.KeysAutoGenerate)
				assert.Equal(t, 250000, cfg.KDFIterations)
			},
		},
		{
			name: "load custom cache and backup configuration",
			envVars: map[string]string{
				"CACHE_DRIVER":      "redis",
				"REDIS_URL":         "redis://cache:6379/1",
				"BACKUP_BUCKET_URL": "mem://",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "redis", cfg.CacheDriver)
				assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
				assert.Equal(t, "mem://", cfg.BackupBucketURL)
			},
		},
		{
			name: "load custom log level",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()

			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			cfg := Load()

			tt.validate(t, cfg)
		})
	}
}

func TestGetGinMode(t *testing.T) {
	tests := map[string]string{
		"debug": "debug",
		"info":  "release",
		"warn":  "release",
		"error": "release",
		"":      "release",
	}

	for level, want := range tests {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, want, cfg.GetGinMode(), "log level %q", level)
	}
}
