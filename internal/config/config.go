// Package config holds the protocol parameters and the runtime settings of
// the server and client binaries.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Network  NetworkConfig
	Database DatabaseConfig
	PSI      PSIConfig
	Admin    AdminConfig
}

type NetworkConfig struct {
	Address     string
	IOTimeout   time.Duration
	MaxFrame    int
	DialTimeout time.Duration
}

type DatabaseConfig struct {
	Driver string // sqlite3 or postgres
	DSN    string
}

type PSIConfig struct {
	Scheme       string // bfv or clear
	MaxWorkers   int    // 0 = all cores
	SecurityBits int
}

type AdminConfig struct {
	Address   string // empty disables the admin API
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Network: NetworkConfig{
			Address:     getEnv("PSI_ADDRESS", "localhost:4470"),
			IOTimeout:   getDurationEnv("PSI_IO_TIMEOUT", 5*time.Minute),
			MaxFrame:    getIntEnv("PSI_MAX_FRAME", 1<<30),
			DialTimeout: getDurationEnv("PSI_DIAL_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", ""),
		},
		PSI: PSIConfig{
			Scheme:       getEnv("PSI_SCHEME", "bfv"),
			MaxWorkers:   getIntEnv("PSI_MAX_WORKERS", 0),
			SecurityBits: getIntEnv("PSI_SECURITY_BITS", DefaultSecurityBits),
		},
		Admin: AdminConfig{
			Address:   getEnv("ADMIN_ADDRESS", ""),
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			JWTIssuer: getEnv("ADMIN_JWT_ISSUER", "polypsi"),
			TokenTTL:  getDurationEnv("ADMIN_TOKEN_TTL", 24*time.Hour),
		},
	}, nil
}

// Workers resolves MaxWorkers to a concrete pool size.
func (c *Config) Workers() int {
	if c.PSI.MaxWorkers > 0 {
		return c.PSI.MaxWorkers
	}
	return runtime.NumCPU()
}

// DatabaseDSN returns the DSN with sqlite options applied. An empty DSN
// means no checkpointing.
func (c *Config) DatabaseDSN() string {
	dsn := c.Database.DSN
	if c.Database.Driver == "sqlite3" && dsn != "" {
		if !strings.Contains(dsn, "?") {
			return dsn + "?_journal_mode=WAL"
		} else if !strings.Contains(dsn, "_journal_mode") {
			return dsn + "&_journal_mode=WAL"
		}
	}
	return dsn
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
