package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	VaultModeSingle = "single"
	VaultModeMulti  = "multi"
	VaultModeBoth   = "both"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is passed to logger.Initialize.
	LogLevel string
	// WebPort is the port of the HTTP API.
	WebPort string

	// KeeperInterval is the time between two keeper cycles.
	KeeperInterval time.Duration
	// PolicyFile is the TOML file holding the deployment parameters. Empty means defaults.
	PolicyFile string
	// VaultMode selects which vaults the keeper drives: single, multi or both.
	VaultMode string

	// DB holds the Postgres connection settings. An empty host disables persistence.
	DB DBSettings
)

type DBSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Enabled reports whether a database is configured.
func (d DBSettings) Enabled() bool { return d.Host != "" }

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Only values without a sensible default are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	KeeperInterval, err = getEnvAsDuration("KEEPER_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}
	if KeeperInterval <= 0 {
		return errors.New("environment variable KEEPER_INTERVAL must be positive")
	}

	PolicyFile = getEnvOrDefault("POLICY_FILE", "")
	if strings.HasPrefix(PolicyFile, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		PolicyFile = filepath.Join(home, PolicyFile[2:])
	}

	VaultMode = strings.ToLower(getEnvOrDefault("VAULT_MODE", VaultModeBoth))
	switch VaultMode {
	case VaultModeSingle, VaultModeMulti, VaultModeBoth:
	default:
		return errors.New("environment variable VAULT_MODE must be one of single, multi, both, got: " + VaultMode)
	}

	if err := loadDBConfig(); err != nil {
		return err
	}
	if err := loadAssetConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("WebPort", WebPort).
		Str("KeeperInterval", KeeperInterval.String()).
		Str("PolicyFile", PolicyFile).
		Str("VaultMode", VaultMode).
		Bool("Database", DB.Enabled()).
		Msg("Configuration loaded successfully.")

	return nil
}

func loadDBConfig() error {
	DB = DBSettings{
		Host:     getEnvOrDefault("DB_HOST", ""),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		Name:     getEnvOrDefault("DB_NAME", "levvault"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	port, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DB.Port = port
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, err := getEnv(key); err == nil && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration accepts Go durations ("90s", "10m") or plain seconds.
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a duration, got: " + valueStr)
	}
	return time.Duration(secs) * time.Second, nil
}
