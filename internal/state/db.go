// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// ConnectionString renders cfg as a lib/pq keyword/value DSN.
func (cfg DBConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode)
	if cfg.Password != "" {
		dsn += " password=" + cfg.Password
	}
	return dsn
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// Enabled reports whether a connection pool is open.
func Enabled() bool { return DB != nil }

// Amounts are stored as NUMERIC(78, 0), wide enough for any uint256.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS policy_parameters (
		params_id SERIAL PRIMARY KEY,
		strategy_name VARCHAR(255) NOT NULL,
		version INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		target_ltv_ppb BIGINT NOT NULL,
		max_ltv_ppb BIGINT NOT NULL,
		loop_count INTEGER NOT NULL,
		max_slippage_ppb BIGINT NOT NULL,
		price_max_age_seconds BIGINT NOT NULL,
		CONSTRAINT uq_policy_parameters_strategy_version UNIQUE (strategy_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_policy_parameters_strategy_active ON policy_parameters(strategy_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS vault_events (
		seq BIGINT PRIMARY KEY,
		kind VARCHAR(64) NOT NULL,
		emitter CHAR(42) NOT NULL,
		event_time TIMESTAMPTZ NOT NULL,
		from_address CHAR(42) NOT NULL,
		to_address CHAR(42) NOT NULL,
		sender CHAR(42) NOT NULL,
		receiver CHAR(42) NOT NULL,
		owner CHAR(42) NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		shares NUMERIC(78, 0) NOT NULL,
		weights BIGINT[],
		label TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_vault_events_kind ON vault_events(kind, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_vault_events_emitter ON vault_events(emitter, seq DESC);

	CREATE TABLE IF NOT EXISTS yield_samples (
		sample_id SERIAL PRIMARY KEY,
		strategy_name VARCHAR(255) NOT NULL,
		sample_timestamp TIMESTAMPTZ NOT NULL,
		growth_index DOUBLE PRECISION NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_yield_samples_strategy ON yield_samples(strategy_name, sample_timestamp DESC);

	CREATE TABLE IF NOT EXISTS cycle_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		cycle_id UUID NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		policy_params_id INTEGER REFERENCES policy_parameters(params_id),

		-- Pre-cycle state
		initial_vault JSONB NOT NULL,
		initial_position JSONB NOT NULL,
		initial_allocation JSONB NOT NULL,

		-- The plan
		target_weights BIGINT[],
		adjustment JSONB,

		-- The outcome
		final_vault JSONB NOT NULL,
		final_position JSONB NOT NULL,
		final_allocation JSONB NOT NULL,
		final_total_assets NUMERIC(78, 0) NOT NULL,
		final_token_per_asset NUMERIC(78, 0) NOT NULL,
		vault_pnl NUMERIC(78, 0) NOT NULL,
		multi_pnl NUMERIC(78, 0) NOT NULL,
		errors TEXT[]
	);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);

	-- One counter row per keeper
	CREATE TABLE IF NOT EXISTS cycle_counter (
		keeper_name VARCHAR(255) PRIMARY KEY,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table created by EnsureSchema.
func DropSchema() error {
	if DB == nil {
		return ErrNotInitialized
	}
	_, err := DB.Exec(`
		DROP TABLE IF EXISTS cycle_snapshots CASCADE;
		DROP TABLE IF EXISTS policy_parameters CASCADE;
		DROP TABLE IF EXISTS vault_events CASCADE;
		DROP TABLE IF EXISTS yield_samples CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	log.Warn().Msg("Database schema dropped.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection(ctx context.Context) error {
	if DB == nil {
		return ErrNotInitialized
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
