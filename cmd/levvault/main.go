package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/config"
	"github.com/elys-network/levvault/internal/deploy"
	"github.com/elys-network/levvault/internal/keeper"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/metrics"
	"github.com/elys-network/levvault/internal/state"
	"github.com/elys-network/levvault/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const keeperName = "levvault-keeper"

// main is the entry point of the vault keeper.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Leveraged vault keeper starting...")

	file, err := config.LoadPolicyFile(config.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.PolicyFile).Msg("Failed to load policy file")
	}

	var policyParamsID *int64
	if config.DB.Enabled() {
		dbCfg := state.DBConfig{
			Host: config.DB.Host, Port: config.DB.Port,
			User: config.DB.User, Password: config.DB.Password,
			DBName: config.DB.Name, SSLMode: config.DB.SSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		id, err := syncPolicy(file)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to store policy parameters")
		}
		policyParamsID = &id
	} else {
		log.Warn().Msg("DB_HOST not set, running without persistence")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Deploy the simulated protocol ---
	protocol, err := deploy.NewSimulatedProtocol(ctx, file, deploy.AssetsFromConfig(), config.VaultMode, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to deploy vaults")
	}
	if config.DB.Enabled() {
		keeper.PersistEvents(protocol.Runtime)
	}
	if config.DemoDeposit > 0 {
		depositor := deploy.Operator
		amount := sdkmath.NewIntFromUint64(config.DemoDeposit).Mul(sdkmath.NewIntWithDecimal(1, 18))
		if err := protocol.SeedDeposits(ctx, depositor, amount); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed demo deposits")
		}
	}

	var positions []keeper.PositionSource
	if protocol.Leveraged != nil {
		positions = append(positions, protocol.Leveraged)
	}
	if protocol.MultiLeveraged != nil {
		positions = append(positions, protocol.MultiLeveraged)
	}

	// --- 3. Create the keeper ---
	k, err := keeper.New(keeper.Config{
		Name:           keeperName,
		Runtime:        protocol.Runtime,
		Operator:       deploy.Operator,
		Vault:          protocol.Vault,
		Multi:          protocol.Multi,
		StrategyNames:  protocol.MultiNames,
		Positions:      positions,
		WeightParams:   file.WeightParameters(config.KeeperInterval),
		YieldLookback:  file.Multi.YieldLookback,
		Metrics:        metrics.Default(),
		PolicyParamsID: policyParamsID,
		Advance:        protocol.Advance,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	// --- 4. Start the web server ---
	webServer := web.NewWebServer(web.Options{
		Port:       config.WebPort,
		Runtime:    protocol.Runtime,
		Keeper:     k,
		Vault:      protocol.Vault,
		Multi:      protocol.Multi,
		MultiNames: protocol.MultiNames,
		Positions:  positions,
	})
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 5. Keeper loop ---
	log.Info().Str("interval", config.KeeperInterval.String()).Str("mode", config.VaultMode).Msg("Starting keeper loop")
	k.RunLoop(ctx, config.KeeperInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Keeper stopped")
}

// syncPolicy makes the policy file the active stored version. A new version is
// only written when the parameters changed.
func syncPolicy(file config.File) (int64, error) {
	name := file.Vault.StrategyName
	params := file.PolicyParameters()

	active, id, version, err := state.LoadActivePolicyParameters(name)
	if err == nil && active == params {
		log.Info().Str("strategy", name).Int("version", version).Msg("Stored policy matches policy file")
		return id, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("No active policy stored, saving policy file")
	}

	latest, err := state.LatestPolicyVersion(name)
	if err != nil {
		return 0, err
	}
	return state.SavePolicyParameters(params, name, latest+1, true)
}
