// Package main is the entry point for the PortfolioPilot backtesting and
// optimisation service.
//
// Startup order:
//  1. Load configuration from .env and the environment
//  2. Initialise logging
//  3. Open and migrate the price history database
//  4. Build the solver registry
//  5. Serve HTTP until SIGINT/SIGTERM, then shut down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/portfoliopilot/internal/config"
	"github.com/aristath/portfoliopilot/internal/database"
	"github.com/aristath/portfoliopilot/internal/modules/historical"
	"github.com/aristath/portfoliopilot/internal/modules/optimization"
	"github.com/aristath/portfoliopilot/internal/server"
	"github.com/aristath/portfoliopilot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting PortfolioPilot")

	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	if err := historyDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate history database")
	}

	solvers := optimization.NewDefaultRegistry(cfg.SolverTimeout, log)
	log.Info().Strs("solvers", solvers.Names()).Dur("budget", cfg.SolverTimeout).Msg("Solver registry ready")

	srv := server.New(server.Config{
		Log:       log,
		HistoryDB: historyDB,
		Store:     historical.NewStore(historyDB.Conn(), log),
		Solvers:   solvers,
		Config:    cfg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := historyDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}

	log.Info().Msg("Server stopped")
}
