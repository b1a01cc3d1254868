package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
	"github.com/KevinKickass/OpenBusSpoofer/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", envOr("SPOOF_CONFIG", "configs/config.yaml"), "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("path", *configPath),
		zap.String("mode", string(cfg.OperatingMode())),
		zap.String("table", cfg.TableFile()))

	lifecycle := system.NewLifecycleManager(cfg, logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	err = lifecycle.Start(startCtx)
	cancelStart()
	if err != nil {
		shutdown(lifecycle, cfg, logger)
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-lifecycle.Done():
		logger.Error("Fatal runtime error", zap.Error(err))
		exitCode = 1
	}

	if err := shutdown(lifecycle, cfg, logger); err != nil {
		exitCode = 1
	}

	logger.Info("Register spoofer stopped", zap.Int("exit_code", exitCode))
	logger.Sync()
	os.Exit(exitCode)
}

func shutdown(lifecycle *system.LifecycleManager, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
