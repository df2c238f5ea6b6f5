package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/config"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/logging"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configFile := pflag.StringP("config", "c", "", "YAML config file (overrides DEVIPC_CONFIG_FILE)")
	socket := pflag.StringP("socket", "s", "", "Unix socket path")
	dev := pflag.Bool("dev", false, "Development logging")
	pflag.Parse()

	if *configFile != "" {
		os.Setenv(config.FileEnv, *configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "devipcd: %v\n", err)
		os.Exit(1)
	}
	if *socket != "" {
		cfg.Server.Socket = *socket
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "devipcd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting devipcd",
		zap.String("socket", cfg.Server.Socket),
		zap.Int("devices", cfg.Devices.Count),
		zap.Int("buffer_size", cfg.Devices.BufferSize),
		zap.Int64("msgbox_budget", cfg.MsgBox.ByteBudget),
	)

	k, err := kernel.New(cfg.Devices, cfg.MsgBox, logger.Named("kernel"))
	if err != nil {
		return err
	}
	defer k.Close()

	srv := server.New(k, server.Options{
		Config:      cfg.Server,
		Logger:      logger.Named("server"),
		Metrics:     monitoring.NewMetrics(),
		Development: cfg.Logging.Development,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	return <-errc
}
