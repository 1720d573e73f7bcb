package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/shmbridge/internal/channel"
	"github.com/GriffinCanCode/shmbridge/internal/envelope"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/GriffinCanCode/shmbridge/internal/writer"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file (default: environment)")
	kindFlag := flag.String("kind", "", "Record kind to write (overrides WRITER_KIND)")
	count := flag.Int("count", 0, "Stop after this many writes (0: run until signalled)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *kindFlag != "" {
		cfg.Writer.Kind = *kindFlag
	}
	if *dev {
		cfg.Logging.Development = true
	}

	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Close()

	kind, err := envelope.ParseKind(cfg.Writer.Kind)
	if err != nil {
		logger.Fatal("Invalid writer kind", zap.Error(err))
	}

	// The writer always creates the segment if it is missing
	ch, err := channel.Open(channel.Config{
		Name:             cfg.Segment.Name,
		Mode:             shm.ReadWrite,
		Capacity:         cfg.Segment.Capacity,
		Dir:              cfg.Segment.Dir,
		CrossProcessLock: cfg.Segment.CrossProcessLock,
	}, logger.Component("channel"))
	if err != nil {
		logger.Fatal("Failed to open channel", zap.String("segment", cfg.Segment.Name), zap.Error(err))
	}

	coord := resilience.NewCoordinator(resilience.RetrySettings{
		MaxRetries:       cfg.Retry.MaxRetries,
		RetryDelay:       cfg.Retry.RetryDelay,
		OperationTimeout: cfg.Retry.OperationTimeout,
	}, logger.Component("retry"))
	protocol := envelope.NewProtocol(ch, coord, logger.Component("envelope"))

	w, err := writer.New(protocol, writer.Config{
		Kind:     kind,
		Interval: cfg.Writer.Interval,
		Count:    *count,
	}, logger.Component("writer"))
	if err != nil {
		logger.Fatal("Failed to create writer", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		logger.Error("Writer failed", zap.Error(err))
		logger.Close()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
