package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/asset"
	"github.com/afroash/greenhouse-collector/internal/collector"
	"github.com/afroash/greenhouse-collector/internal/config"
	"github.com/afroash/greenhouse-collector/internal/models"
	"github.com/afroash/greenhouse-collector/internal/sensor"
	"github.com/afroash/greenhouse-collector/internal/storage"
)

const version = "v0.1.0"

const defaultConfigPath = "configs/collector.yaml"

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	configPath := os.Getenv("COLLECTOR_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logFile, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("settings", cfg.String()).
		Msg("Starting greenhouse collector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := 0
	host, err := sensor.NewHost(cfg.Hardware)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialise hardware")
		code = 1
	} else {
		if err := run(ctx, cfg, host, logger); err != nil {
			logger.Error().Err(err).Msg("Collector failed")
			code = 1
		}
		if err := host.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release hardware")
		}
	}

	stop()
	if logFile != nil {
		logFile.Close()
	}
	os.Exit(code)
}

// run builds sensors, the database sink and assets on hw, then runs the
// collector until every asset is done or ctx is cancelled. Errors returned
// here are startup errors; failures inside an asset cycle are logged and
// counted by the collector.
func run(ctx context.Context, cfg *config.Config, hw sensor.Hardware, logger zerolog.Logger) error {
	sensors, err := sensor.Build(cfg.Sensors, hw, sensor.NewBoardPins())
	if err != nil {
		return fmt.Errorf("build sensors: %w", err)
	}
	defer sensors.Close()
	logger.Info().Int("sensors", sensors.Len()).Msg("Sensors ready")

	sink, closeSink, err := newSink(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeSink()

	retrier := storage.NewRetrier(sink, cfg.Database.Driver, cfg.Database.Retry, logger)

	assets, err := asset.BuildAll(cfg, sensors, retrier, logger)
	if err != nil {
		return fmt.Errorf("build assets: %w", err)
	}

	info := models.NewCollectorInfo(version, cfg.Collection.Mode, len(assets))
	logger.Info().
		Str("hostname", info.Hostname).
		Str("mode", info.Mode).
		Int("assets", info.Assets).
		Msg("Collector ready")

	c := collector.New(assets, cfg.Collection, logger)
	if err := c.Run(ctx); err != nil {
		return err
	}

	for name, s := range c.Stats() {
		logger.Info().
			Str("asset", name).
			Int64("cycles", s.Cycles).
			Int64("failures", s.Failures).
			Str("last_error", s.LastError).
			Msg("Asset summary")
	}
	rs := retrier.Stats()
	logger.Info().
		Int64("submitted", rs.Submitted).
		Int64("retried", rs.Retried).
		Int64("failed", rs.Failed).
		Dur("uptime", info.Uptime()).
		Msg("Collector finished")

	return nil
}

// newSink opens the configured database backend. The returned func
// releases it and any background workers.
func newSink(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (storage.Submitter, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
		store, err := storage.NewSQLiteStore(cfg.SQLite.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		cleaner := storage.NewRetentionCleaner(store, cfg.SQLite, logger)
		return store, func() {
			cleaner.Stop()
			if stats, err := store.GetStorageStats(); err == nil {
				logger.Info().
					Int64("rows", stats.TotalRows).
					Float64("size_mb", stats.DatabaseSizeMB).
					Msg("SQLite store closed")
			}
			store.Close()
		}, nil

	default:
		sink := storage.NewInfluxSink(cfg.InfluxDB, logger)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.InfluxDB.Timeout)
		defer cancel()
		if err := sink.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Msg("InfluxDB is not reachable yet, writes will be retried")
		}
		return sink, func() { sink.Close() }, nil
	}
}

// newLogger builds the process logger. The returned file, if any, must be
// closed on exit.
func newLogger(cfg config.LoggingConfig) (zerolog.Logger, *os.File, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("parse log level: %w", err)
	}

	var out io.Writer = os.Stdout
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var file *os.File
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err = os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, file, nil
}
