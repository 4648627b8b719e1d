package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/fieldrules/pkg/logging"
	"github.com/lemonberrylabs/fieldrules/pkg/retention"
)

// serveConfig is read from the environment (optionally seeded from an env
// file) and then overridden by any flag set on the command line.
type serveConfig struct {
	Host     string `env:"HOST" envDefault:"0.0.0.0"`
	Port     int    `env:"PORT" envDefault:"8787"`
	GRPCPort int    `env:"GRPC_PORT" envDefault:"8788"`
	RulesDir string `env:"RULES_DIR"`
	DataFile string `env:"DATA_FILE"`

	CheckRetention time.Duration `env:"CHECK_RETENTION"`
	PruneSchedule  string        `env:"PRUNE_SCHEDULE" envDefault:"@hourly"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"console"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS"`
}

func (c serveConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c serveConfig) grpcAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

func (c serveConfig) logging() logging.Config {
	return logging.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}
}

func (c serveConfig) retention() retention.Config {
	return retention.Config{MaxAge: c.CheckRetention, Schedule: c.PruneSchedule}
}

func loadServeConfig(cmd *cobra.Command) (serveConfig, error) {
	var cfg serveConfig

	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		// Variables already in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("grpc-port") {
		cfg.GRPCPort, _ = flags.GetInt("grpc-port")
	}
	if flags.Changed("rules-dir") {
		cfg.RulesDir, _ = flags.GetString("rules-dir")
	}
	if flags.Changed("data-file") {
		cfg.DataFile, _ = flags.GetString("data-file")
	}
	if flags.Changed("check-retention") {
		cfg.CheckRetention, _ = flags.GetDuration("check-retention")
	}
	if flags.Changed("prune-schedule") {
		cfg.PruneSchedule, _ = flags.GetString("prune-schedule")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("log-file") {
		cfg.LogFile, _ = flags.GetString("log-file")
	}
	return cfg, nil
}
