package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"adaptive-reasoner/internal/config"
	"adaptive-reasoner/internal/logging"
	"adaptive-reasoner/internal/metrics"
	"adaptive-reasoner/internal/provider"
	providerfactory "adaptive-reasoner/internal/provider/factory"
	"adaptive-reasoner/internal/provider/openai"
	"adaptive-reasoner/internal/reasoner"
	"adaptive-reasoner/internal/router"
	"adaptive-reasoner/internal/server"
)

const serveUsage = `Usage:
  adaptive-reasoner serve [--config <path>] [--port <port>] [--env-file <path>]

Flags:
  --config   string   Path to YAML configuration file (default $AR_CONFIG_FILE or ./config.yaml)
  --port     int      Override server port from configuration
  --env-file string   Dotenv file loaded before reading configuration (default .env)`

func serve(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath, envFile string
	var overridePort int
	flags.StringVar(&cfgPath, "config", "", "path to configuration file")
	flags.IntVar(&overridePort, "port", 0, "override server port")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(config.ResolvePath(cfgPath))
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	client, err := openai.New(providerfactory.NewHTTPClient(cfg.Upstream),
		openai.WithReadTimeout(cfg.Upstream.ReadTimeout),
	)
	if err != nil {
		return err
	}
	r := reasoner.New(client,
		reasoner.WithMetrics(collector),
		reasoner.WithQueueCapacity(cfg.Reasoning.QueueCapacity),
		reasoner.WithDefaultMaxTokens(cfg.Reasoning.DefaultMaxTokens),
	)

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredRoutes(cfg, registry); err != nil {
		return err
	}

	rt, err := router.New(registry, r)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt, collector)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadEnvFile populates the process environment from a dotenv file. A missing file is not
// an error; variables already set are left alone.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", path).Msg("no dotenv file found")
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}
