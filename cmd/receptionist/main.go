package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/greatowl/receptionist/internal/api"
	"github.com/greatowl/receptionist/internal/archive"
	"github.com/greatowl/receptionist/internal/backend"
	"github.com/greatowl/receptionist/internal/cache"
	"github.com/greatowl/receptionist/internal/chat"
	"github.com/greatowl/receptionist/internal/config"
	"github.com/greatowl/receptionist/internal/prompt"
	"github.com/greatowl/receptionist/internal/session"
	"github.com/greatowl/receptionist/internal/telemetry"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers flags over the optional config file over the defaults.
func loadConfig() (config.Config, error) {
	defaults := config.Default()

	configPath := flag.String("config", "", "Path to TOML config file")
	listenAddr := flag.String("listen", defaults.ListenAddr, "HTTP listen address")
	model := flag.String("model", defaults.Model, "Upstream completion model")
	archivePath := flag.String("archive", defaults.ArchivePath, "SQLite turn transcript path (empty disables)")
	logDir := flag.String("log-dir", defaults.LogDir, "Directory for logs and telemetry files")
	debug := flag.Bool("debug", defaults.Debug, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = *listenAddr
		case "model":
			cfg.Model = *model
		case "archive":
			cfg.ArchivePath = *archivePath
		case "log-dir":
			cfg.LogDir = *logDir
		case "debug":
			cfg.Debug = *debug
		}
	})
	return cfg, nil
}

func run(cfg config.Config) error {
	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	store := session.NewStore(cfg.RetentionMessages)

	client := backend.NewClient(cfg.APIKey, cfg.UpstreamURL, cfg.Model,
		cfg.Temperature, cfg.MaxTokens, cfg.TurnTimeout(), tracer, meter)
	if !client.Configured() {
		logger.Warn("OPENAI_API_KEY not set, upstream calls will fail")
	}

	var recorder chat.TurnRecorder
	if cfg.ArchivePath != "" {
		arch, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open turn archive: %w", err)
		}
		defer arch.Close()
		recorder = arch
		logger.Info("turn archive enabled", "path", cfg.ArchivePath)
	}

	orchestrator := chat.NewOrchestrator(store, prompt.NewAssembler(), prompt.DefaultRules(),
		client, cache.New(), recorder, logger, tracer, meter, cfg.TurnTimeout())

	server := api.NewServer(cfg, store, orchestrator, client.Configured(), logger)
	return server.Run(ctx)
}
