package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"codeindex/internal/core/app"
	"codeindex/internal/core/config"
	"codeindex/internal/shared/observability"
)

// session is a loaded configuration and app for one command.
type session struct {
	cfg      *config.Config
	app      *app.App
	shutdown func(context.Context) error
}

func (s *session) Close(ctx context.Context) {
	if err := s.app.Close(); err != nil {
		slog.Warn("failed to close app", "error", err)
	}
	if err := s.shutdown(ctx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
}

// loadConfig finds and loads the configuration. A root argument overrides
// paths.root, including one set through the environment. Relative config
// paths resolve against the config file's directory.
func loadConfig(flags *globalFlags, rootArg string) (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	start := cwd
	if rootArg != "" {
		start = config.ResolveRelative(cwd, rootArg)
	}

	configPath := strings.TrimSpace(flags.configPath)
	explicit := configPath != ""
	if !explicit {
		configPath = config.FindConfigFile(start)
	}

	base := cwd
	var cfg *config.Config
	switch {
	case explicit:
		configPath = config.ResolveRelative(cwd, configPath)
		cfg, err = config.Load(configPath)
		base = filepath.Dir(configPath)
	case configPath != "":
		cfg, err = config.Load(configPath)
		base = filepath.Dir(configPath)
	default:
		cfg = config.DefaultConfig()
	}
	if err != nil {
		return nil, "", err
	}
	if configPath != "" {
		slog.Debug("loaded config", "path", configPath)
	}

	if err := config.LoadDotEnv(start); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	config.ApplyEnvOverrides(cfg)
	if rootArg != "" {
		cfg.Paths.Root = start
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, base, nil
}

func openSession(ctx context.Context, flags *globalFlags, rootArg string) (*session, error) {
	cfg, base, err := loadConfig(flags, rootArg)
	if err != nil {
		return nil, err
	}
	paths, err := config.ResolvePaths(cfg, base)
	if err != nil {
		return nil, err
	}

	shutdown, err := observability.SetupTracing(ctx, cfg.Observability.OTLPEndpoint, cfg.Observability.ServiceName)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdown = func(context.Context) error { return nil }
	}

	a, err := app.New(ctx, cfg, paths)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("initialize: %w", err)
	}
	slog.Debug("session ready", "root", paths.Root, "output", paths.OutputDir, "history", a.HistoryName())
	return &session{cfg: cfg, app: a, shutdown: shutdown}, nil
}
