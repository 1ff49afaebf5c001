package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zen-systems/modelcompare/pkg/adapter"
	"github.com/zen-systems/modelcompare/pkg/compare"
	"github.com/zen-systems/modelcompare/pkg/config"
	"github.com/zen-systems/modelcompare/pkg/pricing"
	"github.com/zen-systems/modelcompare/pkg/store"
	"github.com/zen-systems/modelcompare/pkg/telemetry"
	"go.uber.org/zap"
)

// app is the composition root shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
}

func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if cfg.ConfigFile != "" {
		logger.Debug("config loaded", zap.String("file", cfg.ConfigFile))
	}

	registry := telemetry.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  telemetry.New(registry),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// orchestrator builds the configured adapters in compare.providers order.
func (a *app) orchestrator() (*compare.Orchestrator, error) {
	table := pricing.Defaults
	if a.cfg.PricingFile != "" {
		t, err := pricing.LoadFile(a.cfg.PricingFile)
		if err != nil {
			return nil, err
		}
		table = t
	}

	adapters, err := createAdapters(a.cfg, table, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	return compare.New(adapters,
		compare.WithLogger(a.logger.Named("compare")),
		compare.WithRecorder(a.metrics),
	), nil
}

func (a *app) openStore(ctx context.Context) (*store.SQLiteStore, error) {
	path := a.cfg.Database.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return store.New(ctx, path)
}

// createAdapters builds one adapter per provider spec. Providers without a
// key are still built; their calls settle as missing_api_key failures.
func createAdapters(cfg *config.Config, table pricing.Table, logger *zap.Logger) ([]adapter.Adapter, error) {
	specs, err := cfg.ProviderSpecs()
	if err != nil {
		return nil, err
	}

	adapters := make([]adapter.Adapter, 0, len(specs))
	for _, spec := range specs {
		pc := cfg.Providers[spec.Name]
		opts := []adapter.Option{
			adapter.WithModel(spec.Model),
			adapter.WithMaxTokens(pc.MaxTokens),
			adapter.WithPricing(table),
			adapter.WithLogger(logger.Named(spec.Name)),
		}
		if pc.BaseURL != "" {
			opts = append(opts, adapter.WithBaseURL(pc.BaseURL))
		}

		key := cfg.APIKeys.For(spec.Name)
		if key == "" && spec.Name != "mock" {
			logger.Warn("no API key configured", zap.String("provider", spec.Name))
		}

		var a adapter.Adapter
		switch spec.Name {
		case "openai":
			a = adapter.NewOpenAIAdapter(key, opts...)
		case "anthropic":
			a = adapter.NewAnthropicAdapter(key, opts...)
		case "xai":
			a = adapter.NewXAIAdapter(key, opts...)
		case "google":
			a = adapter.NewGoogleAdapter(key, opts...)
		case "deepseek":
			a = adapter.NewDeepSeekAdapter(key, opts...)
		case "mock":
			a = adapter.NewMockAdapter("mock", opts...)
		default:
			return nil, fmt.Errorf("no adapter for provider %q", spec.Name)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
