// Package app wires configuration into stores, classifiers, collectors and services.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/ai"
	"github.com/freedom_case_2/crcollector/internal/cache"
	"github.com/freedom_case_2/crcollector/internal/classify"
	"github.com/freedom_case_2/crcollector/internal/collector"
	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/providers"
	"github.com/freedom_case_2/crcollector/internal/providers/slack"
	"github.com/freedom_case_2/crcollector/internal/service"
)

type App struct {
	Config     config.Config
	Store      db.Store
	Cache      cache.Cache
	Query      *service.QueryService
	Collection *service.CollectionService
	Reports    *service.ReportService
	Logger     zerolog.Logger
}

// NewLogger builds the root logger from LOG_LEVEL. Console output is used
// outside production.
func NewLogger(cfg config.Config, name string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if cfg.Env == "prod" || cfg.Env == "production" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return l.Level(level).With().Timestamp().Str("service", name).Logger()
}

func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info().Str("driver", cfg.ResolvedStoreDriver()).Msg("store ready")

	c, err := cache.New(ctx, cfg.RedisURL, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	rules := classify.NewRules(classify.KeywordsFromConfig(cfg))
	sink := &collector.Sink{Store: store, Classifier: Classifier(cfg, rules, logger), Rules: rules}
	collectors, err := collector.FromConfig(cfg, sink, logger)
	if err != nil {
		c.Close()
		store.Close()
		return nil, err
	}

	a := &App{Config: cfg, Store: store, Cache: c, Logger: logger}
	a.Query = &service.QueryService{
		Store:           store,
		Cache:           c,
		CacheTTL:        cfg.CacheTTL,
		Logger:          logger,
		InternalAuthors: config.SplitList(cfg.InternalAuthors),
		ClientAuthors:   config.SplitList(cfg.ClientAuthors),
	}
	a.Collection = &service.CollectionService{
		Store:        store,
		Cache:        c,
		Collectors:   collectors,
		Location:     loc,
		CollectHour:  cfg.CollectHour,
		LookbackDays: cfg.LookbackDays,
		Budget:       cfg.CollectBudget,
		MaxPages:     cfg.MaxPages,
		Concurrency:  cfg.CollectConcurrency,
		Logger:       logger,
	}
	a.Reports = &service.ReportService{
		Store:     store,
		Channel:   cfg.SlackReportChannel,
		OutputDir: cfg.ReportOutputDir,
		Location:  loc,
		Logger:    logger,
	}
	if cfg.SlackBotToken != "" {
		a.Reports.Poster = slack.New(cfg.SlackBotToken, providers.NewHTTPClient(cfg.HTTPTimeout))
	}
	return a, nil
}

// Classifier picks the model classifier when CLASSIFIER=model and an API key
// is present; the rules serve as its fallback and as the default.
func Classifier(cfg config.Config, rules *classify.Rules, logger zerolog.Logger) classify.Classifier {
	if !strings.EqualFold(cfg.Classifier, "model") {
		return rules
	}
	if cfg.AIAPIKey == "" {
		logger.Warn().Msg("CLASSIFIER=model without AI_API_KEY, using rules")
		return rules
	}
	logger.Info().Str("model", cfg.AIModel).Msg("using model classifier")
	return &classify.ModelClassifier{
		Adapter: ai.HTTPAdapter{Chat: ai.ChatClient{
			BaseURL:     cfg.AIURL,
			Model:       cfg.AIModel,
			APIKey:      cfg.AIAPIKey,
			MaxTokens:   2000,
			Temperature: cfg.AITemperature,
			Client:      providers.NewHTTPClient(cfg.HTTPTimeout * 2),
		}},
		Fallback:  rules,
		BatchSize: cfg.AIBatchSize,
		Logger:    logger,
	}
}

func (a *App) Close() {
	a.Cache.Close()
	a.Store.Close()
}
