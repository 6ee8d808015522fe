package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tkrause/paperclip/internal/config"
	"github.com/tkrause/paperclip/internal/engine"
	"github.com/tkrause/paperclip/internal/service"
	"github.com/tkrause/paperclip/internal/storage"
	"github.com/tkrause/paperclip/internal/suggest"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath(viper.GetString("db.path")))
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initSuggester builds the AI query-suggestion client from config. A
// missing API key degrades to the mock client, which suggests nothing;
// the email_invoice strategy then simply contributes no candidates.
func initSuggester() (suggest.Client, error) {
	cfg := suggest.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		Timeout:     viper.GetDuration("llm.timeout"),
		Temperature: viper.GetFloat64("llm.temperature"),
	}

	if cfg.Provider == "" && cfg.APIKey == "" {
		cfg.Provider = "mock"
	}

	return suggest.NewClient(cfg)
}

// runnerConfig assembles the runner configuration from config keys.
func runnerConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if threshold := viper.GetFloat64("search.threshold"); threshold > 0 {
		cfg.AcceptanceThreshold = threshold
	}
	if stale := viper.GetDuration("schedule.stale_after"); stale > 0 {
		cfg.StaleAfter = stale
	}
	return cfg
}

// staleAfter returns the configured claim lease duration.
func staleAfter() time.Duration {
	if stale := viper.GetDuration("schedule.stale_after"); stale > 0 {
		return stale
	}
	return engine.DefaultConfig().StaleAfter
}
