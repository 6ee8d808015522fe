// Package schedule runs the external policies around the pipeline: the
// retry policy that re-enqueues failed jobs and the staleness sweeper
// that recovers jobs abandoned by crashed workers.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tkrause/paperclip/internal/engine"
	"github.com/tkrause/paperclip/internal/service"
)

// Config holds the scheduler configuration.
type Config struct {
	// RetryCron is a standard 5-field cron expression for the retry
	// sweep. Empty disables retries.
	RetryCron string
	// StaleAfter is how old a processing claim must be before the
	// sweeper re-runs the item.
	StaleAfter time.Duration
	// SweepInterval is how often the staleness sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		RetryCron:     "*/5 * * * *",
		StaleAfter:    15 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Scheduler drives the retry policy and the staleness sweeper.
type Scheduler struct {
	storage    service.Storage
	dispatcher *engine.Dispatcher
	runner     *engine.Runner
	retry      cron.Schedule
	cfg        Config
}

// New creates a scheduler. The cron expression is validated up front.
func New(storage service.Storage, dispatcher *engine.Dispatcher, runner *engine.Runner, cfg Config) (*Scheduler, error) {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	s := &Scheduler{
		storage:    storage,
		dispatcher: dispatcher,
		runner:     runner,
		cfg:        cfg,
	}

	if cfg.RetryCron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err := parser.Parse(cfg.RetryCron)
		if err != nil {
			return nil, fmt.Errorf("invalid retry cron %q: %w", cfg.RetryCron, err)
		}
		s.retry = sched
	}

	return s, nil
}

// Run blocks until the context is canceled, driving both loops.
func (s *Scheduler) Run(ctx context.Context) {
	if s.retry != nil {
		go s.retryLoop(ctx)
	}
	s.sweepLoop(ctx)
}

func (s *Scheduler) retryLoop(ctx context.Context) {
	for {
		next := s.retry.Next(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if err := s.RetryFailed(ctx); err != nil {
			slog.Error("Retry sweep failed", "error", err)
		}
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.SweepStale(ctx); err != nil {
			slog.Error("Staleness sweep failed", "error", err)
		}
	}
}

// RetryFailed re-enqueues every failed item that still has retry budget
// as a fresh pending item with the same scope. The failed item itself
// stays terminal; it is only marked consumed. The dispatcher's
// idempotency guard still applies, so a user with a live job is skipped
// until the next sweep.
func (s *Scheduler) RetryFailed(ctx context.Context) error {
	items, err := s.storage.GetRetryableQueueItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to list retryable queue items: %w", err)
	}

	for _, item := range items {
		result, triggerErr := s.dispatcher.Trigger(ctx, engine.TriggerRequest{
			UserID:        item.UserID,
			Scope:         item.Scope,
			TransactionID: item.TransactionID,
			TriggeredBy:   item.TriggeredBy,
			Author:        item.TriggeredByAuthor,
			AuthorUserID:  item.TriggeredByUserID,
			RetryCount:    item.RetryCount,
		})
		if triggerErr != nil {
			slog.Error("Failed to re-enqueue failed search",
				"queue_item_id", item.ID,
				"user_id", item.UserID,
				"error", triggerErr)
			continue
		}
		if !result.Created {
			// A live job occupies the slot; retry on a later sweep.
			continue
		}

		if markErr := s.storage.MarkQueueItemRetried(ctx, item.ID); markErr != nil {
			slog.Warn("Failed to mark queue item retried",
				"queue_item_id", item.ID,
				"error", markErr)
		}

		slog.Info("Re-enqueued failed search",
			"failed_queue_item_id", item.ID,
			"new_queue_item_id", result.QueueItemID,
			"retry_count", item.RetryCount,
			"max_retries", item.MaxRetries)
	}

	return nil
}

// SweepStale re-runs processing items whose claim lease expired,
// recovering work abandoned by a crashed worker. The runner's claim
// takes the stale branch, so a healthy worker that is merely slow keeps
// its item.
func (s *Scheduler) SweepStale(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.StaleAfter)
	items, err := s.storage.GetStaleQueueItems(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale queue items: %w", err)
	}

	for _, item := range items {
		slog.Warn("Recovering stale precision search",
			"queue_item_id", item.ID,
			"user_id", item.UserID,
			"claimed_at", item.ClaimedAt)

		if _, runErr := s.runner.Process(ctx, item.ID); runErr != nil {
			slog.Error("Failed to recover stale search",
				"queue_item_id", item.ID,
				"error", runErr)
		}
	}

	return nil
}
