package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/match"
	"github.com/tkrause/paperclip/internal/model"
	"github.com/tkrause/paperclip/internal/service"
	"github.com/tkrause/paperclip/internal/suggest"
)

// Config holds configuration options for the pipeline runner.
type Config struct {
	// AcceptanceThreshold overrides the scorer's default when positive.
	AcceptanceThreshold float64
	// StaleAfter is how long a processing claim may go untouched before
	// another worker may re-claim the item.
	StaleAfter time.Duration
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold: match.DefaultAcceptanceThreshold,
		StaleAfter:          15 * time.Minute,
	}
}

// Runner consumes queue items: it iterates strategies in order over the
// scoped transactions, applies the confidence scorer, writes accepted
// matches back, and advances the item to a terminal state.
type Runner struct {
	storage    service.Storage
	deps       match.Deps
	scorer     *match.Scorer
	staleAfter time.Duration
}

// NewRunner creates a pipeline runner with the given dependencies.
func NewRunner(storage service.Storage, suggester suggest.Client, cfg Config) *Runner {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Runner{
		storage:    storage,
		deps:       match.Deps{Storage: storage, Suggest: suggester},
		scorer:     match.NewScorer(cfg.AcceptanceThreshold),
		staleAfter: cfg.StaleAfter,
	}
}

// Process claims and runs one queue item to a terminal state. A claim
// miss (another worker holds the item) returns nil stats and no error.
// Non-fatal per-transaction errors are accumulated on the item; only
// store-level failures fail the job.
func (r *Runner) Process(ctx context.Context, itemID string) (*service.RunStats, error) {
	started := time.Now()

	claimed, err := r.storage.ClaimQueueItem(ctx, itemID, time.Now().UTC().Add(-r.staleAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue item: %w", err)
	}
	if !claimed {
		slog.Debug("Queue item already claimed", "queue_item_id", itemID)
		return nil, nil
	}

	item, err := r.storage.GetQueueItem(ctx, itemID)
	if err != nil {
		return nil, r.failItem(ctx, itemID, err)
	}

	slog.Info("Processing precision search",
		"queue_item_id", item.ID,
		"user_id", item.UserID,
		"scope", item.Scope,
		"strategy_index", item.CurrentStrategyIndex,
		"retry_count", item.RetryCount)

	scoped, err := r.loadScopedTransactions(ctx, item)
	if err != nil {
		return nil, r.failItem(ctx, itemID, err)
	}

	resolved := make(map[string]bool, len(scoped))
	for _, txn := range scoped {
		if txn.IsComplete || txn.NoReceiptNeeded {
			resolved[txn.ID] = true
		}
	}

	// A fresh run reconciles the dispatcher's live count with the set
	// actually loaded; a resumed run keeps its frozen counters.
	firstPass := item.CurrentStrategyIndex == 0 && item.TransactionsProcessed == 0
	if firstPass {
		item.TransactionsToProcess = len(scoped)
		for _, txn := range scoped {
			if resolved[txn.ID] {
				item.TransactionsProcessed++
			}
		}
	}

	partners := make(map[string]*model.Partner)

	// Each transaction counts as processed once per job, on the first
	// strategy pass that attempts it.
	countPass := firstPass

	for idx := item.CurrentStrategyIndex; idx < len(item.Strategies); idx++ {
		select {
		case <-ctx.Done():
			return nil, r.failItem(ctx, itemID, ctx.Err())
		default:
		}

		if r.allResolved(scoped, resolved) {
			break
		}

		strategyID := item.Strategies[idx]
		strategy, ok := match.Get(strategyID)
		if !ok {
			item.Errors = append(item.Errors, model.QueueItemError{
				StrategyID: strategyID,
				Message:    "unknown strategy",
			})
		} else {
			r.runStrategy(ctx, strategy, item, scoped, resolved, partners, countPass)
			countPass = false
		}

		// The cursor must stay a valid index while processing; the last
		// pass completes instead of advancing past the end.
		if idx+1 < len(item.Strategies) {
			item.CurrentStrategyIndex = idx + 1
		}
		if err := r.storage.UpdateQueueItemProgress(ctx, item); err != nil {
			return nil, r.failItem(ctx, itemID, err)
		}
	}

	// The stored counters must reflect the run before the terminal
	// transition; the loop exits without writing when every scoped
	// transaction was already resolved at claim time.
	if err := r.storage.UpdateQueueItemProgress(ctx, item); err != nil {
		return nil, r.failItem(ctx, itemID, err)
	}
	if err := r.storage.CompleteQueueItem(ctx, itemID); err != nil {
		return nil, r.failItem(ctx, itemID, err)
	}

	stats := &service.RunStats{
		QueueItemID:             item.ID,
		Status:                  model.StatusCompleted,
		TransactionsToProcess:   item.TransactionsToProcess,
		TransactionsProcessed:   item.TransactionsProcessed,
		TransactionsWithMatches: item.TransactionsWithMatches,
		TotalFilesConnected:     item.TotalFilesConnected,
		Errors:                  len(item.Errors),
		Duration:                time.Since(started),
	}

	slog.Info("Precision search complete",
		"queue_item_id", item.ID,
		"transactions_processed", stats.TransactionsProcessed,
		"transactions_with_matches", stats.TransactionsWithMatches,
		"files_connected", stats.TotalFilesConnected,
		"errors", stats.Errors,
		"duration", stats.Duration)

	return stats, nil
}

// ProcessPending claims and processes up to limit pending items.
func (r *Runner) ProcessPending(ctx context.Context, limit int) ([]service.RunStats, error) {
	return r.ProcessPendingWithProgress(ctx, limit, nil)
}

// ProcessPendingWithProgress is ProcessPending with a callback invoked
// after each item, claimed or not, for progress reporting.
func (r *Runner) ProcessPendingWithProgress(ctx context.Context, limit int, progress func()) ([]service.RunStats, error) {
	items, err := r.storage.GetPendingQueueItems(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending queue items: %w", err)
	}

	var stats []service.RunStats
	for _, item := range items {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		runStats, runErr := r.Process(ctx, item.ID)
		if progress != nil {
			progress()
		}
		if runErr != nil {
			slog.Error("Precision search failed",
				"queue_item_id", item.ID,
				"error", runErr)
			continue
		}
		if runStats != nil {
			stats = append(stats, *runStats)
		}
	}

	return stats, nil
}

// PendingCount reports how many queue items are waiting to be claimed.
func (r *Runner) PendingCount(ctx context.Context) (int, error) {
	items, err := r.storage.GetPendingQueueItems(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending queue items: %w", err)
	}
	return len(items), nil
}

// runStrategy attempts every unresolved scoped transaction against one
// strategy, accumulating per-transaction errors without aborting.
func (r *Runner) runStrategy(ctx context.Context, strategy match.Strategy, item *model.QueueItem, scoped []model.Transaction, resolved map[string]bool, partners map[string]*model.Partner, countProcessed bool) {
	for i := range scoped {
		txn := &scoped[i]
		if resolved[txn.ID] {
			continue
		}

		if countProcessed && item.TransactionsProcessed < item.TransactionsToProcess {
			item.TransactionsProcessed++
		}

		partner := r.resolvePartner(ctx, item, txn, partners)

		if !strategy.Applicable(txn, partner) {
			continue
		}

		candidates, err := strategy.Run(ctx, r.deps, txn, partner)
		if err != nil {
			item.Errors = append(item.Errors, model.QueueItemError{
				TransactionID: txn.ID,
				StrategyID:    strategy.ID(),
				Message:       err.Error(),
			})
			continue
		}

		best, accepted := r.scorer.Best(candidates)
		if !accepted {
			continue
		}

		if err := r.storage.AttachFileToTransaction(ctx, txn.ID, best); err != nil {
			item.Errors = append(item.Errors, model.QueueItemError{
				TransactionID: txn.ID,
				StrategyID:    strategy.ID(),
				Message:       fmt.Sprintf("failed to attach file: %v", err),
			})
			continue
		}

		resolved[txn.ID] = true
		item.TransactionsWithMatches++
		item.TotalFilesConnected++

		slog.Info("Attached receipt",
			"queue_item_id", item.ID,
			"transaction_id", txn.ID,
			"file_id", best.FileID,
			"strategy", best.StrategyID,
			"confidence", best.Confidence)
	}
}

// resolvePartner loads the transaction's partner, caching per item.
// Lookup failures degrade to a nil partner rather than failing the job.
func (r *Runner) resolvePartner(ctx context.Context, item *model.QueueItem, txn *model.Transaction, partners map[string]*model.Partner) *model.Partner {
	if txn.PartnerID == "" {
		return nil
	}
	if partner, ok := partners[txn.PartnerID]; ok {
		return partner
	}

	partner, err := r.storage.GetPartnerByID(ctx, txn.UserID, txn.PartnerID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		item.Errors = append(item.Errors, model.QueueItemError{
			TransactionID: txn.ID,
			Message:       fmt.Sprintf("failed to resolve partner %s: %v", txn.PartnerID, err),
		})
	}

	partners[txn.PartnerID] = partner
	return partner
}

func (r *Runner) loadScopedTransactions(ctx context.Context, item *model.QueueItem) ([]model.Transaction, error) {
	switch item.Scope {
	case model.ScopeSingleTransaction:
		txn, err := r.storage.GetTransactionByID(ctx, item.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load scoped transaction: %w", err)
		}
		if txn.UserID != item.UserID {
			return nil, fmt.Errorf("transaction %s does not belong to user %s: %w",
				item.TransactionID, item.UserID, common.ErrNotFound)
		}
		return []model.Transaction{*txn}, nil
	case model.ScopeAllIncomplete:
		txns, err := r.storage.GetIncompleteTransactions(ctx, item.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load incomplete transactions: %w", err)
		}
		return txns, nil
	default:
		return nil, fmt.Errorf("scope %q: %w", item.Scope, common.ErrInvalidScope)
	}
}

func (r *Runner) allResolved(scoped []model.Transaction, resolved map[string]bool) bool {
	for _, txn := range scoped {
		if !resolved[txn.ID] {
			return false
		}
	}
	return true
}

// failItem records the terminal failed transition and returns the
// original error, wrapped. The failure write is best-effort: the item
// may be re-claimed by staleness recovery if it cannot be reached.
func (r *Runner) failItem(ctx context.Context, itemID string, cause error) error {
	if failErr := r.storage.FailQueueItem(ctx, itemID); failErr != nil {
		slog.Error("Failed to mark queue item as failed",
			"queue_item_id", itemID,
			"error", failErr)
	}
	return fmt.Errorf("precision search failed: %w", cause)
}
