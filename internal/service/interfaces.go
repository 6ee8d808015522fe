// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/tkrause/paperclip/internal/model"
)

// Storage defines the contract for the persistence layer. It is the
// single source of truth: every pipeline state transition is a
// read-modify-write against the stored queue item and transaction rows.
type Storage interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetIncompleteTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	CountIncompleteTransactions(ctx context.Context, userID string) (int, error)
	// AttachFileToTransaction appends the matched file, flips the
	// transaction to complete and records provenance. Attaching a file
	// that is already present is a no-op.
	AttachFileToTransaction(ctx context.Context, transactionID string, match model.Match) error

	// File operations (read side of the ingestion collaborators)
	SaveFile(ctx context.Context, file *model.File) error
	GetFileByID(ctx context.Context, id string) (*model.File, error)
	SearchFilesByPartner(ctx context.Context, userID string, partner *model.Partner) ([]model.File, error)
	SearchFilesByAmount(ctx context.Context, userID string, amount, tolerance float64, from, to time.Time) ([]model.File, error)
	SearchMailFilesBySenderDomains(ctx context.Context, userID string, domains []string) ([]model.File, error)
	SearchMailFilesByQueries(ctx context.Context, userID string, queries []string) ([]model.File, error)

	// Partner operations
	SavePartner(ctx context.Context, partner *model.Partner) error
	// GetPartnerByID resolves a user-scoped partner, falling back to a
	// global partner with the same id.
	GetPartnerByID(ctx context.Context, userID, id string) (*model.Partner, error)

	// Queue item operations
	CreateQueueItem(ctx context.Context, item *model.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error)
	GetActiveQueueItemForUser(ctx context.Context, userID string) (*model.QueueItem, error)
	GetPendingQueueItems(ctx context.Context, limit int) ([]model.QueueItem, error)
	// ClaimQueueItem performs the pending -> processing transition via
	// compare-and-set. A processing item whose claim is older than
	// staleBefore may be re-claimed. Returns false when the item is
	// already held by another worker.
	ClaimQueueItem(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	// UpdateQueueItemProgress writes counters, strategy cursor and
	// accumulated errors in a single statement.
	UpdateQueueItemProgress(ctx context.Context, item *model.QueueItem) error
	CompleteQueueItem(ctx context.Context, id string) error
	// FailQueueItem moves the item to its terminal failed state and
	// increments retry_count.
	FailQueueItem(ctx context.Context, id string) error
	GetRetryableQueueItems(ctx context.Context) ([]model.QueueItem, error)
	// MarkQueueItemRetried records that the retry policy consumed a
	// failed item by enqueueing a successor.
	MarkQueueItemRetried(ctx context.Context, id string) error
	GetStaleQueueItems(ctx context.Context, staleBefore time.Time) ([]model.QueueItem, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// RunStats summarizes one completed pipeline pass, for CLI status output.
type RunStats struct {
	QueueItemID             string
	Status                  model.QueueItemStatus
	TransactionsToProcess   int
	TransactionsProcessed   int
	TransactionsWithMatches int
	TotalFilesConnected     int
	Errors                  int
	Duration                time.Duration
}
