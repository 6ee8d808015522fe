package model

import "time"

// QueueItemStatus is the lifecycle state of a precision search job.
type QueueItemStatus string

// Queue item lifecycle states.
const (
	StatusPending    QueueItemStatus = "pending"
	StatusProcessing QueueItemStatus = "processing"
	StatusCompleted  QueueItemStatus = "completed"
	StatusFailed     QueueItemStatus = "failed"
)

// Terminal reports whether the status is immutable.
func (s QueueItemStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SearchScope selects which transactions a job covers.
type SearchScope string

// Known search scopes.
const (
	ScopeAllIncomplete     SearchScope = "all_incomplete"
	ScopeSingleTransaction SearchScope = "single_transaction"
)

// Valid reports whether the scope is one of the known values.
func (s SearchScope) Valid() bool {
	return s == ScopeAllIncomplete || s == ScopeSingleTransaction
}

// TriggerSource identifies what caused a job to be enqueued.
type TriggerSource string

// Known trigger sources.
const (
	TriggerManual   TriggerSource = "manual"
	TriggerMailSync TriggerSource = "mail_sync"
)

// AuthorType distinguishes user-initiated jobs from system-initiated ones.
type AuthorType string

// Known author types.
const (
	AuthorUser   AuthorType = "user"
	AuthorSystem AuthorType = "system"
)

// DefaultMaxRetries bounds how often a failed job may be re-enqueued.
const DefaultMaxRetries = 3

// QueueItemError records a non-fatal failure encountered while
// processing one transaction with one strategy.
type QueueItemError struct {
	TransactionID string `json:"transactionId"`
	StrategyID    string `json:"strategyId"`
	Message       string `json:"message"`
}

// QueueItem is one precision search job and the state machine subject.
type QueueItem struct {
	CreatedAt               time.Time
	UpdatedAt               time.Time
	CompletedAt             *time.Time
	ClaimedAt               *time.Time
	RetriedAt               *time.Time
	ID                      string
	UserID                  string
	TransactionID           string // Required iff Scope == ScopeSingleTransaction
	TriggeredByUserID       string
	Scope                   SearchScope
	Status                  QueueItemStatus
	TriggeredBy             TriggerSource
	TriggeredByAuthor       AuthorType
	Strategies              []string
	Errors                  []QueueItemError
	CurrentStrategyIndex    int
	TransactionsToProcess   int
	TransactionsProcessed   int
	TransactionsWithMatches int
	TotalFilesConnected     int
	RetryCount              int
	MaxRetries              int
}

// Active reports whether the item still occupies the per-user slot.
func (q *QueueItem) Active() bool {
	return q.Status == StatusPending || q.Status == StatusProcessing
}

// Retryable reports whether a failed item may still be re-enqueued.
func (q *QueueItem) Retryable() bool {
	return q.Status == StatusFailed && q.RetryCount < q.MaxRetries
}
