package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/model"
)

const queueItemColumns = `id, user_id, scope, transaction_id, status,
	triggered_by, triggered_by_author, triggered_by_user_id,
	strategies, current_strategy_index,
	transactions_to_process, transactions_processed,
	transactions_with_matches, total_files_connected,
	errors, retry_count, max_retries,
	created_at, updated_at, completed_at, claimed_at, retried_at`

// CreateQueueItem persists a new pending queue item. Creating a second
// active item for the same user violates the partial unique index and
// returns ErrDuplicateEntry.
func (s *SQLiteStorage) CreateQueueItem(ctx context.Context, item *model.QueueItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateQueueItem(item); err != nil {
		return err
	}

	strategies, err := marshalJSON(item.Strategies)
	if err != nil {
		return err
	}
	itemErrors, err := marshalJSON(emptyErrorsIfNil(item.Errors))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_items (
			id, user_id, scope, transaction_id, status,
			triggered_by, triggered_by_author, triggered_by_user_id,
			strategies, current_strategy_index,
			transactions_to_process, transactions_processed,
			transactions_with_matches, total_files_connected,
			errors, retry_count, max_retries,
			created_at, updated_at, completed_at, claimed_at, retried_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.UserID, string(item.Scope), nullString(item.TransactionID),
		string(item.Status), string(item.TriggeredBy), string(item.TriggeredByAuthor),
		nullString(item.TriggeredByUserID),
		strategies, item.CurrentStrategyIndex,
		item.TransactionsToProcess, item.TransactionsProcessed,
		item.TransactionsWithMatches, item.TotalFilesConnected,
		itemErrors, item.RetryCount, item.MaxRetries,
		item.CreatedAt, item.UpdatedAt, item.CompletedAt, item.ClaimedAt, item.RetriedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("active queue item exists for user %s: %w", item.UserID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create queue item %s: %w", item.ID, err)
	}

	return nil
}

// GetQueueItem retrieves a single queue item.
func (s *SQLiteStorage) GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueItemColumns+` FROM queue_items WHERE id = ?`, id)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue item %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item %s: %w", id, err)
	}
	return item, nil
}

// GetActiveQueueItemForUser returns the user's pending or processing
// item, or nil when no job is in flight.
func (s *SQLiteStorage) GetActiveQueueItemForUser(ctx context.Context, userID string) (*model.QueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+queueItemColumns+` FROM queue_items
		WHERE user_id = ? AND status IN ('pending', 'processing')
		LIMIT 1
	`, userID)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active queue item for user %s: %w", userID, err)
	}
	return item, nil
}

// GetPendingQueueItems returns pending items oldest first, for workers
// to claim.
func (s *SQLiteStorage) GetPendingQueueItems(ctx context.Context, limit int) ([]model.QueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	return s.queryQueueItems(ctx, `
		SELECT `+queueItemColumns+` FROM queue_items
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
}

// ClaimQueueItem performs the pending -> processing transition with a
// compare-and-set on status, guaranteeing at most one claimant. A
// processing item whose lease is older than staleBefore may be
// re-claimed, which is how crashed workers are recovered.
func (s *SQLiteStorage) ClaimQueueItem(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'processing', claimed_at = ?, updated_at = ?
		WHERE id = ?
		  AND (status = 'pending'
			OR (status = 'processing' AND claimed_at IS NOT NULL AND claimed_at <= ?))
	`, now, now, id, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to claim queue item %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for %s: %w", id, err)
	}

	return affected > 0, nil
}

// UpdateQueueItemProgress writes counters, the strategy cursor and the
// accumulated error list in one statement. Only a processing item can be
// advanced; the single-claimant rule makes the write serial.
func (s *SQLiteStorage) UpdateQueueItemProgress(ctx context.Context, item *model.QueueItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: queue item", ErrNilParameter)
	}
	if item.TransactionsProcessed > item.TransactionsToProcess {
		return fmt.Errorf("%w: transactions_processed %d exceeds transactions_to_process %d",
			ErrInvalidQueueItem, item.TransactionsProcessed, item.TransactionsToProcess)
	}

	itemErrors, err := marshalJSON(emptyErrorsIfNil(item.Errors))
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET current_strategy_index = ?,
			transactions_to_process = ?,
			transactions_processed = ?,
			transactions_with_matches = ?,
			total_files_connected = ?,
			errors = ?,
			updated_at = ?
		WHERE id = ? AND status = 'processing'
	`,
		item.CurrentStrategyIndex,
		item.TransactionsToProcess, item.TransactionsProcessed,
		item.TransactionsWithMatches, item.TotalFilesConnected,
		itemErrors, time.Now().UTC(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue item %s: %w", item.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %s: %w", item.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item %s: %w", item.ID, common.ErrTerminalState)
	}

	return nil
}

// CompleteQueueItem moves a processing item to its terminal completed
// state and freezes its counters.
func (s *SQLiteStorage) CompleteQueueItem(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'completed', completed_at = ?, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete queue item %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read completion result for %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item %s: %w", id, common.ErrTerminalState)
	}

	return nil
}

// FailQueueItem moves an item to its terminal failed state and
// increments retry_count. Failed items are never mutated back; an
// external policy may enqueue a fresh pending item instead.
func (s *SQLiteStorage) FailQueueItem(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'failed', retry_count = retry_count + 1,
			claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to fail queue item %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read failure result for %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item %s: %w", id, common.ErrTerminalState)
	}

	return nil
}

// GetRetryableQueueItems returns failed items that have not exhausted
// their retry budget.
func (s *SQLiteStorage) GetRetryableQueueItems(ctx context.Context) ([]model.QueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryQueueItems(ctx, `
		SELECT `+queueItemColumns+` FROM queue_items
		WHERE status = 'failed' AND retry_count < max_retries AND retried_at IS NULL
		ORDER BY updated_at ASC
	`)
}

// MarkQueueItemRetried records that the external retry policy consumed
// a failed item by enqueueing a successor, so it is not re-enqueued
// again on the next sweep. The terminal status itself never changes.
func (s *SQLiteStorage) MarkQueueItemRetried(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET retried_at = ?, updated_at = ?
		WHERE id = ? AND status = 'failed' AND retried_at IS NULL
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark queue item %s retried: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read retry mark result for %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item %s: %w", id, common.ErrItemNotClaimable)
	}

	return nil
}

// GetStaleQueueItems returns processing items whose claim lease expired
// before the given cutoff.
func (s *SQLiteStorage) GetStaleQueueItems(ctx context.Context, staleBefore time.Time) ([]model.QueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryQueueItems(ctx, `
		SELECT `+queueItemColumns+` FROM queue_items
		WHERE status = 'processing' AND claimed_at IS NOT NULL AND claimed_at <= ?
		ORDER BY claimed_at ASC
	`, staleBefore)
}

func (s *SQLiteStorage) queryQueueItems(ctx context.Context, query string, args ...any) ([]model.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.QueueItem
	for rows.Next() {
		item, scanErr := scanQueueItem(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", scanErr)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

func scanQueueItem(row rowScanner) (*model.QueueItem, error) {
	var (
		item              model.QueueItem
		scope             string
		transactionID     sql.NullString
		status            string
		triggeredBy       string
		triggeredByAuthor string
		triggeredByUserID sql.NullString
		strategies        string
		itemErrors        string
		completedAt       sql.NullTime
		claimedAt         sql.NullTime
		retriedAt         sql.NullTime
	)

	err := row.Scan(
		&item.ID, &item.UserID, &scope, &transactionID, &status,
		&triggeredBy, &triggeredByAuthor, &triggeredByUserID,
		&strategies, &item.CurrentStrategyIndex,
		&item.TransactionsToProcess, &item.TransactionsProcessed,
		&item.TransactionsWithMatches, &item.TotalFilesConnected,
		&itemErrors, &item.RetryCount, &item.MaxRetries,
		&item.CreatedAt, &item.UpdatedAt, &completedAt, &claimedAt, &retriedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Scope = model.SearchScope(scope)
	item.TransactionID = transactionID.String
	item.Status = model.QueueItemStatus(status)
	item.TriggeredBy = model.TriggerSource(triggeredBy)
	item.TriggeredByAuthor = model.AuthorType(triggeredByAuthor)
	item.TriggeredByUserID = triggeredByUserID.String
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		item.ClaimedAt = &t
	}
	if retriedAt.Valid {
		t := retriedAt.Time
		item.RetriedAt = &t
	}

	item.Strategies, err = unmarshalStrings(strategies)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemErrors), &item.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue item errors: %w", err)
	}

	return &item, nil
}

func emptyErrorsIfNil(errs []model.QueueItemError) []model.QueueItemError {
	if errs == nil {
		return []model.QueueItemError{}
	}
	return errs
}
