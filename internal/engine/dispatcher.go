// Package engine implements the precision search pipeline: the
// dispatcher that enqueues search jobs and the runner that processes
// them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/match"
	"github.com/tkrause/paperclip/internal/model"
	"github.com/tkrause/paperclip/internal/service"
)

// Dispatcher creates queue items on demand and enforces the idempotency
// guard: at most one pending or processing item per user.
type Dispatcher struct {
	storage    service.Storage
	maxRetries int
}

// NewDispatcher creates a dispatcher with the default retry budget.
func NewDispatcher(storage service.Storage) *Dispatcher {
	return &Dispatcher{
		storage:    storage,
		maxRetries: model.DefaultMaxRetries,
	}
}

// TriggerRequest describes one trigger call.
type TriggerRequest struct {
	UserID        string
	Scope         model.SearchScope
	TransactionID string
	TriggeredBy   model.TriggerSource
	Author        model.AuthorType
	AuthorUserID  string
	// RetryCount carries the budget already spent when the request
	// re-enqueues a failed item.
	RetryCount int
}

// TriggerResult reports the queue item a trigger call resolved to.
type TriggerResult struct {
	QueueItemID string
	// Created is false when the idempotency guard returned an
	// already-active item instead of creating a new one.
	Created bool
}

// Trigger validates the request and enqueues a new pending queue item,
// unless the user already has one in flight, in which case the existing
// item's id is returned. Duplicate triggers are not an error.
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if req.UserID == "" {
		return nil, common.NewUserError("user id is required", common.ErrInvalidConfig)
	}
	if !req.Scope.Valid() {
		return nil, fmt.Errorf("scope %q: %w", req.Scope, common.ErrInvalidScope)
	}
	if req.Scope == model.ScopeSingleTransaction && req.TransactionID == "" {
		return nil, common.ErrMissingTransactionID
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = model.TriggerManual
	}
	if req.Author == "" {
		req.Author = model.AuthorUser
	}

	existing, err := d.storage.GetActiveQueueItemForUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active queue item: %w", err)
	}
	if existing != nil {
		slog.Info("Trigger resolved to existing queue item",
			"user_id", req.UserID,
			"queue_item_id", existing.ID,
			"status", existing.Status)
		return &TriggerResult{QueueItemID: existing.ID, Created: false}, nil
	}

	toProcess := 1
	if req.Scope == model.ScopeAllIncomplete {
		toProcess, err = d.storage.CountIncompleteTransactions(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to count incomplete transactions: %w", err)
		}
	}

	item := &model.QueueItem{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Scope:             req.Scope,
		TransactionID:     req.TransactionID,
		Status:            model.StatusPending,
		TriggeredBy:       req.TriggeredBy,
		TriggeredByAuthor: req.Author,
		TriggeredByUserID: req.AuthorUserID,
		Strategies:        match.DefaultStrategyIDs(),
		// Counters start zeroed; the runner owns every increment.
		TransactionsToProcess: toProcess,
		RetryCount:            req.RetryCount,
		MaxRetries:            d.maxRetries,
	}

	if err := d.storage.CreateQueueItem(ctx, item); err != nil {
		// A concurrent trigger may have won the race on the active-user
		// index; resolve idempotently to the winner.
		if errors.Is(err, common.ErrDuplicateEntry) {
			existing, lookupErr := d.storage.GetActiveQueueItemForUser(ctx, req.UserID)
			if lookupErr == nil && existing != nil {
				return &TriggerResult{QueueItemID: existing.ID, Created: false}, nil
			}
		}
		return nil, fmt.Errorf("failed to enqueue precision search: %w", err)
	}

	slog.Info("Enqueued precision search",
		"queue_item_id", item.ID,
		"user_id", req.UserID,
		"scope", req.Scope,
		"triggered_by", req.TriggeredBy,
		"transactions_to_process", toProcess)

	return &TriggerResult{QueueItemID: item.ID, Created: true}, nil
}

// MailSyncEvent is the status-transition notification emitted by the
// mail-sync collaborator.
type MailSyncEvent struct {
	UserID       string
	BeforeStatus string
	AfterStatus  string
	FilesCreated int
}

// Completed reports whether the event is the completion edge the
// pipeline subscribes to.
func (e MailSyncEvent) Completed() bool {
	return e.AfterStatus == "completed" && e.BeforeStatus != "completed"
}

// HandleMailSyncEvent is the subscription callback for mail-sync
// notifications. It enqueues an all-incomplete search when the sync
// completed with new files, and silently declines when nothing changed,
// a job is already in flight, or there is nothing to search for.
func (d *Dispatcher) HandleMailSyncEvent(ctx context.Context, evt MailSyncEvent) error {
	if !evt.Completed() {
		return nil
	}
	if evt.FilesCreated == 0 {
		slog.Debug("Mail sync completed without new files, skipping search",
			"user_id", evt.UserID)
		return nil
	}

	existing, err := d.storage.GetActiveQueueItemForUser(ctx, evt.UserID)
	if err != nil {
		return fmt.Errorf("failed to check for active queue item: %w", err)
	}
	if existing != nil {
		slog.Debug("Search already in flight, skipping mail sync trigger",
			"user_id", evt.UserID,
			"queue_item_id", existing.ID)
		return nil
	}

	incomplete, err := d.storage.CountIncompleteTransactions(ctx, evt.UserID)
	if err != nil {
		return fmt.Errorf("failed to count incomplete transactions: %w", err)
	}
	if incomplete == 0 {
		slog.Debug("No incomplete transactions, skipping mail sync trigger",
			"user_id", evt.UserID)
		return nil
	}

	_, err = d.Trigger(ctx, TriggerRequest{
		UserID:      evt.UserID,
		Scope:       model.ScopeAllIncomplete,
		TriggeredBy: model.TriggerMailSync,
		Author:      model.AuthorSystem,
	})
	return err
}
