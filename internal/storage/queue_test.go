package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/model"
)

func TestCreateQueueItem_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		mutate func(*model.QueueItem)
		name   string
	}{
		{name: "missing id", mutate: func(q *model.QueueItem) { q.ID = "" }},
		{name: "missing user id", mutate: func(q *model.QueueItem) { q.UserID = "" }},
		{name: "invalid scope", mutate: func(q *model.QueueItem) { q.Scope = "everything" }},
		{name: "single scope without transaction", mutate: func(q *model.QueueItem) {
			q.Scope = model.ScopeSingleTransaction
		}},
		{name: "no strategies", mutate: func(q *model.QueueItem) { q.Strategies = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := testQueueItem("queue-1", "user-1")
			tt.mutate(item)
			if err := store.CreateQueueItem(ctx, item); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestCreateQueueItem_RoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	item := testQueueItem("queue-1", "user-1")
	item.TransactionsToProcess = 7
	if err := store.CreateQueueItem(ctx, item); err != nil {
		t.Fatalf("Failed to create queue item: %v", err)
	}

	got, err := store.GetQueueItem(ctx, "queue-1")
	if err != nil {
		t.Fatalf("Failed to get queue item: %v", err)
	}

	if got.Status != model.StatusPending || got.Scope != model.ScopeAllIncomplete {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.TransactionsToProcess != 7 || got.MaxRetries != model.DefaultMaxRetries {
		t.Errorf("Counter mismatch: %+v", got)
	}
	if len(got.Strategies) != 2 {
		t.Errorf("Strategies mismatch: %v", got.Strategies)
	}
	if len(got.Errors) != 0 {
		t.Errorf("Expected empty error list, got %v", got.Errors)
	}
	if got.ClaimedAt != nil || got.RetriedAt != nil || got.CompletedAt != nil {
		t.Errorf("Timestamps should start unset: %+v", got)
	}
}

func TestCreateQueueItem_OneActivePerUser(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateQueueItem(ctx, testQueueItem("queue-1", "user-1")); err != nil {
		t.Fatalf("Failed to create first item: %v", err)
	}

	err := store.CreateQueueItem(ctx, testQueueItem("queue-2", "user-1"))
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Errorf("Expected ErrDuplicateEntry for second active item, got %v", err)
	}

	// A different user is unaffected.
	if err := store.CreateQueueItem(ctx, testQueueItem("queue-3", "user-2")); err != nil {
		t.Errorf("Other user should be able to enqueue: %v", err)
	}

	// Once the first item is terminal, the slot frees up.
	if _, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{}); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if err := store.CompleteQueueItem(ctx, "queue-1"); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}
	if err := store.CreateQueueItem(ctx, testQueueItem("queue-4", "user-1")); err != nil {
		t.Errorf("Slot should be free after completion: %v", err)
	}
}

func TestGetActiveQueueItemForUser(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	item, err := store.GetActiveQueueItemForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if item != nil {
		t.Errorf("Expected nil for idle user, got %+v", item)
	}

	if err := store.CreateQueueItem(ctx, testQueueItem("queue-1", "user-1")); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}

	item, err = store.GetActiveQueueItemForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if item == nil || item.ID != "queue-1" {
		t.Errorf("Expected queue-1 active, got %+v", item)
	}
}

func TestClaimQueueItem(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateQueueItem(ctx, testQueueItem("queue-1", "user-1")); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}

	claimed, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{})
	if err != nil {
		t.Fatalf("First claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("First claim should succeed")
	}

	got, err := store.GetQueueItem(ctx, "queue-1")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.Status != model.StatusProcessing || got.ClaimedAt == nil {
		t.Errorf("Expected processing with claim lease, got %+v", got)
	}

	// A second worker with a zero stale cutoff loses the race.
	claimed, err = store.ClaimQueueItem(ctx, "queue-1", time.Time{})
	if err != nil {
		t.Fatalf("Second claim errored: %v", err)
	}
	if claimed {
		t.Error("Second claim should miss while the lease is fresh")
	}

	// With a cutoff in the future the lease counts as stale and the
	// item can be re-claimed.
	claimed, err = store.ClaimQueueItem(ctx, "queue-1", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Stale re-claim errored: %v", err)
	}
	if !claimed {
		t.Error("Stale re-claim should succeed")
	}
}

func TestClaimQueueItem_TerminalStates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateQueueItem(ctx, testQueueItem("queue-1", "user-1")); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	if _, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{}); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.CompleteQueueItem(ctx, "queue-1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	claimed, err := store.ClaimQueueItem(ctx, "queue-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Claim on terminal item errored: %v", err)
	}
	if claimed {
		t.Error("Terminal items must not be claimable")
	}
}

func TestUpdateQueueItemProgress(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	item := testQueueItem("queue-1", "user-1")
	item.TransactionsToProcess = 3
	if err := store.CreateQueueItem(ctx, item); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	if _, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{}); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	item.CurrentStrategyIndex = 1
	item.TransactionsProcessed = 3
	item.TransactionsWithMatches = 2
	item.TotalFilesConnected = 2
	item.Errors = []model.QueueItemError{{TransactionID: "txn-9", StrategyID: "amount_files", Message: "boom"}}

	if err := store.UpdateQueueItemProgress(ctx, item); err != nil {
		t.Fatalf("Progress update failed: %v", err)
	}

	got, err := store.GetQueueItem(ctx, "queue-1")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.CurrentStrategyIndex != 1 || got.TransactionsProcessed != 3 || got.TransactionsWithMatches != 2 {
		t.Errorf("Counters not persisted: %+v", got)
	}
	if len(got.Errors) != 1 || got.Errors[0].TransactionID != "txn-9" {
		t.Errorf("Errors not persisted: %v", got.Errors)
	}
}

func TestUpdateQueueItemProgress_Invariants(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	item := testQueueItem("queue-1", "user-1")
	item.TransactionsToProcess = 2
	if err := store.CreateQueueItem(ctx, item); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}

	// Processed must never exceed the total.
	item.TransactionsProcessed = 5
	if err := store.UpdateQueueItemProgress(ctx, item); !errors.Is(err, ErrInvalidQueueItem) {
		t.Errorf("Expected ErrInvalidQueueItem, got %v", err)
	}
	item.TransactionsProcessed = 1

	// Only a processing item can be advanced.
	if err := store.UpdateQueueItemProgress(ctx, item); !errors.Is(err, common.ErrTerminalState) {
		t.Errorf("Expected ErrTerminalState for pending item, got %v", err)
	}

	if _, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{}); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.CompleteQueueItem(ctx, "queue-1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := store.UpdateQueueItemProgress(ctx, item); !errors.Is(err, common.ErrTerminalState) {
		t.Errorf("Expected ErrTerminalState for completed item, got %v", err)
	}
}

func TestCompleteQueueItem(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateQueueItem(ctx, testQueueItem("queue-1", "user-1")); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}

	// Pending cannot complete directly.
	if err := store.CompleteQueueItem(ctx, "queue-1"); !errors.Is(err, common.ErrTerminalState) {
		t.Errorf("Expected ErrTerminalState completing a pending item, got %v", err)
	}

	if _, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{}); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.CompleteQueueItem(ctx, "queue-1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := store.GetQueueItem(ctx, "queue-1")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.Status != model.StatusCompleted || got.CompletedAt == nil {
		t.Errorf("Expected completed with timestamp, got %+v", got)
	}
	if got.ClaimedAt != nil {
		t.Error("Claim lease should be released on completion")
	}

	// Terminal states are immutable.
	if err := store.CompleteQueueItem(ctx, "queue-1"); !errors.Is(err, common.ErrTerminalState) {
		t.Errorf("Expected ErrTerminalState re-completing, got %v", err)
	}
	if err := store.FailQueueItem(ctx, "queue-1"); !errors.Is(err, common.ErrTerminalState) {
		t.Errorf("Expected ErrTerminalState failing a completed item, got %v", err)
	}
}

func TestFailQueueItem_IncrementsRetryCount(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateQueueItem(ctx, testQueueItem("queue-1", "user-1")); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	if _, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{}); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.FailQueueItem(ctx, "queue-1"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	got, err := store.GetQueueItem(ctx, "queue-1")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.Status != model.StatusFailed || got.RetryCount != 1 {
		t.Errorf("Expected failed with retry_count 1, got %+v", got)
	}
	if got.ClaimedAt != nil {
		t.Error("Claim lease should be released on failure")
	}
}

func TestGetRetryableQueueItems(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	fail := func(id, userID string) {
		t.Helper()
		if err := store.CreateQueueItem(ctx, testQueueItem(id, userID)); err != nil {
			t.Fatalf("Failed to create %s: %v", id, err)
		}
		if _, err := store.ClaimQueueItem(ctx, id, time.Time{}); err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		if err := store.FailQueueItem(ctx, id); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
	}

	fail("queue-retry", "user-1")
	fail("queue-exhausted", "user-2")

	// Exhaust the second item's retry budget directly.
	if _, err := store.db.ExecContext(ctx,
		`UPDATE queue_items SET retry_count = max_retries WHERE id = 'queue-exhausted'`); err != nil {
		t.Fatalf("Failed to exhaust budget: %v", err)
	}

	items, err := store.GetRetryableQueueItems(ctx)
	if err != nil {
		t.Fatalf("Failed to list retryable items: %v", err)
	}
	if len(items) != 1 || items[0].ID != "queue-retry" {
		t.Errorf("Expected only queue-retry, got %+v", items)
	}

	// Marking consumed removes it from the next sweep.
	if err := store.MarkQueueItemRetried(ctx, "queue-retry"); err != nil {
		t.Fatalf("Failed to mark retried: %v", err)
	}
	items, err = store.GetRetryableQueueItems(ctx)
	if err != nil {
		t.Fatalf("Failed to list retryable items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no retryable items after marking, got %+v", items)
	}

	// Marking twice is rejected.
	if err := store.MarkQueueItemRetried(ctx, "queue-retry"); !errors.Is(err, common.ErrItemNotClaimable) {
		t.Errorf("Expected ErrItemNotClaimable on double mark, got %v", err)
	}
}

func TestGetStaleQueueItems(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateQueueItem(ctx, testQueueItem("queue-1", "user-1")); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	if _, err := store.ClaimQueueItem(ctx, "queue-1", time.Time{}); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	// Fresh lease: not stale.
	items, err := store.GetStaleQueueItems(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Stale lookup failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no stale items, got %+v", items)
	}

	// Cutoff after the claim: stale.
	items, err = store.GetStaleQueueItems(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("Stale lookup failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "queue-1" {
		t.Errorf("Expected queue-1 stale, got %+v", items)
	}
}

func TestGetPendingQueueItems_Order(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := testQueueItem("queue-a", "user-1")
	first.CreatedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	second := testQueueItem("queue-b", "user-2")
	second.CreatedAt = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if err := store.CreateQueueItem(ctx, second); err != nil {
		t.Fatalf("Failed to create queue-b: %v", err)
	}
	if err := store.CreateQueueItem(ctx, first); err != nil {
		t.Fatalf("Failed to create queue-a: %v", err)
	}

	items, err := store.GetPendingQueueItems(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list pending items: %v", err)
	}
	if len(items) != 2 || items[0].ID != "queue-a" || items[1].ID != "queue-b" {
		t.Errorf("Expected oldest-first order, got %+v", items)
	}
}
