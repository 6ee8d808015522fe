package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/model"
	"github.com/tkrause/paperclip/internal/service"
	"github.com/tkrause/paperclip/internal/testutil"
)

func TestDispatcher_Trigger_Validation(t *testing.T) {
	store := testutil.SetupTestDB(t)
	dispatcher := NewDispatcher(store)
	ctx := context.Background()

	tests := []struct {
		wantErr error
		name    string
		req     TriggerRequest
	}{
		{
			name:    "missing user",
			req:     TriggerRequest{Scope: model.ScopeAllIncomplete},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "invalid scope",
			req:     TriggerRequest{UserID: "user-1", Scope: "everything"},
			wantErr: common.ErrInvalidScope,
		},
		{
			name:    "single scope without transaction",
			req:     TriggerRequest{UserID: "user-1", Scope: model.ScopeSingleTransaction},
			wantErr: common.ErrMissingTransactionID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dispatcher.Trigger(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDispatcher_Trigger_CreatesQueueItem(t *testing.T) {
	store := testutil.SetupTestDB(t)
	dispatcher := NewDispatcher(store)
	ctx := context.Background()

	testutil.SeedTransaction(t, store, testutil.NewTransaction("txn-1", "user-1", -10))
	testutil.SeedTransaction(t, store, testutil.NewTransaction("txn-2", "user-1", -20))

	result, err := dispatcher.Trigger(ctx, TriggerRequest{
		UserID: "user-1",
		Scope:  model.ScopeAllIncomplete,
	})
	require.NoError(t, err)
	assert.True(t, result.Created)

	item, err := store.GetQueueItem(ctx, result.QueueItemID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, item.Status)
	assert.Equal(t, model.TriggerManual, item.TriggeredBy)
	assert.Equal(t, model.AuthorUser, item.TriggeredByAuthor)
	assert.Equal(t, 2, item.TransactionsToProcess)
	assert.Zero(t, item.TransactionsProcessed)
	assert.Zero(t, item.CurrentStrategyIndex)
	assert.Equal(t, []string{"partner_files", "amount_files", "email_attachment", "email_invoice"}, item.Strategies)
	assert.Equal(t, model.DefaultMaxRetries, item.MaxRetries)
}

func TestDispatcher_Trigger_Idempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	dispatcher := NewDispatcher(store)
	ctx := context.Background()

	first, err := dispatcher.Trigger(ctx, TriggerRequest{UserID: "user-1", Scope: model.ScopeAllIncomplete})
	require.NoError(t, err)
	require.True(t, first.Created)

	// Second trigger resolves to the live item, no matter the scope.
	second, err := dispatcher.Trigger(ctx, TriggerRequest{
		UserID:        "user-1",
		Scope:         model.ScopeSingleTransaction,
		TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.QueueItemID, second.QueueItemID)

	// Other users are unaffected.
	other, err := dispatcher.Trigger(ctx, TriggerRequest{UserID: "user-2", Scope: model.ScopeAllIncomplete})
	require.NoError(t, err)
	assert.True(t, other.Created)
}

func TestDispatcher_Trigger_SingleTransactionScope(t *testing.T) {
	store := testutil.SetupTestDB(t)
	dispatcher := NewDispatcher(store)
	ctx := context.Background()

	result, err := dispatcher.Trigger(ctx, TriggerRequest{
		UserID:        "user-1",
		Scope:         model.ScopeSingleTransaction,
		TransactionID: "txn-1",
	})
	require.NoError(t, err)

	item, err := store.GetQueueItem(ctx, result.QueueItemID)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", item.TransactionID)
	assert.Equal(t, 1, item.TransactionsToProcess)
}

func TestDispatcher_HandleMailSyncEvent(t *testing.T) {
	tests := []struct {
		seed       func(t *testing.T, store service.Storage)
		name       string
		evt        MailSyncEvent
		wantQueued bool
	}{
		{
			name: "completion edge with new files enqueues",
			evt:  MailSyncEvent{UserID: "user-1", BeforeStatus: "running", AfterStatus: "completed", FilesCreated: 3},
			seed: func(t *testing.T, store service.Storage) {
				testutil.SeedTransaction(t, store, testutil.NewTransaction("txn-1", "user-1", -10))
			},
			wantQueued: true,
		},
		{
			name: "not a completion edge",
			evt:  MailSyncEvent{UserID: "user-1", BeforeStatus: "completed", AfterStatus: "completed", FilesCreated: 3},
			seed: func(t *testing.T, store service.Storage) {
				testutil.SeedTransaction(t, store, testutil.NewTransaction("txn-1", "user-1", -10))
			},
			wantQueued: false,
		},
		{
			name: "no files created",
			evt:  MailSyncEvent{UserID: "user-1", BeforeStatus: "running", AfterStatus: "completed", FilesCreated: 0},
			seed: func(t *testing.T, store service.Storage) {
				testutil.SeedTransaction(t, store, testutil.NewTransaction("txn-1", "user-1", -10))
			},
			wantQueued: false,
		},
		{
			name:       "no incomplete transactions",
			evt:        MailSyncEvent{UserID: "user-1", BeforeStatus: "running", AfterStatus: "completed", FilesCreated: 3},
			seed:       func(_ *testing.T, _ service.Storage) {},
			wantQueued: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.SetupTestDB(t)
			dispatcher := NewDispatcher(store)
			ctx := context.Background()

			tt.seed(t, store)

			require.NoError(t, dispatcher.HandleMailSyncEvent(ctx, tt.evt))

			item, err := store.GetActiveQueueItemForUser(ctx, "user-1")
			require.NoError(t, err)
			if tt.wantQueued {
				require.NotNil(t, item)
				assert.Equal(t, model.TriggerMailSync, item.TriggeredBy)
				assert.Equal(t, model.AuthorSystem, item.TriggeredByAuthor)
				assert.Equal(t, model.ScopeAllIncomplete, item.Scope)
			} else {
				assert.Nil(t, item)
			}
		})
	}
}

func TestDispatcher_HandleMailSyncEvent_ActiveJobWins(t *testing.T) {
	store := testutil.SetupTestDB(t)
	dispatcher := NewDispatcher(store)
	ctx := context.Background()

	testutil.SeedTransaction(t, store, testutil.NewTransaction("txn-1", "user-1", -10))

	first, err := dispatcher.Trigger(ctx, TriggerRequest{UserID: "user-1", Scope: model.ScopeAllIncomplete})
	require.NoError(t, err)

	evt := MailSyncEvent{UserID: "user-1", BeforeStatus: "running", AfterStatus: "completed", FilesCreated: 3}
	require.NoError(t, dispatcher.HandleMailSyncEvent(ctx, evt))

	item, err := store.GetActiveQueueItemForUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, first.QueueItemID, item.ID)
	assert.Equal(t, model.TriggerManual, item.TriggeredBy)
}
