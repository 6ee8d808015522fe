// Package testutil provides shared helpers for paperclip tests: in-memory
// databases with migrations applied and fixture builders for the core
// record types.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/tkrause/paperclip/internal/model"
	"github.com/tkrause/paperclip/internal/service"
	"github.com/tkrause/paperclip/internal/storage"
)

// SetupTestDB creates a migrated in-memory database and registers its
// cleanup with the test.
func SetupTestDB(t *testing.T) service.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// NewTransaction builds an incomplete transaction fixture.
func NewTransaction(id, userID string, amount float64) *model.Transaction {
	return &model.Transaction{
		ID:       id,
		UserID:   userID,
		Amount:   amount,
		Currency: "EUR",
		Date:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Name:     "ACME GmbH",
	}
}

// NewFile builds an uploaded file fixture.
func NewFile(id, userID string) *model.File {
	return &model.File{
		ID:         id,
		UserID:     userID,
		Source:     model.FileSourceUpload,
		StorageRef: "files/" + id + ".pdf",
		CreatedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

// NewMailFile builds a mail-attachment file fixture.
func NewMailFile(id, userID, senderDomain, subject string) *model.File {
	f := NewFile(id, userID)
	f.Source = model.FileSourceMailAttachment
	f.SenderDomain = senderDomain
	f.Subject = subject
	return f
}

// NewPartner builds a partner fixture.
func NewPartner(id, userID, name string) *model.Partner {
	return &model.Partner{
		ID:     id,
		UserID: userID,
		Name:   name,
	}
}

// NewQueueItem builds a pending all-incomplete queue item fixture.
func NewQueueItem(id, userID string) *model.QueueItem {
	return &model.QueueItem{
		ID:                id,
		UserID:            userID,
		Scope:             model.ScopeAllIncomplete,
		Status:            model.StatusPending,
		TriggeredBy:       model.TriggerManual,
		TriggeredByAuthor: model.AuthorUser,
		Strategies:        []string{"partner_files", "amount_files"},
		MaxRetries:        model.DefaultMaxRetries,
	}
}

// SeedTransaction saves a transaction fixture or fails the test.
func SeedTransaction(t *testing.T, store service.Storage, txn *model.Transaction) {
	t.Helper()
	if err := store.SaveTransaction(context.Background(), txn); err != nil {
		t.Fatalf("failed to seed transaction %s: %v", txn.ID, err)
	}
}

// SeedFile saves a file fixture or fails the test.
func SeedFile(t *testing.T, store service.Storage, file *model.File) {
	t.Helper()
	if err := store.SaveFile(context.Background(), file); err != nil {
		t.Fatalf("failed to seed file %s: %v", file.ID, err)
	}
}

// SeedPartner saves a partner fixture or fails the test.
func SeedPartner(t *testing.T, store service.Storage, partner *model.Partner) {
	t.Helper()
	if err := store.SavePartner(context.Background(), partner); err != nil {
		t.Fatalf("failed to seed partner %s: %v", partner.ID, err)
	}
}

// SeedQueueItem saves a queue item fixture or fails the test.
func SeedQueueItem(t *testing.T, store service.Storage, item *model.QueueItem) {
	t.Helper()
	if err := store.CreateQueueItem(context.Background(), item); err != nil {
		t.Fatalf("failed to seed queue item %s: %v", item.ID, err)
	}
}
