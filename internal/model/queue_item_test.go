package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueItemStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestSearchScope_Valid(t *testing.T) {
	assert.True(t, ScopeAllIncomplete.Valid())
	assert.True(t, ScopeSingleTransaction.Valid())
	assert.False(t, SearchScope("").Valid())
	assert.False(t, SearchScope("everything").Valid())
}

func TestQueueItem_Active(t *testing.T) {
	item := &QueueItem{Status: StatusPending}
	assert.True(t, item.Active())

	item.Status = StatusProcessing
	assert.True(t, item.Active())

	item.Status = StatusCompleted
	assert.False(t, item.Active())

	item.Status = StatusFailed
	assert.False(t, item.Active())
}

func TestQueueItem_Retryable(t *testing.T) {
	item := &QueueItem{Status: StatusFailed, RetryCount: 1, MaxRetries: 3}
	assert.True(t, item.Retryable())

	item.RetryCount = 3
	assert.False(t, item.Retryable())

	item.RetryCount = 1
	item.Status = StatusCompleted
	assert.False(t, item.Retryable())
}

func TestTransaction_HasFile(t *testing.T) {
	txn := &Transaction{FileIDs: []string{"f1", "f2"}}
	assert.True(t, txn.HasFile("f1"))
	assert.False(t, txn.HasFile("f3"))
}

func TestTransaction_SearchText(t *testing.T) {
	txn := &Transaction{Name: "ACME GmbH", Description: "  ", Reference: "RF-4711"}
	assert.Equal(t, "acme gmbh rf-4711", txn.SearchText())

	empty := &Transaction{}
	assert.Equal(t, "", empty.SearchText())
}

func TestFile_HasAmount(t *testing.T) {
	file := &File{AmountHints: []float64{129.90, 42.00}}
	assert.True(t, file.HasAmount(129.90, 0.01))
	assert.True(t, file.HasAmount(129.895, 0.01))
	assert.False(t, file.HasAmount(130.00, 0.01))

	blank := &File{}
	assert.False(t, blank.HasAmount(129.90, 0.01))
}
