package server

import (
	"time"

	"github.com/tkrause/paperclip/internal/model"
)

type triggerRequest struct {
	Scope         string `json:"scope"`
	TransactionID string `json:"transactionId,omitempty"`
}

type triggerResponse struct {
	QueueID string `json:"queueId"`
	Success bool   `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type mailSyncStatus struct {
	Status string `json:"status"`
}

type mailSyncEventRequest struct {
	UserID       string         `json:"userId"`
	Before       mailSyncStatus `json:"before"`
	After        mailSyncStatus `json:"after"`
	FilesCreated int            `json:"filesCreated"`
}

// queueItemResponse is the durable record shape dashboards and audit
// views read.
type queueItemResponse struct {
	ID                      string                 `json:"id"`
	UserID                  string                 `json:"userId"`
	Scope                   string                 `json:"scope"`
	TransactionID           string                 `json:"transactionId,omitempty"`
	Status                  string                 `json:"status"`
	TriggeredBy             string                 `json:"triggeredBy"`
	TriggeredByAuthor       authorResponse         `json:"triggeredByAuthor"`
	Strategies              []string               `json:"strategies"`
	CurrentStrategyIndex    int                    `json:"currentStrategyIndex"`
	TransactionsToProcess   int                    `json:"transactionsToProcess"`
	TransactionsProcessed   int                    `json:"transactionsProcessed"`
	TransactionsWithMatches int                    `json:"transactionsWithMatches"`
	TotalFilesConnected     int                    `json:"totalFilesConnected"`
	Errors                  []model.QueueItemError `json:"errors"`
	RetryCount              int                    `json:"retryCount"`
	MaxRetries              int                    `json:"maxRetries"`
	CreatedAt               time.Time              `json:"createdAt"`
	UpdatedAt               time.Time              `json:"updatedAt"`
	CompletedAt             *time.Time             `json:"completedAt,omitempty"`
}

type authorResponse struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
}

func queueItemFromModel(item *model.QueueItem) queueItemResponse {
	errs := item.Errors
	if errs == nil {
		errs = []model.QueueItemError{}
	}
	return queueItemResponse{
		ID:            item.ID,
		UserID:        item.UserID,
		Scope:         string(item.Scope),
		TransactionID: item.TransactionID,
		Status:        string(item.Status),
		TriggeredBy:   string(item.TriggeredBy),
		TriggeredByAuthor: authorResponse{
			Type:   string(item.TriggeredByAuthor),
			UserID: item.TriggeredByUserID,
		},
		Strategies:              item.Strategies,
		CurrentStrategyIndex:    item.CurrentStrategyIndex,
		TransactionsToProcess:   item.TransactionsToProcess,
		TransactionsProcessed:   item.TransactionsProcessed,
		TransactionsWithMatches: item.TransactionsWithMatches,
		TotalFilesConnected:     item.TotalFilesConnected,
		Errors:                  errs,
		RetryCount:              item.RetryCount,
		MaxRetries:              item.MaxRetries,
		CreatedAt:               item.CreatedAt,
		UpdatedAt:               item.UpdatedAt,
		CompletedAt:             item.CompletedAt,
	}
}
