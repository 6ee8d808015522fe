// Package storage provides the data persistence layer for the paperclip application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tkrause/paperclip/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidFile        = errors.New("invalid file")
	ErrInvalidPartner     = errors.New("invalid partner")
	ErrInvalidQueueItem   = errors.New("invalid queue item")
	ErrInvalidMatch       = errors.New("invalid match")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTransaction)
	}
	return nil
}

// validateFile validates a receipt candidate file.
func validateFile(file *model.File) error {
	if file == nil {
		return fmt.Errorf("%w: file", ErrNilParameter)
	}
	if file.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidFile)
	}
	if file.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidFile)
	}
	if file.StorageRef == "" {
		return fmt.Errorf("%w: missing storage reference", ErrInvalidFile)
	}
	return nil
}

// validatePartner validates a partner.
func validatePartner(partner *model.Partner) error {
	if partner == nil {
		return fmt.Errorf("%w: partner", ErrNilParameter)
	}
	if partner.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPartner)
	}
	if strings.TrimSpace(partner.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPartner)
	}
	return nil
}

// validateQueueItem validates a queue item before creation.
func validateQueueItem(item *model.QueueItem) error {
	if item == nil {
		return fmt.Errorf("%w: queue item", ErrNilParameter)
	}
	if item.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidQueueItem)
	}
	if item.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidQueueItem)
	}
	if !item.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidQueueItem, item.Scope)
	}
	if item.Scope == model.ScopeSingleTransaction && item.TransactionID == "" {
		return fmt.Errorf("%w: single_transaction scope requires a transaction ID", ErrInvalidQueueItem)
	}
	if len(item.Strategies) == 0 {
		return fmt.Errorf("%w: no strategies", ErrInvalidQueueItem)
	}
	return nil
}

// validateMatch validates an accepted match before it is written back.
func validateMatch(match model.Match) error {
	if match.FileID == "" {
		return fmt.Errorf("%w: missing file ID", ErrInvalidMatch)
	}
	if match.StrategyID == "" {
		return fmt.Errorf("%w: missing strategy ID", ErrInvalidMatch)
	}
	if match.Confidence < 0 || match.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidMatch)
	}
	return nil
}
