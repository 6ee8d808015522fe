package match

import (
	"context"
	"fmt"
	"time"

	"github.com/tkrause/paperclip/internal/model"
)

// Amount matching bounds.
const (
	amountTolerance = 0.01
	dateWindow      = 30 * 24 * time.Hour
)

// AmountFiles matches files whose extracted amount equals the
// transaction amount within tolerance, created inside a date window
// around the transaction date.
type AmountFiles struct{}

// ID returns the strategy identifier.
func (s *AmountFiles) ID() string { return StrategyAmountFiles }

// Applicable requires a non-zero amount to compare against.
func (s *AmountFiles) Applicable(txn *model.Transaction, _ *model.Partner) bool {
	return txn != nil && txn.Amount != 0
}

// Run searches files by amount within the date window.
func (s *AmountFiles) Run(ctx context.Context, deps Deps, txn *model.Transaction, _ *model.Partner) ([]model.Candidate, error) {
	amount := txn.Amount
	if amount < 0 {
		amount = -amount
	}

	from := txn.Date.Add(-dateWindow)
	to := txn.Date.Add(dateWindow)

	files, err := deps.Storage.SearchFilesByAmount(ctx, txn.UserID, amount, amountTolerance, from, to)
	if err != nil {
		return nil, fmt.Errorf("amount file search failed: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(files))
	for _, file := range files {
		candidates = append(candidates, model.Candidate{
			FileID:        file.ID,
			FileCreatedAt: file.CreatedAt,
			StrategyID:    s.ID(),
			Signal:        model.SignalAmountDate,
		})
	}

	return candidates, nil
}
