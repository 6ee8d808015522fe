package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/model"
)

const transactionColumns = `id, user_id, date, name, description, reference, amount, currency,
	partner_id, file_ids, is_complete, no_receipt_needed,
	matched_by, match_strategy, match_confidence, matched_at, created_at`

// SaveTransaction inserts or replaces a transaction.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	fileIDs, err := marshalJSON(emptyIfNil(txn.FileIDs))
	if err != nil {
		return err
	}

	createdAt := txn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions (
			id, user_id, date, name, description, reference, amount, currency,
			partner_id, file_ids, is_complete, no_receipt_needed,
			matched_by, match_strategy, match_confidence, matched_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID, txn.UserID, txn.Date, txn.Name, txn.Description, txn.Reference,
		txn.Amount, txn.Currency, nullString(txn.PartnerID), fileIDs,
		txn.IsComplete, txn.NoReceiptNeeded,
		nullString(txn.MatchedBy), nullString(txn.MatchStrategy),
		nullFloat(txn.MatchConfidence), txn.MatchedAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
	}

	return nil
}

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return txn, nil
}

// GetIncompleteTransactions retrieves a user's transactions that still
// need a receipt, oldest first.
func (s *SQLiteStorage) GetIncompleteTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND is_complete = 0 AND no_receipt_needed = 0
		ORDER BY date ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomplete transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		txns = append(txns, *txn)
	}

	return txns, rows.Err()
}

// CountIncompleteTransactions returns a live count of a user's
// transactions that still need a receipt.
func (s *SQLiteStorage) CountIncompleteTransactions(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = ? AND is_complete = 0 AND no_receipt_needed = 0
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incomplete transactions: %w", err)
	}

	return count, nil
}

// AttachFileToTransaction appends the matched file to the transaction,
// marks it complete and records provenance. Attaching a file that is
// already present is a no-op.
func (s *SQLiteStorage) AttachFileToTransaction(ctx context.Context, transactionID string, match model.Match) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateMatch(match); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fileIDsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT file_ids FROM transactions WHERE id = ?`, transactionID).Scan(&fileIDsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read transaction %s: %w", transactionID, err)
	}

	fileIDs, err := unmarshalStrings(fileIDsJSON)
	if err != nil {
		return err
	}
	for _, id := range fileIDs {
		if id == match.FileID {
			return nil
		}
	}

	updated, err := marshalJSON(append(fileIDs, match.FileID))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET file_ids = ?, is_complete = 1,
			matched_by = ?, match_strategy = ?, match_confidence = ?, matched_at = ?
		WHERE id = ?
	`, updated, model.MatchedByAutomation, match.StrategyID, match.Confidence,
		time.Now().UTC(), transactionID)
	if err != nil {
		return fmt.Errorf("failed to attach file to transaction %s: %w", transactionID, err)
	}

	return tx.Commit()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn             model.Transaction
		description     sql.NullString
		reference       sql.NullString
		partnerID       sql.NullString
		fileIDs         string
		matchedBy       sql.NullString
		matchStrategy   sql.NullString
		matchConfidence sql.NullFloat64
		matchedAt       sql.NullTime
	)

	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.Date, &txn.Name, &description, &reference,
		&txn.Amount, &txn.Currency, &partnerID, &fileIDs,
		&txn.IsComplete, &txn.NoReceiptNeeded,
		&matchedBy, &matchStrategy, &matchConfidence, &matchedAt, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Description = description.String
	txn.Reference = reference.String
	txn.PartnerID = partnerID.String
	txn.MatchedBy = matchedBy.String
	txn.MatchStrategy = matchStrategy.String
	txn.MatchConfidence = matchConfidence.Float64
	if matchedAt.Valid {
		t := matchedAt.Time
		txn.MatchedAt = &t
	}

	txn.FileIDs, err = unmarshalStrings(fileIDs)
	if err != nil {
		return nil, err
	}

	return &txn, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
