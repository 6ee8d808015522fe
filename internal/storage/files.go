package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/model"
)

const fileColumns = `id, user_id, storage_ref, source, sender_domain, partner_id, subject,
	amount_hints, iban_hints, created_at`

// SaveFile inserts or replaces a receipt candidate file.
func (s *SQLiteStorage) SaveFile(ctx context.Context, file *model.File) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFile(file); err != nil {
		return err
	}

	hints := file.AmountHints
	if hints == nil {
		hints = []float64{}
	}
	amountHints, err := marshalJSON(hints)
	if err != nil {
		return err
	}
	ibanHints, err := marshalJSON(emptyIfNil(file.IBANHints))
	if err != nil {
		return err
	}

	createdAt := file.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO files (
			id, user_id, storage_ref, source, sender_domain, partner_id, subject,
			amount_hints, iban_hints, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		file.ID, file.UserID, file.StorageRef, string(file.Source),
		nullString(file.SenderDomain), nullString(file.PartnerID),
		nullString(file.Subject), amountHints, ibanHints, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save file %s: %w", file.ID, err)
	}

	return nil
}

// GetFileByID retrieves a single file.
func (s *SQLiteStorage) GetFileByID(ctx context.Context, id string) (*model.File, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)

	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return file, nil
}

// SearchFilesByPartner finds files whose metadata references the
// partner: a resolved partner id, a known email domain, or an alias
// appearing in the subject line.
func (s *SQLiteStorage) SearchFilesByPartner(ctx context.Context, userID string, partner *model.Partner) ([]model.File, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, fmt.Errorf("%w: partner", ErrNilParameter)
	}

	clauses := []string{"partner_id = ?"}
	args := []any{userID, partner.ID}

	if len(partner.EmailDomains) > 0 {
		placeholders := make([]string, len(partner.EmailDomains))
		for i, d := range partner.EmailDomains {
			placeholders[i] = "?"
			args = append(args, strings.ToLower(strings.TrimSpace(d)))
		}
		clauses = append(clauses, "LOWER(sender_domain) IN ("+strings.Join(placeholders, ", ")+")")
	}

	for _, name := range partner.AllNames() {
		clauses = append(clauses, "LOWER(subject) LIKE ?")
		args = append(args, "%"+name+"%")
	}

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE user_id = ? AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY created_at DESC`

	return s.queryFiles(ctx, query, args...)
}

// SearchFilesByAmount finds files with an extracted amount hint within
// tolerance of the given amount, created inside the date window.
func (s *SQLiteStorage) SearchFilesByAmount(ctx context.Context, userID string, amount, tolerance float64, from, to time.Time) ([]model.File, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE user_id = ?
		  AND created_at >= ? AND created_at <= ?
		  AND EXISTS (
			SELECT 1 FROM json_each(files.amount_hints)
			WHERE ABS(json_each.value - ?) <= ?
		  )
		ORDER BY created_at DESC`

	return s.queryFiles(ctx, query, userID, from, to, amount, tolerance)
}

// SearchMailFilesBySenderDomains finds mail-derived files from any of
// the given sender domains.
func (s *SQLiteStorage) SearchMailFilesBySenderDomains(ctx context.Context, userID string, domains []string) ([]model.File, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(domains))
	args := []any{userID, string(model.FileSourceMailAttachment)}
	for i, d := range domains {
		placeholders[i] = "?"
		args = append(args, strings.ToLower(strings.TrimSpace(d)))
	}

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE user_id = ? AND source = ?
		  AND LOWER(sender_domain) IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at DESC`

	return s.queryFiles(ctx, query, args...)
}

// SearchMailFilesByQueries finds mail-derived files whose subject or
// storage reference matches any of the given search strings.
func (s *SQLiteStorage) SearchMailFilesByQueries(ctx context.Context, userID string, queries []string) ([]model.File, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(queries))
	args := []any{userID, string(model.FileSourceMailAttachment)}
	for _, q := range queries {
		q = strings.ToLower(strings.TrimSpace(q))
		if q == "" {
			continue
		}
		clauses = append(clauses, "(LOWER(subject) LIKE ? OR LOWER(storage_ref) LIKE ?)")
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE user_id = ? AND source = ?
		  AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY created_at DESC`

	return s.queryFiles(ctx, query, args...)
}

func (s *SQLiteStorage) queryFiles(ctx context.Context, query string, args ...any) ([]model.File, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []model.File
	for rows.Next() {
		file, scanErr := scanFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan file: %w", scanErr)
		}
		files = append(files, *file)
	}

	return files, rows.Err()
}

func scanFile(row rowScanner) (*model.File, error) {
	var (
		file         model.File
		source       string
		senderDomain sql.NullString
		partnerID    sql.NullString
		subject      sql.NullString
		amountHints  string
		ibanHints    string
	)

	err := row.Scan(
		&file.ID, &file.UserID, &file.StorageRef, &source,
		&senderDomain, &partnerID, &subject,
		&amountHints, &ibanHints, &file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	file.Source = model.FileSource(source)
	file.SenderDomain = senderDomain.String
	file.PartnerID = partnerID.String
	file.Subject = subject.String

	file.AmountHints, err = unmarshalFloats(amountHints)
	if err != nil {
		return nil, err
	}
	file.IBANHints, err = unmarshalStrings(ibanHints)
	if err != nil {
		return nil, err
	}

	return &file, nil
}
