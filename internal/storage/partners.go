package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/model"
)

// SavePartner inserts or replaces a partner. An empty UserID stores a
// global partner visible to every user.
func (s *SQLiteStorage) SavePartner(ctx context.Context, partner *model.Partner) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePartner(partner); err != nil {
		return err
	}

	aliases, err := marshalJSON(emptyIfNil(partner.Aliases))
	if err != nil {
		return err
	}
	ibans, err := marshalJSON(emptyIfNil(partner.IBANs))
	if err != nil {
		return err
	}
	domains, err := marshalJSON(emptyIfNil(partner.EmailDomains))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO partners (
			id, user_id, name, vat_id, website, aliases, ibans, email_domains
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		partner.ID, partner.UserID, partner.Name,
		nullString(partner.VATID), nullString(partner.Website),
		aliases, ibans, domains,
	)
	if err != nil {
		return fmt.Errorf("failed to save partner %s: %w", partner.ID, err)
	}

	return nil
}

// GetPartnerByID resolves a user-scoped partner, falling back to a
// global partner with the same id.
func (s *SQLiteStorage) GetPartnerByID(ctx context.Context, userID, id string) (*model.Partner, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	// user_id = '' is the global scope; user-scoped rows win.
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, vat_id, website, aliases, ibans, email_domains
		FROM partners
		WHERE id = ? AND user_id IN (?, '')
		ORDER BY user_id DESC
		LIMIT 1
	`, id, userID)

	partner, err := scanPartner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("partner %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner %s: %w", id, err)
	}
	return partner, nil
}

func scanPartner(row rowScanner) (*model.Partner, error) {
	var (
		partner model.Partner
		vatID   sql.NullString
		website sql.NullString
		aliases string
		ibans   string
		domains string
	)

	err := row.Scan(
		&partner.ID, &partner.UserID, &partner.Name,
		&vatID, &website, &aliases, &ibans, &domains,
	)
	if err != nil {
		return nil, err
	}

	partner.VATID = vatID.String
	partner.Website = website.String

	partner.Aliases, err = unmarshalStrings(aliases)
	if err != nil {
		return nil, err
	}
	partner.IBANs, err = unmarshalStrings(ibans)
	if err != nil {
		return nil, err
	}
	partner.EmailDomains, err = unmarshalStrings(domains)
	if err != nil {
		return nil, err
	}

	return &partner, nil
}
