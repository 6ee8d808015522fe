package match

import (
	"context"
	"fmt"

	"github.com/tkrause/paperclip/internal/model"
)

// EmailAttachment matches mail-derived files whose sender domain belongs
// to the transaction's partner.
type EmailAttachment struct{}

// ID returns the strategy identifier.
func (s *EmailAttachment) ID() string { return StrategyEmailAttachment }

// Applicable requires a partner with known email domains.
func (s *EmailAttachment) Applicable(_ *model.Transaction, partner *model.Partner) bool {
	return partner != nil && len(partner.EmailDomains) > 0
}

// Run searches mail attachments by the partner's sender domains.
func (s *EmailAttachment) Run(ctx context.Context, deps Deps, txn *model.Transaction, partner *model.Partner) ([]model.Candidate, error) {
	files, err := deps.Storage.SearchMailFilesBySenderDomains(ctx, txn.UserID, partner.EmailDomains)
	if err != nil {
		return nil, fmt.Errorf("mail attachment search failed: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(files))
	for _, file := range files {
		candidates = append(candidates, model.Candidate{
			FileID:        file.ID,
			FileCreatedAt: file.CreatedAt,
			StrategyID:    s.ID(),
			Signal:        model.SignalDomainFuzzy,
		})
	}

	return candidates, nil
}
