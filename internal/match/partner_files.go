package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/tkrause/paperclip/internal/model"
)

// PartnerFiles matches files whose metadata references the transaction's
// resolved partner: its id, email domains, or aliases. An IBAN hint that
// matches one of the partner's IBANs upgrades the signal to the highest
// tier.
type PartnerFiles struct{}

// ID returns the strategy identifier.
func (s *PartnerFiles) ID() string { return StrategyPartnerFiles }

// Applicable requires a resolved partner.
func (s *PartnerFiles) Applicable(_ *model.Transaction, partner *model.Partner) bool {
	return partner != nil
}

// Run searches files referencing the partner and grades each hit.
func (s *PartnerFiles) Run(ctx context.Context, deps Deps, txn *model.Transaction, partner *model.Partner) ([]model.Candidate, error) {
	files, err := deps.Storage.SearchFilesByPartner(ctx, txn.UserID, partner)
	if err != nil {
		return nil, fmt.Errorf("partner file search failed: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(files))
	for _, file := range files {
		candidates = append(candidates, model.Candidate{
			FileID:        file.ID,
			FileCreatedAt: file.CreatedAt,
			StrategyID:    s.ID(),
			Signal:        s.grade(&file, partner),
		})
	}

	return candidates, nil
}

func (s *PartnerFiles) grade(file *model.File, partner *model.Partner) model.MatchSignal {
	for _, iban := range file.IBANHints {
		if partner.MatchesIBAN(iban) {
			return model.SignalIBANExact
		}
	}
	if partner.VATID != "" && file.Subject != "" &&
		strings.Contains(strings.ToLower(file.Subject), strings.ToLower(partner.VATID)) {
		return model.SignalVATExact
	}
	if file.PartnerID == partner.ID {
		return model.SignalPartnerRef
	}
	if partner.MatchesDomain(file.SenderDomain) {
		return model.SignalDomainFuzzy
	}
	return model.SignalAliasFuzzy
}
