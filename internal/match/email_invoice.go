package match

import (
	"context"
	"fmt"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/model"
	"github.com/tkrause/paperclip/internal/suggest"
)

// maxSuggestedQueries bounds the number of search strings requested
// from the suggestion service per transaction.
const maxSuggestedQueries = 3

// EmailInvoice delegates to the AI query-suggestion service for ranked
// search strings, then searches mail-derived files against them. The
// weakest strategy; it runs last in the default order.
type EmailInvoice struct{}

// ID returns the strategy identifier.
func (s *EmailInvoice) ID() string { return StrategyEmailInvoice }

// Applicable requires a configured suggestion client and some text to
// derive queries from.
func (s *EmailInvoice) Applicable(txn *model.Transaction, _ *model.Partner) bool {
	return txn != nil && txn.SearchText() != ""
}

// Run obtains suggested queries and searches mail files against them.
// A failing suggestion service yields an error the runner records as
// non-fatal; the transaction simply gets no candidates from this pass.
func (s *EmailInvoice) Run(ctx context.Context, deps Deps, txn *model.Transaction, partner *model.Partner) ([]model.Candidate, error) {
	if deps.Suggest == nil {
		return nil, nil
	}

	txnSummary := suggest.TransactionSummary{
		Date:        txn.Date,
		Name:        txn.Name,
		Description: txn.Description,
		Reference:   txn.Reference,
		Currency:    txn.Currency,
		Amount:      txn.Amount,
	}

	var partnerSummary *suggest.PartnerSummary
	if partner != nil {
		partnerSummary = &suggest.PartnerSummary{
			Name:    partner.Name,
			Website: partner.Website,
			Domains: partner.EmailDomains,
		}
	}

	queries, err := deps.Suggest.Suggest(ctx, txnSummary, partnerSummary, maxSuggestedQueries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSuggestionFailed, err)
	}
	if len(queries) == 0 {
		return nil, nil
	}

	files, err := deps.Storage.SearchMailFilesByQueries(ctx, txn.UserID, queries)
	if err != nil {
		return nil, fmt.Errorf("mail query search failed: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(files))
	for _, file := range files {
		candidates = append(candidates, model.Candidate{
			FileID:        file.ID,
			FileCreatedAt: file.CreatedAt,
			StrategyID:    s.ID(),
			Signal:        model.SignalAIQueryHit,
		})
	}

	return candidates, nil
}
