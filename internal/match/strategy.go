// Package match implements the matching strategy library and the
// confidence scorer of the precision search pipeline.
package match

import (
	"context"

	"github.com/tkrause/paperclip/internal/model"
	"github.com/tkrause/paperclip/internal/service"
	"github.com/tkrause/paperclip/internal/suggest"
)

// Strategy identifiers, in default execution order.
const (
	StrategyPartnerFiles    = "partner_files"
	StrategyAmountFiles     = "amount_files"
	StrategyEmailAttachment = "email_attachment"
	StrategyEmailInvoice    = "email_invoice"
)

// Deps carries the collaborators strategies may query. Strategies never
// mutate anything through them.
type Deps struct {
	Storage service.Storage
	Suggest suggest.Client
}

// Strategy is one named, independent matching algorithm. Run is a pure
// query-and-score function: it returns candidate files with raw signals
// and must return an empty slice, not an error, when no candidates
// exist. Errors are reserved for lookup failures the caller records as
// non-fatal.
type Strategy interface {
	ID() string
	Applicable(txn *model.Transaction, partner *model.Partner) bool
	Run(ctx context.Context, deps Deps, txn *model.Transaction, partner *model.Partner) ([]model.Candidate, error)
}

// registry lists all known strategies in declaration order. The default
// strategy list of a new queue item is derived from it, so the catalogue
// and the matching code cannot drift apart.
var registry = []Strategy{
	&PartnerFiles{},
	&AmountFiles{},
	&EmailAttachment{},
	&EmailInvoice{},
}

// DefaultStrategyIDs returns the ids of all registered strategies in
// execution order.
func DefaultStrategyIDs() []string {
	ids := make([]string, len(registry))
	for i, s := range registry {
		ids[i] = s.ID()
	}
	return ids
}

// Get returns the strategy registered under the given id.
func Get(id string) (Strategy, bool) {
	for _, s := range registry {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}
