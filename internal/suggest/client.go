// Package suggest provides the client for the AI query-suggestion
// service used by the email-based matching strategies. The service is
// treated as best-effort: every call is timeout-bounded and callers fall
// back to zero candidates on failure.
package suggest

import (
	"context"
	"time"
)

// TransactionSummary is the transaction metadata sent to the service.
type TransactionSummary struct {
	Date        time.Time
	Name        string
	Description string
	Reference   string
	Currency    string
	Amount      float64
}

// PartnerSummary is the optional counterparty metadata sent alongside.
type PartnerSummary struct {
	Name    string
	Website string
	Domains []string
}

// Client defines the interface for query-suggestion providers.
type Client interface {
	// Suggest returns up to maxQueries ranked search strings for
	// locating the transaction's receipt among mail-derived files.
	Suggest(ctx context.Context, txn TransactionSummary, partner *PartnerSummary, maxQueries int) ([]string, error)
}

// Config holds provider configuration.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}
