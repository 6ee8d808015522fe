package model

import (
	"strings"
	"time"
)

// Transaction represents a single financial event awaiting a receipt.
type Transaction struct {
	Date            time.Time
	CreatedAt       time.Time
	MatchedAt       *time.Time
	ID              string
	UserID          string
	Currency        string
	Name            string // Raw booking text
	Description     string
	Reference       string
	PartnerID       string // Optional resolved counterparty
	MatchedBy       string // "automation" when attached by the pipeline
	MatchStrategy   string
	FileIDs         []string
	Amount          float64
	MatchConfidence float64
	IsComplete      bool
	NoReceiptNeeded bool
}

// HasFile reports whether the given file is already attached.
func (t *Transaction) HasFile(fileID string) bool {
	for _, id := range t.FileIDs {
		if id == fileID {
			return true
		}
	}
	return false
}

// SearchText returns the transaction's free-text fields joined for
// keyword matching.
func (t *Transaction) SearchText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{t.Name, t.Description, t.Reference} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}
