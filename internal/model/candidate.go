package model

import "time"

// MatchSignal is the raw signal class a strategy attaches to a candidate.
// The confidence scorer maps signals onto the common [0,1] scale.
type MatchSignal string

// Known match signals, strongest first.
const (
	SignalIBANExact   MatchSignal = "iban_exact"
	SignalVATExact    MatchSignal = "vat_exact"
	SignalAmountDate  MatchSignal = "amount_date"
	SignalPartnerRef  MatchSignal = "partner_ref"
	SignalDomainFuzzy MatchSignal = "domain_fuzzy"
	SignalAliasFuzzy  MatchSignal = "alias_fuzzy"
	SignalAIQueryHit  MatchSignal = "ai_query_hit"
)

// Candidate is one file a strategy proposes for a transaction, before
// confidence scoring.
type Candidate struct {
	FileCreatedAt time.Time
	FileID        string
	StrategyID    string
	Signal        MatchSignal
}

// Match is an accepted candidate with its normalized confidence,
// recorded on the transaction as provenance.
type Match struct {
	FileCreatedAt time.Time
	FileID        string
	StrategyID    string
	Confidence    float64
}

// MatchedByAutomation is the provenance marker written by the pipeline.
const MatchedByAutomation = "automation"
