package match

import (
	"github.com/tkrause/paperclip/internal/model"
)

// DefaultAcceptanceThreshold is the minimum confidence at which a
// candidate is auto-attached. Candidates strictly below it are
// discarded, never stored for later.
const DefaultAcceptanceThreshold = 0.60

// signalScores maps raw strategy signals onto the common [0,1] scale.
var signalScores = map[model.MatchSignal]float64{
	model.SignalIBANExact:   0.95,
	model.SignalVATExact:    0.95,
	model.SignalAmountDate:  0.85,
	model.SignalPartnerRef:  0.75,
	model.SignalDomainFuzzy: 0.70,
	model.SignalAliasFuzzy:  0.70,
	model.SignalAIQueryHit:  0.55,
}

// Scorer normalizes heterogeneous strategy signals into one comparable
// confidence value with a deterministic tie-break.
type Scorer struct {
	threshold float64
}

// NewScorer creates a scorer with the given acceptance threshold.
// A non-positive threshold selects the default.
func NewScorer(threshold float64) *Scorer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAcceptanceThreshold
	}
	return &Scorer{threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score maps a candidate's raw signal to its confidence. Unknown
// signals score zero and are therefore never accepted.
func (s *Scorer) Score(c model.Candidate) float64 {
	return signalScores[c.Signal]
}

// Best returns the winning match among the candidates, or false when no
// candidate clears the acceptance threshold. Ties on confidence break
// by most recent file creation time, then by file id so identical
// inputs always produce identical output.
func (s *Scorer) Best(candidates []model.Candidate) (model.Match, bool) {
	var (
		best      model.Match
		bestFound bool
	)

	for _, c := range candidates {
		score := s.Score(c)
		if score < s.threshold {
			continue
		}

		if !bestFound || betterThan(c, score, best) {
			best = model.Match{
				FileID:        c.FileID,
				FileCreatedAt: c.FileCreatedAt,
				StrategyID:    c.StrategyID,
				Confidence:    score,
			}
			bestFound = true
		}
	}

	return best, bestFound
}

func betterThan(c model.Candidate, score float64, current model.Match) bool {
	if score != current.Confidence {
		return score > current.Confidence
	}
	if !c.FileCreatedAt.Equal(current.FileCreatedAt) {
		return c.FileCreatedAt.After(current.FileCreatedAt)
	}
	return c.FileID < current.FileID
}
