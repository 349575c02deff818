package match

import (
	"github.com/agnivade/levenshtein"

	"github.com/planning-intel/internal/normalize"
)

// Scorer computes similarity scores between an applicant name and candidate
// company names and resolves them to a match method via the threshold ladder.
type Scorer struct {
	norm *normalize.Normalizer
	cfg  *Thresholds
}

// NewScorer creates a scorer with default thresholds.
func NewScorer(norm *normalize.Normalizer) *Scorer {
	return NewScorerWithThresholds(norm, DefaultThresholds())
}

// NewScorerWithThresholds creates a scorer with custom thresholds.
func NewScorerWithThresholds(norm *normalize.Normalizer, cfg *Thresholds) *Scorer {
	return &Scorer{norm: norm, cfg: cfg}
}

// StringSimilarity returns a similarity ratio in [0,1] between the normalized
// forms of a and b: 1.0 when they are identical, otherwise one minus the
// normalized edit distance. Symmetric in its arguments.
func (s *Scorer) StringSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	normA := s.norm.Normalize(a)
	normB := s.norm.Normalize(b)

	if normA == normB {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(normA, normB)
	maxLen := len([]rune(normA))
	if l := len([]rune(normB)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0.0
	}

	sim := 1.0 - float64(dist)/float64(maxLen)
	if sim < 0 {
		return 0.0
	}
	return sim
}

// TokenSimilarity returns the Jaccard similarity of the two names' token
// sets, with a bonus (capped at 1.0) when every applicant token appears in
// the candidate. Zero if either token set is empty.
func (s *Scorer) TokenSimilarity(applicantName, companyName string) float64 {
	applicantTokens := s.norm.NameTokens(applicantName)
	companyTokens := s.norm.NameTokens(companyName)

	if len(applicantTokens) == 0 || len(companyTokens) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range applicantTokens {
		if companyTokens[tok] {
			intersection++
		}
	}
	union := len(applicantTokens) + len(companyTokens) - intersection
	if union == 0 {
		return 0.0
	}

	jaccard := float64(intersection) / float64(union)

	if intersection == len(applicantTokens) {
		jaccard += s.cfg.SubsetBonus
		if jaccard > 1.0 {
			jaccard = 1.0
		}
	}

	return jaccard
}

// Score applies the ladder to one applicant/candidate pair. The first rule
// whose threshold is met wins; ok is false when no rule fires and the pair
// should be discarded.
func (s *Scorer) Score(applicantName, companyName string) (method Method, score float64, ok bool) {
	stringSim := s.StringSimilarity(applicantName, companyName)
	tokenSim := s.TokenSimilarity(applicantName, companyName)

	applicantStripped := s.norm.StripSuffix(applicantName)
	companyStripped := s.norm.StripSuffix(companyName)

	suffixSim := 0.0
	if applicantStripped != "" && companyStripped != "" {
		suffixSim = s.StringSimilarity(applicantStripped, companyStripped)
	}

	switch {
	case stringSim >= s.cfg.ExactName:
		return MethodExactName, stringSim, true
	case suffixSim >= s.cfg.SuffixNormalized:
		return MethodSuffixNormalized, suffixSim, true
	case tokenSim >= s.cfg.TokenMatch:
		return MethodTokenMatch, tokenSim, true
	case stringSim >= s.cfg.FuzzyName:
		return MethodFuzzyName, stringSim, true
	}

	return "", 0.0, false
}
