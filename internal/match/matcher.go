package match

import (
	"sort"

	"go.uber.org/zap"

	"github.com/planning-intel/internal/normalize"
)

// Matcher produces a ranked, capped list of company matches for one
// applicant name.
type Matcher struct {
	norm   *normalize.Normalizer
	scorer *Scorer
	logger *zap.Logger
}

// NewMatcher creates a matcher over the given normalizer and scorer.
func NewMatcher(norm *normalize.Normalizer, scorer *Scorer, logger *zap.Logger) *Matcher {
	return &Matcher{norm: norm, scorer: scorer, logger: logger}
}

// FindMatches scores every candidate against the applicant name and returns
// the surviving matches sorted by confidence, highest first, capped at the
// configured maximum. Individuals are never matched to companies, so a name
// that looks like a person returns an empty list immediately.
func (m *Matcher) FindMatches(applicantName string, candidates []CandidateCompany) []CompanyMatch {
	var matches []CompanyMatch

	if m.norm.IsLikelyIndividual(applicantName) {
		m.logger.Debug("skipping individual applicant", zap.String("applicant", applicantName))
		return matches
	}

	normalizedApplicant := m.norm.Normalize(applicantName)

	for _, candidate := range candidates {
		if candidate.CompanyName == "" {
			continue
		}

		method, score, ok := m.scorer.Score(applicantName, candidate.CompanyName)
		if !ok {
			continue
		}

		matches = append(matches, CompanyMatch{
			CompanyID:               candidate.ID,
			CompanyNumber:           candidate.CompanyNumber,
			CompanyName:             candidate.CompanyName,
			Method:                  method,
			ConfidenceScore:         score,
			ApplicantName:           applicantName,
			NormalizedApplicantName: normalizedApplicant,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ConfidenceScore > matches[j].ConfidenceScore
	})

	if max := m.scorer.cfg.MaxMatches; len(matches) > max {
		matches = matches[:max]
	}

	return matches
}
