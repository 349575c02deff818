package match

// Method identifies which rule of the scoring ladder produced a match.
type Method string

const (
	MethodExactName        Method = "exact_name"
	MethodSuffixNormalized Method = "suffix_normalized"
	MethodTokenMatch       Method = "token_match"
	MethodFuzzyName        Method = "fuzzy_name"
)

// CandidateCompany is a company returned by the external search collaborator.
type CandidateCompany struct {
	ID             int64  // database id, 0 until persisted
	CompanyNumber  string // Companies House number, the unique key
	CompanyName    string
	CompanyStatus  string
	DateOfCreation string
}

// CompanyMatch represents a potential match between an applicant and a company
type CompanyMatch struct {
	CompanyID               int64
	CompanyNumber           string
	CompanyName             string
	Method                  Method
	ConfidenceScore         float64
	ApplicantName           string
	NormalizedApplicantName string
}

// Thresholds defines the scoring ladder cut-offs. Each rule is tried in
// order; the first whose threshold is met decides method and score.
type Thresholds struct {
	ExactName        float64 // raw string similarity for an exact-name match
	SuffixNormalized float64 // similarity after suffix stripping
	TokenMatch       float64 // Jaccard token similarity
	FuzzyName        float64 // raw string similarity fallback
	SubsetBonus      float64 // added when applicant tokens are a subset
	MaxMatches       int     // matches retained per applicant
}

// DefaultThresholds returns the production cut-offs.
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		ExactName:        0.95,
		SuffixNormalized: 0.90,
		TokenMatch:       0.70,
		FuzzyName:        0.80,
		SubsetBonus:      0.20,
		MaxMatches:       5,
	}
}
