package match

import (
	"math"
	"testing"

	"github.com/planning-intel/internal/normalize"
)

func newTestScorer() *Scorer {
	return NewScorer(normalize.NewNormalizer())
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStringSimilarity(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical after normalization", "ACME Holdings Ltd.", "acme holdings ltd", 1.0},
		{"empty left", "", "acme", 0.0},
		{"empty right", "acme", "", 0.0},
		// "acme developments ltd" vs "acme developments limited":
		// edit distance 4 over max length 25.
		{"ltd vs limited", "Acme Developments Ltd", "Acme Developments Limited", 1.0 - 4.0/25.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.StringSimilarity(tt.a, tt.b)
			if !almostEqual(got, tt.want) {
				t.Errorf("StringSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestStringSimilaritySymmetric(t *testing.T) {
	s := newTestScorer()

	pairs := [][2]string{
		{"Acme Developments Ltd", "Acme Developments Limited"},
		{"Bluewater Consulting", "Bluewater Consultants"},
		{"Short", "A much longer company name"},
	}
	for _, p := range pairs {
		ab := s.StringSimilarity(p[0], p[1])
		ba := s.StringSimilarity(p[1], p[0])
		if !almostEqual(ab, ba) {
			t.Errorf("StringSimilarity not symmetric for %q/%q: %v != %v", p[0], p[1], ab, ba)
		}
	}
}

func TestTokenSimilarity(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name      string
		applicant string
		company   string
		want      float64
	}{
		// {acme, riverside} vs {acme, riverside, projects}: jaccard 2/3
		// plus the subset bonus.
		{"subset bonus applies", "Acme Riverside", "Acme Riverside Projects Group", 2.0/3.0 + 0.2},
		// {bluewater, consulting} vs {bluewater, consultants}: 1/3, no bonus.
		{"partial overlap", "Bluewater Consulting", "Bluewater Consultants", 1.0 / 3.0},
		{"no overlap", "Acme Holdings", "Zenith Partners", 0.0},
		{"empty applicant tokens", "A B", "Acme Holdings", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.TokenSimilarity(tt.applicant, tt.company)
			if !almostEqual(got, tt.want) {
				t.Errorf("TokenSimilarity(%q, %q) = %v, want %v", tt.applicant, tt.company, got, tt.want)
			}
		})
	}
}

func TestTokenSimilarityBonusCapped(t *testing.T) {
	s := newTestScorer()

	// Identical token sets: jaccard 1.0, bonus must not push past 1.0.
	got := s.TokenSimilarity("Acme Riverside", "Riverside Acme")
	if !almostEqual(got, 1.0) {
		t.Errorf("TokenSimilarity with identical tokens = %v, want 1.0", got)
	}
}

func TestScoreLadder(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name       string
		applicant  string
		company    string
		wantMethod Method
		wantScore  float64
		wantOK     bool
	}{
		{
			name:       "exact name",
			applicant:  "Acme Developments Ltd",
			company:    "ACME DEVELOPMENTS LTD",
			wantMethod: MethodExactName,
			wantScore:  1.0,
			wantOK:     true,
		},
		{
			// Raw similarity 0.84 misses exact, but both strip to
			// "acme developments".
			name:       "suffix normalized",
			applicant:  "Acme Developments Ltd",
			company:    "Acme Developments Limited",
			wantMethod: MethodSuffixNormalized,
			wantScore:  1.0,
			wantOK:     true,
		},
		{
			name:       "token match with subset bonus",
			applicant:  "Acme Riverside",
			company:    "Acme Riverside Projects Group",
			wantMethod: MethodTokenMatch,
			wantScore:  2.0/3.0 + 0.2,
			wantOK:     true,
		},
		{
			// String similarity 0.857, suffix strip changes nothing, token
			// overlap too weak: falls through to the fuzzy rung.
			name:       "fuzzy name",
			applicant:  "Bluewater Consulting",
			company:    "Bluewater Consultants",
			wantMethod: MethodFuzzyName,
			wantScore:  1.0 - 3.0/21.0,
			wantOK:     true,
		},
		{
			name:      "no rule fires",
			applicant: "Acme Holdings",
			company:   "Zenith Partners",
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, score, ok := s.Score(tt.applicant, tt.company)
			if ok != tt.wantOK {
				t.Fatalf("Score(%q, %q) ok = %v, want %v", tt.applicant, tt.company, ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if method != tt.wantMethod {
				t.Errorf("Score(%q, %q) method = %v, want %v", tt.applicant, tt.company, method, tt.wantMethod)
			}
			if !almostEqual(score, tt.wantScore) {
				t.Errorf("Score(%q, %q) score = %v, want %v", tt.applicant, tt.company, score, tt.wantScore)
			}
		})
	}
}
