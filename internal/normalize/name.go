package normalize

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Tables holds the lookup data the normalizer classifies and strips with.
// They are injected rather than hard-coded so tests and deployments can
// substitute their own lists.
type Tables struct {
	// SuffixFamilies maps a canonical suffix family to its spelling variants,
	// e.g. "limited" -> ["ltd", "ltd.", "limited"].
	SuffixFamilies map[string][]string
	// StopWords are dropped during token extraction.
	StopWords []string
	// Titles mark a name as belonging to a person when they lead it.
	Titles []string
}

// DefaultTables returns the UK company-name tables the matcher ships with.
func DefaultTables() Tables {
	return Tables{
		SuffixFamilies: map[string][]string{
			"limited":      {"ltd", "ltd.", "limited"},
			"company":      {"co", "co.", "company"},
			"corporation":  {"corp", "corp.", "corporation"},
			"incorporated": {"inc", "inc.", "incorporated"},
			"partnership":  {"partnership", "partners"},
			"llp":          {"llp", "l.l.p.", "limited liability partnership"},
			"plc":          {"plc", "p.l.c.", "public limited company"},
			"cic":          {"cic", "c.i.c.", "community interest company"},
			"holdings":     {"holdings", "holding"},
			"group":        {"group", "grp"},
			"developments": {"developments", "development", "dev"},
			"properties":   {"properties", "property", "prop"},
			"investments":  {"investments", "investment", "inv"},
			"services":     {"services", "service", "svc"},
			"solutions":    {"solutions", "solution", "sol"},
			"enterprises":  {"enterprises", "enterprise", "ent"},
			"trading":      {"trading", "trade"},
			"residential":  {"residential", "resi"},
			"commercial":   {"commercial", "comm"},
		},
		StopWords: []string{
			"the", "a", "an", "and", "or", "of", "in", "at", "to", "for", "with",
			"by", "from", "on", "as", "is", "are", "was", "were", "be", "been",
			"being", "have", "has", "had", "having",
		},
		Titles: []string{
			"mr", "mrs", "ms", "miss", "dr", "prof", "sir", "dame", "lord",
			"lady", "hon", "rev", "captain", "major", "colonel",
		},
	}
}

var (
	// Unicode-aware: accented letters in company names must survive.
	rePunctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s'-]`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

// maxCacheEntries bounds the normalization memo so the long-running
// scheduler process cannot grow it without limit.
const maxCacheEntries = 1024

// Normalizer canonicalizes free-text organisation names. All methods are pure
// functions of their input; the only state is an idempotent memoization cache,
// so a single Normalizer is safe for concurrent use.
type Normalizer struct {
	// suffixVariants preserves a stable family order for end-of-name stripping.
	suffixVariants [][]string
	allVariants    []string
	stopWords      map[string]bool
	titles         map[string]bool

	cache     sync.Map // raw name -> normalized name
	cacheSize atomic.Int64
}

// NewNormalizer creates a normalizer with the default UK tables.
func NewNormalizer() *Normalizer {
	return NewNormalizerWithTables(DefaultTables())
}

// NewNormalizerWithTables creates a normalizer with custom lookup tables.
func NewNormalizerWithTables(tables Tables) *Normalizer {
	n := &Normalizer{
		stopWords: make(map[string]bool, len(tables.StopWords)),
		titles:    make(map[string]bool, len(tables.Titles)),
	}

	// Sort family names so stripping order does not depend on map iteration.
	families := make([]string, 0, len(tables.SuffixFamilies))
	for family := range tables.SuffixFamilies {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		variants := tables.SuffixFamilies[family]
		n.suffixVariants = append(n.suffixVariants, variants)
		n.allVariants = append(n.allVariants, variants...)
	}

	for _, w := range tables.StopWords {
		n.stopWords[w] = true
	}
	for _, t := range tables.Titles {
		n.titles[t] = true
	}
	return n
}

// Normalize lowercases a name, strips punctuation except hyphen and
// apostrophe, collapses whitespace and trims. Idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(name string) string {
	if name == "" {
		return ""
	}
	if cached, ok := n.cache.Load(name); ok {
		return cached.(string)
	}

	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = rePunctuation.ReplaceAllString(normalized, " ")
	normalized = reWhitespace.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)

	if n.cacheSize.Load() < maxCacheEntries {
		if _, loaded := n.cache.LoadOrStore(name, normalized); !loaded {
			n.cacheSize.Add(1)
		}
	}
	return normalized
}

// StripSuffix removes one trailing company-suffix token, or a trailing
// "and <suffix>" pair, from the normalized name. Only the end of the name is
// considered and at most one removal happens.
func (n *Normalizer) StripSuffix(name string) string {
	words := strings.Fields(n.Normalize(name))

	for _, variants := range n.suffixVariants {
		for _, variant := range variants {
			if len(words) >= 2 && words[len(words)-2] == "and" && words[len(words)-1] == variant {
				return strings.Join(words[:len(words)-2], " ")
			}
			if len(words) > 0 && words[len(words)-1] == variant {
				return strings.Join(words[:len(words)-1], " ")
			}
		}
	}

	return strings.Join(words, " ")
}

// IsLikelyIndividual reports whether the name looks like a person rather than
// a company: it leads with a personal title, or it has 2-3 words and no
// company-suffix substring anywhere in it. A deliberate heuristic; short
// suffix-less company names are misclassified and that imprecision is
// accepted.
func (n *Normalizer) IsLikelyIndividual(name string) bool {
	normalized := n.Normalize(name)
	words := strings.Fields(normalized)

	if len(words) > 0 && n.titles[words[0]] {
		return true
	}

	hasSuffix := false
	for _, variant := range n.allVariants {
		if strings.Contains(normalized, variant) {
			hasSuffix = true
			break
		}
	}

	return !hasSuffix && len(words) >= 2 && len(words) <= 3
}

// NameTokens extracts the meaningful tokens of a name: normalized,
// suffix-stripped, split on whitespace, with stop words and tokens of length
// <= 2 dropped.
func (n *Normalizer) NameTokens(name string) map[string]bool {
	words := strings.Fields(n.StripSuffix(name))

	tokens := make(map[string]bool, len(words))
	for _, word := range words {
		if len(word) > 2 && !n.stopWords[word] {
			tokens[word] = true
		}
	}
	return tokens
}
