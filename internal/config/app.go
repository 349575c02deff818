package config

import "time"

// AppConfig collects every tunable the pipeline and scheduler need. All values
// come from the environment so the binaries can run unchanged across
// deployments.
type AppConfig struct {
	// Matching and pipeline
	MinConfidenceScore     float64
	MaxMatchesPerApplicant int
	SearchPageSize         int
	EnableEnrichment       bool
	EnrichmentLookback     time.Duration

	// Discovery scheduler
	Boroughs       []string
	DaysBack       int
	BatchSize      int
	RateLimitDelay time.Duration
	CronExpr       string

	// External services
	CompaniesHouseAPIKey  string
	CompaniesHouseBaseURL string
	PlanningBaseURL       string
	HunterAPIKey          string
	HunterBaseURL         string

	// Ops server
	HTTPAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

var defaultBoroughs = []string{
	"Westminster", "Camden", "Islington", "Hackney", "Tower Hamlets",
	"Southwark", "Lambeth", "Brent", "Ealing", "Barnet",
}

// FromEnv builds an AppConfig from the environment, applying the documented
// defaults for anything unset.
func FromEnv() *AppConfig {
	return &AppConfig{
		MinConfidenceScore:     GetEnvFloat("MIN_CONFIDENCE_SCORE", 0.7),
		MaxMatchesPerApplicant: GetEnvInt("MAX_MATCHES_PER_APPLICANT", 3),
		SearchPageSize:         GetEnvInt("COMPANY_SEARCH_PAGE_SIZE", 20),
		EnableEnrichment:       GetEnvBool("ENABLE_CONTACT_ENRICHMENT", true),
		EnrichmentLookback:     time.Duration(GetEnvInt("ENRICHMENT_LOOKBACK_MINUTES", 60)) * time.Minute,

		Boroughs:       GetEnvList("BOROUGHS_TO_PROCESS", defaultBoroughs),
		DaysBack:       GetEnvInt("DAYS_BACK_TO_SEARCH", 7),
		BatchSize:      GetEnvInt("DISCOVERY_BATCH_SIZE", 50),
		RateLimitDelay: time.Duration(GetEnvInt("RATE_LIMIT_DELAY_MS", 1000)) * time.Millisecond,
		CronExpr:       GetEnv("SCHEDULE_CRON", "0 2 * * 0"), // Sundays at 2 AM

		CompaniesHouseAPIKey:  GetEnv("COMPANIES_HOUSE_API_KEY", ""),
		CompaniesHouseBaseURL: GetEnv("COMPANIES_HOUSE_BASE_URL", "https://api.company-information.service.gov.uk"),
		PlanningBaseURL:       GetEnv("PLANNING_API_BASE_URL", "https://planningdata.london.gov.uk/api-guest/applications"),
		HunterAPIKey:          GetEnv("HUNTER_API_KEY", ""),
		HunterBaseURL:         GetEnv("HUNTER_BASE_URL", "https://api.hunter.io/v2"),

		HTTPAddr: GetEnv("HTTP_ADDR", ":8090"),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "console"),
	}
}
