package enrich

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/planning-intel/internal/pipeline"
	"github.com/planning-intel/internal/store"
)

const contactSource = "hunter"

// CompanyStore is the persistence surface enrichment needs: loading the
// company under enrichment and saving discovered contacts.
type CompanyStore interface {
	GetCompanyByID(id int64) (*store.CompanyRecord, error)
	SaveContact(c store.ContactRecord) (created bool, err error)
}

// Client enriches matched companies with contact details via a Hunter-style
// domain search API. Enrichment is best-effort throughout: per-company
// failures are reported in the result, never as an error.
type Client struct {
	http   *resty.Client
	store  CompanyStore
	logger *zap.Logger
}

func NewClient(baseURL, apiKey string, companies CompanyStore, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetQueryParam("api_key", apiKey).
		SetHeader("Accept", "application/json")

	return &Client{http: http, store: companies, logger: logger}
}

type domainSearchResponse struct {
	Data struct {
		Domain   string `json:"domain"`
		LinkedIn string `json:"linkedin"`
		Emails   []struct {
			Value     string `json:"value"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Position  string `json:"position"`
		} `json:"emails"`
	} `json:"data"`
}

// EnrichCompanies looks up contacts for each company by name and persists
// any discovered emails. Returns an error only when nothing could even be
// attempted.
func (c *Client) EnrichCompanies(companyIDs []int64) (pipeline.EnrichmentResult, error) {
	var result pipeline.EnrichmentResult

	for _, id := range companyIDs {
		company, err := c.store.GetCompanyByID(id)
		if err != nil {
			result.FailedCompanies = append(result.FailedCompanies,
				pipeline.FailedCompany{CompanyID: id, Reason: fmt.Sprintf("load failed: %v", err)})
			continue
		}
		if company == nil {
			result.FailedCompanies = append(result.FailedCompanies,
				pipeline.FailedCompany{CompanyID: id, Reason: "company not found"})
			continue
		}

		result.CompaniesProcessed++
		if err := c.enrichOne(company, &result); err != nil {
			result.FailedCompanies = append(result.FailedCompanies,
				pipeline.FailedCompany{CompanyID: id, Reason: err.Error()})
		}
	}

	c.logger.Info("contact enrichment finished",
		zap.Int("companies", result.CompaniesProcessed),
		zap.Int("emails", result.EmailsDiscovered),
		zap.Int("contacts_created", result.ContactsCreated),
		zap.Int("failed", len(result.FailedCompanies)))
	return result, nil
}

func (c *Client) enrichOne(company *store.CompanyRecord, result *pipeline.EnrichmentResult) error {
	var out domainSearchResponse
	resp, err := c.http.R().
		SetQueryParam("company", company.CompanyName).
		SetResult(&out).
		Get("/domain-search")
	if err != nil {
		return fmt.Errorf("domain search failed: %v", err)
	}
	if resp.IsError() {
		return fmt.Errorf("domain search returned %d", resp.StatusCode())
	}

	if out.Data.LinkedIn != "" {
		result.LinkedInProfiles++
	}

	for _, email := range out.Data.Emails {
		if email.Value == "" {
			continue
		}
		result.EmailsDiscovered++

		created, err := c.store.SaveContact(store.ContactRecord{
			CompanyID: company.ID,
			Name:      contactName(email.FirstName, email.LastName),
			Email:     email.Value,
			Position:  email.Position,
			Source:    contactSource,
		})
		if err != nil {
			c.logger.Warn("failed to save contact",
				zap.Int64("company_id", company.ID),
				zap.String("email", email.Value),
				zap.Error(err))
			continue
		}
		if created {
			result.ContactsCreated++
		}
	}
	return nil
}

func contactName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
