package companieshouse

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/planning-intel/internal/match"
	"github.com/planning-intel/internal/pipeline"
)

const (
	defaultMaxRetries = 3
	defaultRetryWait  = time.Second
)

// Client talks to the Companies House public data API. Retries are an
// explicit bounded loop with doubling backoff so the ceiling is structurally
// obvious; resty's built-in retry stays disabled.
type Client struct {
	http       *resty.Client
	maxRetries int
	retryWait  time.Duration
	logger     *zap.Logger
}

// NewClient creates a client. The API key is sent as the basic-auth
// username, per the Companies House API contract.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetBasicAuth(apiKey, "").
		SetHeader("Accept", "application/json")

	return &Client{
		http:       http,
		maxRetries: defaultMaxRetries,
		retryWait:  defaultRetryWait,
		logger:     logger,
	}
}

type searchResponse struct {
	Items []struct {
		CompanyNumber  string `json:"company_number"`
		Title          string `json:"title"`
		CompanyName    string `json:"company_name"`
		CompanyStatus  string `json:"company_status"`
		DateOfCreation string `json:"date_of_creation"`
	} `json:"items"`
}

type companyResponse struct {
	CompanyNumber  string `json:"company_number"`
	CompanyName    string `json:"company_name"`
	CompanyStatus  string `json:"company_status"`
	CompanyType    string `json:"type"`
	DateOfCreation string `json:"date_of_creation"`
	RegisteredOfficeAddress struct {
		AddressLine1 string `json:"address_line_1"`
		AddressLine2 string `json:"address_line_2"`
		Locality     string `json:"locality"`
		PostalCode   string `json:"postal_code"`
		Country      string `json:"country"`
	} `json:"registered_office_address"`
}

type officersResponse struct {
	Items []struct {
		Name        string `json:"name"`
		OfficerRole string `json:"officer_role"`
		AppointedOn string `json:"appointed_on"`
		ResignedOn  string `json:"resigned_on"`
		Nationality string `json:"nationality"`
		DateOfBirth struct {
			Month int `json:"month"`
			Year  int `json:"year"`
		} `json:"date_of_birth"`
		Links struct {
			Officer struct {
				Appointments string `json:"appointments"`
			} `json:"officer"`
		} `json:"links"`
	} `json:"items"`
}

// SearchCompanies runs a free-text company name search and returns up to
// pageSize candidates.
func (c *Client) SearchCompanies(query string, pageSize int) ([]match.CandidateCompany, error) {
	var out searchResponse
	err := c.get("/search/companies", map[string]string{
		"q":              query,
		"items_per_page": strconv.Itoa(pageSize),
	}, &out)
	if err != nil {
		return nil, err
	}

	candidates := make([]match.CandidateCompany, 0, len(out.Items))
	for _, item := range out.Items {
		name := item.Title
		if name == "" {
			name = item.CompanyName
		}
		candidates = append(candidates, match.CandidateCompany{
			CompanyNumber:  item.CompanyNumber,
			CompanyName:    name,
			CompanyStatus:  item.CompanyStatus,
			DateOfCreation: item.DateOfCreation,
		})
	}
	return candidates, nil
}

// CompanyDetails fetches the full profile for one company, or nil when the
// company is unknown.
func (c *Client) CompanyDetails(companyNumber string) (*pipeline.CompanyProfile, error) {
	var out companyResponse
	err := c.get("/company/"+companyNumber, nil, &out)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &pipeline.CompanyProfile{
		CompanyNumber:  out.CompanyNumber,
		CompanyName:    out.CompanyName,
		CompanyStatus:  out.CompanyStatus,
		CompanyType:    out.CompanyType,
		DateOfCreation: out.DateOfCreation,
		AddressLine1:   out.RegisteredOfficeAddress.AddressLine1,
		AddressLine2:   out.RegisteredOfficeAddress.AddressLine2,
		Locality:       out.RegisteredOfficeAddress.Locality,
		PostalCode:     out.RegisteredOfficeAddress.PostalCode,
		Country:        out.RegisteredOfficeAddress.Country,
	}, nil
}

// CompanyOfficers fetches the officer list for one company.
func (c *Client) CompanyOfficers(companyNumber string) ([]pipeline.Officer, error) {
	var out officersResponse
	err := c.get("/company/"+companyNumber+"/officers", nil, &out)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	officers := make([]pipeline.Officer, 0, len(out.Items))
	for _, item := range out.Items {
		officers = append(officers, pipeline.Officer{
			CHOfficerID:      officerID(companyNumber, item.Links.Officer.Appointments, item.Name),
			Name:             item.Name,
			Role:             item.OfficerRole,
			AppointedOn:      item.AppointedOn,
			ResignedOn:       item.ResignedOn,
			Nationality:      item.Nationality,
			DateOfBirthMonth: item.DateOfBirth.Month,
			DateOfBirthYear:  item.DateOfBirth.Year,
		})
	}
	return officers, nil
}

// officerID derives a stable officer key: the appointments link carries the
// Companies House officer id; when absent, fall back to a deterministic
// company-scoped key so upserts stay idempotent.
func officerID(companyNumber, appointmentsLink, name string) string {
	if appointmentsLink != "" {
		return appointmentsLink
	}
	return fmt.Sprintf("auto_%s_%s", companyNumber, name)
}

// statusError marks an HTTP-level failure so callers can distinguish a 404
// from transport errors.
type statusError struct {
	path   string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("companies house: %s returned %d", e.path, e.status)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == 404
}

// get performs one GET with a bounded retry loop: up to maxRetries+1
// attempts, doubling the wait between them. Only transport errors, 429 and
// 5xx are retried; other HTTP errors return immediately.
func (c *Client) get(path string, query map[string]string, out interface{}) error {
	var lastErr error
	wait := c.retryWait

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying companies house request",
				zap.String("path", path), zap.Int("attempt", attempt))
			time.Sleep(wait)
			wait *= 2
		}

		req := c.http.R().SetResult(out)
		if query != nil {
			req.SetQueryParams(query)
		}

		resp, err := req.Get(path)
		if err != nil {
			lastErr = err
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == 429 || status >= 500:
			lastErr = &statusError{path: path, status: status}
			continue
		case status >= 400:
			return &statusError{path: path, status: status}
		}
		return nil
	}

	return fmt.Errorf("companies house: %s failed after %d attempts: %w", path, c.maxRetries+1, lastErr)
}
