package planning

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Application is one planning application as returned by the planning data
// service. Applicant naming is inconsistent at the source, so all three
// candidate fields are carried and resolved downstream.
type Application struct {
	Reference       string          `json:"reference"`
	ApplicantName   string          `json:"applicant_name"`
	Name            string          `json:"name"`
	Organisation    string          `json:"organisation"`
	Description     string          `json:"description"`
	ApplicationType string          `json:"application_type"`
	Address         string          `json:"address"`
	URL             string          `json:"url"`
	Raw             json.RawMessage `json:"-"`
}

// BestApplicantName resolves the applicant name by field priority.
func (a *Application) BestApplicantName() string {
	if a.ApplicantName != "" {
		return a.ApplicantName
	}
	if a.Name != "" {
		return a.Name
	}
	return a.Organisation
}

// Client searches a planning data service for recent applications.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		http.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &Client{http: http, logger: logger}
}

type searchResponse struct {
	Records []json.RawMessage `json:"records"`
}

// SearchApplications returns applications for one borough received since the
// given date. Each application keeps its raw payload for downstream storage.
func (c *Client) SearchApplications(borough string, since time.Time) ([]Application, error) {
	var out searchResponse
	resp, err := c.http.R().
		SetQueryParams(map[string]string{
			"local_authority": borough,
			"received_after":  since.Format("2006-01-02"),
		}).
		SetResult(&out).
		Get("/applications")
	if err != nil {
		return nil, fmt.Errorf("planning search for %s: %w", borough, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("planning search for %s returned %d", borough, resp.StatusCode())
	}

	apps := make([]Application, 0, len(out.Records))
	for _, record := range out.Records {
		var app Application
		if err := json.Unmarshal(record, &app); err != nil {
			c.logger.Warn("skipping malformed planning record",
				zap.String("borough", borough), zap.Error(err))
			continue
		}
		app.Raw = record
		apps = append(apps, app)
	}

	c.logger.Debug("planning search complete",
		zap.String("borough", borough),
		zap.Int("applications", len(apps)))
	return apps, nil
}
