package trials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RegistryConfig describes how to reach the ClinicalTrials.gov v2 API.
type RegistryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RegistryClient queries the public trial registry.
type RegistryClient struct {
	baseURL string
	http    *http.Client
}

// NewRegistryClient validates the configuration and returns a ready-to-use client.
func NewRegistryClient(cfg RegistryConfig) (*RegistryClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("trials: base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RegistryClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// registryFields is the projection requested from the studies endpoint. Asking
// for the full record wastes bandwidth on modules we never read.
var registryFields = []string{
	"NCTId",
	"BriefTitle",
	"OfficialTitle",
	"BriefSummary",
	"DetailedDescription",
	"OverallStatus",
	"Phase",
	"StudyType",
	"Condition",
	"EligibilityCriteria",
	"MinimumAge",
	"MaximumAge",
	"Sex",
	"LocationCity",
	"LocationState",
	"LocationCountry",
	"LocationFacility",
	"LeadSponsorName",
	"CentralContactName",
	"CentralContactPhone",
	"CentralContactEMail",
}

// Search queries the registry for studies matching the parameters. A request
// or decode failure is returned to the caller; deciding whether to degrade is
// the caller's business.
func (c *RegistryClient) Search(ctx context.Context, params SearchParams) ([]ClinicalTrial, error) {
	q := url.Values{}
	q.Set("format", "json")
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	q.Set("pageSize", strconv.Itoa(maxResults))
	q.Set("fields", strings.Join(registryFields, ","))
	if params.Condition != "" {
		q.Set("query.cond", params.Condition)
	}
	if params.Location != "" {
		q.Set("query.locn", params.Location)
	}
	if len(params.Status) > 0 {
		q.Set("filter.overallStatus", strings.Join(params.Status, ","))
	}

	data, err := c.get(ctx, "/studies", q)
	if err != nil {
		return nil, err
	}

	var page struct {
		Studies []json.RawMessage `json:"studies"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("trials: decode search response failed: %w", err)
	}

	out := make([]ClinicalTrial, 0, len(page.Studies))
	for _, raw := range page.Studies {
		trial, err := parseStudy(raw)
		if err != nil || trial.NCTID == "" {
			continue
		}
		out = append(out, trial)
	}
	return out, nil
}

// Get fetches a single study by its NCT identifier.
func (c *RegistryClient) Get(ctx context.Context, nctID string) (ClinicalTrial, error) {
	if strings.TrimSpace(nctID) == "" {
		return ClinicalTrial{}, errors.New("trials: nct id required")
	}
	q := url.Values{}
	q.Set("format", "json")

	data, err := c.get(ctx, "/studies/"+url.PathEscape(nctID), q)
	if err != nil {
		return ClinicalTrial{}, err
	}
	trial, err := parseStudy(data)
	if err != nil {
		return ClinicalTrial{}, fmt.Errorf("trials: parse study %s failed: %w", nctID, err)
	}
	return trial, nil
}

func (c *RegistryClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("trials: request build failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trials: registry request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("trials: read response failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("trials: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// study mirrors the protocolSection layout of the v2 API.
type study struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID         string `json:"nctId"`
			BriefTitle    string `json:"briefTitle"`
			OfficialTitle string `json:"officialTitle"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus string `json:"overallStatus"`
		} `json:"statusModule"`
		DescriptionModule struct {
			BriefSummary        string `json:"briefSummary"`
			DetailedDescription string `json:"detailedDescription"`
		} `json:"descriptionModule"`
		DesignModule struct {
			Phases    []string `json:"phases"`
			StudyType string   `json:"studyType"`
		} `json:"designModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		EligibilityModule struct {
			EligibilityCriteria string `json:"eligibilityCriteria"`
			MinimumAge          string `json:"minimumAge"`
			MaximumAge          string `json:"maximumAge"`
			Sex                 string `json:"sex"`
		} `json:"eligibilityModule"`
		ContactsLocationsModule struct {
			CentralContacts []struct {
				Name  string `json:"name"`
				Phone string `json:"phone"`
				Email string `json:"email"`
			} `json:"centralContacts"`
			Locations []struct {
				Facility string `json:"facility"`
				City     string `json:"city"`
				State    string `json:"state"`
				Country  string `json:"country"`
			} `json:"locations"`
		} `json:"contactsLocationsModule"`
		SponsorCollaboratorsModule struct {
			LeadSponsor struct {
				Name string `json:"name"`
			} `json:"leadSponsor"`
		} `json:"sponsorCollaboratorsModule"`
	} `json:"protocolSection"`
}

func parseStudy(raw []byte) (ClinicalTrial, error) {
	var s study
	if err := json.Unmarshal(raw, &s); err != nil {
		return ClinicalTrial{}, err
	}
	p := s.ProtocolSection

	title := p.IdentificationModule.BriefTitle
	if title == "" {
		title = p.IdentificationModule.OfficialTitle
	}
	status := p.StatusModule.OverallStatus
	if status == "" {
		status = "Unknown"
	}

	trial := ClinicalTrial{
		NCTID:               p.IdentificationModule.NCTID,
		Title:               title,
		BriefSummary:        p.DescriptionModule.BriefSummary,
		DetailedDescription: p.DescriptionModule.DetailedDescription,
		OverallStatus:       status,
		Phase:               strings.Join(p.DesignModule.Phases, ", "),
		StudyType:           p.DesignModule.StudyType,
		Conditions:          p.ConditionsModule.Conditions,
		EligibilityCriteria: p.EligibilityModule.EligibilityCriteria,
		MinimumAge:          p.EligibilityModule.MinimumAge,
		MaximumAge:          p.EligibilityModule.MaximumAge,
		Sex:                 p.EligibilityModule.Sex,
		LeadSponsor:         p.SponsorCollaboratorsModule.LeadSponsor.Name,
	}
	for _, loc := range p.ContactsLocationsModule.Locations {
		trial.Locations = append(trial.Locations, Location(loc))
	}
	for _, ct := range p.ContactsLocationsModule.CentralContacts {
		trial.Contacts = append(trial.Contacts, Contact(ct))
	}
	return trial, nil
}
