package trials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleStudy = `{
	"protocolSection": {
		"identificationModule": {"nctId": "NCT04368728", "briefTitle": "Study of Drug X in NSCLC"},
		"statusModule": {"overallStatus": "RECRUITING"},
		"descriptionModule": {"briefSummary": "A study."},
		"designModule": {"phases": ["PHASE2", "PHASE3"], "studyType": "INTERVENTIONAL"},
		"conditionsModule": {"conditions": ["Non-small Cell Lung Cancer"]},
		"eligibilityModule": {
			"eligibilityCriteria": "Inclusion Criteria:\n* Age 18 or older",
			"minimumAge": "18 Years",
			"maximumAge": "99 Years",
			"sex": "ALL"
		},
		"contactsLocationsModule": {
			"centralContacts": [{"name": "Study Team", "phone": "555-0100", "email": "team@example.org"}],
			"locations": [{"facility": "General Hospital", "city": "Boston", "state": "Massachusetts", "country": "United States"}]
		},
		"sponsorCollaboratorsModule": {"leadSponsor": {"name": "Acme Oncology"}}
	}
}`

func TestSearchParsesStudies(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studies" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = map[string]string{
			"query.cond":           r.URL.Query().Get("query.cond"),
			"query.locn":           r.URL.Query().Get("query.locn"),
			"filter.overallStatus": r.URL.Query().Get("filter.overallStatus"),
			"pageSize":             r.URL.Query().Get("pageSize"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"studies": [` + sampleStudy + `]}`))
	}))
	defer srv.Close()

	client, err := NewRegistryClient(RegistryConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewRegistryClient: %v", err)
	}

	got, err := client.Search(context.Background(), SearchParams{
		Condition:  "lung cancer",
		Location:   "Boston, Massachusetts, United States",
		Status:     []string{"RECRUITING"},
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery["query.cond"] != "lung cancer" {
		t.Errorf("condition query = %q", gotQuery["query.cond"])
	}
	if gotQuery["filter.overallStatus"] != "RECRUITING" {
		t.Errorf("status filter = %q", gotQuery["filter.overallStatus"])
	}
	if gotQuery["pageSize"] != "10" {
		t.Errorf("pageSize = %q", gotQuery["pageSize"])
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 trial, got %d", len(got))
	}
	trial := got[0]
	if trial.NCTID != "NCT04368728" {
		t.Errorf("nct id = %q", trial.NCTID)
	}
	if trial.Phase != "PHASE2, PHASE3" {
		t.Errorf("phase = %q", trial.Phase)
	}
	if trial.MinimumAge != "18 Years" || trial.Sex != "ALL" {
		t.Errorf("eligibility bounds = %q/%q", trial.MinimumAge, trial.Sex)
	}
	if len(trial.Locations) != 1 || trial.Locations[0].Country != "United States" {
		t.Errorf("locations = %+v", trial.Locations)
	}
	if trial.LeadSponsor != "Acme Oncology" {
		t.Errorf("sponsor = %q", trial.LeadSponsor)
	}
}

func TestSearchSkipsUnparseableStudies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"studies": [{"protocolSection": {}}, ` + sampleStudy + `]}`))
	}))
	defer srv.Close()

	client, err := NewRegistryClient(RegistryConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	got, err := client.Search(context.Background(), SearchParams{Condition: "nsclc"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("studies without an NCT id must be dropped, got %d trials", len(got))
	}
}

func TestSearchPropagatesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewRegistryClient(RegistryConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Search(context.Background(), SearchParams{Condition: "x"}); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestGetTrialByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studies/NCT04368728" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(sampleStudy))
	}))
	defer srv.Close()

	client, err := NewRegistryClient(RegistryConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	trial, err := client.Get(context.Background(), "NCT04368728")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if trial.Title != "Study of Drug X in NSCLC" {
		t.Errorf("title = %q", trial.Title)
	}
}

func TestNewRegistryClientRequiresBaseURL(t *testing.T) {
	if _, err := NewRegistryClient(RegistryConfig{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}
