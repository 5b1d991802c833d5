package trials

// Location is one study site.
type Location struct {
	Facility string `json:"facility,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Contact is a central contact for trial enrollment.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ClinicalTrial is a study record from the trial registry. The raw
// eligibility text is kept alongside the identifiers so downstream
// components can structure and evaluate it.
type ClinicalTrial struct {
	NCTID               string     `json:"nct_id"`
	Title               string     `json:"title"`
	BriefSummary        string     `json:"brief_summary,omitempty"`
	DetailedDescription string     `json:"detailed_description,omitempty"`
	OverallStatus       string     `json:"overall_status"`
	Phase               string     `json:"phase,omitempty"`
	StudyType           string     `json:"study_type,omitempty"`
	Conditions          []string   `json:"conditions,omitempty"`
	EligibilityCriteria string     `json:"eligibility_criteria_text,omitempty"`
	MinimumAge          string     `json:"minimum_age,omitempty"`
	MaximumAge          string     `json:"maximum_age,omitempty"`
	Sex                 string     `json:"sex,omitempty"`
	Locations           []Location `json:"locations,omitempty"`
	Contacts            []Contact  `json:"contacts,omitempty"`
	LeadSponsor         string     `json:"lead_sponsor,omitempty"`
}

// SearchParams narrow a registry search.
type SearchParams struct {
	Condition  string
	Location   string
	Status     []string
	MaxResults int
}
