package profile

import "encoding/json"

// Biological sex values recognized on a patient profile.
const (
	SexMale    = "male"
	SexFemale  = "female"
	SexOther   = "other"
	SexUnknown = "unknown"
)

// Profile is the structured patient profile built from conversational intake.
// Field coverage mirrors the eligibility attributes that appear most often in
// trial criteria.
type Profile struct {
	// Demographics
	Age           *int   `json:"age,omitempty"`
	BiologicalSex string `json:"biological_sex,omitempty"`

	// Primary condition
	PrimaryCondition string `json:"primary_condition,omitempty"`
	ConditionStage   string `json:"condition_stage,omitempty"`
	DiagnosisDate    string `json:"diagnosis_date,omitempty"`

	// Location
	Country         string `json:"country,omitempty"`
	StateProvince   string `json:"state_province,omitempty"`
	City            string `json:"city,omitempty"`
	WillingToTravel *bool  `json:"willing_to_travel,omitempty"`

	// Medical history
	Comorbidities      []string `json:"comorbidities,omitempty"`
	PriorTreatments    []string `json:"prior_treatments,omitempty"`
	CurrentMedications []string `json:"current_medications,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`

	// Lab values
	LabValues map[string]any `json:"lab_values,omitempty"`

	// Lifestyle
	SmokingStatus   string `json:"smoking_status,omitempty"`
	AlcoholUse      string `json:"alcohol_use,omitempty"`
	PregnancyStatus string `json:"pregnancy_status,omitempty"`

	// Performance status (ECOG 0-5)
	ECOGStatus *int `json:"ecog_status,omitempty"`

	// Extracted attributes that don't fit standard fields
	AdditionalAttributes map[string]any `json:"additional_attributes,omitempty"`
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	out := p
	if p.Age != nil {
		age := *p.Age
		out.Age = &age
	}
	if p.WillingToTravel != nil {
		travel := *p.WillingToTravel
		out.WillingToTravel = &travel
	}
	if p.ECOGStatus != nil {
		ecog := *p.ECOGStatus
		out.ECOGStatus = &ecog
	}
	out.Comorbidities = append([]string(nil), p.Comorbidities...)
	out.PriorTreatments = append([]string(nil), p.PriorTreatments...)
	out.CurrentMedications = append([]string(nil), p.CurrentMedications...)
	out.Allergies = append([]string(nil), p.Allergies...)
	if p.LabValues != nil {
		out.LabValues = make(map[string]any, len(p.LabValues))
		for k, v := range p.LabValues {
			out.LabValues[k] = v
		}
	}
	if p.AdditionalAttributes != nil {
		out.AdditionalAttributes = make(map[string]any, len(p.AdditionalAttributes))
		for k, v := range p.AdditionalAttributes {
			out.AdditionalAttributes[k] = v
		}
	}
	return out
}

// JSON returns an indented JSON rendering for inclusion in model prompts.
func (p Profile) JSON() string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// FieldEmpty reports whether the named profile field carries no value.
// Unknown field names report true so callers treat them as outstanding.
func (p Profile) FieldEmpty(name string) bool {
	switch name {
	case "age":
		return p.Age == nil
	case "biological_sex":
		return p.BiologicalSex == ""
	case "primary_condition":
		return p.PrimaryCondition == ""
	case "condition_stage":
		return p.ConditionStage == ""
	case "diagnosis_date":
		return p.DiagnosisDate == ""
	case "country":
		return p.Country == ""
	case "state_province":
		return p.StateProvince == ""
	case "city":
		return p.City == ""
	case "willing_to_travel":
		return p.WillingToTravel == nil
	case "comorbidities":
		return len(p.Comorbidities) == 0
	case "prior_treatments":
		return len(p.PriorTreatments) == 0
	case "current_medications":
		return len(p.CurrentMedications) == 0
	case "allergies":
		return len(p.Allergies) == 0
	case "lab_values":
		return len(p.LabValues) == 0
	case "smoking_status":
		return p.SmokingStatus == ""
	case "alcohol_use":
		return p.AlcoholUse == ""
	case "pregnancy_status":
		return p.PregnancyStatus == ""
	case "ecog_status":
		return p.ECOGStatus == nil
	default:
		return true
	}
}
