package matching

import "github.com/trialmatch-ai/platform/internal/trials"

// CriterionStatus is the three-valued outcome of evaluating one criterion.
type CriterionStatus string

const (
	StatusSatisfied CriterionStatus = "satisfied"
	StatusViolated  CriterionStatus = "violated"
	StatusUnknown   CriterionStatus = "unknown"
)

// EligibilityStatus is the trial-level verdict.
type EligibilityStatus string

const (
	Eligible   EligibilityStatus = "eligible"
	Ineligible EligibilityStatus = "ineligible"
	Uncertain  EligibilityStatus = "uncertain"
)

const (
	CriterionInclusion = "inclusion"
	CriterionExclusion = "exclusion"
)

// StructuredCriterion is one eligibility criterion parsed out of the trial's
// free-text eligibility section, plus its evaluation against the patient.
type StructuredCriterion struct {
	CriterionID   string `json:"criterion_id"`
	OriginalText  string `json:"original_text"`
	CriterionType string `json:"criterion_type"`

	Attribute string `json:"attribute,omitempty"`
	Operator  string `json:"operator,omitempty"`
	Value     string `json:"value,omitempty"`

	Status       CriterionStatus `json:"status"`
	PatientValue string          `json:"patient_value,omitempty"`
	Explanation  string          `json:"explanation,omitempty"`
}

// StructuredTrial pairs a registry record with its parsed criteria.
type StructuredTrial struct {
	Trial             trials.ClinicalTrial  `json:"trial"`
	InclusionCriteria []StructuredCriterion `json:"inclusion_criteria"`
	ExclusionCriteria []StructuredCriterion `json:"exclusion_criteria"`
	ParsingConfidence float64               `json:"parsing_confidence"`
}

// AllCriteria returns inclusion then exclusion criteria in parse order.
func (s StructuredTrial) AllCriteria() []StructuredCriterion {
	out := make([]StructuredCriterion, 0, len(s.InclusionCriteria)+len(s.ExclusionCriteria))
	out = append(out, s.InclusionCriteria...)
	out = append(out, s.ExclusionCriteria...)
	return out
}

// TrialMatch is the outcome of matching one patient against one trial.
type TrialMatch struct {
	Trial             trials.ClinicalTrial `json:"trial"`
	EligibilityStatus EligibilityStatus    `json:"eligibility_status"`

	CriteriaSatisfied []StructuredCriterion `json:"criteria_satisfied"`
	CriteriaViolated  []StructuredCriterion `json:"criteria_violated"`
	CriteriaUnknown   []StructuredCriterion `json:"criteria_unknown"`

	Explanation        string   `json:"explanation"`
	ConfidenceScore    float64  `json:"confidence_score"`
	MissingInformation []string `json:"missing_information"`
}
