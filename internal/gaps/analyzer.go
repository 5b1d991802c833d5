// Package gaps identifies missing patient information that blocks
// eligibility decisions, so the question planner knows what to ask next.
package gaps

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/matching"
	"github.com/trialmatch-ai/platform/internal/profile"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Gap is one piece of missing patient information.
type Gap struct {
	Attribute     string `json:"attribute"`
	Reason        string `json:"reason"`
	Priority      string `json:"priority"`
	QuestionHint  string `json:"question_hint,omitempty"`
	CriteriaCount int    `json:"criteria_count"`
}

// Analysis is the full outcome of a gap analysis pass.
type Analysis struct {
	Gaps                  []Gap    `json:"gaps"`
	Summary               string   `json:"gap_summary"`
	PrioritizedAttributes []string `json:"prioritized_attributes"`
	UnknownCriteriaCount  int      `json:"unknown_criteria_count"`
	TrialsWithUnknowns    int      `json:"trials_with_unknowns"`
}

const analyzerSystemPrompt = `You are a gap analyst for clinical trial matching.

Your job is to analyze trial eligibility criteria that have UNKNOWN status and identify
what specific patient information is missing that would allow evaluation of those criteria.

For each unknown criterion, determine:
1. What patient attribute is needed (e.g., lab value, medical history, lifestyle factor)
2. Why this information is important for the specific trial
3. Priority level (high = needed for multiple trials, medium = important for one trial, low = nice to have)

Be specific about what information is needed. For example:
- Instead of "lab values", specify "HbA1c level" or "creatinine clearance"
- Instead of "medical history", specify "history of heart disease" or "prior chemotherapy"

Respond in JSON format.`

// keywordFields maps criterion keywords to the profile field that would
// resolve them.
var keywordFields = map[string]string{
	"age":                "age",
	"sex":                "biological_sex",
	"gender":             "biological_sex",
	"diagnosis":          "primary_condition",
	"condition":          "primary_condition",
	"stage":              "condition_stage",
	"ecog":               "ecog_status",
	"performance_status": "ecog_status",
	"smoking":            "smoking_status",
	"tobacco":            "smoking_status",
	"alcohol":            "alcohol_use",
	"pregnancy":          "pregnancy_status",
	"pregnant":           "pregnancy_status",
	"medication":         "current_medications",
	"medications":        "current_medications",
	"treatment":          "prior_treatments",
	"prior_treatment":    "prior_treatments",
	"comorbidity":        "comorbidities",
	"comorbidities":      "comorbidities",
	"allergy":            "allergies",
	"allergies":          "allergies",
}

// maxSampledCriteria bounds the model prompt size.
const maxSampledCriteria = 10

// Analyzer combines a rule keyword table with a model pass over unresolved
// criteria. The model result wins on attribute collisions.
type Analyzer struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewAnalyzer creates a gap analyzer.
func NewAnalyzer(client llm.Client, model string, logger *logging.Logger) *Analyzer {
	if client == nil {
		panic("gaps: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Analyzer{client: client, model: model, logger: logger}
}

// unknownCriterion is the flattened view of an unresolved criterion that the
// analysis works from.
type unknownCriterion struct {
	CriterionID string `json:"criterion_id"`
	Text        string `json:"text"`
	Type        string `json:"type"`
	Attribute   string `json:"attribute"`
	TrialID     string `json:"trial_id"`
}

// Analyze inspects the unresolved criteria of the matched trials and reports
// what is missing, most useful first.
func (a *Analyzer) Analyze(ctx context.Context, matches []matching.TrialMatch, p profile.Profile) Analysis {
	if len(matches) == 0 {
		return Analysis{Summary: "No trials to analyze"}
	}

	var unknown []unknownCriterion
	trialsWithUnknowns := 0
	for _, match := range matches {
		if len(match.CriteriaUnknown) > 0 {
			trialsWithUnknowns++
		}
		for _, crit := range match.CriteriaUnknown {
			unknown = append(unknown, unknownCriterion{
				CriterionID: crit.CriterionID,
				Text:        crit.OriginalText,
				Type:        crit.CriterionType,
				Attribute:   crit.Attribute,
				TrialID:     match.Trial.NCTID,
			})
		}
	}
	if len(unknown) == 0 {
		return Analysis{Summary: "All criteria have been evaluated"}
	}

	modelGaps := a.modelGaps(ctx, unknown, p)
	ruleGaps := ruleGaps(p, unknown)
	merged := mergeGaps(modelGaps, ruleGaps)
	prioritized := prioritize(merged, unknown)

	attrs := make([]string, 0, 5)
	for _, g := range prioritized {
		attrs = append(attrs, g.Attribute)
		if len(attrs) == 5 {
			break
		}
	}

	return Analysis{
		Gaps:                  prioritized,
		Summary:               summarize(prioritized),
		PrioritizedAttributes: attrs,
		UnknownCriteriaCount:  len(unknown),
		TrialsWithUnknowns:    trialsWithUnknowns,
	}
}

func (a *Analyzer) modelGaps(ctx context.Context, unknown []unknownCriterion, p profile.Profile) []Gap {
	sample := unknown
	if len(sample) > maxSampledCriteria {
		sample = sample[:maxSampledCriteria]
	}
	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return nil
	}

	prompt := fmt.Sprintf(`Analyze these unknown eligibility criteria and identify what patient information is missing.

UNKNOWN CRITERIA:
%s

CURRENT PATIENT PROFILE:
%s

For each piece of missing information, provide:
1. attribute: The specific attribute needed (e.g., "hemoglobin_level", "prior_chemotherapy", "heart_disease_history")
2. reason: Why this is needed (reference the specific criterion)
3. priority: "high", "medium", or "low"
4. question_hint: A natural way to ask about this

Respond with a JSON array of gap objects:
[
  {
    "attribute": "string",
    "reason": "string",
    "priority": "high|medium|low",
    "question_hint": "string"
  }
]`, sampleJSON, p.JSON())

	raw, err := llm.GenerateJSON(ctx, a.client, a.model, analyzerSystemPrompt, prompt, 0.3)
	if err != nil {
		a.logger.Warn("gap analysis model pass failed, using rules only", "error", err)
		return nil
	}
	var gaps []Gap
	if err := json.Unmarshal([]byte(llm.ExtractJSONArray(raw)), &gaps); err != nil {
		a.logger.Warn("gap analysis returned malformed JSON, using rules only", "error", err)
		return nil
	}
	return gaps
}

// ruleGaps finds profile fields that unresolved criteria mention but the
// profile does not answer.
func ruleGaps(p profile.Profile, unknown []unknownCriterion) []Gap {
	mentioned := map[string]string{}
	for _, crit := range unknown {
		if attr := strings.ToLower(crit.Attribute); attr != "" {
			field := attr
			if mapped, ok := keywordFields[attr]; ok {
				field = mapped
			}
			if _, seen := mentioned[field]; !seen {
				mentioned[field] = attr
			}
		}
		text := strings.ToLower(crit.Text)
		for keyword, field := range keywordFields {
			if strings.Contains(text, keyword) {
				if _, seen := mentioned[field]; !seen {
					mentioned[field] = keyword
				}
			}
		}
	}

	fields := make([]string, 0, len(mentioned))
	for field := range mentioned {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var gaps []Gap
	for _, field := range fields {
		if !p.FieldEmpty(field) {
			continue
		}
		keyword := mentioned[field]
		count := 0
		for _, crit := range unknown {
			if strings.Contains(strings.ToLower(crit.Text), keyword) {
				count++
			}
		}
		gaps = append(gaps, Gap{
			Attribute:     field,
			Reason:        fmt.Sprintf("Required to evaluate criteria mentioning '%s'", keyword),
			Priority:      PriorityHigh,
			CriteriaCount: count,
		})
	}
	return gaps
}

// mergeGaps deduplicates by attribute, case-insensitively. Model gaps come
// first and win collisions since they are usually more specific.
func mergeGaps(modelGaps, ruleGaps []Gap) []Gap {
	seen := make(map[string]struct{})
	var merged []Gap
	for _, gap := range append(modelGaps, ruleGaps...) {
		attr := strings.ToLower(strings.TrimSpace(gap.Attribute))
		if attr == "" {
			continue
		}
		if _, ok := seen[attr]; ok {
			continue
		}
		seen[attr] = struct{}{}
		merged = append(merged, gap)
	}
	return merged
}

var priorityRank = map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

func prioritize(gaps []Gap, unknown []unknownCriterion) []Gap {
	for i := range gaps {
		attr := strings.ToLower(gaps[i].Attribute)
		count := 0
		for _, crit := range unknown {
			if strings.Contains(strings.ToLower(crit.Text), attr) ||
				strings.Contains(strings.ToLower(crit.Attribute), attr) {
				count++
			}
		}
		if count > gaps[i].CriteriaCount {
			gaps[i].CriteriaCount = count
		}
		if gaps[i].CriteriaCount < 1 {
			gaps[i].CriteriaCount = 1
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		ri, iok := priorityRank[gaps[i].Priority]
		if !iok {
			ri = priorityRank[PriorityLow]
		}
		rj, jok := priorityRank[gaps[j].Priority]
		if !jok {
			rj = priorityRank[PriorityLow]
		}
		if ri != rj {
			return ri < rj
		}
		return gaps[i].CriteriaCount > gaps[j].CriteriaCount
	})
	return gaps
}

func summarize(gaps []Gap) string {
	if len(gaps) == 0 {
		return "No information gaps identified."
	}
	var high []string
	for _, g := range gaps {
		if g.Priority == PriorityHigh {
			high = append(high, g.Attribute)
			if len(high) == 3 {
				break
			}
		}
	}
	if len(high) > 0 {
		return fmt.Sprintf("Key missing information: %s. This information is needed to evaluate eligibility for multiple trials.", strings.Join(high, ", "))
	}
	return fmt.Sprintf("Found %d pieces of missing information that could help clarify eligibility.", len(gaps))
}
