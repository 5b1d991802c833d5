package matching

import (
	"context"
	"strings"

	"github.com/trialmatch-ai/platform/internal/profile"
)

// Match evaluates every parsed criterion of the trial against the patient
// and aggregates the results into a single verdict with an explanation.
func (e *Evaluator) Match(ctx context.Context, structured StructuredTrial, p profile.Profile) TrialMatch {
	match := TrialMatch{Trial: structured.Trial}

	var missing []string
	evaluate := func(crit StructuredCriterion) {
		result := e.Evaluate(ctx, crit, p)
		crit.Status = result.Status
		crit.PatientValue = result.PatientValue
		crit.Explanation = result.Explanation

		switch result.Status {
		case StatusSatisfied:
			match.CriteriaSatisfied = append(match.CriteriaSatisfied, crit)
		case StatusViolated:
			match.CriteriaViolated = append(match.CriteriaViolated, crit)
		default:
			match.CriteriaUnknown = append(match.CriteriaUnknown, crit)
			missing = append(missing, result.MissingAttribute...)
		}
	}
	for _, crit := range structured.InclusionCriteria {
		evaluate(crit)
	}
	for _, crit := range structured.ExclusionCriteria {
		evaluate(crit)
	}

	match.EligibilityStatus = verdict(match)
	match.Explanation = explain(match)
	match.MissingInformation = dedupeFold(missing)

	total := len(match.CriteriaSatisfied) + len(match.CriteriaViolated) + len(match.CriteriaUnknown)
	if total > 0 {
		resolved := len(match.CriteriaSatisfied) + len(match.CriteriaViolated)
		match.ConfidenceScore = float64(resolved) / float64(total)
	}
	return match
}

// verdict applies the precedence rule: a violated inclusion criterion rules
// the patient out, then a violated exclusion criterion does, then any
// unresolved criterion leaves the verdict open. An exclusion criterion that
// is satisfied means the disqualifying condition is absent, so it never
// counts against the patient.
func verdict(match TrialMatch) EligibilityStatus {
	for _, crit := range match.CriteriaViolated {
		if crit.CriterionType == CriterionInclusion {
			return Ineligible
		}
	}
	for _, crit := range match.CriteriaViolated {
		if crit.CriterionType == CriterionExclusion {
			return Ineligible
		}
	}
	if len(match.CriteriaUnknown) > 0 {
		return Uncertain
	}
	return Eligible
}

func explain(match TrialMatch) string {
	if len(match.CriteriaViolated) > 0 {
		return "You may not be eligible because: " + joinTexts(match.CriteriaViolated, 3)
	}
	if len(match.CriteriaUnknown) > 0 {
		return "We need more information to determine eligibility. Unclear criteria: " + joinTexts(match.CriteriaUnknown, 3)
	}
	return "Based on your profile, you appear to meet all eligibility criteria for this trial."
}

func joinTexts(criteria []StructuredCriterion, limit int) string {
	if len(criteria) > limit {
		criteria = criteria[:limit]
	}
	texts := make([]string, 0, len(criteria))
	for _, crit := range criteria {
		texts = append(texts, crit.OriginalText)
	}
	return strings.Join(texts, "; ")
}

// dedupeFold removes case-insensitive duplicates, keeping first spellings
// in arrival order.
func dedupeFold(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
