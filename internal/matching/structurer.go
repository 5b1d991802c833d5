package matching

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/trials"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

const structurerSystemPrompt = `You are a clinical trial eligibility criteria parser. Your job is to convert free-text eligibility criteria into structured rules.

For each criterion, extract:
1. criterion_type: "inclusion" or "exclusion"
2. original_text: The exact original text
3. attribute: The patient attribute being checked (e.g., "age", "diagnosis", "medication", "lab_value", "comorbidity")
4. operator: The comparison (e.g., ">=", "<=", "equals", "has", "has_not", "between")
5. value: The required value or threshold

Return a JSON array of structured criteria:
[
    {
        "criterion_type": "inclusion",
        "original_text": "Age 18 years or older",
        "attribute": "age",
        "operator": ">=",
        "value": "18"
    },
    ...
]

Be thorough but precise. Some criteria may not fit this structure - still include them with best-effort parsing.`

// Structurer parses a trial's free-text eligibility section into criteria.
type Structurer struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewStructurer creates a criteria structurer.
func NewStructurer(client llm.Client, model string, logger *logging.Logger) *Structurer {
	if client == nil {
		panic("matching: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Structurer{client: client, model: model, logger: logger}
}

// rawCriterion is the wire shape the model returns. Value is any because
// models sometimes emit numbers or nested objects where text was asked for.
type rawCriterion struct {
	CriterionType string `json:"criterion_type"`
	OriginalText  string `json:"original_text"`
	Attribute     string `json:"attribute"`
	Operator      string `json:"operator"`
	Value         any    `json:"value"`
}

// Structure parses the eligibility text of one trial. Parsing failures
// degrade to an empty criterion set with zero confidence so the match
// pipeline can continue with what it has.
func (s *Structurer) Structure(ctx context.Context, trial trials.ClinicalTrial) StructuredTrial {
	out := StructuredTrial{Trial: trial}
	if trial.EligibilityCriteria == "" {
		return out
	}

	prompt := fmt.Sprintf(`Parse the following eligibility criteria into structured format:

%s

Return a JSON array of structured criteria.`, trial.EligibilityCriteria)

	raw, err := llm.GenerateJSON(ctx, s.client, s.model, structurerSystemPrompt, prompt, 0.2)
	if err != nil {
		s.logger.Warn("criteria structuring failed", "nct_id", trial.NCTID, "error", err)
		return out
	}

	var parsed []rawCriterion
	if err := json.Unmarshal([]byte(llm.ExtractJSONArray(raw)), &parsed); err != nil {
		s.logger.Warn("criteria structuring returned malformed JSON", "nct_id", trial.NCTID, "error", err)
		return out
	}

	for i, crit := range parsed {
		structured := StructuredCriterion{
			CriterionID:   fmt.Sprintf("%s_C%d", trial.NCTID, i+1),
			OriginalText:  crit.OriginalText,
			CriterionType: CriterionInclusion,
			Attribute:     crit.Attribute,
			Operator:      crit.Operator,
			Value:         coerceValue(crit.Value),
			Status:        StatusUnknown,
		}
		if crit.CriterionType == CriterionExclusion {
			structured.CriterionType = CriterionExclusion
			out.ExclusionCriteria = append(out.ExclusionCriteria, structured)
		} else {
			out.InclusionCriteria = append(out.InclusionCriteria, structured)
		}
	}
	if len(parsed) > 0 {
		out.ParsingConfidence = 0.8
	}
	return out
}

// coerceValue renders whatever the model produced as a string. Objects and
// arrays are serialized back to JSON rather than dropped.
func coerceValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
