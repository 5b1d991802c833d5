package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/profile"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

const evaluatorSystemPrompt = `You are a clinical trial eligibility evaluator. Your job is to determine if a patient meets specific eligibility criteria.

For each criterion, you must:
1. Compare the patient's attributes against the criterion
2. Determine status: "satisfied", "violated", or "unknown"
3. Provide a clear explanation

Rules:
- SATISFIED: Patient clearly meets the criterion
- VIOLATED: Patient clearly does not meet the criterion
- UNKNOWN: Insufficient patient information to determine

Be conservative - if there's any ambiguity, mark as "unknown".

Return JSON:
{
    "criterion_id": "...",
    "status": "satisfied|violated|unknown",
    "patient_value": "what the patient has",
    "explanation": "Clear explanation of why this status"
}`

// Evaluation is the per-criterion result, including what further
// information would resolve an unknown.
type Evaluation struct {
	Status           CriterionStatus
	PatientValue     string
	Explanation      string
	MissingAttribute []string
}

// Evaluator decides satisfied/violated/unknown for individual criteria.
// Cheap deterministic rules run first; the model handles the rest.
type Evaluator struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewEvaluator creates a criterion evaluator.
func NewEvaluator(client llm.Client, model string, logger *logging.Logger) *Evaluator {
	if client == nil {
		panic("matching: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{client: client, model: model, logger: logger}
}

// Evaluate resolves one criterion against the patient. Any model failure
// degrades to unknown so a single bad completion never sinks the trial.
func (e *Evaluator) Evaluate(ctx context.Context, criterion StructuredCriterion, p profile.Profile) Evaluation {
	if result, ok := ruleEvaluate(criterion, p); ok {
		return result
	}

	prompt := fmt.Sprintf(`Evaluate if this patient meets this criterion:

Criterion: %s
Criterion Type: %s

Patient Profile:
%s

Return JSON with status, patient_value, explanation, and missing_attribute (if unknown).`,
		criterion.OriginalText, criterion.CriterionType, p.JSON())

	raw, err := llm.GenerateJSON(ctx, e.client, e.model, evaluatorSystemPrompt, prompt, 0.2)
	if err != nil {
		e.logger.Warn("criterion evaluation failed", "criterion_id", criterion.CriterionID, "error", err)
		return Evaluation{Status: StatusUnknown, Explanation: "Could not evaluate criterion"}
	}

	var wire struct {
		Status           string `json:"status"`
		PatientValue     string `json:"patient_value"`
		Explanation      string `json:"explanation"`
		MissingAttribute any    `json:"missing_attribute"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSONObject(raw)), &wire); err != nil {
		e.logger.Warn("criterion evaluation returned malformed JSON", "criterion_id", criterion.CriterionID, "error", err)
		return Evaluation{Status: StatusUnknown, Explanation: "Could not evaluate criterion"}
	}

	return Evaluation{
		Status:           parseStatus(wire.Status),
		PatientValue:     wire.PatientValue,
		Explanation:      wire.Explanation,
		MissingAttribute: missingList(wire.MissingAttribute),
	}
}

func parseStatus(s string) CriterionStatus {
	switch CriterionStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusSatisfied:
		return StatusSatisfied
	case StatusViolated:
		return StatusViolated
	default:
		return StatusUnknown
	}
}

// missingList accepts either a single attribute name or a list of them.
func missingList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}

// ruleEvaluate handles the criteria common enough to not be worth a model
// call. Returns false when the criterion is outside rule coverage.
func ruleEvaluate(criterion StructuredCriterion, p profile.Profile) (Evaluation, bool) {
	if criterion.Attribute == "age" && p.Age != nil {
		threshold, err := strconv.Atoi(strings.TrimSpace(criterion.Value))
		if err != nil {
			return Evaluation{}, false
		}
		var met bool
		switch criterion.Operator {
		case ">=":
			met = *p.Age >= threshold
		case "<=":
			met = *p.Age <= threshold
		case ">":
			met = *p.Age > threshold
		case "<":
			met = *p.Age < threshold
		default:
			return Evaluation{}, false
		}
		status := StatusViolated
		if met {
			status = StatusSatisfied
		}
		return Evaluation{
			Status:       status,
			PatientValue: strconv.Itoa(*p.Age),
			Explanation:  fmt.Sprintf("Patient age is %d, criterion requires %s %d", *p.Age, criterion.Operator, threshold),
		}, true
	}

	switch criterion.Attribute {
	case "sex", "biological_sex", "gender":
		if p.BiologicalSex == "" {
			return Evaluation{}, false
		}
		criterionSex := strings.ToLower(strings.TrimSpace(criterion.Value))
		patientSex := strings.ToLower(p.BiologicalSex)
		if criterionSex == "all" || criterionSex == patientSex {
			return Evaluation{
				Status:       StatusSatisfied,
				PatientValue: patientSex,
				Explanation:  fmt.Sprintf("Patient sex (%s) matches criterion", patientSex),
			}, true
		}
		if criterionSex != "" {
			return Evaluation{
				Status:       StatusViolated,
				PatientValue: patientSex,
				Explanation:  fmt.Sprintf("Criterion requires %s, patient is %s", criterionSex, patientSex),
			}, true
		}
	}

	return Evaluation{}, false
}
