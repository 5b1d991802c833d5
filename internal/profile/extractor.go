package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

const extractorSystemPrompt = `You are a medical information extraction specialist. Your job is to extract patient attributes from conversational text.

Extract ONLY information that is explicitly stated. Do not infer or assume.

Return a JSON object with these fields (use null for unknown):
{
    "age": <integer or null>,
    "biological_sex": <"male", "female", "other", or null>,
    "primary_condition": <string or null>,
    "condition_stage": <string or null>,
    "diagnosis_date": <string or null>,
    "country": <string or null>,
    "state_province": <string or null>,
    "city": <string or null>,
    "willing_to_travel": <boolean or null>,
    "comorbidities": [<list of strings>],
    "current_medications": [<list of strings>],
    "prior_treatments": [<list of strings>],
    "allergies": [<list of strings>],
    "smoking_status": <string or null>,
    "alcohol_use": <string or null>,
    "pregnancy_status": <string or null>,
    "ecog_status": <integer 0-5 or null>,
    "additional_attributes": {<any other relevant medical info>}
}

Be precise and medical. Convert informal language to proper medical terms where appropriate.`

// keyFields drive the extraction confidence score.
var keyFields = []string{"age", "biological_sex", "primary_condition", "country"}

// Extraction is the outcome of one profiling pass over a user message.
type Extraction struct {
	Attributes map[string]any
	Profile    Profile
	Confidence float64
}

// Updated reports whether the pass produced any attributes at all.
func (e Extraction) Updated() bool {
	return len(e.Attributes) > 0
}

// Extractor pulls structured patient attributes out of free-text messages
// using the language-model collaborator and merges them into the profile.
type Extractor struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewExtractor creates a profile extractor.
func NewExtractor(client llm.Client, model string, logger *logging.Logger) *Extractor {
	if client == nil {
		panic("profile: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{client: client, model: model, logger: logger}
}

// Extract runs one profiling pass. Failures of any kind degrade to an empty
// extraction against the unchanged profile; the turn must continue either way.
func (e *Extractor) Extract(ctx context.Context, message string, current Profile) Extraction {
	prompt := fmt.Sprintf(`Extract patient information from this message:

%q

Current known profile:
%s

Return JSON with any NEW information found in this message.`, message, current.JSON())

	raw, err := llm.GenerateJSON(ctx, e.client, e.model, extractorSystemPrompt, prompt, 0.3)
	if err != nil {
		e.logger.Warn("profile extraction failed, continuing without updates", "error", err)
		return Extraction{Profile: current}
	}

	var attrs map[string]any
	if err := json.Unmarshal([]byte(llm.ExtractJSONObject(raw)), &attrs); err != nil {
		e.logger.Warn("profile extraction returned malformed JSON", "error", err)
		return Extraction{Profile: current}
	}

	// Nulls are no-ops downstream; drop them here so Updated() reflects
	// whether anything was actually learned.
	for k, v := range attrs {
		if v == nil {
			delete(attrs, k)
			continue
		}
		if list, ok := v.([]any); ok && len(list) == 0 {
			delete(attrs, k)
		}
		if m, ok := v.(map[string]any); ok && len(m) == 0 {
			delete(attrs, k)
		}
	}

	return Extraction{
		Attributes: attrs,
		Profile:    Merge(current, attrs),
		Confidence: extractionConfidence(attrs),
	}
}

func extractionConfidence(attrs map[string]any) float64 {
	found := 0
	for _, f := range keyFields {
		if v, ok := attrs[f]; ok && v != nil {
			found++
		}
	}
	return float64(found) / float64(len(keyFields))
}
