// Package questions turns missing patient information into the next
// conversational questions, phased so baseline screening comes before
// trial-specific probing.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/trialmatch-ai/platform/internal/gaps"
	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/profile"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

// Question is one question to put to the patient, with the context the
// composer uses to phrase it.
type Question struct {
	Attribute    string `json:"attribute"`
	Question     string `json:"question"`
	Context      string `json:"context,omitempty"`
	Phase        int    `json:"phase"`
	IsSensitive  bool   `json:"is_sensitive,omitempty"`
	OptionalNote string `json:"optional_note,omitempty"`
}

type baselineEntry struct {
	question string
	context  string
	priority int
}

// baselineQuestions is the fixed screening table. Priorities decide ask
// order; the condition always leads because nothing else can be searched
// without it.
var baselineQuestions = map[string]baselineEntry{
	"primary_condition": {
		question: "What medical condition are you seeking treatment for?",
		context:  "This is the main factor in finding relevant trials.",
		priority: 0,
	},
	"age": {
		question: "Could you tell me your age?",
		context:  "This helps us find trials with matching age requirements.",
		priority: 1,
	},
	"biological_sex": {
		question: "What is your biological sex?",
		context:  "Some trials are specific to certain biological sexes.",
		priority: 2,
	},
	"country": {
		question: "What country are you located in?",
		context:  "This helps us find trials in your area.",
		priority: 3,
	},
	"state_province": {
		question: "What state or province are you in?",
		context:  "This helps narrow down nearby trial locations.",
		priority: 4,
	},
	"diagnosis_date": {
		question: "When were you first diagnosed?",
		context:  "Some trials require a recent or established diagnosis.",
		priority: 5,
	},
	"willing_to_travel": {
		question: "Would you be willing to travel for treatment?",
		context:  "This broadens or narrows the trial locations we consider.",
		priority: 6,
	},
	"current_medications": {
		question: "Are you currently taking any medications?",
		context:  "Some trials restrict participation based on current medications.",
		priority: 7,
	},
	"prior_treatments": {
		question: "Have you received any treatments for your condition so far?",
		context:  "Prior treatments often determine which trials are open to you.",
		priority: 8,
	},
}

// askedSuffices lists baseline attributes where asking the question is
// enough even if the answer is "none".
var askedSuffices = map[string]bool{
	"current_medications": true,
	"prior_treatments":    true,
}

// sensitiveTopics need careful phrasing and go after regular questions.
var sensitiveTopics = []string{
	"pregnancy",
	"smoking",
	"tobacco",
	"alcohol",
	"mental_health",
	"hiv",
	"substance_use",
}

const maxQuestionsPerTurn = 2

const plannerSystemPrompt = `You are a compassionate clinical trial assistant helping patients find suitable trials.

Your role is to generate follow-up questions that:
1. Are natural and conversational, not clinical or robotic
2. Are empathetic and non-judgmental
3. Explain why the information is needed (transparency)
4. Avoid medical jargon when possible
5. Never ask about multiple unrelated topics in one question
6. Respect patient privacy and comfort

For sensitive topics (pregnancy, substance use, mental health), be especially gentle and explain that:
- The information is optional
- It's only used to find appropriate trials
- Their privacy is protected

Always prioritize the patient's comfort while gathering necessary information.`

// Planner decides what to ask next in each conversation phase.
type Planner struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewPlanner creates a question planner.
func NewPlanner(client llm.Client, model string, logger *logging.Logger) *Planner {
	if client == nil {
		panic("questions: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Planner{client: client, model: model, logger: logger}
}

// PlanBaseline returns the next baseline screening questions in priority
// order, at most two per turn. Attributes already answered or already asked
// are never asked again.
func (p *Planner) PlanBaseline(patient profile.Profile, asked map[string]bool) []Question {
	type pending struct {
		attr  string
		entry baselineEntry
	}
	var missing []pending
	for attr, entry := range baselineQuestions {
		if asked[attr] {
			continue
		}
		if !patient.FieldEmpty(attr) {
			continue
		}
		missing = append(missing, pending{attr: attr, entry: entry})
	}
	sort.Slice(missing, func(i, j int) bool {
		return missing[i].entry.priority < missing[j].entry.priority
	})

	if len(missing) > maxQuestionsPerTurn {
		missing = missing[:maxQuestionsPerTurn]
	}
	out := make([]Question, 0, len(missing))
	for _, m := range missing {
		out = append(out, Question{
			Attribute: m.attr,
			Question:  m.entry.question,
			Context:   m.entry.context,
			Phase:     1,
		})
	}
	return out
}

// BaselineComplete reports whether the screening phase has everything it
// needs. Value attributes need an answer; medication and treatment history
// only need to have been asked.
func BaselineComplete(patient profile.Profile, asked map[string]bool) bool {
	for attr := range baselineQuestions {
		if !patient.FieldEmpty(attr) {
			continue
		}
		if askedSuffices[attr] && asked[attr] {
			continue
		}
		return false
	}
	return true
}

// PlanFromGaps converts information gaps into questions for phases two and
// three. Sensitive topics are pushed behind regular ones, attributes already
// asked are dropped, and a model failure falls back to templated questions
// built from the gap hints.
func (p *Planner) PlanFromGaps(ctx context.Context, gapList []gaps.Gap, patient profile.Profile, phase int, trialContext string, asked map[string]bool) []Question {
	var regular, sensitive []gaps.Gap
	for _, gap := range gapList {
		attr := strings.ToLower(gap.Attribute)
		if attr == "" || asked[attr] {
			continue
		}
		if isSensitive(attr) {
			sensitive = append(sensitive, gap)
		} else {
			regular = append(regular, gap)
		}
	}
	ordered := append(regular, sensitive...)
	if len(ordered) == 0 {
		return nil
	}

	questions := p.modelQuestions(ctx, ordered, patient, phase, trialContext)
	if len(questions) == 0 {
		questions = fallbackQuestions(ordered, phase)
	}

	// Drop anything the model asked about that we already covered.
	filtered := questions[:0]
	for _, q := range questions {
		if asked[strings.ToLower(q.Attribute)] {
			continue
		}
		filtered = append(filtered, q)
	}
	if len(filtered) > maxQuestionsPerTurn {
		filtered = filtered[:maxQuestionsPerTurn]
	}
	return filtered
}

func (p *Planner) modelQuestions(ctx context.Context, ordered []gaps.Gap, patient profile.Profile, phase int, trialContext string) []Question {
	sample := ordered
	if len(sample) > 5 {
		sample = sample[:5]
	}
	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return nil
	}

	condition := patient.PrimaryCondition
	if condition == "" {
		condition = "Not yet provided"
	}
	age := "Not yet provided"
	if patient.Age != nil {
		age = fmt.Sprintf("%d", *patient.Age)
	}

	var extra strings.Builder
	if trialContext != "" {
		extra.WriteString("TRIAL CONTEXT: " + trialContext + "\n\n")
	}
	if phase >= 3 {
		extra.WriteString("These are CLARIFICATION questions - be extra gentle and explain why we're asking again.\n\n")
	}

	prompt := fmt.Sprintf(`Convert these information gaps into natural, empathetic patient questions.

INFORMATION GAPS:
%s

CURRENT PATIENT INFO:
- Condition: %s
- Age: %s

%sFor each gap, generate a question object with:
1. attribute: The attribute being asked about
2. question: A natural, conversational question
3. context: Brief explanation of why this matters (1 sentence)
4. is_sensitive: true if this is a sensitive topic
5. optional_note: If sensitive, a note that answering is optional

IMPORTANT:
- Don't be robotic or clinical
- Show empathy
- Keep questions short and clear
- For sensitive topics, add reassurance

Respond with a JSON array:
[
  {
    "attribute": "string",
    "question": "string",
    "context": "string",
    "is_sensitive": boolean,
    "optional_note": "string or null"
  }
]`, sampleJSON, condition, age, extra.String())

	raw, err := llm.GenerateJSON(ctx, p.client, p.model, plannerSystemPrompt, prompt, 0.5)
	if err != nil {
		p.logger.Warn("question generation failed, using templated fallback", "error", err)
		return nil
	}
	var out []Question
	if err := json.Unmarshal([]byte(llm.ExtractJSONArray(raw)), &out); err != nil {
		p.logger.Warn("question generation returned malformed JSON, using templated fallback", "error", err)
		return nil
	}
	for i := range out {
		out[i].Phase = phase
	}
	return out
}

// fallbackQuestions builds questions directly from the gap hints when the
// model is unavailable.
func fallbackQuestions(ordered []gaps.Gap, phase int) []Question {
	if len(ordered) > 3 {
		ordered = ordered[:3]
	}
	var out []Question
	for _, gap := range ordered {
		hint := gap.QuestionHint
		if hint == "" {
			hint = gap.Reason
		}
		if hint == "" {
			continue
		}
		text := hint
		if !strings.Contains(hint, "?") {
			attr := gap.Attribute
			if attr == "" {
				attr = "medical history"
			}
			text = fmt.Sprintf("Could you tell me about your %s?", strings.ReplaceAll(attr, "_", " "))
		}
		reason := gap.Reason
		if reason == "" {
			reason = "This helps us evaluate trial eligibility."
		}
		out = append(out, Question{
			Attribute: gap.Attribute,
			Question:  text,
			Context:   reason,
			Phase:     phase,
		})
	}
	return out
}

func isSensitive(attr string) bool {
	for _, topic := range sensitiveTopics {
		if strings.Contains(attr, topic) {
			return true
		}
	}
	return false
}
