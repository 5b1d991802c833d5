package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/matching"
	"github.com/trialmatch-ai/platform/internal/questions"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

// Composer turns the pipeline's outcome into the assistant's reply. The
// model phrases it; when the model is down, per-phase templates keep the
// turn alive.
type Composer struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewComposer creates a response composer.
func NewComposer(client llm.Client, model string, logger *logging.Logger) *Composer {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Composer{client: client, model: model, logger: logger}
}

// Compose writes the assistant reply for this turn.
func (c *Composer) Compose(ctx context.Context, state *ConversationState, userMessage string, matches []matching.TrialMatch, phaseChanged bool, planned []questions.Question) string {
	suggested := suggestedFollowUp(state, planned, matches)

	systemPrompt := c.systemPrompt(state, matches, suggested)
	prompt := c.turnPrompt(state, userMessage, matches, phaseChanged, suggested)

	resp, err := c.client.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      []string{systemPrompt},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		if err != nil {
			c.logger.Warn("response composition failed, using template", "session_id", state.SessionID, "error", err)
		}
		return c.fallback(state, matches)
	}
	return strings.TrimSpace(resp.Text)
}

func (c *Composer) systemPrompt(state *ConversationState, matches []matching.TrialMatch, suggested string) string {
	var phaseInstruction string
	switch state.Phase {
	case PhaseBaseline:
		phaseInstruction = `You are in the baseline screening stage.
Your goal is to gather basic information: medical condition, age, biological sex, and location.
Ask naturally and conversationally. Don't overwhelm with too many questions at once.`
	case PhaseTrialDriven:
		phaseInstruction = fmt.Sprintf(`You are in the trial-driven questioning stage.
You have found %d potential trial matches.
Now ask questions specifically related to trial eligibility criteria.
Be specific about why you're asking - reference that trials have certain requirements.`, len(matches))
	default:
		phaseInstruction = `You are in the final clarification stage.
Focus on resolving any remaining uncertainties in eligibility.
Be gentle and explain that these final details will help finalize the recommendations.`
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are a friendly and professional clinical trial assistant.

%s

Guidelines:
- Be empathetic and conversational
- Avoid medical jargon
- Never provide medical advice
- Keep responses concise (2-4 sentences max)
- If you have questions to ask, incorporate them naturally

Current patient profile:
%s
`, phaseInstruction, state.Profile.JSON())
	if suggested != "" {
		fmt.Fprintf(&b, "\nSuggested follow-up: %s", suggested)
	}
	return b.String()
}

func (c *Composer) turnPrompt(state *ConversationState, userMessage string, matches []matching.TrialMatch, phaseChanged bool, suggested string) string {
	var context strings.Builder
	for _, msg := range state.RecentTranscript(6) {
		fmt.Fprintf(&context, "%s: %s\n", msg.Role, msg.Content)
	}

	if phaseChanged && state.Phase == PhaseTrialDriven {
		ask := suggested
		if ask == "" {
			ask = "Ask about their medical history details"
		}
		return fmt.Sprintf(`The patient just provided enough information to search for trials.
You found %d potential matches.

Recent conversation:
%s
Patient's message: %s

Respond by:
1. Acknowledging their information
2. Letting them know you found some potential trials
3. Asking the first trial-specific question (if any): %s

Keep it warm and encouraging.`, len(matches), context.String(), userMessage, ask)
	}

	if state.Phase == PhaseBaseline && state.Profile.PrimaryCondition == "" {
		ask := suggested
		if ask == "" {
			ask = "age or location"
		}
		return fmt.Sprintf(`This is the start of the conversation or we still need to know their condition.

Recent conversation:
%s
Patient's message: %s

Respond warmly and ask about their medical condition if they haven't shared it.
If they did share it, acknowledge and ask a follow-up from: %s`, context.String(), userMessage, ask)
	}

	var trialInfo string
	if len(matches) > 0 {
		eligible, uncertain := 0, 0
		for _, m := range matches {
			switch m.EligibilityStatus {
			case matching.Eligible:
				eligible++
			case matching.Uncertain:
				uncertain++
			}
		}
		trialInfo = fmt.Sprintf("\nCurrent matches: %d eligible, %d uncertain eligibility.", eligible, uncertain)
	}
	instruction := "Respond helpfully to their message."
	if suggested != "" {
		instruction = "Incorporate this question: " + suggested
	}
	return fmt.Sprintf(`Continue the conversation naturally.
%s

Recent conversation:
%s
Patient's message: %s

%s

Keep your response concise and natural.`, trialInfo, context.String(), userMessage, instruction)
}

// suggestedFollowUp builds the deterministic follow-up line the model is
// nudged toward, from the planned questions.
func suggestedFollowUp(state *ConversationState, planned []questions.Question, matches []matching.TrialMatch) string {
	if len(planned) == 0 {
		return ""
	}
	switch state.Phase {
	case PhaseBaseline:
		if state.Profile.PrimaryCondition == "" {
			return planned[0].Question
		}
		texts := make([]string, 0, 2)
		for i, q := range planned {
			if i == 2 {
				break
			}
			texts = append(texts, q.Question)
		}
		return "Thank you for that information. " + strings.Join(texts, " ")
	case PhaseTrialDriven:
		return "I've found some potential trial matches. To better evaluate your eligibility, " + lowerFirst(planned[0].Question)
	default:
		return "Just a few more details to clarify: " + planned[0].Question
	}
}

func (c *Composer) fallback(state *ConversationState, matches []matching.TrialMatch) string {
	switch state.Phase {
	case PhaseBaseline:
		if state.Profile.PrimaryCondition == "" {
			return "Thank you for reaching out. I'm here to help you find clinical trials. Could you tell me about the medical condition you're seeking treatment for?"
		}
		if state.Profile.Age == nil {
			return "That's helpful, thank you. May I ask your age? This helps us find trials with matching eligibility criteria."
		}
		return "Thanks for sharing. What country are you located in? This will help us find trials near you."
	case PhaseTrialDriven:
		return fmt.Sprintf("I've found %d potential trial matches for you. To better evaluate your eligibility, could you tell me more about your medical history and any current medications?", len(matches))
	default:
		return "Thank you for that information. Just a few more details will help me finalize the best trial recommendations for you."
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
