package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/matching"
	"github.com/trialmatch-ai/platform/internal/profile"
	"github.com/trialmatch-ai/platform/internal/questions"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

func TestComposeUsesModelReply(t *testing.T) {
	var gotSystem string
	client := &fakeLLM{fn: func(req llm.Request) (llm.Response, error) {
		if len(req.System) > 0 {
			gotSystem = req.System[0]
		}
		return llm.Response{Text: " Happy to help! "}, nil
	}}
	c := NewComposer(client, "m", logging.Default())

	state := NewConversationState("s1")
	got := c.Compose(context.Background(), state, "hi", nil, false, nil)

	if got != "Happy to help!" {
		t.Errorf("reply = %q", got)
	}
	if !strings.Contains(gotSystem, "baseline screening stage") {
		t.Errorf("system prompt missing phase instruction: %q", gotSystem)
	}
}

func TestComposeFallbacksByPhase(t *testing.T) {
	down := &fakeLLM{fn: func(llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("provider down")
	}}
	c := NewComposer(down, "m", logging.Default())

	state := NewConversationState("s1")
	got := c.Compose(context.Background(), state, "hi", nil, false, nil)
	if !strings.Contains(got, "medical condition") {
		t.Errorf("baseline fallback without condition = %q", got)
	}

	state.Profile = profile.Profile{PrimaryCondition: "melanoma"}
	got = c.Compose(context.Background(), state, "hi", nil, false, nil)
	if !strings.Contains(got, "your age") {
		t.Errorf("baseline fallback without age = %q", got)
	}

	state.Phase = PhaseTrialDriven
	matches := []matching.TrialMatch{{}, {}}
	got = c.Compose(context.Background(), state, "hi", matches, false, nil)
	if !strings.Contains(got, "2 potential trial matches") {
		t.Errorf("trial-driven fallback = %q", got)
	}

	state.Phase = PhaseGapFilling
	got = c.Compose(context.Background(), state, "hi", nil, false, nil)
	if !strings.Contains(got, "finalize") {
		t.Errorf("reveal fallback = %q", got)
	}
}

func TestSuggestedFollowUp(t *testing.T) {
	planned := []questions.Question{
		{Attribute: "ecog_status", Question: "How active are you?"},
		{Attribute: "smoking_status", Question: "Do you smoke?"},
	}

	state := NewConversationState("s1")
	if got := suggestedFollowUp(state, planned, nil); got != "How active are you?" {
		t.Errorf("condition unknown, lead question only: %q", got)
	}

	state.Profile = profile.Profile{PrimaryCondition: "melanoma"}
	got := suggestedFollowUp(state, planned, nil)
	if !strings.HasPrefix(got, "Thank you for that information.") || !strings.Contains(got, "Do you smoke?") {
		t.Errorf("baseline follow-up = %q", got)
	}

	state.Phase = PhaseTrialDriven
	got = suggestedFollowUp(state, planned, nil)
	if !strings.Contains(got, "how active are you?") {
		t.Errorf("trial-driven follow-up should lowercase the question lead: %q", got)
	}

	if suggestedFollowUp(state, nil, nil) != "" {
		t.Error("no planned questions means no suggestion")
	}
}
