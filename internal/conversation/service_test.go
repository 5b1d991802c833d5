package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/trialmatch-ai/platform/internal/gaps"
	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/matching"
	"github.com/trialmatch-ai/platform/internal/profile"
	"github.com/trialmatch-ai/platform/internal/questions"
	"github.com/trialmatch-ai/platform/internal/trials"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

type fakeLLM struct {
	fn func(req llm.Request) (llm.Response, error)
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return f.fn(req)
}

func textLLM(text string) *fakeLLM {
	return &fakeLLM{fn: func(llm.Request) (llm.Response, error) {
		return llm.Response{Text: text}, nil
	}}
}

type fakeRegistry struct {
	trials []trials.ClinicalTrial
	err    error
	calls  int
}

func (f *fakeRegistry) Search(ctx context.Context, params trials.SearchParams) ([]trials.ClinicalTrial, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.trials, nil
}

// pipeline bundles a service with the stubs driving each collaborator.
type pipeline struct {
	service   *Service
	store     *MemoryStore
	registry  *fakeRegistry
	extractor *fakeLLM
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := logging.Default()

	extractorLLM := &fakeLLM{fn: func(llm.Request) (llm.Response, error) {
		return llm.Response{Text: "{}"}, nil
	}}
	structurerLLM := textLLM(`[
		{"criterion_type": "inclusion", "original_text": "Age 18 years or older", "attribute": "age", "operator": ">=", "value": "18"},
		{"criterion_type": "inclusion", "original_text": "ECOG performance status 0-1", "attribute": "ecog", "operator": "<=", "value": "1"}
	]`)
	evaluatorLLM := textLLM(`{"status": "unknown", "explanation": "ECOG not reported", "missing_attribute": "ecog_status"}`)
	analyzerLLM := textLLM(`[
		{"attribute": "ecog_status", "reason": "Trials require ECOG 0-1", "priority": "high", "question_hint": "How active are you day to day?"}
	]`)
	plannerLLM := textLLM(`[
		{"attribute": "ecog_status", "question": "How active are you on a typical day?", "context": "Trials use an activity scale."}
	]`)
	composerLLM := textLLM("Thanks for sharing that.")

	store := NewMemoryStore()
	registry := &fakeRegistry{trials: []trials.ClinicalTrial{{
		NCTID:               "NCT100",
		Title:               "Trial A",
		Conditions:          []string{"Lung Cancer"},
		EligibilityCriteria: "Inclusion:\n* Age 18+\n* ECOG 0-1",
		MinimumAge:          "18 Years",
		MaximumAge:          "99 Years",
		Sex:                 "ALL",
	}}}

	svc := NewService(
		store,
		profile.NewExtractor(extractorLLM, "m", logger),
		registry,
		matching.NewStructurer(structurerLLM, "m", logger),
		matching.NewEvaluator(evaluatorLLM, "m", logger),
		gaps.NewAnalyzer(analyzerLLM, "m", logger),
		questions.NewPlanner(plannerLLM, "m", logger),
		NewComposer(composerLLM, "m", logger),
		Config{},
		logger,
		nil,
	)
	return &pipeline{service: svc, store: store, registry: registry, extractor: extractorLLM}
}

func (p *pipeline) extractNext(attrs string) {
	p.extractor.fn = func(llm.Request) (llm.Response, error) {
		return llm.Response{Text: attrs}, nil
	}
}

func completedBaseline(sessionID string) *ConversationState {
	age := 55
	travel := true
	state := NewConversationState(sessionID)
	state.Profile = profile.Profile{
		Age:              &age,
		BiologicalSex:    profile.SexMale,
		PrimaryCondition: "lung cancer",
		Country:          "USA",
		StateProvince:    "Texas",
		DiagnosisDate:    "2024-06",
		WillingToTravel:  &travel,
	}
	state.AskedBaseline["current_medications"] = true
	state.AskedBaseline["prior_treatments"] = true
	state.AskedTopics["current_medications"] = true
	state.AskedTopics["prior_treatments"] = true
	return state
}

func TestTurnPopulatesProfileAndStaysInBaseline(t *testing.T) {
	p := newPipeline(t)
	p.extractNext(`{
		"primary_condition": "lung cancer",
		"condition_stage": "stage 3",
		"age": 55,
		"biological_sex": "male",
		"country": "USA",
		"state_province": "Texas"
	}`)

	out, err := p.service.ProcessTurn(context.Background(), TurnRequest{
		Message: "I have stage 3 lung cancer, I'm 55, male, from Texas, USA",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if out.CurrentPhase != PhaseBaseline {
		t.Errorf("diagnosis date and travel preference missing, phase = %d", out.CurrentPhase)
	}
	if !out.ProfileUpdated {
		t.Error("expected profile update")
	}
	if len(out.TrialMatches) != 0 {
		t.Error("no trial verdicts before the reveal phase")
	}
	if p.registry.calls != 0 {
		t.Error("registry must not be queried in the baseline phase")
	}

	state, err := p.store.Load(context.Background(), out.SessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Profile.PrimaryCondition != "lung cancer" || state.Profile.ConditionStage != "stage 3" {
		t.Errorf("condition not merged: %+v", state.Profile)
	}
	if state.Profile.Age == nil || *state.Profile.Age != 55 {
		t.Errorf("age not merged: %v", state.Profile.Age)
	}
	if state.Profile.BiologicalSex != profile.SexMale {
		t.Errorf("sex not merged: %q", state.Profile.BiologicalSex)
	}
	if state.Profile.Country != "USA" || state.Profile.StateProvince != "Texas" {
		t.Errorf("location not merged: %+v", state.Profile)
	}
	// The two remaining baseline value attributes should be asked next.
	if len(out.FollowUpQuestions) != 2 {
		t.Errorf("follow-ups = %v", out.FollowUpQuestions)
	}
	if !state.AskedBaseline["diagnosis_date"] || !state.AskedBaseline["willing_to_travel"] {
		t.Errorf("asked bookkeeping = %v", state.AskedBaseline)
	}
}

func TestBaselineCompletionTriggersDiscoveryAndPhase2(t *testing.T) {
	p := newPipeline(t)
	state := completedBaseline("s-phase2")
	if err := p.store.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	out, err := p.service.ProcessTurn(context.Background(), TurnRequest{
		SessionID: "s-phase2",
		Message:   "Anything else you need?",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if out.CurrentPhase != PhaseTrialDriven {
		t.Fatalf("phase = %d, want 2", out.CurrentPhase)
	}
	if p.registry.calls != 1 {
		t.Errorf("registry calls = %d", p.registry.calls)
	}
	if len(out.TrialMatches) != 0 {
		t.Error("verdicts stay hidden until the reveal phase")
	}

	stored, _ := p.store.Load(context.Background(), "s-phase2")
	if len(stored.CachedMatches) != 1 || len(stored.CachedStructured) != 1 {
		t.Fatalf("cache = %d matches / %d structured", len(stored.CachedMatches), len(stored.CachedStructured))
	}
	if stored.CachedMatches[0].EligibilityStatus != matching.Uncertain {
		t.Errorf("unresolved ECOG criterion should leave the trial uncertain, got %q", stored.CachedMatches[0].EligibilityStatus)
	}
	// The gap question for ECOG was asked and recorded as a phase-2 topic.
	if !stored.AskedPhase2["ecog_status"] || !stored.AskedTopics["ecog_status"] {
		t.Errorf("asked bookkeeping = %+v", stored)
	}
}

func TestPhase2NeverRequeriesRegistry(t *testing.T) {
	p := newPipeline(t)
	state := completedBaseline("s-cache")
	state.Phase = PhaseTrialDriven
	state.CachedStructured = []matching.StructuredTrial{{
		Trial: trials.ClinicalTrial{NCTID: "NCT100"},
		InclusionCriteria: []matching.StructuredCriterion{
			{CriterionID: "NCT100_C1", CriterionType: matching.CriterionInclusion, Attribute: "age", Operator: ">=", Value: "18", OriginalText: "Adults"},
		},
	}}
	if err := p.store.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	p.extractNext(`{"ecog_status": 1}`)
	if _, err := p.service.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-cache", Message: "My ECOG is 1"}); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if p.registry.calls != 0 {
		t.Errorf("phase 2 re-queried the registry %d times", p.registry.calls)
	}

	stored, _ := p.store.Load(context.Background(), "s-cache")
	if len(stored.CachedMatches) != 1 {
		t.Fatalf("cached matches = %d", len(stored.CachedMatches))
	}
	if stored.CachedMatches[0].EligibilityStatus != matching.Eligible {
		t.Errorf("re-evaluation after profile change should resolve the trial, got %q", stored.CachedMatches[0].EligibilityStatus)
	}
}

func TestPhaseNeverDecreasesAndCapMovesToPhase3(t *testing.T) {
	p := newPipeline(t)
	state := completedBaseline("s-cap")
	state.Phase = PhaseTrialDriven
	state.CachedMatches = []matching.TrialMatch{
		{Trial: trials.ClinicalTrial{NCTID: "NCT100"}, EligibilityStatus: matching.Eligible},
		{Trial: trials.ClinicalTrial{NCTID: "NCT200"}, EligibilityStatus: matching.Ineligible},
		{
			Trial:             trials.ClinicalTrial{NCTID: "NCT300"},
			EligibilityStatus: matching.Uncertain,
			CriteriaUnknown: []matching.StructuredCriterion{
				{CriterionID: "NCT300_C1", OriginalText: "ECOG 0-1", CriterionType: matching.CriterionInclusion},
			},
		},
	}
	for _, attr := range []string{"a", "b", "c", "d", "e"} {
		state.AskedPhase2[attr] = true
		state.AskedTopics[attr] = true
	}
	if err := p.store.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	out, err := p.service.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-cap", Message: "ok"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if out.CurrentPhase != PhaseGapFilling {
		t.Fatalf("five distinct questions asked, phase = %d, want 3", out.CurrentPhase)
	}
	// Reveal: eligible and uncertain only, never ineligible.
	if len(out.TrialMatches) != 2 {
		t.Fatalf("revealed = %d trials", len(out.TrialMatches))
	}
	for _, m := range out.TrialMatches {
		if m.EligibilityStatus == matching.Ineligible {
			t.Errorf("ineligible trial revealed: %s", m.Trial.NCTID)
		}
	}

	// Later turns must stay in phase 3.
	out, err = p.service.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-cap", Message: "thanks"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if out.CurrentPhase != PhaseGapFilling {
		t.Errorf("phase decreased to %d", out.CurrentPhase)
	}
}

func TestNoAttributeAskedTwice(t *testing.T) {
	p := newPipeline(t)
	state := completedBaseline("s-norepeat")
	state.Phase = PhaseTrialDriven
	state.CachedMatches = []matching.TrialMatch{{
		Trial:             trials.ClinicalTrial{NCTID: "NCT100"},
		EligibilityStatus: matching.Uncertain,
		CriteriaUnknown: []matching.StructuredCriterion{
			{CriterionID: "NCT100_C2", OriginalText: "ECOG performance status 0-1", CriterionType: matching.CriterionInclusion},
		},
	}}
	if err := p.store.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	asked := map[string]int{}
	for i := 0; i < 4; i++ {
		out, err := p.service.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-norepeat", Message: fmt.Sprintf("turn %d", i)})
		if err != nil {
			t.Fatalf("ProcessTurn: %v", err)
		}
		for _, q := range out.FollowUpQuestions {
			asked[q]++
		}
	}
	for q, n := range asked {
		if n > 1 {
			t.Errorf("question %q asked %d times", q, n)
		}
	}
}

func TestCollaboratorFailuresStillCompleteTheTurn(t *testing.T) {
	p := newPipeline(t)
	// Every model call fails and the registry is down.
	failing := func(llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("provider down")
	}
	p.extractor.fn = failing
	p.registry.err = errors.New("registry unreachable")

	state := completedBaseline("s-degrade")
	if err := p.store.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	out, err := p.service.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-degrade", Message: "hello"})
	if err != nil {
		t.Fatalf("degraded turn must still complete: %v", err)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		t.Error("degraded turn must still produce a reply")
	}
	if out.CurrentPhase != PhaseTrialDriven {
		t.Errorf("baseline was complete, phase = %d", out.CurrentPhase)
	}
}

func TestProcessTurnRequiresMessage(t *testing.T) {
	p := newPipeline(t)
	if _, err := p.service.ProcessTurn(context.Background(), TurnRequest{Message: "  "}); err == nil {
		t.Error("expected error for empty message")
	}
}

func TestSessionIntrospectionSerializesWithTurns(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	if err := p.store.Save(ctx, completedBaseline("s-race")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := p.service.ProcessTurn(ctx, TurnRequest{SessionID: "s-race", Message: fmt.Sprintf("turn %d", i)}); err != nil {
				t.Errorf("ProcessTurn: %v", err)
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.service.Session(ctx, "s-race"); err != nil && !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("Session: %v", err)
			}
		}()
	}
	wg.Wait()

	info, err := p.service.Session(ctx, "s-race")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	// Each turn appends one user and one assistant message.
	if info.MessageCount != 8 {
		t.Errorf("MessageCount = %d, want 8", info.MessageCount)
	}
}

func TestSessionIntrospectionAndDelete(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	if _, err := p.service.Session(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	state := completedBaseline("s-info")
	state.AppendMessage(Message{ID: "1", Role: "user", Content: "hi"})
	state.CachedMatches = []matching.TrialMatch{{Trial: trials.ClinicalTrial{NCTID: "NCT1"}}}
	if err := p.store.Save(ctx, state); err != nil {
		t.Fatal(err)
	}

	info, err := p.service.Session(ctx, "s-info")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if info.MessageCount != 1 || info.CachedTrialsCount != 1 || info.Phase != PhaseBaseline {
		t.Errorf("info = %+v", info)
	}

	if err := p.service.DeleteSession(ctx, "s-info"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := p.service.Session(ctx, "s-info"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected deletion, got %v", err)
	}
}
