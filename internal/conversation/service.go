package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trialmatch-ai/platform/internal/gaps"
	"github.com/trialmatch-ai/platform/internal/matching"
	"github.com/trialmatch-ai/platform/internal/observability/metrics"
	"github.com/trialmatch-ai/platform/internal/profile"
	"github.com/trialmatch-ai/platform/internal/questions"
	"github.com/trialmatch-ai/platform/internal/trials"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

// TrialRegistry is the trial lookup collaborator boundary.
type TrialRegistry interface {
	Search(ctx context.Context, params trials.SearchParams) ([]trials.ClinicalTrial, error)
}

// TurnRequest is one incoming chat message.
type TurnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// TurnResult is the full outcome of processing one turn.
type TurnResult struct {
	SessionID         string                `json:"session_id"`
	Message           Message               `json:"message"`
	Messages          []Message             `json:"messages"`
	TrialMatches      []matching.TrialMatch `json:"trial_matches"`
	ProfileUpdated    bool                  `json:"patient_profile_updated"`
	CurrentPhase      int                   `json:"current_phase"`
	FollowUpQuestions []string              `json:"follow_up_questions"`
}

// SessionInfo is the introspection view of a session.
type SessionInfo struct {
	SessionID         string          `json:"session_id"`
	Profile           profile.Profile `json:"patient_profile"`
	Phase             int             `json:"phase"`
	MessageCount      int             `json:"message_count"`
	CachedTrialsCount int             `json:"cached_trials_count"`
}

// Config bounds the discovery work done per session.
type Config struct {
	RegistryMaxResults int
	MatchingMaxTrials  int
	TrialStatusFilter  []string
}

func (c Config) withDefaults() Config {
	if c.RegistryMaxResults <= 0 {
		c.RegistryMaxResults = 10
	}
	if c.MatchingMaxTrials <= 0 {
		c.MatchingMaxTrials = 5
	}
	if len(c.TrialStatusFilter) == 0 {
		c.TrialStatusFilter = []string{"RECRUITING"}
	}
	return c
}

// Service is the top-level state machine sequencing extraction, discovery,
// matching, gap analysis and questioning for every turn.
type Service struct {
	store      SessionStore
	extractor  *profile.Extractor
	registry   TrialRegistry
	structurer *matching.Structurer
	evaluator  *matching.Evaluator
	analyzer   *gaps.Analyzer
	planner    *questions.Planner
	composer   *Composer
	cfg        Config
	logger     *logging.Logger
	tracer     trace.Tracer
	metrics    *metrics.ConversationMetrics

	// locks serializes turns per session; two turns for the same session
	// racing on phase counters would corrupt the no-repeat guarantees.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService wires the turn pipeline.
func NewService(
	store SessionStore,
	extractor *profile.Extractor,
	registry TrialRegistry,
	structurer *matching.Structurer,
	evaluator *matching.Evaluator,
	analyzer *gaps.Analyzer,
	planner *questions.Planner,
	composer *Composer,
	cfg Config,
	logger *logging.Logger,
	m *metrics.ConversationMetrics,
) *Service {
	if store == nil {
		panic("conversation: session store cannot be nil")
	}
	if extractor == nil || registry == nil || structurer == nil || evaluator == nil || analyzer == nil || planner == nil || composer == nil {
		panic("conversation: all pipeline collaborators are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:      store,
		extractor:  extractor,
		registry:   registry,
		structurer: structurer,
		evaluator:  evaluator,
		analyzer:   analyzer,
		planner:    planner,
		composer:   composer,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		tracer:     otel.Tracer("trialmatch.internal.conversation"),
		metrics:    m,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// ProcessTurn runs the full pipeline for one chat message. Collaborator
// failures degrade inside the pipeline; the turn still returns a valid
// response. Only a missing message or a broken session store fail the turn.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return TurnResult{}, errors.New("conversation: message required")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := s.tracer.Start(ctx, "conversation.process_turn",
		trace.WithAttributes(attribute.String("trialmatch.session_id", sessionID)))
	defer span.End()
	started := time.Now()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return TurnResult{}, fmt.Errorf("conversation: load session: %w", err)
		}
		state = NewConversationState(sessionID)
	}

	state.AppendMessage(Message{
		ID:        uuid.NewString(),
		Role:      "user",
		Content:   req.Message,
		Timestamp: time.Now().UTC(),
	})

	extraction := s.extractor.Extract(ctx, req.Message, state.Profile)
	state.Profile = extraction.Profile
	profileUpdated := extraction.Updated()

	phaseBefore := state.Phase
	gapList, phaseChanged := s.advance(ctx, state, profileUpdated)
	if phaseChanged {
		s.metrics.ObserveTransition(strconv.Itoa(phaseBefore), strconv.Itoa(state.Phase))
		s.logger.Info("phase transition",
			"session_id", sessionID,
			"from", phaseBefore,
			"to", state.Phase,
		)
	}

	planned := s.plan(ctx, state, gapList)
	for _, q := range planned {
		state.RecordAsked(strings.ToLower(q.Attribute))
	}

	reply := s.composer.Compose(ctx, state, req.Message, state.CachedMatches, phaseChanged, planned)
	assistant := Message{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Content:   reply,
		Timestamp: time.Now().UTC(),
	}
	state.AppendMessage(assistant)

	if err := s.store.Save(ctx, state); err != nil {
		return TurnResult{}, fmt.Errorf("conversation: save session: %w", err)
	}

	followUps := make([]string, 0, len(planned))
	for _, q := range planned {
		followUps = append(followUps, q.Question)
	}

	s.metrics.ObserveTurn(strconv.Itoa(state.Phase), "ok", time.Since(started).Seconds())

	return TurnResult{
		SessionID:         sessionID,
		Message:           assistant,
		Messages:          []Message{assistant},
		TrialMatches:      revealable(state),
		ProfileUpdated:    profileUpdated,
		CurrentPhase:      state.Phase,
		FollowUpQuestions: followUps,
	}, nil
}

// advance runs the phase-specific work and applies at most one forward
// transition per turn. Phases never move backwards. It returns the gap list
// questioning should draw from.
func (s *Service) advance(ctx context.Context, state *ConversationState, profileUpdated bool) ([]gaps.Gap, bool) {
	switch state.Phase {
	case PhaseBaseline:
		if !questions.BaselineComplete(state.Profile, state.AskedBaseline) {
			return nil, false
		}
		state.CachedStructured, state.CachedMatches = s.discoverAndMatch(ctx, state.Profile)
		state.Phase = PhaseTrialDriven
		return s.filteredGaps(ctx, state), true

	case PhaseTrialDriven:
		// Cached trials are authoritative; a profile change only
		// re-evaluates them, never a new registry search.
		if profileUpdated {
			state.CachedMatches = s.rematch(ctx, state)
		}
		gapList := s.filteredGaps(ctx, state)
		if len(state.AskedPhase2) >= phase2QuestionCap || len(gapList) == 0 {
			state.Phase = PhaseGapFilling
			state.RemainingGaps = gapList
			return gapList, true
		}
		return gapList, false

	default:
		if profileUpdated {
			state.CachedMatches = s.rematch(ctx, state)
		}
		// Terminal phase: clarifications come from the frozen gap list,
		// no new analysis runs.
		return filterAnswered(state.RemainingGaps, state.AskedTopics), false
	}
}

func (s *Service) plan(ctx context.Context, state *ConversationState, gapList []gaps.Gap) []questions.Question {
	switch state.Phase {
	case PhaseBaseline:
		return s.planner.PlanBaseline(state.Profile, state.AskedBaseline)
	default:
		return s.planner.PlanFromGaps(ctx, gapList, state.Profile, state.Phase, trialContext(state.CachedMatches), state.AskedTopics)
	}
}

// discoverAndMatch searches the registry, ranks the results and evaluates
// the top trials. A registry failure degrades to an empty cache; the session
// still advances and the reveal simply has nothing to show yet.
func (s *Service) discoverAndMatch(ctx context.Context, p profile.Profile) ([]matching.StructuredTrial, []matching.TrialMatch) {
	ctx, span := s.tracer.Start(ctx, "conversation.discover_trials")
	defer span.End()

	found, err := s.registry.Search(ctx, trials.SearchParams{
		Condition:  p.PrimaryCondition,
		Location:   searchLocation(p),
		Status:     s.cfg.TrialStatusFilter,
		MaxResults: s.cfg.RegistryMaxResults,
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("trial discovery failed, continuing with no matches", "error", err)
		return nil, nil
	}

	ranked := trials.Rank(found, p)
	if len(ranked) > s.cfg.MatchingMaxTrials {
		ranked = ranked[:s.cfg.MatchingMaxTrials]
	}

	structured := make([]matching.StructuredTrial, 0, len(ranked))
	matches := make([]matching.TrialMatch, 0, len(ranked))
	for _, trial := range ranked {
		st := s.structurer.Structure(ctx, trial)
		structured = append(structured, st)
		matches = append(matches, s.evaluator.Match(ctx, st, p))
	}
	return structured, sortByEligibility(matches)
}

// rematch re-evaluates the cached structured criteria against the updated
// profile without touching the registry.
func (s *Service) rematch(ctx context.Context, state *ConversationState) []matching.TrialMatch {
	ctx, span := s.tracer.Start(ctx, "conversation.rematch_trials")
	defer span.End()

	matches := make([]matching.TrialMatch, 0, len(state.CachedStructured))
	for _, st := range state.CachedStructured {
		matches = append(matches, s.evaluator.Match(ctx, st, state.Profile))
	}
	return sortByEligibility(matches)
}

func (s *Service) filteredGaps(ctx context.Context, state *ConversationState) []gaps.Gap {
	analysis := s.analyzer.Analyze(ctx, state.CachedMatches, state.Profile)
	return filterAnswered(analysis.Gaps, state.AskedTopics)
}

func filterAnswered(gapList []gaps.Gap, answered map[string]bool) []gaps.Gap {
	var out []gaps.Gap
	for _, gap := range gapList {
		if answered[strings.ToLower(gap.Attribute)] {
			continue
		}
		out = append(out, gap)
	}
	return out
}

// revealable hides trial verdicts until the reveal phase and never surfaces
// ineligible trials to the patient.
func revealable(state *ConversationState) []matching.TrialMatch {
	if state.Phase < PhaseGapFilling {
		return []matching.TrialMatch{}
	}
	out := make([]matching.TrialMatch, 0, len(state.CachedMatches))
	for _, m := range state.CachedMatches {
		if m.EligibilityStatus == matching.Ineligible {
			continue
		}
		out = append(out, m)
	}
	return out
}

var eligibilityOrder = map[matching.EligibilityStatus]int{
	matching.Eligible:   0,
	matching.Uncertain:  1,
	matching.Ineligible: 2,
}

// sortByEligibility orders eligible before uncertain before ineligible,
// keeping relevance order within each group.
func sortByEligibility(matches []matching.TrialMatch) []matching.TrialMatch {
	ordered := make([]matching.TrialMatch, len(matches))
	copy(ordered, matches)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && eligibilityOrder[ordered[j].EligibilityStatus] < eligibilityOrder[ordered[j-1].EligibilityStatus]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

func searchLocation(p profile.Profile) string {
	var parts []string
	for _, part := range []string{p.City, p.StateProvince, p.Country} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func trialContext(matches []matching.TrialMatch) string {
	if len(matches) == 0 {
		return ""
	}
	limit := len(matches)
	if limit > 3 {
		limit = 3
	}
	contexts := make([]string, 0, limit)
	for _, match := range matches[:limit] {
		contexts = append(contexts, fmt.Sprintf("Trial %s: %s, %d criteria need clarification",
			match.Trial.NCTID, match.EligibilityStatus, len(match.CriteriaUnknown)))
	}
	return strings.Join(contexts, "; ")
}

// Session returns the introspection view of a stored session. It takes the
// same per-session lock as ProcessTurn; the memory store hands back live
// state and an unserialized read would race with an in-flight turn.
func (s *Service) Session(ctx context.Context, sessionID string) (SessionInfo, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{
		SessionID:         state.SessionID,
		Profile:           state.Profile,
		Phase:             state.Phase,
		MessageCount:      len(state.Messages),
		CachedTrialsCount: len(state.CachedMatches),
	}, nil
}

// DeleteSession removes a session with its cached trials and planner
// bookkeeping.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	err := s.store.Delete(ctx, sessionID)
	lock.Unlock()
	if err != nil {
		return err
	}
	s.locksMu.Lock()
	delete(s.locks, sessionID)
	s.locksMu.Unlock()
	return nil
}
