package conversation

import (
	"time"

	"github.com/trialmatch-ai/platform/internal/gaps"
	"github.com/trialmatch-ai/platform/internal/matching"
	"github.com/trialmatch-ai/platform/internal/profile"
)

// Conversation phases. Transitions only ever move forward.
const (
	PhaseBaseline    = 1
	PhaseTrialDriven = 2
	PhaseGapFilling  = 3
)

// phase2QuestionCap is the number of distinct trial-driven questions after
// which the conversation moves on to the reveal phase.
const phase2QuestionCap = 5

// Message is a single conversational turn.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is everything the pipeline knows about one session. All
// per-session bookkeeping lives here, never inside the services, so state
// survives process restarts when a persistent store is configured.
type ConversationState struct {
	SessionID string          `json:"session_id"`
	Profile   profile.Profile `json:"patient_profile"`
	Phase     int             `json:"phase"`
	Messages  []Message       `json:"messages"`

	// AskedBaseline are phase-1 attributes already asked, a permanent
	// exclusion for the session.
	AskedBaseline map[string]bool `json:"asked_baseline,omitempty"`
	// AskedPhase2 are distinct gap attributes asked during phase 2; its
	// size drives the phase 2 to 3 transition.
	AskedPhase2 map[string]bool `json:"asked_phase2,omitempty"`
	// AskedTopics is the cross-phase set; no attribute in it is ever
	// asked again, in any phase.
	AskedTopics map[string]bool `json:"asked_topics,omitempty"`

	// CachedStructured are the parsed criteria built on entering phase 2.
	// The registry is never queried again for this session; profile changes
	// only re-evaluate this cached set.
	CachedStructured []matching.StructuredTrial `json:"cached_structured,omitempty"`
	// CachedMatches is the evaluated trial set for the cached criteria.
	CachedMatches []matching.TrialMatch `json:"cached_matches,omitempty"`
	// RemainingGaps is the gap list frozen on entering phase 3; the
	// reveal phase asks clarifications from it without recomputing.
	RemainingGaps []gaps.Gap `json:"remaining_gaps,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState starts a fresh session in the baseline phase.
func NewConversationState(sessionID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		SessionID:     sessionID,
		Phase:         PhaseBaseline,
		AskedBaseline: make(map[string]bool),
		AskedPhase2:   make(map[string]bool),
		AskedTopics:   make(map[string]bool),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AppendMessage records a turn in the session transcript.
func (s *ConversationState) AppendMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
}

// RecordAsked marks an attribute as asked, both in the phase-scoped tracker
// and in the global exclusion set.
func (s *ConversationState) RecordAsked(attribute string) {
	if attribute == "" {
		return
	}
	if s.AskedTopics == nil {
		s.AskedTopics = make(map[string]bool)
	}
	s.AskedTopics[attribute] = true
	switch s.Phase {
	case PhaseBaseline:
		if s.AskedBaseline == nil {
			s.AskedBaseline = make(map[string]bool)
		}
		s.AskedBaseline[attribute] = true
	case PhaseTrialDriven:
		if s.AskedPhase2 == nil {
			s.AskedPhase2 = make(map[string]bool)
		}
		s.AskedPhase2[attribute] = true
	}
}

// RecentTranscript renders the last n messages as role-prefixed lines for
// prompt context.
func (s *ConversationState) RecentTranscript(n int) []Message {
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}
