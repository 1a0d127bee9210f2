package engagement

import (
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/engage/internal/content"
)

// RatingField selects which rating the feedback payload carries.
type RatingField string

const (
	RatingHelpful    RatingField = "helpful_rating"
	RatingEngagement RatingField = "engagement_rating"
)

// Profile is the per-surface configuration of the engagement engine. The
// surfaces share one engine and differ only in these values.
type Profile struct {
	Kind content.Kind

	// PromptThreshold is the completion percent at which the feedback
	// prompt appears.
	PromptThreshold float64

	// Weighted enables the section/response blend for surfaces with
	// reflection prompts.
	Weighted bool
	Weights  Weights

	// ResponseSections marks which section types carry a reflection prompt.
	ResponseSections []content.SectionType

	RatingField RatingField

	// Teardown fallback requirements.
	FinalizeMinActive  time.Duration
	FinalizeMinPercent float64

	// StaleAfter is the clock checkpoint window.
	StaleAfter time.Duration
}

const (
	defaultPromptThreshold    = 60
	reflectionPromptThreshold = 70
	defaultFinalizeMinActive  = 30 * time.Second
	defaultFinalizeMinPercent = 25
)

func baseProfile(kind content.Kind) Profile {
	return Profile{
		Kind:               kind,
		PromptThreshold:    defaultPromptThreshold,
		Weights:            DefaultWeights,
		RatingField:        RatingHelpful,
		FinalizeMinActive:  defaultFinalizeMinActive,
		FinalizeMinPercent: defaultFinalizeMinPercent,
		StaleAfter:         DefaultStaleAfter,
	}
}

// ProfileFor returns the built-in profile for a surface. Unknown kinds get
// the lesson defaults.
func ProfileFor(kind content.Kind) Profile {
	p := baseProfile(kind)
	switch kind {
	case content.KindFlashcards:
		p.RatingField = RatingEngagement
	case content.KindScenario:
		p.PromptThreshold = reflectionPromptThreshold
		p.Weighted = true
		p.ResponseSections = []content.SectionType{content.SectionPractice}
		p.RatingField = RatingEngagement
	}
	return p
}

// DefaultProfiles returns a profile for every known surface.
func DefaultProfiles() map[content.Kind]Profile {
	out := make(map[content.Kind]Profile)
	for _, k := range content.Kinds() {
		out[k] = ProfileFor(k)
	}
	return out
}

// WantsResponse reports whether sections of type t carry a prompt.
func (p Profile) WantsResponse(t content.SectionType) bool {
	for _, rt := range p.ResponseSections {
		if rt == t {
			return true
		}
	}
	return false
}

// SessionContext identifies one engagement session. It is passed into the
// engine explicitly; nothing reads learner identity from globals.
type SessionContext struct {
	SessionID string
	LearnerID string
	Kind      content.Kind
	Subject   string
	Topic     string
	StartedAt time.Time

	// InteractionID arrives with the content metadata and keys feedback.
	InteractionID string
}

// NewSessionContext creates a context with a fresh session id.
func NewSessionContext(learnerID string, kind content.Kind, subject, topic string, now time.Time) SessionContext {
	return SessionContext{
		SessionID: uuid.New().String(),
		LearnerID: learnerID,
		Kind:      kind,
		Subject:   subject,
		Topic:     topic,
		StartedAt: now,
	}
}
