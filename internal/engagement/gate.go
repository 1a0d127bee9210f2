package engagement

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abhisek/engage/internal/logger"
)

var (
	// ErrAlreadySubmitted is returned once the session's single feedback
	// submission has been claimed.
	ErrAlreadySubmitted = errors.New("feedback already submitted")

	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// DefaultSendTimeout bounds a teardown dispatch.
const DefaultSendTimeout = 10 * time.Second

// Payload is the feedback submission body.
type Payload struct {
	InteractionID        string `json:"interaction_id"`
	HelpfulRating        *int   `json:"helpful_rating,omitempty"`
	EngagementRating     *int   `json:"engagement_rating,omitempty"`
	TimeSpentSeconds     int    `json:"time_spent_seconds"`
	CompletionPercentage int    `json:"completion_percentage"`

	// Reduced marks the teardown payload, which never carries a rating.
	Reduced bool `json:"-"`
}

// Sender delivers feedback to the feedback-submission service.
type Sender interface {
	SendFeedback(ctx context.Context, p Payload) error
}

// Snapshot is what the gate needs to know about its session when it fires.
type Snapshot struct {
	InteractionID string
	ActiveSeconds int
	Percent       float64
	ContentLoaded bool
}

// GateConfig holds the thresholds of a feedback gate.
type GateConfig struct {
	PromptThreshold    float64
	RatingField        RatingField
	FinalizeMinActive  time.Duration
	FinalizeMinPercent float64
	SendTimeout        time.Duration
}

// GateConfigFor derives a gate configuration from a profile.
func GateConfigFor(p Profile) GateConfig {
	return GateConfig{
		PromptThreshold:    p.PromptThreshold,
		RatingField:        p.RatingField,
		FinalizeMinActive:  p.FinalizeMinActive,
		FinalizeMinPercent: p.FinalizeMinPercent,
		SendTimeout:        DefaultSendTimeout,
	}
}

// Gate decides when to prompt for feedback and guarantees at most one
// submission per session, whichever of explicit submit, teardown or a
// racing duplicate gets there first.
type Gate struct {
	cfg    GateConfig
	sender Sender
	source func() Snapshot
	log    *logger.Logger

	prompted  atomic.Bool
	submitted atomic.Bool

	dispatch func(func())
	inflight sync.WaitGroup
}

// NewGate creates a gate. source is read whenever a payload is built.
func NewGate(cfg GateConfig, sender Sender, source func() Snapshot, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Gate{
		cfg:      cfg,
		sender:   sender,
		source:   source,
		log:      log.With("component", "feedback_gate"),
		dispatch: func(f func()) { go f() },
	}
}

// SetDispatcher replaces how teardown sends are started. Tests run them
// inline.
func (g *Gate) SetDispatcher(d func(func())) {
	g.dispatch = d
}

// ShouldPrompt reports whether the feedback prompt should be visible. Once
// it returns true it keeps returning true, even if percent recalculates
// lower.
func (g *Gate) ShouldPrompt(percent float64, contentFullyLoaded bool) bool {
	if g.prompted.Load() {
		return true
	}
	if contentFullyLoaded && percent >= g.cfg.PromptThreshold {
		g.prompted.Store(true)
		return true
	}
	return false
}

// Submitted reports whether the session's submission has been claimed.
func (g *Gate) Submitted() bool {
	return g.submitted.Load()
}

// Submit sends the learner's explicit feedback. The submitted flag is
// claimed before the network call starts and is never released, so
// concurrent calls produce exactly one request. Delivery failures are
// logged and swallowed. Drain waits for a Submit in progress.
func (g *Gate) Submit(ctx context.Context, rating int, markComplete bool) error {
	p, err := g.claimExplicit(rating, markComplete)
	if err != nil {
		return err
	}
	defer g.inflight.Done()
	g.send(ctx, p)
	return nil
}

// SubmitAsync claims the submission like Submit, then sends it in the
// background under SendTimeout. The channel yields the claim error, or nil
// once the send has finished. Callers on a UI loop use it so that the claim
// and the Drain accounting happen before they return.
func (g *Gate) SubmitAsync(rating int, markComplete bool) <-chan error {
	done := make(chan error, 1)
	p, err := g.claimExplicit(rating, markComplete)
	if err != nil {
		done <- err
		return done
	}
	g.dispatch(func() {
		defer g.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SendTimeout)
		defer cancel()
		g.send(ctx, p)
		done <- nil
	})
	return done
}

// claimExplicit validates the rating, claims the session's submission and
// registers the send with inflight. The caller must call inflight.Done.
func (g *Gate) claimExplicit(rating int, markComplete bool) (Payload, error) {
	if rating < 1 || rating > 5 {
		return Payload{}, ErrInvalidRating
	}
	if !g.submitted.CompareAndSwap(false, true) {
		return Payload{}, ErrAlreadySubmitted
	}
	g.inflight.Add(1)

	snap := g.snapshot()
	p := Payload{
		InteractionID:        snap.InteractionID,
		TimeSpentSeconds:     snap.ActiveSeconds,
		CompletionPercentage: roundPercent(snap.Percent),
	}
	if markComplete {
		p.CompletionPercentage = 100
	}
	r := rating
	if g.cfg.RatingField == RatingEngagement {
		p.EngagementRating = &r
	} else {
		p.HelpfulRating = &r
	}
	return p, nil
}

// Finalize is the teardown hook. It fires the reduced payload only when no
// explicit submission happened, the content fully loaded, enough active
// time accumulated and completion passed the floor. It never waits on the
// network: the send is dispatched and Finalize returns. The result reports
// whether a payload was dispatched.
func (g *Gate) Finalize() bool {
	if g.submitted.Load() {
		return false
	}
	snap := g.snapshot()
	if !snap.ContentLoaded {
		return false
	}
	if time.Duration(snap.ActiveSeconds)*time.Second < g.cfg.FinalizeMinActive {
		return false
	}
	if snap.Percent <= g.cfg.FinalizeMinPercent {
		return false
	}
	if !g.submitted.CompareAndSwap(false, true) {
		return false
	}

	p := Payload{
		InteractionID:        snap.InteractionID,
		TimeSpentSeconds:     snap.ActiveSeconds,
		CompletionPercentage: roundPercent(snap.Percent),
		Reduced:              true,
	}
	g.inflight.Add(1)
	g.dispatch(func() {
		defer g.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SendTimeout)
		defer cancel()
		g.send(ctx, p)
	})
	return true
}

// Drain waits for explicit and teardown sends in flight, or for ctx to
// end.
func (g *Gate) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) send(ctx context.Context, p Payload) {
	if g.sender == nil {
		g.log.Debug("no feedback sender configured; dropping payload", "interaction_id", p.InteractionID)
		return
	}
	if err := g.sender.SendFeedback(ctx, p); err != nil {
		g.log.Warn("feedback submission failed",
			"interaction_id", p.InteractionID,
			"reduced", p.Reduced,
			"error", err,
		)
		return
	}
	g.log.Debug("feedback submitted",
		"interaction_id", p.InteractionID,
		"reduced", p.Reduced,
		"completion", p.CompletionPercentage,
		"time_spent", p.TimeSpentSeconds,
	)
}

func (g *Gate) snapshot() Snapshot {
	if g.source == nil {
		return Snapshot{}
	}
	return g.source()
}

func roundPercent(p float64) int {
	return int(math.Round(clampPercent(p)))
}
