package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/logger"
)

// Event is an input to the tracker. Viewport callbacks, focus changes,
// stream progress and learner input are all modeled as events and reduced
// in arrival order.
type Event interface {
	isEvent()
}

// SectionsArrived appends sections as a content stream delivers them.
type SectionsArrived struct {
	Sections []content.Section
}

// ContentLoaded marks the end of the content stream.
type ContentLoaded struct {
	Metadata content.Metadata
}

// Visibility forwards a viewport observer event.
type Visibility struct {
	VisibilityEvent
}

// Foregrounded is a focus/visible transition.
type Foregrounded struct{ At time.Time }

// Backgrounded is a blur/hidden transition.
type Backgrounded struct{ At time.Time }

// Interacted is a pointer or key signal.
type Interacted struct{ At time.Time }

// ResponseChanged updates the learner's reflection text for a prompt.
type ResponseChanged struct {
	PromptID string
	Text     string
}

// ContentReset replaces the content, e.g. on retry.
type ContentReset struct{}

func (SectionsArrived) isEvent() {}
func (ContentLoaded) isEvent()   {}
func (Visibility) isEvent()      {}
func (Foregrounded) isEvent()    {}
func (Backgrounded) isEvent()    {}
func (Interacted) isEvent()      {}
func (ResponseChanged) isEvent() {}
func (ContentReset) isEvent()    {}

// State is a read-only view of an engagement session.
type State struct {
	SeenSectionIDs    []string
	TotalSections     int
	ActiveSeconds     int
	LastResume        time.Time
	Foregrounded      bool
	ProgressPercent   float64
	ContentLoaded     bool
	ShowPrompt        bool
	FeedbackSubmitted bool
}

// Tracker is the engagement engine for one content session. Every surface
// uses the same tracker; they differ only by Profile.
type Tracker struct {
	mu sync.Mutex

	sc      SessionContext
	profile Profile
	calc    Calculator
	now     func() time.Time
	log     *logger.Logger

	sections  []content.Section
	prompts   map[string]bool
	responses map[string]string
	loaded    bool
	percent   float64

	ledger *Ledger
	clock  *Clock
	gate   *Gate
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithNow replaces the wall clock used for snapshot reads.
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the tracker's logger.
func WithLogger(l *logger.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// NewTracker creates a tracker that starts foregrounded at sc.StartedAt.
func NewTracker(sc SessionContext, profile Profile, sender Sender, opts ...Option) *Tracker {
	t := &Tracker{
		sc:        sc,
		profile:   profile,
		calc:      Calculator{Weighted: profile.Weighted, Weights: profile.Weights},
		now:       time.Now,
		log:       logger.Nop(),
		prompts:   make(map[string]bool),
		responses: make(map[string]string),
		ledger:    NewLedger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if sc.StartedAt.IsZero() {
		t.sc.StartedAt = t.now()
	}
	t.log = t.log.With("session_id", t.sc.SessionID, "surface", string(profile.Kind), "learner", t.sc.LearnerID)
	t.clock = NewClock(t.sc.StartedAt, true)
	t.clock.SetStaleAfter(profile.StaleAfter)
	t.gate = NewGate(GateConfigFor(profile), sender, t.snapshot, t.log)
	return t
}

// Gate exposes the feedback gate, mainly for tests that swap dispatchers.
func (t *Tracker) Gate() *Gate {
	return t.gate
}

// Context returns the session context, including the interaction id once
// content metadata arrived.
func (t *Tracker) Context() SessionContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sc
}

// Profile returns the surface profile.
func (t *Tracker) Profile() Profile {
	return t.profile
}

// Apply reduces one event and returns the resulting state.
func (t *Tracker) Apply(ev Event) State {
	t.mu.Lock()
	switch e := ev.(type) {
	case SectionsArrived:
		t.addSections(e.Sections)
	case ContentLoaded:
		t.loaded = true
		if e.Metadata.InteractionID != "" {
			t.sc.InteractionID = e.Metadata.InteractionID
		}
	case Visibility:
		if t.ledger.Apply(e.VisibilityEvent) {
			t.log.Debug("section seen", "section", e.SectionID, "seen", t.ledger.SeenCount())
		}
	case Foregrounded:
		t.clock.Foreground(e.At)
	case Backgrounded:
		t.clock.Background(e.At)
	case Interacted:
		t.clock.Interaction(e.At)
	case ResponseChanged:
		if t.prompts[e.PromptID] {
			t.responses[e.PromptID] = e.Text
		}
	case ContentReset:
		t.sections = nil
		t.prompts = make(map[string]bool)
		t.responses = make(map[string]string)
		t.loaded = false
		t.ledger.Reset()
	}
	t.recompute()
	t.mu.Unlock()

	return t.State()
}

// ApplyAll reduces a batch of events in order.
func (t *Tracker) ApplyAll(events ...Event) State {
	var s State
	for _, ev := range events {
		s = t.Apply(ev)
	}
	if len(events) == 0 {
		s = t.State()
	}
	return s
}

func (t *Tracker) addSections(in []content.Section) {
	known := make(map[string]bool, len(t.sections))
	for _, s := range t.sections {
		known[s.ID] = true
	}
	for _, s := range in {
		if s.ID == "" || known[s.ID] {
			continue
		}
		known[s.ID] = true
		t.sections = append(t.sections, s)
		if t.profile.WantsResponse(s.Type) {
			t.prompts[s.ID] = true
		}
	}
	content.SortByOrdinal(t.sections)
}

func (t *Tracker) recompute() {
	responses := make([]string, 0, len(t.responses))
	for _, r := range t.responses {
		responses = append(responses, r)
	}
	t.percent = t.calc.Percent(t.ledger.SeenCount(), len(t.sections), responses, len(t.prompts))
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	return State{
		SeenSectionIDs:    t.ledger.SeenIDs(),
		TotalSections:     len(t.sections),
		ActiveSeconds:     t.clock.Seconds(now),
		LastResume:        t.clock.LastResume(),
		Foregrounded:      t.clock.Foregrounded(),
		ProgressPercent:   t.percent,
		ContentLoaded:     t.loaded,
		ShowPrompt:        t.gate.ShouldPrompt(t.percent, t.loaded),
		FeedbackSubmitted: t.gate.Submitted(),
	}
}

// Sections returns the known sections in ordinal order.
func (t *Tracker) Sections() []content.Section {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]content.Section, len(t.sections))
	copy(out, t.sections)
	return out
}

// Response returns the reflection text recorded for a prompt.
func (t *Tracker) Response(promptID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.responses[promptID]
}

// SubmitFeedback sends the learner's explicit rating through the gate.
func (t *Tracker) SubmitFeedback(ctx context.Context, rating int, markComplete bool) error {
	return t.gate.Submit(ctx, rating, markComplete)
}

// StartFeedback claims the explicit submission and sends it in the
// background; see Gate.SubmitAsync.
func (t *Tracker) StartFeedback(rating int, markComplete bool) <-chan error {
	return t.gate.SubmitAsync(rating, markComplete)
}

// Close is the teardown hook. It returns synchronously; any fallback
// submission is dispatched in the background.
func (t *Tracker) Close() bool {
	t.mu.Lock()
	t.clock.Background(t.now())
	t.mu.Unlock()
	return t.gate.Finalize()
}

// Drain waits for feedback submissions still in flight.
func (t *Tracker) Drain(ctx context.Context) error {
	return t.gate.Drain(ctx)
}

func (t *Tracker) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		InteractionID: t.sc.InteractionID,
		ActiveSeconds: t.clock.Seconds(t.now()),
		Percent:       t.percent,
		ContentLoaded: t.loaded,
	}
}
