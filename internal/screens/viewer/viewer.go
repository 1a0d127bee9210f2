// Package viewer is the terminal surface for lessons, cheatsheets,
// flashcards and scenarios. Every surface runs the same engagement
// tracker; they differ by profile and a little rendering.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/journal"
	"github.com/abhisek/engage/internal/logger"
	"github.com/abhisek/engage/internal/router"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/ui/components"
	"github.com/abhisek/engage/internal/ui/layout"
	"github.com/abhisek/engage/internal/ui/theme"
)

const (
	tickInterval = time.Second
	maxRating    = 5
)

type mode int

const (
	modeReading mode = iota
	modeReflecting
)

// Viewer renders one content session and feeds its tracker.
type Viewer struct {
	env     *screen.Env
	req     content.FetchRequest
	tracker *engagement.Tracker
	obs     *engagement.Observer
	log     *logger.Logger
	now     func() time.Time

	vp     viewport.Model
	doc    document
	width  int
	height int

	// fetchGen discards stream messages from an abandoned fetch; tickGen
	// discards ticks scheduled before the last focus change.
	fetchGen int
	tickGen  int
	cancel   context.CancelFunc

	loading  bool
	progress int
	plan     string
	err      error

	state        engagement.State
	mode         mode
	rating       components.Rating
	markComplete bool
	sending      bool
	notice       string

	editor  components.TextArea
	editing string
	closed  bool
}

var _ screen.Screen = (*Viewer)(nil)
var _ screen.KeyHintProvider = (*Viewer)(nil)
var _ screen.StatusProvider = (*Viewer)(nil)
var _ screen.Closer = (*Viewer)(nil)
var _ screen.InputCapturer = (*Viewer)(nil)

// Option customizes a Viewer.
type Option func(*Viewer)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Viewer) { v.now = now }
}

// New creates a viewer for kind on subject/topic. Nothing is fetched
// until Init.
func New(env *screen.Env, kind content.Kind, subject, topic string, opts ...Option) *Viewer {
	v := &Viewer{
		env:    env,
		req:    content.FetchRequest{ContentType: kind, Subject: subject, Topic: topic},
		obs:    engagement.NewObserver(),
		now:    time.Now,
		rating: components.NewRating(maxRating),
	}
	for _, opt := range opts {
		opt(v)
	}

	log := env.Logger().With("component", "viewer")
	sc := engagement.NewSessionContext(env.Learner, kind, subject, topic, v.now())
	sender := journal.NewSender(env.Feedback, env.Repo, sc, log)
	v.tracker = engagement.NewTracker(sc, env.Profile(kind), sender,
		engagement.WithNow(v.now), engagement.WithLogger(log))
	v.log = log.With("session_id", sc.SessionID, "surface", string(kind))

	v.vp = viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	v.vp.MouseWheelEnabled = true
	v.vp.KeyMap.Left.SetEnabled(false)
	v.vp.KeyMap.Right.SetEnabled(false)
	v.vp.KeyMap.PageDown.SetKeys("pgdown", "space")
	v.state = v.tracker.State()
	return v
}

// Tracker exposes the session's engagement tracker.
func (v *Viewer) Tracker() *engagement.Tracker {
	return v.tracker
}

func (v *Viewer) Init() tea.Cmd {
	return tea.Batch(v.fetch(), v.tick())
}

func (v *Viewer) Title() string {
	name := string(v.req.ContentType)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return fmt.Sprintf("%s · %s", name, v.req.Topic)
}

func (v *Viewer) Status() layout.Status {
	return layout.Status{
		Learner:  v.env.Learner,
		Progress: v.state.ProgressPercent,
		Paused:   !v.state.Foregrounded,
	}
}

func (v *Viewer) CapturesInput() bool {
	return v.mode == modeReflecting
}

func (v *Viewer) KeyHints() []layout.KeyHint {
	switch {
	case v.mode == modeReflecting:
		return []layout.KeyHint{{Key: "Esc", Description: "Done"}}
	case v.err != nil:
		return []layout.KeyHint{{Key: "r", Description: "Retry"}, {Key: "Esc", Description: "Back"}}
	}
	hints := []layout.KeyHint{{Key: "↑↓/PgUp/PgDn", Description: "Scroll"}}
	if v.wantsReflection() {
		hints = append(hints, layout.KeyHint{Key: "w", Description: "Reflect"})
	}
	if v.promptOpen() {
		hints = append(hints,
			layout.KeyHint{Key: "1-5", Description: "Rate"},
			layout.KeyHint{Key: "Enter", Description: "Send"},
			layout.KeyHint{Key: "c", Description: "Mark complete"})
	}
	return append(hints, layout.KeyHint{Key: "Esc", Description: "Back"})
}

// Close ends the session. Called by the router when the viewer leaves the
// stack; the fallback feedback send runs in the background and the env
// waits for it on exit.
func (v *Viewer) Close() {
	if v.closed {
		return
	}
	v.closed = true
	if v.cancel != nil {
		v.cancel()
	}
	if v.tracker.Close() {
		v.log.Debug("teardown feedback dispatched")
	}
	v.env.Track(v.tracker)
}

func (v *Viewer) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case screen.ResizeMsg:
		v.resize(msg.Width, msg.Height)
		return v, nil

	case frameMsg:
		if msg.gen != v.fetchGen {
			return v, nil
		}
		v.applyFrame(msg.frame)
		return v, waitFrame(msg.ch)

	case fetchDoneMsg:
		if msg.gen != v.fetchGen {
			return v, nil
		}
		v.finishFetch(msg.resp, msg.err)
		return v, nil

	case tickMsg:
		if msg.gen != v.tickGen || v.closed {
			return v, nil
		}
		v.refresh()
		return v, v.tick()

	case tea.FocusMsg:
		v.apply(engagement.Foregrounded{At: v.now()})
		v.tickGen++
		return v, v.tick()

	case tea.BlurMsg:
		v.apply(engagement.Backgrounded{At: v.now()})
		v.tickGen++
		return v, nil

	case feedbackSentMsg:
		v.sending = false
		switch {
		case msg.err == nil:
			v.notice = "Thanks for the feedback."
		case errors.Is(msg.err, engagement.ErrAlreadySubmitted):
			v.notice = "Feedback already recorded for this session."
		default:
			v.notice = msg.err.Error()
		}
		v.refresh()
		return v, nil

	case tea.MouseWheelMsg:
		v.apply(engagement.Interacted{At: v.now()})
		v.vp, _ = v.vp.Update(msg)
		v.observe()
		return v, nil

	case tea.KeyMsg:
		v.apply(engagement.Interacted{At: v.now()})
		if v.mode == modeReflecting {
			return v.updateEditor(msg)
		}
		return v.handleKey(msg)
	}

	if v.mode == modeReflecting {
		var cmd tea.Cmd
		v.editor, cmd = v.editor.Update(msg)
		return v, cmd
	}
	return v, nil
}

func (v *Viewer) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()
	switch key {
	case "esc":
		return v, router.Pop()
	case "r":
		if v.err != nil {
			return v, v.retry()
		}
		return v, nil
	case "w":
		if id := v.reflectionTarget(); id != "" {
			return v, v.openEditor(id)
		}
		return v, nil
	case "c":
		if v.promptOpen() {
			v.markComplete = !v.markComplete
		}
		return v, nil
	case "home", "g":
		v.vp.GotoTop()
		v.observe()
		return v, nil
	case "end", "G":
		v.vp.GotoBottom()
		v.observe()
		return v, nil
	}

	if v.promptOpen() {
		var confirmed bool
		if key == "enter" || (len(key) == 1 && key[0] >= '1' && key[0] <= '9') {
			v.rating, confirmed = v.rating.Update(msg)
			if confirmed {
				return v, v.submit(v.rating.Value, v.markComplete)
			}
			return v, nil
		}
	}

	v.vp, _ = v.vp.Update(msg)
	v.observe()
	return v, nil
}

func (v *Viewer) updateEditor(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	if msg.String() == "esc" {
		v.editor.Blur()
		v.mode = modeReading
		v.editing = ""
		v.relayout()
		return v, nil
	}
	var cmd tea.Cmd
	v.editor, cmd = v.editor.Update(msg)
	v.apply(engagement.ResponseChanged{PromptID: v.editing, Text: v.editor.Value()})
	return v, cmd
}

func (v *Viewer) openEditor(sectionID string) tea.Cmd {
	v.mode = modeReflecting
	v.editing = sectionID
	v.editor = components.NewTextArea("What would you do here? Write a few sentences.", max(v.width-4, 20), 5)
	v.editor.SetValue(v.tracker.Response(sectionID))
	return v.editor.Focus()
}

func (v *Viewer) submit(rating int, markComplete bool) tea.Cmd {
	if v.sending {
		return nil
	}
	v.sending = true
	done := v.tracker.StartFeedback(rating, markComplete)
	return func() tea.Msg {
		return feedbackSentMsg{err: <-done}
	}
}

func (v *Viewer) retry() tea.Cmd {
	v.apply(engagement.ContentReset{})
	v.obs.Reset()
	v.err = nil
	v.notice = ""
	v.relayout()
	return v.fetch()
}

func (v *Viewer) apply(ev engagement.Event) {
	v.state = v.tracker.Apply(ev)
	v.syncChrome()
}

func (v *Viewer) refresh() {
	v.state = v.tracker.State()
	v.syncChrome()
}

// syncChrome shrinks or grows the viewport when the prompt box appears or
// goes away.
func (v *Viewer) syncChrome() {
	if v.width == 0 {
		return
	}
	if h := max(v.height-v.chromeHeight(), 3); h != v.vp.Height() {
		v.vp.SetHeight(h)
		v.observe()
	}
}

func (v *Viewer) promptOpen() bool {
	return v.state.ShowPrompt && !v.state.FeedbackSubmitted && v.err == nil
}

func (v *Viewer) wantsReflection() bool {
	for _, s := range v.tracker.Sections() {
		if v.tracker.Profile().WantsResponse(s.Type) {
			return true
		}
	}
	return false
}

// reflectionTarget picks the prompt section at the top of the viewport,
// or the first one without a substantive response.
func (v *Viewer) reflectionTarget() string {
	sections := v.tracker.Sections()
	profile := v.tracker.Profile()
	if id := v.doc.sectionAt(v.vp.YOffset(), sections); id != "" {
		for _, s := range sections {
			if s.ID == id && profile.WantsResponse(s.Type) {
				return id
			}
		}
	}
	for _, s := range sections {
		if profile.WantsResponse(s.Type) && !engagement.IsSubstantive(v.tracker.Response(s.ID)) {
			return s.ID
		}
	}
	for _, s := range sections {
		if profile.WantsResponse(s.Type) {
			return s.ID
		}
	}
	return ""
}

func (v *Viewer) applyFrame(f content.Frame) {
	if f.Progress > v.progress {
		v.progress = min(f.Progress, 100)
	}
	if f.Section != nil {
		v.apply(engagement.SectionsArrived{Sections: []content.Section{*f.Section}})
		v.relayout()
	}
}

func (v *Viewer) finishFetch(resp *content.FetchResponse, err error) {
	v.loading = false
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	if err != nil {
		v.err = err
		v.log.Warn("content fetch failed", "error", err)
		return
	}
	v.progress = 100
	v.plan = resp.InstructionalPlan
	v.apply(engagement.SectionsArrived{Sections: resp.Sections})
	v.apply(engagement.ContentLoaded{Metadata: resp.Metadata})
	v.log.Info("content loaded", "sections", len(resp.Sections), "interaction_id", resp.Metadata.InteractionID)
	v.relayout()
}

func (v *Viewer) resize(width, height int) {
	v.width, v.height = width, height
	v.relayout()
}

// chromeHeight is the number of lines around the viewport.
func (v *Viewer) chromeHeight() int {
	h := 2 // progress line and spacer
	if v.promptOpen() || v.notice != "" {
		h += 4
	}
	if v.mode == modeReflecting {
		h += 8
	}
	return h
}

func (v *Viewer) relayout() {
	if v.width == 0 {
		return
	}
	tracker, profile := v.tracker, v.tracker.Profile()
	sections := tracker.Sections()
	types := make(map[string]content.SectionType, len(sections))
	for _, s := range sections {
		types[s.ID] = s.Type
	}
	v.doc = layoutDocument(v.req.ContentType, sections, v.width-2, func(id string) (bool, string) {
		if !profile.WantsResponse(types[id]) {
			return false, ""
		}
		return true, tracker.Response(id)
	})
	v.vp.SetWidth(v.width)
	v.vp.SetHeight(max(v.height-v.chromeHeight(), 3))
	v.vp.SetContentLines(v.doc.lines)
	v.observe()
}

// observe feeds the visibility observer with the current scroll geometry.
func (v *Viewer) observe() {
	now := v.now()
	for _, ev := range v.obs.Observe(v.doc.blocks, v.vp.YOffset(), v.vp.Height(), now) {
		v.apply(engagement.Visibility{VisibilityEvent: ev})
	}
}

func (v *Viewer) View(width, height int) string {
	if v.err != nil {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.Error).
			Render(fmt.Sprintf("\n\nCould not load content: %s\n\nPress r to retry.", v.err))
	}

	var b strings.Builder
	b.WriteString(v.statusLine(width))
	b.WriteString("\n")

	if len(v.doc.lines) == 0 {
		b.WriteString(theme.Hint.Render("\n  Loading content..."))
		return b.String()
	}
	b.WriteString(v.vp.View())

	if v.mode == modeReflecting {
		b.WriteString("\n")
		b.WriteString(theme.Prompt.Width(width - 2).Render(
			theme.Body.Render("Reflection") + "\n" + v.editor.View()))
	} else if v.promptOpen() {
		b.WriteString("\n")
		b.WriteString(v.promptView(width))
	} else if v.notice != "" {
		b.WriteString("\n")
		b.WriteString(theme.Prompt.Width(width - 2).Render(theme.Hint.Render(v.notice)))
	}
	return b.String()
}

func (v *Viewer) statusLine(width int) string {
	label := "Progress"
	pct := v.state.ProgressPercent
	if v.loading || (!v.state.ContentLoaded && v.err == nil) {
		label, pct = "Loading", float64(v.progress)
	}
	bar := components.NewProgressBar(label, pct, true, width/2)
	active := time.Duration(v.state.ActiveSeconds) * time.Second
	right := theme.Hint.Render(fmt.Sprintf("active %s · %d/%d seen", active, len(v.state.SeenSectionIDs), v.state.TotalSections))
	return bar.View() + "   " + right
}

func (v *Viewer) promptView(width int) string {
	question := "How helpful was this?"
	if v.tracker.Profile().RatingField == engagement.RatingEngagement {
		question = "How engaging was this?"
	}
	check := "[ ]"
	if v.markComplete {
		check = "[x]"
	}
	body := theme.Body.Render(question) + "  " + v.rating.View() + "\n" +
		theme.Hint.Render(check+" mark as complete (c)")
	if v.sending {
		body += theme.Hint.Render("   sending...")
	}
	return theme.Prompt.Width(width - 2).Render(body)
}
