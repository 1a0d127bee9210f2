// Package quiz is the assessment surface. It drives an assessment.Engine
// one question at a time and hands the result to the results screen.
package quiz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/journal"
	"github.com/abhisek/engage/internal/logger"
	"github.com/abhisek/engage/internal/router"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/screens/results"
	"github.com/abhisek/engage/internal/ui/components"
	"github.com/abhisek/engage/internal/ui/layout"
	"github.com/abhisek/engage/internal/ui/theme"
)

// DefaultQuestionCount is used when the caller does not ask for a size.
const DefaultQuestionCount = 6

// QuizScreen runs one assessment session.
type QuizScreen struct {
	env     *screen.Env
	engine  *assessment.Engine
	tracker *engagement.Tracker
	log     *logger.Logger
	now     func() time.Time
	topic   string

	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int
	busy   bool
	notice string
	paused bool

	// Input for the current question, rebuilt whenever it changes.
	qid     string
	choice  components.Choice
	text    components.TextInput
	blanks  []components.TextInput
	blank   int
	essay   components.TextArea
	pairing *assessment.Pairing
	item    int

	handedOff bool
	closed    bool
}

var _ screen.Screen = (*QuizScreen)(nil)
var _ screen.KeyHintProvider = (*QuizScreen)(nil)
var _ screen.StatusProvider = (*QuizScreen)(nil)
var _ screen.Closer = (*QuizScreen)(nil)

// Option customizes a QuizScreen.
type Option func(*QuizScreen)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *QuizScreen) { q.now = now }
}

// New creates a quiz on subject/topic. count <= 0 uses
// DefaultQuestionCount; types may be empty to accept any question type.
func New(env *screen.Env, subject, topic string, count int, types []string, opts ...Option) *QuizScreen {
	if count <= 0 {
		count = DefaultQuestionCount
	}
	q := &QuizScreen{env: env, now: time.Now, topic: topic}
	for _, opt := range opts {
		opt(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())

	log := env.Logger().With("component", "quiz")
	sc := engagement.NewSessionContext(env.Learner, content.KindQuiz, subject, topic, q.now())
	sender := journal.NewSender(env.Feedback, env.Repo, sc, log)
	q.tracker = engagement.NewTracker(sc, env.Profile(content.KindQuiz), sender,
		engagement.WithNow(q.now), engagement.WithLogger(log))
	q.log = log.With("session_id", sc.SessionID)

	engineOpts := []assessment.EngineOption{assessment.WithLogger(q.log)}
	if env.Evaluator != nil {
		engineOpts = append(engineOpts, assessment.WithEvaluator(env.Evaluator))
	}
	if env.Parallelism > 0 {
		engineOpts = append(engineOpts, assessment.WithParallelism(env.Parallelism))
	}
	q.engine = assessment.NewEngine(env.Assessments, assessment.FetchRequest{
		Subject:       subject,
		Topic:         topic,
		QuestionCount: count,
		QuestionTypes: types,
	}, engineOpts...)
	return q
}

// Engine exposes the assessment engine.
func (q *QuizScreen) Engine() *assessment.Engine {
	return q.engine
}

func (q *QuizScreen) Init() tea.Cmd {
	q.busy = true
	engine, ctx := q.engine, q.ctx
	return func() tea.Msg {
		return loadedMsg{Err: engine.Start(ctx)}
	}
}

func (q *QuizScreen) Title() string {
	return "Quiz · " + q.topic
}

func (q *QuizScreen) Status() layout.Status {
	answered, total := q.engine.Progress()
	st := layout.Status{Learner: q.env.Learner, Progress: -1, Paused: q.paused}
	if total > 0 {
		st.Progress = float64(answered) * 100 / float64(total)
	}
	return st
}

func (q *QuizScreen) KeyHints() []layout.KeyHint {
	switch q.engine.State() {
	case assessment.StateInProgress:
	case assessment.StateError, assessment.StateEvaluating:
		if !q.busy {
			return []layout.KeyHint{{Key: "r", Description: "Retry"}, {Key: "Esc", Description: "Back"}}
		}
		return []layout.KeyHint{{Key: "Esc", Description: "Back"}}
	default:
		return []layout.KeyHint{{Key: "Esc", Description: "Back"}}
	}

	var hints []layout.KeyHint
	switch cur, _ := q.engine.Current(); cur.(type) {
	case *assessment.MultipleChoice:
		hints = append(hints, layout.KeyHint{Key: "A-Z/↑↓ Enter", Description: "Choose"})
	case *assessment.TrueFalse:
		hints = append(hints, layout.KeyHint{Key: "t/f", Description: "Answer"})
	case *assessment.FillInBlank:
		hints = append(hints, layout.KeyHint{Key: "↑↓", Description: "Blank"})
	case *assessment.Matching:
		hints = append(hints,
			layout.KeyHint{Key: "↑↓", Description: "Item"},
			layout.KeyHint{Key: "←→", Description: "Match"})
	}
	return append(hints,
		layout.KeyHint{Key: "Tab/Shift+Tab", Description: "Next/Prev"},
		layout.KeyHint{Key: "Ctrl+F", Description: "Finish"},
		layout.KeyHint{Key: "Esc", Description: "Back"})
}

// Close ends the quiz. The engagement session moves to the results screen
// when the quiz completes; otherwise it ends here.
func (q *QuizScreen) Close() {
	if q.closed {
		return
	}
	q.closed = true
	q.cancel()
	if q.handedOff {
		return
	}
	q.tracker.Close()
	q.env.Track(q.tracker)
}

func (q *QuizScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case screen.ResizeMsg:
		q.width, q.height = msg.Width, msg.Height
		return q, nil

	case loadedMsg:
		q.busy = false
		if msg.Err != nil {
			q.log.Warn("assessment load failed", "error", msg.Err)
			return q, nil
		}
		return q, q.begin()

	case finalizedMsg:
		q.busy = false
		if msg.Err != nil {
			q.notice = msg.Err.Error()
			return q, nil
		}
		return q, q.handOff(msg.Result)

	case tea.FocusMsg:
		q.paused = false
		q.tracker.Apply(engagement.Foregrounded{At: q.now()})
		return q, nil

	case tea.BlurMsg:
		q.paused = true
		q.tracker.Apply(engagement.Backgrounded{At: q.now()})
		return q, nil

	case tea.KeyMsg:
		q.tracker.Apply(engagement.Interacted{At: q.now()})
		return q.handleKey(msg)
	}
	return q, nil
}

func (q *QuizScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()
	if key == "esc" {
		return q, router.Pop()
	}
	if q.busy {
		return q, nil
	}

	switch q.engine.State() {
	case assessment.StateError, assessment.StateEvaluating:
		if key == "r" {
			return q, q.retry()
		}
		return q, nil
	case assessment.StateInProgress:
	default:
		return q, nil
	}

	switch key {
	case "tab":
		if q.engine.Next() {
			return q, q.bind()
		}
		return q, nil
	case "shift+tab":
		if q.engine.Previous() {
			return q, q.bind()
		}
		return q, nil
	case "ctrl+f":
		return q, q.finish()
	}
	return q, q.updateInput(msg)
}

// begin publishes the question set to the tracker and shows the first
// question.
func (q *QuizScreen) begin() tea.Cmd {
	sess := q.engine.Session()
	sections := make([]content.Section, 0, len(sess.Questions))
	for i, question := range sess.Questions {
		sections = append(sections, content.Section{
			ID:      question.QuestionID(),
			Type:    content.SectionAssessment,
			Title:   fmt.Sprintf("Question %d", i+1),
			Body:    question.Prompt(),
			Ordinal: i + 1,
		})
	}
	q.tracker.Apply(engagement.SectionsArrived{Sections: sections})
	q.tracker.Apply(engagement.ContentLoaded{Metadata: content.Metadata{InteractionID: sess.ID}})
	q.log.Info("assessment started", "assessment_id", sess.ID, "questions", len(sess.Questions))
	return q.bind()
}

// bind rebuilds the input widgets for the current question from its stored
// response and marks the question seen.
func (q *QuizScreen) bind() tea.Cmd {
	cur, _ := q.engine.Current()
	if cur == nil {
		return nil
	}
	q.qid = cur.QuestionID()
	q.notice = ""
	resp, has := q.engine.Response(q.qid)
	width := max(q.width-8, 20)

	var cmd tea.Cmd
	switch v := cur.(type) {
	case *assessment.MultipleChoice:
		q.choice = components.NewChoice(v.Options, true)
		if r, ok := resp.(assessment.OptionResponse); has && ok {
			for i, o := range v.Options {
				if o == r.Option {
					q.choice.Choose(i)
				}
			}
		}
	case *assessment.TrueFalse:
		q.choice = components.NewChoice([]string{"True", "False"}, false)
		if r, ok := resp.(assessment.BoolResponse); has && ok {
			q.choice.Choose(boolIndex(r.Value))
		}
	case *assessment.ShortAnswer:
		q.text = components.NewTextInput("Type your answer", width)
		if r, ok := resp.(assessment.TextResponse); has && ok {
			q.text.SetValue(r.Text)
		}
		cmd = q.text.Focus()
	case *assessment.FillInBlank:
		saved := map[string]string{}
		if r, ok := resp.(assessment.BlanksResponse); has && ok {
			saved = r.Blanks
		}
		q.blanks = make([]components.TextInput, len(v.Blanks))
		for i, b := range v.Blanks {
			q.blanks[i] = components.NewTextInput(b.ID, width/2)
			q.blanks[i].SetValue(saved[b.ID])
			q.blanks[i].Blur()
		}
		q.blank = 0
		if len(q.blanks) > 0 {
			cmd = q.blanks[0].Focus()
		}
	case *assessment.Matching:
		q.pairing = assessment.NewPairing()
		if r, ok := resp.(*assessment.Pairing); has && ok {
			q.pairing = r
		}
		q.item = 0
	case *assessment.LongAnswer:
		q.essay = components.NewTextArea("Write your answer", width, 6)
		if r, ok := resp.(assessment.EssayResponse); has && ok {
			q.essay.SetValue(r.Text)
		}
		cmd = q.essay.Focus()
	}

	q.tracker.Apply(engagement.Visibility{VisibilityEvent: engagement.VisibilityEvent{
		SectionID: q.qid, BecameVisible: true, At: q.now(),
	}})
	return cmd
}

func (q *QuizScreen) updateInput(msg tea.KeyMsg) tea.Cmd {
	cur, _ := q.engine.Current()
	key := msg.String()

	switch v := cur.(type) {
	case *assessment.MultipleChoice:
		var changed bool
		q.choice, changed = q.choice.Update(msg)
		if opt, ok := q.choice.Value(); changed && ok {
			q.save(assessment.OptionResponse{Option: assessment.ResolveOption(v.Options, opt)})
		}

	case *assessment.TrueFalse:
		changed := false
		switch key {
		case "t", "y":
			q.choice.Choose(0)
			changed = true
		case "f", "n":
			q.choice.Choose(1)
			changed = true
		default:
			q.choice, changed = q.choice.Update(msg)
		}
		if changed && q.choice.Chosen >= 0 {
			q.save(assessment.BoolResponse{Value: q.choice.Chosen == 0})
		}

	case *assessment.ShortAnswer:
		var cmd tea.Cmd
		q.text, cmd = q.text.Update(msg)
		if s := q.text.Value(); s != "" {
			q.save(assessment.TextResponse{Text: s})
		} else {
			q.clear()
		}
		return cmd

	case *assessment.FillInBlank:
		if len(q.blanks) == 0 {
			return nil
		}
		switch key {
		case "up", "down", "enter":
			next := q.blank + 1
			if key == "up" {
				next = q.blank - 1
			}
			if next < 0 || next >= len(q.blanks) {
				return nil
			}
			q.blanks[q.blank].Blur()
			q.blank = next
			return q.blanks[q.blank].Focus()
		}
		var cmd tea.Cmd
		q.blanks[q.blank], cmd = q.blanks[q.blank].Update(msg)
		filled := make(map[string]string, len(v.Blanks))
		for i, b := range v.Blanks {
			if s := q.blanks[i].Value(); s != "" {
				filled[b.ID] = s
			}
		}
		if len(filled) > 0 {
			q.save(assessment.BlanksResponse{Blanks: filled})
		} else {
			q.clear()
		}
		return cmd

	case *assessment.Matching:
		q.updateMatching(v, key)

	case *assessment.LongAnswer:
		var cmd tea.Cmd
		q.essay, cmd = q.essay.Update(msg)
		if s := q.essay.Value(); s != "" {
			q.save(assessment.EssayResponse{Text: s})
		} else {
			q.clear()
		}
		return cmd
	}
	return nil
}

func (q *QuizScreen) updateMatching(m *assessment.Matching, key string) {
	if len(m.Items) == 0 {
		return
	}
	item := m.Items[q.item].ID
	switch key {
	case "up", "k":
		q.item = (q.item - 1 + len(m.Items)) % len(m.Items)
		return
	case "down", "j", "enter":
		q.item = (q.item + 1) % len(m.Items)
		return
	case "left", "h", "right", "l":
		avail := q.pairing.Available(m, item, false)
		if len(avail) == 0 {
			return
		}
		step := 1
		if key == "left" || key == "h" {
			step = -1
		}
		pos := -1
		if cur, ok := q.pairing.MatchFor(item); ok {
			for i, o := range avail {
				if o.ID == cur {
					pos = i
				}
			}
		}
		switch {
		case pos < 0 && step < 0:
			pos = len(avail) - 1
		case pos < 0:
			pos = 0
		default:
			pos = (pos + step + len(avail)) % len(avail)
		}
		q.pairing.Assign(item, avail[pos].ID)
	case "x", "backspace", "delete":
		q.pairing.Unassign(item)
	default:
		return
	}
	if q.pairing.Len() > 0 {
		q.save(q.pairing.Clone())
	} else {
		q.clear()
	}
}

func (q *QuizScreen) save(r assessment.Response) {
	if err := q.engine.SubmitResponse(q.qid, r); err != nil {
		q.notice = err.Error()
		q.log.Warn("response rejected", "question_id", q.qid, "error", err)
	}
}

// clear drops the stored answer once its widget is emptied.
func (q *QuizScreen) clear() {
	if err := q.engine.ClearResponse(q.qid); err != nil {
		q.notice = err.Error()
		q.log.Warn("clear response failed", "question_id", q.qid, "error", err)
	}
}

func (q *QuizScreen) finish() tea.Cmd {
	if !q.engine.IsComplete() {
		answered, total := q.engine.Progress()
		q.notice = fmt.Sprintf("Answer every question first (%d of %d answered).", answered, total)
		return nil
	}
	q.busy = true
	q.notice = ""
	engine, ctx := q.engine, q.ctx
	return q.record(func() (*assessment.QuizResult, error) {
		return engine.Finalize(ctx)
	})
}

func (q *QuizScreen) retry() tea.Cmd {
	q.busy = true
	q.notice = ""
	engine, ctx := q.engine, q.ctx
	complete := q.record(func() (*assessment.QuizResult, error) { return engine.Result(), nil })
	return func() tea.Msg {
		err := engine.Retry(ctx)
		switch engine.State() {
		case assessment.StateInProgress:
			return loadedMsg{}
		case assessment.StateComplete:
			return complete()
		}
		if err == nil {
			err = engine.Err()
		}
		return finalizedMsg{Err: err}
	}
}

// record runs a finalize step and journals the result before reporting it.
func (q *QuizScreen) record(step func() (*assessment.QuizResult, error)) tea.Cmd {
	repo, sc, log := q.env.Repo, q.tracker.Context(), q.log
	engine, ctx := q.engine, q.ctx
	return func() tea.Msg {
		res, err := step()
		if err != nil {
			return finalizedMsg{Err: err}
		}
		if err := journal.RecordQuiz(ctx, repo, sc, engine.Session().Questions, res); err != nil {
			log.Warn("quiz result not journaled", "error", err)
		}
		return finalizedMsg{Result: res}
	}
}

// handOff replaces the quiz with its results. The results screen takes
// over the engagement session.
func (q *QuizScreen) handOff(res *assessment.QuizResult) tea.Cmd {
	q.handedOff = true
	next := results.New(q.env, q.tracker, q.engine.Session().Questions, res, results.WithClock(q.now))
	return func() tea.Msg { return router.ReplaceScreenMsg{Screen: next} }
}

func (q *QuizScreen) View(width, height int) string {
	switch q.engine.State() {
	case assessment.StateLoading, assessment.StateReady:
		return theme.Hint.Render("\n  Preparing your quiz...")
	case assessment.StateEvaluating:
		if q.busy {
			return theme.Hint.Render("\n  Grading your answers...")
		}
		return q.errorView(width, "Grading did not finish", q.engine.Err())
	case assessment.StateError:
		return q.errorView(width, "Something went wrong", q.engine.Err())
	case assessment.StateComplete:
		return theme.Hint.Render("\n  Quiz complete.")
	}

	cur, idx := q.engine.Current()
	if cur == nil {
		return ""
	}
	sess := q.engine.Session()
	answered, total := q.engine.Progress()

	var b strings.Builder
	pct := 0.0
	if total > 0 {
		pct = float64(answered) * 100 / float64(total)
	}
	bar := components.NewProgressBar("Answered", pct, false, width/3)
	b.WriteString(bar.View())
	b.WriteString(theme.Hint.Render(fmt.Sprintf("   Question %d of %d · %d/%d answered", idx+1, len(sess.Questions), answered, total)))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Width(width - 4).Foreground(theme.Text).Bold(true).Render(cur.Prompt()))
	b.WriteString("\n\n")
	b.WriteString(q.inputView(cur, width))

	if q.busy {
		b.WriteString("\n\n")
		b.WriteString(theme.Hint.Render("Working..."))
	}
	if q.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(theme.Warning.Render(q.notice))
	}
	return b.String()
}

func (q *QuizScreen) errorView(width int, title string, err error) string {
	msg := title
	if err != nil {
		msg += ": " + err.Error()
	}
	if q.notice != "" && (err == nil || q.notice != err.Error()) {
		msg += "\n" + q.notice
	}
	return lipgloss.NewStyle().
		Width(width).Align(lipgloss.Center).Foreground(theme.Error).
		Render("\n\n" + msg + "\n\nPress r to retry.")
}

func (q *QuizScreen) inputView(cur assessment.Question, width int) string {
	switch v := cur.(type) {
	case *assessment.MultipleChoice, *assessment.TrueFalse:
		return q.choice.View()
	case *assessment.ShortAnswer:
		return q.text.View()
	case *assessment.FillInBlank:
		var b strings.Builder
		for i, in := range q.blanks {
			marker := "  "
			if i == q.blank {
				marker = theme.Selected.Render("▸ ")
			}
			b.WriteString(fmt.Sprintf("%s%s\n", marker, in.View()))
		}
		return b.String()
	case *assessment.Matching:
		return q.matchingView(v, width)
	case *assessment.LongAnswer:
		words := components.Words(q.essay.Value())
		hint := fmt.Sprintf("%d words", words)
		if v.MinWords > 0 {
			hint = fmt.Sprintf("%d / %d words", words, v.MinWords)
		}
		return q.essay.View() + "\n" + theme.Hint.Render(hint)
	case *assessment.Invalid:
		reason := v.Reason
		if reason == "" {
			reason = "the question data could not be used"
		}
		return theme.Incorrect.Render("Invalid question") + "\n" +
			theme.Hint.Render(reason+". It is skipped and not scored; press Tab to continue.")
	}
	return ""
}

func (q *QuizScreen) matchingView(m *assessment.Matching, width int) string {
	labelWidth := 0
	for _, it := range m.Items {
		labelWidth = max(labelWidth, lipgloss.Width(it.Text))
	}
	labelWidth = min(labelWidth, width/2)

	var b strings.Builder
	for i, it := range m.Items {
		style := theme.Unselected
		marker := "  "
		if i == q.item {
			style = theme.Selected
			marker = "▸ "
		}
		right := theme.Hint.Render("(choose with ←/→)")
		if id, ok := q.pairing.MatchFor(it.ID); ok {
			if match, found := m.Match(id); found {
				right = theme.Body.Render(match.Text)
			}
		}
		label := lipgloss.NewStyle().Width(labelWidth).Render(it.Text)
		b.WriteString(style.Render(marker+label) + "  →  " + right + "\n")
	}
	return b.String()
}

func boolIndex(v bool) int {
	if v {
		return 0
	}
	return 1
}
