// Package results shows a finalized quiz and collects the learner's rating.
package results

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/router"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/ui/components"
	"github.com/abhisek/engage/internal/ui/layout"
	"github.com/abhisek/engage/internal/ui/theme"
)

// ResultsScreen displays a quiz result. It owns the quiz's engagement
// tracker once the quiz hands it over.
type ResultsScreen struct {
	env       *screen.Env
	tracker   *engagement.Tracker
	questions []assessment.Question
	res       *assessment.QuizResult
	now       func() time.Time

	vp      viewport.Model
	width   int
	height  int
	rating  components.Rating
	sending bool
	notice  string
	closed  bool
}

var _ screen.Screen = (*ResultsScreen)(nil)
var _ screen.KeyHintProvider = (*ResultsScreen)(nil)
var _ screen.StatusProvider = (*ResultsScreen)(nil)
var _ screen.Closer = (*ResultsScreen)(nil)

type feedbackSentMsg struct {
	err error
}

// Option customizes a ResultsScreen.
type Option func(*ResultsScreen)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ResultsScreen) { s.now = now }
}

// New creates a results screen. tracker may be nil, in which case no
// rating is collected.
func New(env *screen.Env, tracker *engagement.Tracker, questions []assessment.Question, res *assessment.QuizResult, opts ...Option) *ResultsScreen {
	s := &ResultsScreen{
		env:       env,
		tracker:   tracker,
		questions: questions,
		res:       res,
		now:       time.Now,
		rating:    components.NewRating(5),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.vp = viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	s.vp.KeyMap.Left.SetEnabled(false)
	s.vp.KeyMap.Right.SetEnabled(false)
	return s
}

func (s *ResultsScreen) Init() tea.Cmd {
	return nil
}

func (s *ResultsScreen) Title() string {
	return "Quiz Results"
}

func (s *ResultsScreen) Status() layout.Status {
	if s.res == nil {
		return layout.NoProgress(s.env.Learner)
	}
	return layout.Status{Learner: s.env.Learner, Progress: float64(s.res.OverallScore)}
}

func (s *ResultsScreen) KeyHints() []layout.KeyHint {
	hints := []layout.KeyHint{{Key: "↑↓", Description: "Scroll"}}
	if s.canRate() {
		hints = append(hints, layout.KeyHint{Key: "1-5", Description: "Rate"})
	}
	return append(hints,
		layout.KeyHint{Key: "Enter", Description: "Continue"},
		layout.KeyHint{Key: "Esc", Description: "Home"})
}

// Close finishes the quiz's engagement session.
func (s *ResultsScreen) Close() {
	if s.closed || s.tracker == nil {
		return
	}
	s.closed = true
	s.tracker.Close()
	s.env.Track(s.tracker)
}

func (s *ResultsScreen) canRate() bool {
	return s.tracker != nil && !s.tracker.Gate().Submitted()
}

func (s *ResultsScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case screen.ResizeMsg:
		s.width, s.height = msg.Width, msg.Height
		s.relayout()
		return s, nil

	case feedbackSentMsg:
		s.sending = false
		switch {
		case msg.err == nil:
			s.notice = "Thanks for the feedback."
		case errors.Is(msg.err, engagement.ErrAlreadySubmitted):
			s.notice = "Feedback already recorded."
		default:
			s.notice = msg.err.Error()
		}
		return s, nil

	case tea.KeyMsg:
		if s.tracker != nil {
			s.tracker.Apply(engagement.Interacted{At: s.now()})
		}
		key := msg.String()
		switch {
		case key == "esc":
			return s, func() tea.Msg { return router.PopToRootMsg{} }
		case key == "enter":
			if s.canRate() && s.rating.Value > 0 && !s.sending {
				return s, s.submit()
			}
			return s, func() tea.Msg { return router.PopToRootMsg{} }
		case len(key) == 1 && key[0] >= '1' && key[0] <= '9':
			if s.canRate() {
				s.rating, _ = s.rating.Update(msg)
			}
			return s, nil
		}
		s.vp, _ = s.vp.Update(msg)
	}
	return s, nil
}

func (s *ResultsScreen) submit() tea.Cmd {
	s.sending = true
	done := s.tracker.StartFeedback(s.rating.Value, false)
	return func() tea.Msg {
		return feedbackSentMsg{err: <-done}
	}
}

func (s *ResultsScreen) relayout() {
	if s.width == 0 {
		return
	}
	s.vp.SetWidth(s.width)
	s.vp.SetHeight(max(s.height-5, 3))
	s.vp.SetContent(s.body(s.width))
}

func (s *ResultsScreen) View(width, height int) string {
	if s.res == nil {
		return ""
	}
	if s.width == 0 {
		s.width, s.height = width, height
		s.relayout()
	}

	var b strings.Builder
	b.WriteString(s.vp.View())
	b.WriteString("\n")

	var footer string
	switch {
	case s.canRate():
		footer = theme.Body.Render("How helpful was this quiz?") + "  " + s.rating.View()
		if s.sending {
			footer += theme.Hint.Render("   sending...")
		}
	case s.notice != "":
		footer = theme.Hint.Render(s.notice)
	default:
		footer = theme.Hint.Render("Press Enter to continue.")
	}
	b.WriteString(theme.Prompt.Width(width - 2).Render(footer))
	return b.String()
}

func (s *ResultsScreen) body(width int) string {
	res := s.res
	var b strings.Builder

	scoreStyle := theme.Correct
	if res.OverallScore < 60 {
		scoreStyle = theme.Incorrect
	}
	b.WriteString(lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(theme.Primary).
		Bold(true).
		Render("Quiz complete!"))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).
		Render(scoreStyle.Render(fmt.Sprintf("Score: %d%%", res.OverallScore))))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).
		Render(theme.Hint.Render(fmt.Sprintf("Mastery %.0f%% → %.0f%%", res.MasteryBefore*100, res.MasteryAfter*100))))
	b.WriteString("\n\n")

	n := 0
	for _, q := range s.questions {
		if !assessment.IsGradeable(q) {
			continue
		}
		n++
		ev, ok := res.Evaluations[q.QuestionID()]
		mark := theme.Incorrect.Render("✗")
		if ok && ev.Correct {
			mark = theme.Correct.Render("✓")
		}
		line := fmt.Sprintf("  %s %d. %s", mark, n, q.Prompt())
		if ok && ev.Score < 100 && ev.Score > 0 {
			line += theme.Hint.Render(fmt.Sprintf("  (%d%%)", ev.Score))
		}
		b.WriteString(lipgloss.NewStyle().Width(width - 2).Render(line))
		b.WriteString("\n")
		if ok && ev.Feedback != "" {
			b.WriteString(theme.Hint.Width(width - 6).MarginLeft(6).Render(ev.Feedback))
			b.WriteString("\n")
		}
	}

	writeList(&b, "Strengths", res.Strengths, theme.Correct)
	writeList(&b, "Common misconceptions", res.CommonMisconceptions, theme.Warning)
	writeList(&b, "Recommendations", res.Recommendations, theme.Body)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string, style lipgloss.Style) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(theme.SectionHeading.Render("  " + heading))
	b.WriteString("\n")
	for _, it := range items {
		b.WriteString(style.Render("    • " + it))
		b.WriteString("\n")
	}
}
