package home

import (
	"context"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/router"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/screens/history"
	"github.com/abhisek/engage/internal/screens/quiz"
	"github.com/abhisek/engage/internal/screens/viewer"
	"github.com/abhisek/engage/internal/ui/components"
	"github.com/abhisek/engage/internal/ui/layout"
	"github.com/abhisek/engage/internal/ui/theme"
)

// Options are the session defaults the home screen starts from.
type Options struct {
	Subject       string
	Topic         string
	QuestionCount int
	QuestionTypes []string
}

type stats struct {
	loaded   bool
	quizzes  int
	avgScore float64
	feedback int
}

type statsLoadedMsg struct {
	stats stats
	err   error
}

// HomeScreen is the main menu: one entry per surface plus the journal.
type HomeScreen struct {
	env    *screen.Env
	opts   Options
	menu   components.Menu
	labels []string
	stats  stats

	editing bool
	fields  [2]components.TextInput
	field   int
}

var _ screen.Screen = (*HomeScreen)(nil)
var _ screen.KeyHintProvider = (*HomeScreen)(nil)
var _ screen.InputCapturer = (*HomeScreen)(nil)

// New creates a new HomeScreen.
func New(env *screen.Env, opts Options) *HomeScreen {
	h := &HomeScreen{env: env, opts: opts}

	var items []components.MenuItem
	for _, kind := range content.Kinds() {
		if kind == content.KindQuiz {
			continue
		}
		items = append(items, components.MenuItem{
			Label:    surfaceLabel(kind),
			Disabled: env.Content == nil,
			Action: func() tea.Cmd {
				return router.Push(viewer.New(h.env, kind, h.opts.Subject, h.opts.Topic))
			},
		})
	}
	items = append(items,
		components.MenuItem{
			Label:    "Quiz",
			Disabled: env.Assessments == nil,
			Action: func() tea.Cmd {
				return router.Push(quiz.New(h.env, h.opts.Subject, h.opts.Topic, h.opts.QuestionCount, h.opts.QuestionTypes))
			},
		},
		components.MenuItem{
			Label:    "Journal",
			Disabled: env.Repo == nil,
			Action: func() tea.Cmd {
				return router.Push(history.New(h.env.Repo))
			},
		},
		components.MenuItem{
			Label:  "Quit",
			Action: func() tea.Cmd { return tea.Quit },
		},
	)

	h.menu = components.NewMenu(items)
	for _, it := range items {
		h.labels = append(h.labels, it.Label)
	}
	return h
}

func surfaceLabel(k content.Kind) string {
	s := string(k)
	return strings.ToUpper(s[:1]) + s[1:]
}

func (h *HomeScreen) Init() tea.Cmd {
	return h.loadStats()
}

func (h *HomeScreen) Title() string {
	return "Home"
}

func (h *HomeScreen) CapturesInput() bool {
	return h.editing
}

func (h *HomeScreen) KeyHints() []layout.KeyHint {
	if h.editing {
		return []layout.KeyHint{
			{Key: "Tab", Description: "Switch field"},
			{Key: "Enter", Description: "Save"},
			{Key: "Esc", Description: "Cancel"},
		}
	}
	return []layout.KeyHint{
		{Key: "↑↓/1-7", Description: "Navigate"},
		{Key: "Enter", Description: "Select"},
		{Key: "t", Description: "Change topic"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (h *HomeScreen) loadStats() tea.Cmd {
	repo := h.env.Repo
	if repo == nil {
		return nil
	}
	return func() tea.Msg {
		ctx := context.Background()
		qs, err := repo.QuizStats(ctx)
		if err != nil {
			return statsLoadedMsg{err: err}
		}
		fs, err := repo.FeedbackStats(ctx)
		if err != nil {
			return statsLoadedMsg{err: err}
		}
		st := stats{loaded: true, quizzes: qs.Quizzes, avgScore: qs.AvgScore}
		for _, s := range fs {
			st.feedback += s.Submissions - s.Reduced
		}
		return statsLoadedMsg{stats: st}
	}
}

func (h *HomeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case screen.ResizeMsg:
		// Also sent when home becomes active again, so the journal
		// summary is refreshed after every session.
		return h, h.loadStats()

	case statsLoadedMsg:
		if msg.err != nil {
			h.env.Logger().Warn("journal stats unavailable", "error", msg.err)
			h.stats = stats{loaded: true}
			return h, nil
		}
		h.stats = msg.stats
		return h, nil

	case tea.KeyMsg:
		if h.editing {
			return h, h.updateEditor(msg)
		}
		if msg.String() == "t" {
			return h, h.startEdit()
		}
	}

	var cmd tea.Cmd
	h.menu, cmd = h.menu.Update(msg)
	return h, cmd
}

func (h *HomeScreen) startEdit() tea.Cmd {
	h.editing = true
	h.fields[0] = components.NewTextInput("subject", 30)
	h.fields[0].SetValue(h.opts.Subject)
	h.fields[1] = components.NewTextInput("topic", 30)
	h.fields[1].SetValue(h.opts.Topic)
	h.fields[1].Blur()
	h.field = 0
	return h.fields[0].Focus()
}

func (h *HomeScreen) updateEditor(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		h.editing = false
		return nil
	case "enter":
		if s := h.fields[0].Value(); s != "" {
			h.opts.Subject = s
		}
		if s := h.fields[1].Value(); s != "" {
			h.opts.Topic = s
		}
		h.editing = false
		return nil
	case "tab", "shift+tab", "up", "down":
		h.fields[h.field].Blur()
		h.field = 1 - h.field
		return h.fields[h.field].Focus()
	}
	var cmd tea.Cmd
	h.fields[h.field], cmd = h.fields[h.field].Update(msg)
	return cmd
}

// Subject returns the current subject and topic.
func (h *HomeScreen) Subject() (subject, topic string) {
	return h.opts.Subject, h.opts.Topic
}

func (h *HomeScreen) View(width, height int) string {
	compact := height < 24 || width < 90
	cw := contentWidth(width)

	var sections []string
	sections = append(sections, renderTitle(cw, compact))

	if h.editing {
		form := theme.Body.Render("Subject ") + h.fields[0].View() + "\n" +
			theme.Body.Render("Topic   ") + h.fields[1].View()
		sections = append(sections, theme.Prompt.Width(cw).Render(form))
	} else {
		sections = append(sections, renderSubject(h.opts.Subject, h.opts.Topic, cw))
	}

	if h.env.Repo != nil {
		sections = append(sections, renderStatsBar(h.stats, cw, compact))
	}
	if h.env.Content == nil {
		sections = append(sections, renderOfflineBanner(cw))
	}

	disabled := make(map[int]bool)
	for i, it := range h.menu.Items {
		disabled[i] = it.Disabled
	}
	sections = append(sections, renderMenu(h.labels, h.menu.Selected, cw, disabled))

	return renderFrame(strings.Join(sections, "\n\n"), width, height)
}
