package app

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/router"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/screens/home"
	"github.com/abhisek/engage/internal/ui/layout"
)

// DefaultDrainTimeout bounds how long exit waits for teardown feedback.
const DefaultDrainTimeout = 5 * time.Second

// Options configure a run.
type Options struct {
	// Initial replaces the home screen as the root, e.g. for `engage view`.
	Initial      screen.Screen
	Home         home.Options
	DrainTimeout time.Duration
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	env    *screen.Env
	router *router.Router
	width  int
	height int
}

// newAppModel creates a new AppModel rooted at initial.
func newAppModel(env *screen.Env, initial screen.Screen) AppModel {
	return AppModel{
		env:    env,
		router: router.New(initial),
	}
}

func (m AppModel) Init() tea.Cmd {
	return m.router.Active().Init()
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, m.resizeActive()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if c, ok := m.router.Active().(screen.InputCapturer); ok && c.CapturesInput() {
				break
			}
			if m.router.Depth() > 1 {
				return m, router.Pop()
			}
			return m, nil
		}

	case router.PushScreenMsg, router.PopScreenMsg, router.ReplaceScreenMsg, router.PopToRootMsg:
		cmd := m.router.Update(msg)
		return m, tea.Batch(cmd, m.resizeActive())
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

// resizeActive tells the active screen how much room it has.
func (m AppModel) resizeActive() tea.Cmd {
	if m.width == 0 || m.height == 0 {
		return nil
	}
	w, h := m.contentSize()
	return m.router.Update(screen.ResizeMsg{Width: w, Height: h})
}

func (m AppModel) contentSize() (int, int) {
	return m.width, layout.ContentHeight(m.height)
}

func (m AppModel) status() layout.Status {
	if p, ok := m.router.Active().(screen.StatusProvider); ok {
		return p.Status()
	}
	return layout.NoProgress(m.env.Learner)
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	v.ReportFocus = true
	v.MouseMode = tea.MouseModeCellMotion

	if m.width == 0 || m.height == 0 {
		return v
	}

	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	active := m.router.Active()
	title := ""
	if active != nil {
		title = active.Title()
	}

	header := layout.RenderHeader(title, m.status(), m.width)

	var footerHints []layout.KeyHint
	if p, ok := active.(screen.KeyHintProvider); ok {
		footerHints = append(footerHints, p.KeyHints()...)
	} else if m.router.Depth() > 1 {
		footerHints = []layout.KeyHint{{Key: "Esc", Description: "Back"}}
	}
	footerHints = append(footerHints, layout.KeyHint{Key: "Ctrl+C", Description: "Quit"})

	footer := layout.RenderFooter(footerHints, m.width)

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := max(m.height-headerHeight-footerHeight, 0)

	content := m.router.View(m.width, contentHeight)
	frame := layout.RenderFrame(header, content, footer, m.width, m.height)

	v.SetContent(frame)
	return v
}

// Run starts the Bubble Tea program. On exit every open screen is closed
// and pending feedback is given DrainTimeout to finish.
func Run(env *screen.Env, opts Options) error {
	initial := opts.Initial
	if initial == nil {
		initial = home.New(env, opts.Home)
	}
	m := newAppModel(env, initial)

	p := tea.NewProgram(m)
	_, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error running program:", err)
	}

	m.router.CloseAll()
	timeout := opts.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if derr := env.Drain(ctx); derr != nil {
		env.Logger().Warn("pending feedback did not finish before exit", "error", derr)
	}
	return err
}
