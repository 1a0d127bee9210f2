// Package history is the journal screen: past feedback submissions and
// quiz results, newest first.
package history

import (
	"context"
	"fmt"
	"image/color"
	"sort"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/router"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/store"
	"github.com/abhisek/engage/internal/ui/layout"
	"github.com/abhisek/engage/internal/ui/theme"
)

const pageSize = 50

// entry is one journal line: a feedback event or a quiz result.
type entry struct {
	at       time.Time
	feedback *store.FeedbackEventRecord
	quiz     *store.QuizResultRecord
}

type historyLoadedMsg struct {
	Entries []entry
	Err     error
}

// HistoryScreen displays the local journal.
type HistoryScreen struct {
	eventRepo store.EventRepo
	entries   []entry
	selected  int
	expanded  map[int]bool
	loaded    bool
	errMsg    string
}

var _ screen.Screen = (*HistoryScreen)(nil)
var _ screen.KeyHintProvider = (*HistoryScreen)(nil)

// New creates a new HistoryScreen.
func New(eventRepo store.EventRepo) *HistoryScreen {
	return &HistoryScreen{
		eventRepo: eventRepo,
		expanded:  make(map[int]bool),
	}
}

func (s *HistoryScreen) Init() tea.Cmd {
	repo := s.eventRepo
	return func() tea.Msg {
		return loadJournal(context.Background(), repo)
	}
}

func loadJournal(ctx context.Context, repo store.EventRepo) historyLoadedMsg {
	if repo == nil {
		return historyLoadedMsg{Err: fmt.Errorf("no journal database")}
	}
	feedback, err := repo.QueryFeedback(ctx, store.QueryOpts{Limit: pageSize})
	if err != nil {
		return historyLoadedMsg{Err: err}
	}
	quizzes, err := repo.QueryQuizResults(ctx, store.QueryOpts{Limit: pageSize})
	if err != nil {
		return historyLoadedMsg{Err: err}
	}

	entries := make([]entry, 0, len(feedback)+len(quizzes))
	for i := range feedback {
		entries = append(entries, entry{at: feedback[i].Timestamp, feedback: &feedback[i]})
	}
	for i := range quizzes {
		entries = append(entries, entry{at: quizzes[i].Timestamp, quiz: &quizzes[i]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.After(entries[j].at)
	})
	return historyLoadedMsg{Entries: entries}
}

func (s *HistoryScreen) Title() string {
	return "Journal"
}

func (s *HistoryScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Details"},
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *HistoryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
		} else {
			s.entries = msg.Entries
		}
		s.loaded = true
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, router.Pop()
		case "up", "k":
			if s.selected > 0 {
				s.selected--
			}
			return s, nil
		case "down", "j":
			if s.selected < len(s.entries)-1 {
				s.selected++
			}
			return s, nil
		case "enter":
			s.expanded[s.selected] = !s.expanded[s.selected]
			return s, nil
		}
	}
	return s, nil
}

func (s *HistoryScreen) View(width, height int) string {
	if s.errMsg != "" {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.Error).
			Render(fmt.Sprintf("\n\nError: %s", s.errMsg))
	}
	if !s.loaded {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("\n\n  Loading journal...")
	}
	if len(s.entries) == 0 {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Italic(true).
			Render("\n\n  Nothing here yet. Finish a lesson or a quiz!")
	}

	var b strings.Builder
	b.WriteString("\n")

	// Keep the selection on screen; each entry takes one line, two when
	// expanded.
	first := max(s.selected-max(height-4, 1)+1, 0)
	for i := first; i < len(s.entries); i++ {
		e := s.entries[i]
		prefix := "  "
		if i == s.selected {
			prefix = "> "
		}
		style := lipgloss.NewStyle().Foreground(theme.Text)
		if i == s.selected {
			style = style.Foreground(theme.Primary).Bold(true)
		}
		line := prefix + e.at.Local().Format("Jan 02 15:04") + "  " + summary(e)
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, style.Render(line)))
		b.WriteString("\n")

		if s.expanded[i] {
			d := lipgloss.NewStyle().Foreground(detailColor(e)).Italic(true).Render("    " + detail(e))
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, d))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func summary(e entry) string {
	if q := e.quiz; q != nil {
		return fmt.Sprintf("%-10s %-20s %3d%%  %d/%d correct", "quiz", clip(q.Topic, 20), q.OverallScore, q.Correct, q.Questions)
	}
	f := e.feedback
	rating := "-"
	switch {
	case f.HelpfulRating != nil:
		rating = fmt.Sprintf("helpful %d/5", *f.HelpfulRating)
	case f.EngagementRating != nil:
		rating = fmt.Sprintf("engaging %d/5", *f.EngagementRating)
	case f.Reduced:
		rating = "no rating"
	}
	return fmt.Sprintf("%-10s %-20s %3d%%  %s", f.Surface, clip(f.InteractionID, 20), f.CompletionPercent, rating)
}

func detail(e entry) string {
	if q := e.quiz; q != nil {
		return fmt.Sprintf("%s / %s · mastery %.0f%% → %.0f%% · assessment %s",
			q.Subject, q.Topic, q.MasteryBefore*100, q.MasteryAfter*100, q.AssessmentID)
	}
	f := e.feedback
	status := "delivered"
	if !f.Delivered {
		status = "failed: " + f.ErrorMessage
	}
	kind := "explicit"
	if f.Reduced {
		kind = "on exit"
	}
	return fmt.Sprintf("%s · %s active · %s · session %s",
		kind, time.Duration(f.TimeSpentSeconds)*time.Second, status, clip(f.SessionID, 8))
}

func detailColor(e entry) color.Color {
	switch {
	case e.quiz != nil:
		return theme.Accent
	case !e.feedback.Delivered:
		return theme.Error
	default:
		return theme.TextDim
	}
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
