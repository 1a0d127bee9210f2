package home

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/ui/theme"
)

const titleFull = `┌─┐┌┐┌┌─┐┌─┐┌─┐┌─┐
├┤ ││││ ┬├─┤│ ┬├┤
└─┘┘└┘└─┘┴ ┴└─┘└─┘`

const titleCompact = "e · n · g · a · g · e"

// contentWidth returns the uniform inner width used for all sections.
func contentWidth(frameWidth int) int {
	// Leave room for the frame border (2) and inner padding (4).
	return min(max(frameWidth-6, 20), 60)
}

func renderTitle(cw int, compact bool) string {
	style := lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	title := titleFull
	if compact {
		title = titleCompact
	}
	return lipgloss.NewStyle().
		Width(cw).
		Align(lipgloss.Center).
		Render(style.Render(title))
}

// renderSubject shows what the next session will be about.
func renderSubject(subject, topic string, cw int) string {
	label := lipgloss.NewStyle().Foreground(theme.TextDim)
	value := lipgloss.NewStyle().Foreground(theme.Secondary).Bold(true)
	line := label.Render("subject ") + value.Render(subject) +
		label.Render("   topic ") + value.Render(topic)
	return lipgloss.NewStyle().
		Width(cw).
		Align(lipgloss.Center).
		Render(line)
}

// renderStatsBar renders the journal summary in a bordered box matching
// content width.
func renderStatsBar(st stats, cw int, compact bool) string {
	quizStyle := lipgloss.NewStyle().Foreground(theme.Accent).Bold(true)
	feedbackStyle := lipgloss.NewStyle().Foreground(theme.Secondary).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(theme.TextDim)

	var line string
	switch {
	case !st.loaded:
		line = dimStyle.Render("loading journal...")
	case compact:
		line = fmt.Sprintf("%s %s %s",
			quizStyle.Render(fmt.Sprintf("✎%d", st.quizzes)),
			quizStyle.Render(fmt.Sprintf("⌀%.0f%%", st.avgScore)),
			feedbackStyle.Render(fmt.Sprintf("★%d", st.feedback)),
		)
	default:
		score := dimStyle.Render("NO SCORES YET")
		if st.quizzes > 0 {
			score = quizStyle.Render(fmt.Sprintf("AVG %.0f%%", st.avgScore))
		}
		line = fmt.Sprintf("%s  %s  %s",
			quizStyle.Render(fmt.Sprintf("✎ %d QUIZZES", st.quizzes)),
			score,
			feedbackStyle.Render(fmt.Sprintf("★ %d RATED", st.feedback)),
		)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Secondary).
		Width(cw - 2). // account for border chars
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(line)
}

// buttonWidth is the fixed width for menu buttons.
const buttonWidth = 24

// renderMenu renders each menu item as a fixed-width line, numbered so a
// digit jumps to it.
func renderMenu(labels []string, selected int, cw int, disabled map[int]bool) string {
	selectedBtn := lipgloss.NewStyle().
		Width(buttonWidth).
		Bold(true).
		Foreground(theme.BgDark).
		Background(theme.Primary).
		Padding(0, 1)

	normalBtn := lipgloss.NewStyle().
		Width(buttonWidth).
		Foreground(theme.Text).
		Padding(0, 1)

	disabledBtn := normalBtn.Foreground(theme.TextDim)

	var lines []string
	for i, label := range labels {
		text := fmt.Sprintf("%d  %s", i+1, label)
		switch {
		case disabled[i]:
			lines = append(lines, disabledBtn.Render(text))
		case i == selected:
			lines = append(lines, selectedBtn.Render("▸ "+text))
		default:
			lines = append(lines, normalBtn.Render("  "+text))
		}
	}

	return lipgloss.NewStyle().
		Width(cw).
		Align(lipgloss.Center).
		Render(strings.Join(lines, "\n"))
}

// renderOfflineBanner warns when no content service is configured.
func renderOfflineBanner(cw int) string {
	return lipgloss.NewStyle().
		Foreground(theme.Accent).
		Width(cw).
		Align(lipgloss.Center).
		Render("⚠ No content service configured (see engage --help)")
}

// renderFrame wraps content in a rounded frame, centered vertically and
// horizontally within the given dimensions.
func renderFrame(content string, width, height int) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Primary).
		Width(width - 2).   // account for border chars
		Height(height - 2). // account for border chars
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}
