package components

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/ui/theme"
)

// Rating is a 1..Max star selector.
type Rating struct {
	Max   int
	Value int
}

// NewRating returns an unset rating.
func NewRating(maxValue int) Rating {
	return Rating{Max: maxValue}
}

// Update handles digits and left/right. It reports true when the learner
// confirms with enter on a set value.
func (r Rating) Update(msg tea.Msg) (Rating, bool) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return r, false
	}
	key := kmsg.String()
	switch key {
	case "left", "h":
		if r.Value > 1 {
			r.Value--
		}
	case "right", "l":
		if r.Value < r.Max {
			r.Value++
		}
	case "enter":
		return r, r.Value > 0
	default:
		if len(key) == 1 && key[0] >= '1' && int(key[0]-'0') <= r.Max {
			r.Value = int(key[0] - '0')
		}
	}
	return r, false
}

// View renders the stars and the numeric value.
func (r Rating) View() string {
	var b strings.Builder
	for i := 1; i <= r.Max; i++ {
		if i <= r.Value {
			b.WriteString(lipgloss.NewStyle().Foreground(theme.Accent).Render("★ "))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(theme.Border).Render("☆ "))
		}
	}
	if r.Value > 0 {
		b.WriteString(theme.Hint.Render(fmt.Sprintf(" %d/%d", r.Value, r.Max)))
	}
	return b.String()
}
