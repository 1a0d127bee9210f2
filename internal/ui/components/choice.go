package components

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/ui/theme"
)

// Choice is a single-select list. With Labeled set, options are shown as
// "A)  text" and a letter key selects the option at that position.
type Choice struct {
	Options  []string
	Labeled  bool
	Cursor   int
	Chosen   int // -1 until a choice is made
	Disabled bool
}

// NewChoice creates a selector with nothing chosen.
func NewChoice(options []string, labeled bool) Choice {
	return Choice{Options: options, Labeled: labeled, Chosen: -1}
}

// Choose marks an option as chosen and moves the cursor to it. Out of
// range indexes clear the choice.
func (c *Choice) Choose(i int) {
	if i < 0 || i >= len(c.Options) {
		c.Chosen = -1
		return
	}
	c.Chosen = i
	c.Cursor = i
}

// Value returns the chosen option text.
func (c Choice) Value() (string, bool) {
	if c.Chosen < 0 || c.Chosen >= len(c.Options) {
		return "", false
	}
	return c.Options[c.Chosen], true
}

// Update handles navigation. The returned bool reports that the choice
// changed.
func (c Choice) Update(msg tea.Msg) (Choice, bool) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok || c.Disabled || len(c.Options) == 0 {
		return c, false
	}

	key := kmsg.String()
	switch key {
	case "up", "k":
		if c.Cursor > 0 {
			c.Cursor--
		}
	case "down", "j":
		if c.Cursor < len(c.Options)-1 {
			c.Cursor++
		}
	case "enter", "space", " ":
		changed := c.Chosen != c.Cursor
		c.Chosen = c.Cursor
		return c, changed
	default:
		if !c.Labeled || len(key) != 1 {
			break
		}
		r := key[0]
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		i := int(r) - 'A'
		if i >= 0 && i < len(c.Options) {
			changed := c.Chosen != i
			c.Choose(i)
			return c, changed
		}
	}
	return c, false
}

// View renders the options.
func (c Choice) View() string {
	var b strings.Builder
	for i, opt := range c.Options {
		prefix := "  "
		if i == c.Cursor && !c.Disabled {
			prefix = "▸ "
		}
		mark := "( )"
		if i == c.Chosen {
			mark = "(•)"
		}
		line := fmt.Sprintf("%s%s %s", prefix, mark, opt)
		if c.Labeled {
			line = fmt.Sprintf("%s%s %s)  %s", prefix, mark, string(rune('A'+i)), opt)
		}

		style := lipgloss.NewStyle().Foreground(theme.Text)
		switch {
		case c.Disabled:
			style = lipgloss.NewStyle().Foreground(theme.TextDim)
		case i == c.Chosen:
			style = theme.Correct
		case i == c.Cursor:
			style = theme.Selected
		}
		b.WriteString(style.Render(line) + "\n")
	}
	return b.String()
}
