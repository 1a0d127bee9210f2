package screen

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/engage/internal/ui/layout"
)

// Screen defines the interface for all application screens.
type Screen interface {
	// Init returns an initial command when the screen is first created.
	Init() tea.Cmd

	// Update handles messages and returns updated screen + command.
	Update(msg tea.Msg) (Screen, tea.Cmd)

	// View renders the screen content (excluding header/footer).
	View(width, height int) string

	// Title returns the screen name for the header.
	Title() string
}

// KeyHintProvider is an optional interface that screens can implement
// to provide custom footer key hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// StatusProvider is an optional interface for screens that report
// session status in the header.
type StatusProvider interface {
	Status() layout.Status
}

// Closer is implemented by screens that hold a session. Close runs when
// the screen leaves the stack and must return without blocking.
type Closer interface {
	Close()
}

// InputCapturer is implemented by screens that sometimes need every key,
// including esc, e.g. while a text editor is open.
type InputCapturer interface {
	CapturesInput() bool
}

// ResizeMsg carries the content area size, i.e. the terminal minus the
// header and footer. The app sends it to the active screen on every
// resize and whenever a screen is pushed.
type ResizeMsg struct {
	Width  int
	Height int
}
