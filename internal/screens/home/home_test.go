package home

import (
	"context"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/router"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/screens/viewer"
)

type nopSource struct{}

func (nopSource) FetchContent(context.Context, content.FetchRequest) (*content.FetchResponse, error) {
	return &content.FetchResponse{}, nil
}

func (nopSource) StreamContent(context.Context, content.FetchRequest, func(content.Frame)) (*content.FetchResponse, error) {
	return &content.FetchResponse{}, nil
}

func keyPress(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func TestMenu_DisablesMissingServices(t *testing.T) {
	h := New(&screen.Env{}, Options{Subject: "earth-science", Topic: "tides"})
	for _, it := range h.menu.Items {
		if it.Label == "Quit" {
			assert.False(t, it.Disabled)
			continue
		}
		assert.True(t, it.Disabled, it.Label)
	}
	assert.Equal(t, len(h.menu.Items)-1, h.menu.Selected)
	assert.NotEmpty(t, h.View(100, 30))
}

func TestMenu_OpensViewer(t *testing.T) {
	h := New(&screen.Env{Content: nopSource{}}, Options{Subject: "earth-science", Topic: "tides"})
	require.Equal(t, "Lesson", h.labels[0])

	_, cmd := h.Update(specialEnter())
	require.NotNil(t, cmd)
	push, ok := cmd().(router.PushScreenMsg)
	require.True(t, ok)
	v, ok := push.Screen.(*viewer.Viewer)
	require.True(t, ok)
	assert.Equal(t, "Lesson · tides", v.Title())
}

func TestDigitJumpsToSurface(t *testing.T) {
	h := New(&screen.Env{Content: nopSource{}}, Options{Topic: "tides"})
	_, cmd := h.Update(keyPress('3'))
	require.NotNil(t, cmd)
	push := cmd().(router.PushScreenMsg)
	assert.Equal(t, "Flashcards · tides", push.Screen.Title())
}

func TestEditTopic(t *testing.T) {
	h := New(&screen.Env{Content: nopSource{}}, Options{Subject: "earth-science", Topic: "tides"})
	h.Update(keyPress('t'))
	require.True(t, h.CapturesInput())

	h.Update(tea.KeyPressMsg{Code: tea.KeyTab})
	for range len("tides") {
		h.Update(tea.KeyPressMsg{Code: tea.KeyBackspace})
	}
	for _, r := range "currents" {
		h.Update(keyPress(r))
	}
	h.Update(specialEnter())

	assert.False(t, h.CapturesInput())
	subject, topic := h.Subject()
	assert.Equal(t, "earth-science", subject)
	assert.Equal(t, "currents", topic)
}

func TestEditTopic_EscCancels(t *testing.T) {
	h := New(&screen.Env{}, Options{Subject: "earth-science", Topic: "tides"})
	h.Update(keyPress('t'))
	h.Update(keyPress('x'))
	h.Update(tea.KeyPressMsg{Code: tea.KeyEscape})

	assert.False(t, h.CapturesInput())
	_, topic := h.Subject()
	assert.Equal(t, "tides", topic)
}

func specialEnter() tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: tea.KeyEnter}
}
