package viewer

import (
	"context"
	"errors"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/engage/internal/content"
)

var errNoContentSource = errors.New("no content service configured")

// frameMsg carries one streamed frame. ch is the stream the next frame is
// read from.
type frameMsg struct {
	gen   int
	frame content.Frame
	ch    <-chan tea.Msg
}

// fetchDoneMsg ends a fetch, streamed or not.
type fetchDoneMsg struct {
	gen  int
	resp *content.FetchResponse
	err  error
}

// tickMsg is the one-second refresh of active time and the prompt.
type tickMsg struct {
	gen int
	at  time.Time
}

type feedbackSentMsg struct {
	err error
}

func (v *Viewer) tick() tea.Cmd {
	gen := v.tickGen
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg{gen: gen, at: t}
	})
}

// fetch starts a content fetch under a new generation. Streaming runs in a
// goroutine that hands frames to the update loop over a channel.
func (v *Viewer) fetch() tea.Cmd {
	if v.cancel != nil {
		v.cancel()
	}
	v.fetchGen++
	v.loading = true
	v.progress = 0
	gen, req, src := v.fetchGen, v.req, v.env.Content

	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel

	if src == nil {
		return func() tea.Msg {
			return fetchDoneMsg{gen: gen, err: errNoContentSource}
		}
	}
	if !v.env.Stream {
		return func() tea.Msg {
			resp, err := src.FetchContent(ctx, req)
			return fetchDoneMsg{gen: gen, resp: resp, err: err}
		}
	}

	ch := make(chan tea.Msg, 16)
	go func() {
		defer close(ch)
		resp, err := src.StreamContent(ctx, req, func(f content.Frame) {
			select {
			case ch <- frameMsg{gen: gen, frame: f, ch: ch}:
			case <-ctx.Done():
			}
		})
		select {
		case ch <- fetchDoneMsg{gen: gen, resp: resp, err: err}:
		case <-ctx.Done():
		}
	}()
	return waitFrame(ch)
}

// waitFrame reads the next message off a stream channel.
func waitFrame(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
