package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/screen"
)

type fakeSource struct {
	resp  *content.FetchResponse
	errs  []error
	calls int
	ctx   context.Context
}

func (f *fakeSource) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSource) FetchContent(ctx context.Context, _ content.FetchRequest) (*content.FetchResponse, error) {
	f.ctx = ctx
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.resp, nil
}

func (f *fakeSource) StreamContent(ctx context.Context, _ content.FetchRequest, onFrame func(content.Frame)) (*content.FetchResponse, error) {
	f.ctx = ctx
	if err := f.next(); err != nil {
		return nil, err
	}
	n := len(f.resp.Sections)
	for i := range f.resp.Sections {
		onFrame(content.Frame{Progress: (i + 1) * 90 / n, Section: &f.resp.Sections[i]})
	}
	onFrame(content.Frame{Progress: 100, Metadata: &f.resp.Metadata})
	return f.resp, nil
}

type recordingSender struct {
	mu       sync.Mutex
	payloads []engagement.Payload
}

func (r *recordingSender) SendFeedback(_ context.Context, p engagement.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return nil
}

func (r *recordingSender) sent() []engagement.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engagement.Payload(nil), r.payloads...)
}

// Each section lays out as 7 lines: heading plus three one-line paragraphs
// each followed by a blank.
func threeSections(practice bool) *content.FetchResponse {
	last := content.SectionSummary
	if practice {
		last = content.SectionPractice
	}
	return &content.FetchResponse{
		Sections: []content.Section{
			{ID: "s1", Type: content.SectionIntro, Title: "Intro", Body: "a\n\nb\n\nc", Ordinal: 1},
			{ID: "s2", Type: content.SectionConcept, Title: "Concept", Body: "d\n\ne\n\nf", Ordinal: 2},
			{ID: "s3", Type: last, Title: "Last", Body: "g\n\nh\n\ni", Ordinal: 3},
		},
		Metadata: content.Metadata{InteractionID: "int-42"},
	}
}

type fixture struct {
	v      *Viewer
	env    *screen.Env
	src    *fakeSource
	sender *recordingSender
	now    time.Time
}

func newFixture(t *testing.T, kind content.Kind, stream bool) *fixture {
	t.Helper()
	f := &fixture{
		src:    &fakeSource{resp: threeSections(kind == content.KindScenario)},
		sender: &recordingSender{},
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.env = &screen.Env{Learner: "ada", Content: f.src, Feedback: f.sender, Stream: stream}
	f.v = New(f.env, kind, "earth-science", "tides", WithClock(func() time.Time { return f.now }))
	f.v.Update(screen.ResizeMsg{Width: 60, Height: 8})
	return f
}

// load runs the fetch command chain to completion.
func (f *fixture) load(t *testing.T) {
	t.Helper()
	cmd := f.v.fetch()
	for i := 0; cmd != nil && i < 50; i++ {
		msg := cmd()
		if msg == nil {
			break
		}
		_, cmd = f.v.Update(msg)
		if _, done := msg.(fetchDoneMsg); done {
			return
		}
	}
}

func keyPress(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func specialKey(code rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: code}
}

func TestLoad_MarksFirstSectionSeen(t *testing.T) {
	f := newFixture(t, content.KindLesson, false)
	f.load(t)

	st := f.v.tracker.State()
	assert.True(t, st.ContentLoaded)
	assert.Equal(t, 3, st.TotalSections)
	assert.Equal(t, []string{"s1"}, st.SeenSectionIDs)
	assert.InDelta(t, 33.3, st.ProgressPercent, 0.1)
	assert.False(t, st.ShowPrompt)
	assert.Equal(t, "int-42", f.v.tracker.Context().InteractionID)
	assert.Equal(t, 1, f.src.calls)
}

func TestLoad_ReleasesFetchContext(t *testing.T) {
	for _, stream := range []bool{false, true} {
		f := newFixture(t, content.KindLesson, stream)
		f.load(t)

		require.NotNil(t, f.src.ctx)
		assert.ErrorIs(t, f.src.ctx.Err(), context.Canceled, "stream=%v", stream)
		assert.Nil(t, f.v.cancel)
	}
}

func TestStream_ProgressReachesHundred(t *testing.T) {
	f := newFixture(t, content.KindLesson, true)

	var seen []int
	cmd := f.v.fetch()
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			break
		}
		_, cmd = f.v.Update(msg)
		seen = append(seen, f.v.progress)
		if _, done := msg.(fetchDoneMsg); done {
			break
		}
	}

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
	assert.True(t, f.v.tracker.State().ContentLoaded)
}

func TestScrolling_OpensPromptAndSubmits(t *testing.T) {
	f := newFixture(t, content.KindLesson, false)
	f.load(t)

	for range 3 {
		f.v.Update(tea.KeyPressMsg{Code: tea.KeySpace, Text: " "})
	}
	require.True(t, f.v.tracker.State().ShowPrompt)
	promptHeight := f.v.vp.Height()

	// The prompt box takes lines from the viewport; the rest of the
	// lesson is still reachable and still counted.
	f.v.Update(specialKey(tea.KeyEnd))
	st := f.v.tracker.State()
	assert.Equal(t, promptHeight, f.v.vp.Height())
	require.ElementsMatch(t, []string{"s1", "s2", "s3"}, st.SeenSectionIDs)
	require.True(t, st.ShowPrompt)

	f.v.Update(keyPress('4'))
	_, cmd := f.v.Update(specialKey(tea.KeyEnter))
	require.NotNil(t, cmd)
	f.v.Update(cmd())

	sent := f.sender.sent()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].HelpfulRating)
	assert.Equal(t, 4, *sent[0].HelpfulRating)
	assert.Nil(t, sent[0].EngagementRating)
	assert.Equal(t, 100, sent[0].CompletionPercentage)
	assert.Equal(t, "int-42", sent[0].InteractionID)
	assert.True(t, f.v.tracker.State().FeedbackSubmitted)

	// Teardown after an explicit submit sends nothing more.
	f.v.Close()
	require.NoError(t, f.env.Drain(context.Background()))
	assert.Len(t, f.sender.sent(), 1)
}

func TestClose_SendsReducedPayload(t *testing.T) {
	f := newFixture(t, content.KindFlashcards, false)
	f.load(t)
	f.now = f.now.Add(45 * time.Second)

	f.v.Close()
	f.v.Close()
	require.NoError(t, f.env.Drain(context.Background()))

	sent := f.sender.sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Reduced)
	assert.Nil(t, sent[0].HelpfulRating)
	assert.Nil(t, sent[0].EngagementRating)
	assert.Equal(t, 45, sent[0].TimeSpentSeconds)
	assert.Equal(t, 33, sent[0].CompletionPercentage)
}

func TestClose_TooShortSendsNothing(t *testing.T) {
	f := newFixture(t, content.KindLesson, false)
	f.load(t)
	f.now = f.now.Add(10 * time.Second)

	f.v.Close()
	require.NoError(t, f.env.Drain(context.Background()))
	assert.Empty(t, f.sender.sent())
}

func TestBlur_PausesClockAndDropsStaleTicks(t *testing.T) {
	f := newFixture(t, content.KindLesson, false)
	f.load(t)

	f.now = f.now.Add(20 * time.Second)
	f.v.Update(tea.BlurMsg{})
	assert.True(t, f.v.Status().Paused)

	_, cmd := f.v.Update(tickMsg{gen: 0})
	assert.Nil(t, cmd, "tick from before the blur must be ignored")

	f.now = f.now.Add(time.Hour)
	_, cmd = f.v.Update(tea.FocusMsg{})
	assert.NotNil(t, cmd)
	assert.Equal(t, 20, f.v.tracker.State().ActiveSeconds)

	_, cmd = f.v.Update(tickMsg{gen: f.v.tickGen})
	assert.NotNil(t, cmd)
}

func TestRetry_AfterFailure(t *testing.T) {
	f := newFixture(t, content.KindCheatsheet, false)
	f.src.errs = []error{errors.New("503 unavailable")}
	f.load(t)
	require.Error(t, f.v.err)
	assert.Contains(t, f.v.View(60, 8), "retry")

	_, cmd := f.v.Update(keyPress('r'))
	require.NotNil(t, cmd)
	f.v.Update(cmd())

	assert.NoError(t, f.v.err)
	assert.True(t, f.v.tracker.State().ContentLoaded)
	assert.Equal(t, 2, f.src.calls)
}

func TestScenario_ReflectionFeedsProgress(t *testing.T) {
	f := newFixture(t, content.KindScenario, false)
	f.load(t)
	for range 3 {
		f.v.Update(tea.KeyPressMsg{Code: tea.KeySpace, Text: " "})
	}
	before := f.v.tracker.State().ProgressPercent
	assert.InDelta(t, 70.0, before, 0.01)

	f.v.Update(keyPress('w'))
	require.True(t, f.v.CapturesInput())
	for _, r := range "Move inland early" {
		f.v.Update(keyPress(r))
	}
	f.v.Update(specialKey(tea.KeyEscape))

	assert.False(t, f.v.CapturesInput())
	assert.Equal(t, "Move inland early", f.v.tracker.Response("s3"))
	assert.InDelta(t, 100.0, f.v.tracker.State().ProgressPercent, 0.01)
}

func TestLayout_Blocks(t *testing.T) {
	doc := layoutDocument(content.KindLesson, threeSections(false).Sections, 40, nil)
	require.Len(t, doc.blocks, 12)
	assert.Equal(t, engagement.BlockHeading, doc.blocks[0].Kind)
	assert.Equal(t, 0, doc.starts["s1"])
	assert.Equal(t, 8, doc.starts["s2"])
	assert.Equal(t, 16, doc.starts["s3"])
	assert.Equal(t, "s2", doc.sectionAt(10, threeSections(false).Sections))
}
