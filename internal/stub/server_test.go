package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/engage/internal/api"
	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
)

func newStub(t *testing.T, opts ...Option) (*Server, *api.Client) {
	t.Helper()
	lib, err := DefaultLibrary()
	require.NoError(t, err)
	s := New(lib, opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	c, err := api.New(api.Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	return s, c
}

func TestDefaultLibrary(t *testing.T) {
	lib, err := DefaultLibrary()
	require.NoError(t, err)
	assert.Equal(t, []string{"earth-science/tides", "geography/capitals"}, lib.Topics())

	fx, exact := lib.Lookup("Geography", " Capitals ")
	assert.True(t, exact)
	assert.Equal(t, "capitals", fx.Topic)

	fx, exact = lib.Lookup("history", "rome")
	assert.False(t, exact)
	assert.Equal(t, "tides", fx.Topic)

	// Every fixture question must decode to a gradeable variant.
	for _, topic := range lib.Topics() {
		parts := strings.SplitN(topic, "/", 2)
		fx, _ := lib.Lookup(parts[0], parts[1])
		for _, q := range assessment.FromRaw(fx.Questions) {
			assert.True(t, assessment.IsGradeable(q), "%s/%s: %+v", topic, q.QuestionID(), q)
		}
	}
}

func TestLoadLibrary_Errors(t *testing.T) {
	_, err := LoadLibrary(fstest.MapFS{})
	assert.Error(t, err)

	_, err = LoadLibrary(fstest.MapFS{"x.yaml": {Data: []byte("subject: only\n")}})
	assert.Error(t, err)

	lib, err := LoadLibrary(fstest.MapFS{"x.yaml": {Data: []byte("subject: s\ntopic: t\nsections:\n  - id: a\n    type: Introduction\n    content: hi\n")}})
	require.NoError(t, err)
	fx, _ := lib.Lookup("s", "t")
	assert.Equal(t, content.SectionIntro, fx.Sections[0].Type)
}

func TestContent_JSONAndStream(t *testing.T) {
	_, c := newStub(t)
	ctx := context.Background()

	lesson, err := c.FetchContent(ctx, content.FetchRequest{ContentType: content.KindLesson, Subject: "earth-science", Topic: "tides"})
	require.NoError(t, err)
	assert.Len(t, lesson.Sections, 6)
	assert.NotEmpty(t, lesson.Metadata.InteractionID)

	cards, err := c.FetchContent(ctx, content.FetchRequest{ContentType: content.KindFlashcards, Subject: "earth-science", Topic: "tides"})
	require.NoError(t, err)
	assert.Len(t, cards.Sections, 3)
	assert.NotEqual(t, lesson.Metadata.InteractionID, cards.Metadata.InteractionID)

	var last int
	streamed, err := c.StreamContent(ctx, content.FetchRequest{ContentType: content.KindCheatsheet, Subject: "geography", Topic: "capitals"}, func(f content.Frame) {
		assert.GreaterOrEqual(t, f.Progress, last)
		last = f.Progress
	})
	require.NoError(t, err)
	assert.Equal(t, 100, last)
	assert.Equal(t, 0, content.CountType(streamed.Sections, content.SectionPractice))
}

func TestContent_RejectsUnknownType(t *testing.T) {
	s, _ := newStub(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/content", strings.NewReader(`{"content_type":"podcast"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_content_type")
}

func TestFeedback(t *testing.T) {
	s, c := newStub(t)
	rating := 4
	require.NoError(t, c.SendFeedback(context.Background(), engagement.Payload{
		InteractionID: "int-1", EngagementRating: &rating, TimeSpentSeconds: 50, CompletionPercentage: 70,
	}))
	got := s.Feedback()
	require.Len(t, got, 1)
	assert.Equal(t, 4, *got[0].EngagementRating)

	bad := 9
	err := c.SendFeedback(context.Background(), engagement.Payload{InteractionID: "int-1", HelpfulRating: &bad})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad_rating", apiErr.Code)

	err = c.SendFeedback(context.Background(), engagement.Payload{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Len(t, s.Feedback(), 1)
}

func TestAssessment_EndToEnd(t *testing.T) {
	_, c := newStub(t)
	ctx := context.Background()

	e := assessment.NewEngine(c, assessment.FetchRequest{Subject: "earth-science", Topic: "tides"})
	require.NoError(t, e.Start(ctx))

	sess := e.Session()
	require.Len(t, sess.Questions, 6)

	answers := map[string]assessment.Response{
		"tq-cause":  assessment.OptionResponse{Option: "The moon's gravity"},
		"tq-twice":  assessment.BoolResponse{Value: true},
		"tq-spring": assessment.TextResponse{Text: "  Spring Tides "},
		"tq-gap":    assessment.BlanksResponse{Blanks: map[string]string{"hours": "12", "minutes": "25", "kind": "spring"}},
		"tq-match":  assessment.PairingFrom(map[string]string{"new": "spring", "quarter": "neap"}),
		"tq-explain": assessment.EssayResponse{Text: "The moon pulls the solid Earth toward it more strongly than it pulls the " +
			"water on the far side, so that water is left behind and piles up into a second bulge."},
	}
	for id, r := range answers {
		require.NoError(t, e.SubmitResponse(id, r))
	}

	res, err := e.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 66, res.Evaluations["tq-gap"].Score)
	assert.True(t, res.Evaluations["tq-match"].Correct)
	assert.Equal(t, 100, res.Evaluations["tq-explain"].Score)
	// (100*4 + 66 + 100) / 6 = 94.33
	assert.Equal(t, 94, res.OverallScore)
	assert.Greater(t, res.MasteryAfter, res.MasteryBefore)
	assert.NotEmpty(t, res.Strengths)
	assert.NotEmpty(t, res.Recommendations)
}

func TestAssessment_SelectsTypesAndCount(t *testing.T) {
	_, c := newStub(t)
	a, err := c.FetchAssessment(context.Background(), assessment.FetchRequest{
		Subject: "geography", Topic: "capitals", QuestionCount: 1, QuestionTypes: []string{"true-false", "matching"},
	})
	require.NoError(t, err)
	require.Len(t, a.Questions, 1)
	assert.IsType(t, &assessment.TrueFalse{}, a.Questions[0])

	_, err = c.FetchAssessment(context.Background(), assessment.FetchRequest{Subject: "geography", Topic: "capitals", QuestionTypes: []string{"long-answer"}})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

type fixedEvaluator struct{ score int }

func (f fixedEvaluator) Evaluate(_ context.Context, q *assessment.LongAnswer, _ string) (assessment.EvaluationResult, error) {
	return assessment.EvaluationResult{QuestionID: q.ID, Score: f.score, Correct: f.score >= 60}, nil
}

func TestSubmit_UsesEvaluatorAndKeepsMasteryOnResubmit(t *testing.T) {
	s, c := newStub(t, WithEvaluator(fixedEvaluator{score: 40}))
	ctx := context.Background()

	a, err := c.FetchAssessment(ctx, assessment.FetchRequest{Subject: "earth-science", Topic: "tides", QuestionTypes: []string{"long-answer"}})
	require.NoError(t, err)
	responses := map[string]assessment.Response{"tq-explain": assessment.EssayResponse{Text: "gravity"}}

	first, err := c.SubmitAssessment(ctx, a.ID, responses)
	require.NoError(t, err)
	assert.Equal(t, 40, first.OverallScore)

	second, err := c.SubmitAssessment(ctx, a.ID, responses)
	require.NoError(t, err)
	assert.Equal(t, first.MasteryAfter, second.MasteryAfter)
	assert.Equal(t, first.MasteryBefore, second.MasteryBefore)

	body, _ := json.Marshal(map[string]any{"assessment_id": "nope", "responses": map[string]any{}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/assessments/nope/submit", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLengthScore(t *testing.T) {
	q := &assessment.LongAnswer{Base: assessment.Base{ID: "q"}, MinWords: 10, Rubric: "mention gravity"}
	res := lengthScore(q, "one two three four five")
	assert.Equal(t, 50, res.Score)
	assert.False(t, res.Correct)
	assert.Contains(t, res.Feedback, "mention gravity")

	assert.Equal(t, 100, lengthScore(q, strings.Repeat("w ", 30)).Score)
}
