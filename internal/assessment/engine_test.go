package assessment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu         sync.Mutex
	assessment *Assessment
	fetchErr   error
	result     *QuizResult
	submitErr  error
	fetches    int
	submits    int
	submitted  map[string]Response
}

func (f *fakeService) FetchAssessment(_ context.Context, _ FetchRequest) (*Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.assessment, nil
}

func (f *fakeService) SubmitAssessment(_ context.Context, _ string, rs map[string]Response) (*QuizResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.submitted = rs
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.result, nil
}

type fakeEvaluator struct {
	mu    sync.Mutex
	score int
	err   error
	calls int
}

func (f *fakeEvaluator) Evaluate(_ context.Context, q *LongAnswer, _ string) (EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return EvaluationResult{}, f.err
	}
	return EvaluationResult{QuestionID: q.ID, Correct: f.score >= 60, Score: f.score, Feedback: "ok"}, nil
}

func sampleAssessment() *Assessment {
	return &Assessment{
		ID: "a-1",
		Questions: []Question{
			capitals(),
			&TrueFalse{Base: Base{ID: "tf", Text: "Earth is round."}, CorrectAnswer: true},
			&FillInBlank{Base: Base{ID: "fib", Text: "___ ___ ___"}, Blanks: []Blank{
				{ID: "b1", CorrectAnswer: "a"}, {ID: "b2", CorrectAnswer: "b"}, {ID: "b3", CorrectAnswer: "c"},
			}},
			&Invalid{Base: Base{ID: "broken"}, Reason: "missing options"},
		},
	}
}

func startedEngine(t *testing.T, svc Service, opts ...EngineOption) *Engine {
	t.Helper()
	e := NewEngine(svc, FetchRequest{Subject: "geo", Topic: "capitals", QuestionCount: 4}, opts...)
	require.Equal(t, StateLoading, e.State())
	require.NoError(t, e.Load(context.Background()))
	require.Equal(t, StateReady, e.State())
	require.NoError(t, e.Begin())
	require.Equal(t, StateInProgress, e.State())
	return e
}

func answerAll(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Paris"}))
	require.NoError(t, e.SubmitResponse("tf", BoolResponse{Value: false}))
	require.NoError(t, e.SubmitResponse("fib", BlanksResponse{Blanks: map[string]string{"b1": "A", "b2": "b", "b3": "x"}}))
}

func TestEngine_HappyPath(t *testing.T) {
	svc := &fakeService{
		assessment: sampleAssessment(),
		result: &QuizResult{
			MasteryBefore:   0.4,
			MasteryAfter:    0.55,
			Strengths:       []string{"European capitals"},
			Recommendations: []string{"Review boiling points"},
		},
	}
	e := startedEngine(t, svc)

	q, idx := e.Current()
	assert.Equal(t, 0, idx)
	assert.Equal(t, "q1", q.QuestionID())

	assert.False(t, e.IsComplete())
	answerAll(t, e)
	assert.True(t, e.IsComplete(), "invalid questions do not block completion")

	res, err := e.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, e.State())

	// (100 + 0 + 66) / 3 = 55.33
	assert.Equal(t, 55, res.OverallScore)
	assert.Equal(t, "a-1", res.AssessmentID)
	assert.Equal(t, 0.55, res.MasteryAfter)
	assert.Equal(t, []string{"European capitals"}, res.Strengths)
	assert.Len(t, res.Evaluations, 3)
	assert.Equal(t, 66, res.Evaluations["fib"].Score)
	assert.Len(t, svc.submitted, 3)

	again, err := e.Finalize(context.Background())
	require.NoError(t, err)
	assert.Same(t, res, again)
	assert.Equal(t, 1, svc.submits)
}

func TestEngine_SubmitResponseRules(t *testing.T) {
	e := NewEngine(&fakeService{assessment: sampleAssessment()}, FetchRequest{})
	assert.ErrorIs(t, e.SubmitResponse("q1", OptionResponse{Option: "Paris"}), ErrNotInProgress)

	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.SubmitResponse("nope", OptionResponse{}), ErrUnknownQuestion)
	assert.ErrorIs(t, e.SubmitResponse("q1", TextResponse{Text: "Paris"}), ErrResponseMismatch)
	assert.ErrorIs(t, e.SubmitResponse("broken", TextResponse{}), ErrInvalidQuestion)

	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Rome"}))
	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Paris"}))
	r, ok := e.Response("q1")
	require.True(t, ok)
	assert.Equal(t, OptionResponse{Option: "Paris"}, r, "last write wins")
}

func TestEngine_ClearResponse(t *testing.T) {
	e := startedEngine(t, &fakeService{assessment: sampleAssessment()})
	answerAll(t, e)
	require.True(t, e.IsComplete())

	require.NoError(t, e.ClearResponse("fib"))
	_, ok := e.Response("fib")
	assert.False(t, ok)
	assert.False(t, e.IsComplete())
	answered, total := e.Progress()
	assert.Equal(t, 2, answered)
	assert.Equal(t, 3, total)

	require.NoError(t, e.ClearResponse("fib"), "clearing twice is a no-op")
	assert.ErrorIs(t, e.ClearResponse("nope"), ErrUnknownQuestion)

	_, err := e.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestEngine_NoServiceIsLoadError(t *testing.T) {
	e := NewEngine(nil, FetchRequest{})
	assert.ErrorIs(t, e.Start(context.Background()), ErrNoService)
	assert.Equal(t, StateError, e.State())
	assert.ErrorIs(t, e.ClearResponse("q1"), ErrNotInProgress)
	assert.ErrorIs(t, e.Retry(context.Background()), ErrNoService)
	assert.Equal(t, StateError, e.State())
}

func TestEngine_Navigation(t *testing.T) {
	e := startedEngine(t, &fakeService{assessment: sampleAssessment()})

	assert.False(t, e.Previous(), "no-op at first question")
	for i := 0; i < 3; i++ {
		assert.True(t, e.Next())
	}
	assert.False(t, e.Next(), "no-op at last question")
	_, idx := e.Current()
	assert.Equal(t, 3, idx)
	assert.True(t, e.Previous())
	_, idx = e.Current()
	assert.Equal(t, 2, idx)
}

func TestEngine_FinalizeNeedsComplete(t *testing.T) {
	e := startedEngine(t, &fakeService{assessment: sampleAssessment()})
	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Paris"}))

	_, err := e.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, StateInProgress, e.State())
}

func TestEngine_LoadFailureAndRetry(t *testing.T) {
	svc := &fakeService{fetchErr: errors.New("connection refused")}
	e := NewEngine(svc, FetchRequest{})

	err := e.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, e.State())
	assert.ErrorContains(t, e.Err(), "connection refused")

	svc.mu.Lock()
	svc.fetchErr = nil
	svc.assessment = sampleAssessment()
	svc.mu.Unlock()

	require.NoError(t, e.Retry(context.Background()))
	assert.Equal(t, StateInProgress, e.State())
	assert.Equal(t, 2, svc.fetches)
}

func TestEngine_LoadWithoutGradeableQuestions(t *testing.T) {
	svc := &fakeService{assessment: &Assessment{ID: "x", Questions: []Question{&Invalid{Base: Base{ID: "a"}}}}}
	e := NewEngine(svc, FetchRequest{})
	assert.ErrorIs(t, e.Load(context.Background()), ErrNoQuestions)
	assert.Equal(t, StateError, e.State())
}

func TestEngine_SubmitFailureGoesToErrorThenRetries(t *testing.T) {
	svc := &fakeService{assessment: sampleAssessment(), submitErr: errors.New("503")}
	e := startedEngine(t, svc)
	answerAll(t, e)

	_, err := e.Finalize(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, e.State())

	svc.mu.Lock()
	svc.submitErr = nil
	svc.result = &QuizResult{}
	svc.mu.Unlock()

	require.NoError(t, e.Retry(context.Background()))
	assert.Equal(t, StateComplete, e.State())
	assert.Equal(t, 55, e.Result().OverallScore)
}

func essayAssessment() *Assessment {
	return &Assessment{
		ID: "a-2",
		Questions: []Question{
			capitals(),
			&LongAnswer{Base: Base{ID: "essay", Text: "Why is Paris the capital?"}},
		},
	}
}

func TestEngine_LongAnswerViaEvaluator(t *testing.T) {
	ev := &fakeEvaluator{score: 81}
	svc := &fakeService{assessment: essayAssessment(), result: &QuizResult{}}
	e := startedEngine(t, svc, WithEvaluator(ev))

	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Paris"}))
	require.NoError(t, e.SubmitResponse("essay", EssayResponse{Text: "History and centralization."}))

	res, err := e.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 91, res.OverallScore) // (100 + 81) / 2 = 90.5
	assert.Equal(t, 1, ev.calls)
}

func TestEngine_EvaluatorFailureStaysEvaluating(t *testing.T) {
	ev := &fakeEvaluator{err: errors.New("provider unavailable")}
	svc := &fakeService{assessment: essayAssessment(), result: &QuizResult{}}
	e := startedEngine(t, svc, WithEvaluator(ev))

	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Paris"}))
	require.NoError(t, e.SubmitResponse("essay", EssayResponse{Text: "History."}))

	_, err := e.Finalize(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateEvaluating, e.State())
	assert.Nil(t, e.Result(), "no default score")
	assert.Equal(t, 0, svc.submits)

	ev.mu.Lock()
	ev.err = nil
	ev.score = 40
	ev.mu.Unlock()

	require.NoError(t, e.Retry(context.Background()))
	assert.Equal(t, StateComplete, e.State())
	assert.Equal(t, 70, e.Result().OverallScore)
}

func TestEngine_LongAnswerFromRemote(t *testing.T) {
	svc := &fakeService{
		assessment: essayAssessment(),
		result: &QuizResult{Evaluations: map[string]EvaluationResult{
			"essay": {Correct: true, Score: 120, Feedback: "thorough"},
		}},
	}
	e := startedEngine(t, svc)
	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Rome"}))
	require.NoError(t, e.SubmitResponse("essay", EssayResponse{Text: "Because."}))

	res, err := e.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Evaluations["essay"].Score, "clamped")
	assert.Equal(t, 50, res.OverallScore)
}

func TestEngine_LongAnswerMissingEverywhere(t *testing.T) {
	svc := &fakeService{assessment: essayAssessment(), result: &QuizResult{}}
	e := startedEngine(t, svc)
	require.NoError(t, e.SubmitResponse("q1", OptionResponse{Option: "Paris"}))
	require.NoError(t, e.SubmitResponse("essay", EssayResponse{Text: "Because."}))

	_, err := e.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrEvaluationPending)
	assert.Equal(t, StateEvaluating, e.State())
}

func TestEngine_MatchingResponseIsCopied(t *testing.T) {
	svc := &fakeService{assessment: &Assessment{ID: "m", Questions: []Question{matchingQuestion()}}}
	e := startedEngine(t, svc)

	p := NewPairing()
	p.Assign("fr", "paris")
	require.NoError(t, e.SubmitResponse("m", p))
	p.Assign("fr", "oslo")

	r, _ := e.Response("m")
	m, _ := r.(*Pairing).MatchFor("fr")
	assert.Equal(t, "paris", m)
}
