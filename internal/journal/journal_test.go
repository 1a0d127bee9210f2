package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/store"
)

func openRepo(t *testing.T) store.EventRepo {
	t.Helper()
	s, err := store.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.EventRepo()
}

type fakeSender struct {
	err   error
	calls int
}

func (f *fakeSender) SendFeedback(context.Context, engagement.Payload) error {
	f.calls++
	return f.err
}

func session(kind content.Kind) engagement.SessionContext {
	return engagement.NewSessionContext("ada", kind, "earth", "tides", time.Now())
}

func TestSender_JournalsDeliveredAndFailed(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	rating := 5

	ok := NewSender(&fakeSender{}, repo, session(content.KindLesson), nil)
	require.NoError(t, ok.SendFeedback(ctx, engagement.Payload{
		InteractionID: "int-1", HelpfulRating: &rating, TimeSpentSeconds: 60, CompletionPercentage: 90,
	}))

	down := &fakeSender{err: errors.New("503")}
	failing := NewSender(down, repo, session(content.KindFlashcards), nil)
	err := failing.SendFeedback(ctx, engagement.Payload{InteractionID: "int-2", TimeSpentSeconds: 40, CompletionPercentage: 30, Reduced: true})
	assert.EqualError(t, err, "503")
	assert.Equal(t, 1, down.calls)

	recs, err := repo.QueryFeedback(ctx, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "flashcards", recs[0].Surface)
	assert.False(t, recs[0].Delivered)
	assert.True(t, recs[0].Reduced)
	assert.Equal(t, "503", recs[0].ErrorMessage)
	assert.Nil(t, recs[0].HelpfulRating)

	assert.Equal(t, "lesson", recs[1].Surface)
	assert.True(t, recs[1].Delivered)
	require.NotNil(t, recs[1].HelpfulRating)
	assert.Equal(t, 5, *recs[1].HelpfulRating)
}

func TestSender_WorksThroughGate(t *testing.T) {
	repo := openRepo(t)
	sc := session(content.KindLesson)
	sc.InteractionID = "int-7"
	snap := engagement.Snapshot{InteractionID: "int-7", ActiveSeconds: 45, Percent: 30, ContentLoaded: true}

	gate := engagement.NewGate(engagement.GateConfigFor(engagement.ProfileFor(content.KindLesson)),
		NewSender(nil, repo, sc, nil), func() engagement.Snapshot { return snap }, nil)
	gate.SetDispatcher(func(f func()) { f() })

	assert.True(t, gate.Finalize())
	assert.False(t, gate.Finalize())

	recs, err := repo.QueryFeedback(context.Background(), store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Reduced)
	assert.Equal(t, 30, recs[0].CompletionPercent)
	assert.Equal(t, sc.SessionID, recs[0].SessionID)
}

func TestRecordQuiz(t *testing.T) {
	repo := openRepo(t)
	questions := []assessment.Question{
		&assessment.TrueFalse{Base: assessment.Base{ID: "q1"}, CorrectAnswer: true},
		&assessment.ShortAnswer{Base: assessment.Base{ID: "q2"}, CorrectAnswer: "moon"},
		&assessment.Invalid{Base: assessment.Base{ID: "q3"}, Reason: "no options"},
	}
	res := &assessment.QuizResult{
		AssessmentID: "as-1",
		OverallScore: 50,
		MasteryAfter: 0.5,
		Evaluations: map[string]assessment.EvaluationResult{
			"q1": {QuestionID: "q1", Correct: true, Score: 100},
			"q2": {QuestionID: "q2", Correct: false, Score: 0},
		},
	}
	sc := session(content.KindQuiz)
	require.NoError(t, RecordQuiz(context.Background(), repo, sc, questions, res))
	require.NoError(t, RecordQuiz(context.Background(), nil, sc, questions, res))

	recs, err := repo.QueryQuizResults(context.Background(), store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Questions)
	assert.Equal(t, 1, recs[0].Correct)
	assert.Equal(t, "tides", recs[0].Topic)
	assert.Equal(t, "as-1", recs[0].AssessmentID)
}
