// Package journal records feedback submissions and quiz outcomes in the
// local store.
package journal

import (
	"context"

	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/logger"
	"github.com/abhisek/engage/internal/store"
)

// Sender wraps a feedback sender and journals every attempt, delivered or
// not. Journal failures are logged; they never change the send result.
type Sender struct {
	next engagement.Sender
	repo store.EventRepo
	sc   engagement.SessionContext
	log  *logger.Logger
}

var _ engagement.Sender = (*Sender)(nil)

// NewSender builds a journaling sender for one session. next may be nil,
// in which case feedback is only journaled.
func NewSender(next engagement.Sender, repo store.EventRepo, sc engagement.SessionContext, log *logger.Logger) *Sender {
	if log == nil {
		log = logger.Nop()
	}
	return &Sender{next: next, repo: repo, sc: sc, log: log.With("component", "journal")}
}

func (s *Sender) SendFeedback(ctx context.Context, p engagement.Payload) error {
	var err error
	if s.next != nil {
		err = s.next.SendFeedback(ctx, p)
	}

	data := store.FeedbackEventData{
		SessionID:         s.sc.SessionID,
		InteractionID:     p.InteractionID,
		Surface:           string(s.sc.Kind),
		HelpfulRating:     p.HelpfulRating,
		EngagementRating:  p.EngagementRating,
		TimeSpentSeconds:  p.TimeSpentSeconds,
		CompletionPercent: p.CompletionPercentage,
		Reduced:           p.Reduced,
		Delivered:         err == nil,
	}
	if err != nil {
		data.ErrorMessage = err.Error()
	}
	if s.repo != nil {
		// The send context may already be cancelled at teardown.
		if jerr := s.repo.AppendFeedback(context.WithoutCancel(ctx), data); jerr != nil {
			s.log.Warn("journal feedback failed", "error", jerr)
		}
	}
	return err
}

// RecordQuiz stores a finalized assessment.
func RecordQuiz(ctx context.Context, repo store.EventRepo, sc engagement.SessionContext, questions []assessment.Question, res *assessment.QuizResult) error {
	if repo == nil || res == nil {
		return nil
	}
	graded, correct := 0, 0
	for _, q := range questions {
		if !assessment.IsGradeable(q) {
			continue
		}
		graded++
		if ev, ok := res.Evaluations[q.QuestionID()]; ok && ev.Correct {
			correct++
		}
	}
	return repo.AppendQuizResult(ctx, store.QuizResultData{
		SessionID:     sc.SessionID,
		AssessmentID:  res.AssessmentID,
		Subject:       sc.Subject,
		Topic:         sc.Topic,
		Questions:     graded,
		Correct:       correct,
		OverallScore:  res.OverallScore,
		MasteryBefore: res.MasteryBefore,
		MasteryAfter:  res.MasteryAfter,
	})
}
