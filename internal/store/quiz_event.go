package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

type quizRow struct {
	ID            int64   `sql:"id"`
	Sequence      int64   `sql:"sequence"`
	Timestamp     int64   `sql:"timestamp"`
	SessionID     string  `sql:"session_id"`
	AssessmentID  string  `sql:"assessment_id"`
	Subject       string  `sql:"subject"`
	Topic         string  `sql:"topic"`
	Questions     int64   `sql:"questions"`
	Correct       int64   `sql:"correct"`
	OverallScore  int64   `sql:"overall_score"`
	MasteryBefore float64 `sql:"mastery_before"`
	MasteryAfter  float64 `sql:"mastery_after"`
}

var quizColumns = []string{
	"id", "sequence", "timestamp", "session_id", "assessment_id", "subject", "topic",
	"questions", "correct", "overall_score", "mastery_before", "mastery_after",
}

func (r *eventRepo) AppendQuizResult(ctx context.Context, data QuizResultData) error {
	_, err := r.insert(ctx, tableQuiz,
		quizColumns[3:],
		[]any{
			data.SessionID, data.AssessmentID, data.Subject, data.Topic,
			data.Questions, data.Correct, data.OverallScore,
			data.MasteryBefore, data.MasteryAfter,
		},
	)
	if err != nil {
		return fmt.Errorf("save quiz result: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryQuizResults(ctx context.Context, opts QueryOpts) ([]QuizResultRecord, error) {
	sel := applyOpts(r.builder().Select(quizColumns...).From(entsql.Table(tableQuiz)), opts)

	var rows []quizRow
	if err := r.query(ctx, sel, &rows); err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}

	records := make([]QuizResultRecord, len(rows))
	for i, row := range rows {
		records[i] = QuizResultRecord{
			ID:        row.ID,
			Sequence:  row.Sequence,
			Timestamp: fromMillis(row.Timestamp),
			QuizResultData: QuizResultData{
				SessionID:     row.SessionID,
				AssessmentID:  row.AssessmentID,
				Subject:       row.Subject,
				Topic:         row.Topic,
				Questions:     int(row.Questions),
				Correct:       int(row.Correct),
				OverallScore:  int(row.OverallScore),
				MasteryBefore: row.MasteryBefore,
				MasteryAfter:  row.MasteryAfter,
			},
		}
	}
	return records, nil
}

type quizAggRow struct {
	Quizzes  int64    `sql:"quizzes"`
	AvgScore *float64 `sql:"avg_score"`
	Best     *int64   `sql:"best_score"`
}

func (r *eventRepo) QuizStats(ctx context.Context) (QuizStats, error) {
	sel := r.builder().Select(
		entsql.As(entsql.Count("*"), "quizzes"),
		entsql.As(entsql.Avg("overall_score"), "avg_score"),
		entsql.As(entsql.Max("overall_score"), "best_score"),
	).From(entsql.Table(tableQuiz))

	var agg []quizAggRow
	if err := r.query(ctx, sel, &agg); err != nil {
		return QuizStats{}, fmt.Errorf("quiz stats: %w", err)
	}

	var stats QuizStats
	if len(agg) == 0 || agg[0].Quizzes == 0 {
		return stats, nil
	}
	stats.Quizzes = int(agg[0].Quizzes)
	stats.AvgScore = deref(agg[0].AvgScore)
	if agg[0].Best != nil {
		stats.BestScore = int(*agg[0].Best)
	}

	last, err := r.QueryQuizResults(ctx, QueryOpts{Limit: 1})
	if err != nil {
		return QuizStats{}, err
	}
	if len(last) > 0 {
		stats.LastScore = last[0].OverallScore
		stats.LastTopic = last[0].Topic
		stats.LastTaken = last[0].Timestamp
	}
	return stats, nil
}
