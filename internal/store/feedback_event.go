package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

type feedbackRow struct {
	ID                int64  `sql:"id"`
	Sequence          int64  `sql:"sequence"`
	Timestamp         int64  `sql:"timestamp"`
	SessionID         string `sql:"session_id"`
	InteractionID     string `sql:"interaction_id"`
	Surface           string `sql:"surface"`
	HelpfulRating     *int64 `sql:"helpful_rating"`
	EngagementRating  *int64 `sql:"engagement_rating"`
	TimeSpentSeconds  int64  `sql:"time_spent_seconds"`
	CompletionPercent int64  `sql:"completion_percentage"`
	Reduced           bool   `sql:"reduced"`
	Delivered         bool   `sql:"delivered"`
	ErrorMessage      string `sql:"error_message"`
}

var feedbackColumns = []string{
	"id", "sequence", "timestamp", "session_id", "interaction_id", "surface",
	"helpful_rating", "engagement_rating", "time_spent_seconds",
	"completion_percentage", "reduced", "delivered", "error_message",
}

func (r *eventRepo) AppendFeedback(ctx context.Context, data FeedbackEventData) error {
	_, err := r.insert(ctx, tableFeedback,
		[]string{
			"session_id", "interaction_id", "surface", "helpful_rating",
			"engagement_rating", "time_spent_seconds", "completion_percentage",
			"reduced", "delivered", "error_message",
		},
		[]any{
			data.SessionID, data.InteractionID, data.Surface, nullableInt(data.HelpfulRating),
			nullableInt(data.EngagementRating), data.TimeSpentSeconds, data.CompletionPercent,
			data.Reduced, data.Delivered, data.ErrorMessage,
		},
	)
	if err != nil {
		return fmt.Errorf("save feedback event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryFeedback(ctx context.Context, opts QueryOpts) ([]FeedbackEventRecord, error) {
	sel := applyOpts(r.builder().Select(feedbackColumns...).From(entsql.Table(tableFeedback)), opts)

	var rows []feedbackRow
	if err := r.query(ctx, sel, &rows); err != nil {
		return nil, fmt.Errorf("query feedback events: %w", err)
	}

	records := make([]FeedbackEventRecord, len(rows))
	for i, row := range rows {
		records[i] = FeedbackEventRecord{
			ID:        row.ID,
			Sequence:  row.Sequence,
			Timestamp: fromMillis(row.Timestamp),
			FeedbackEventData: FeedbackEventData{
				SessionID:         row.SessionID,
				InteractionID:     row.InteractionID,
				Surface:           row.Surface,
				HelpfulRating:     intPtr(row.HelpfulRating),
				EngagementRating:  intPtr(row.EngagementRating),
				TimeSpentSeconds:  int(row.TimeSpentSeconds),
				CompletionPercent: int(row.CompletionPercent),
				Reduced:           row.Reduced,
				Delivered:         row.Delivered,
				ErrorMessage:      row.ErrorMessage,
			},
		}
	}
	return records, nil
}

type surfaceRow struct {
	Surface       string   `sql:"surface"`
	Submissions   int64    `sql:"submissions"`
	Reduced       int64    `sql:"reduced_count"`
	Delivered     int64    `sql:"delivered_count"`
	AvgTime       *float64 `sql:"avg_time"`
	AvgCompletion *float64 `sql:"avg_completion"`
	AvgHelpful    *float64 `sql:"avg_helpful"`
	AvgEngagement *float64 `sql:"avg_engagement"`
}

// FeedbackStats groups feedback events by surface. Averages over ratings
// ignore reduced submissions, which carry none.
func (r *eventRepo) FeedbackStats(ctx context.Context) ([]SurfaceStats, error) {
	sel := r.builder().Select(
		"surface",
		entsql.As(entsql.Count("*"), "submissions"),
		entsql.As(entsql.Sum("reduced"), "reduced_count"),
		entsql.As(entsql.Sum("delivered"), "delivered_count"),
		entsql.As(entsql.Avg("time_spent_seconds"), "avg_time"),
		entsql.As(entsql.Avg("completion_percentage"), "avg_completion"),
		entsql.As(entsql.Avg("helpful_rating"), "avg_helpful"),
		entsql.As(entsql.Avg("engagement_rating"), "avg_engagement"),
	).
		From(entsql.Table(tableFeedback)).
		GroupBy("surface").
		OrderBy("surface")

	var rows []surfaceRow
	if err := r.query(ctx, sel, &rows); err != nil {
		return nil, fmt.Errorf("feedback stats: %w", err)
	}

	stats := make([]SurfaceStats, len(rows))
	for i, row := range rows {
		stats[i] = SurfaceStats{
			Surface:        row.Surface,
			Submissions:    int(row.Submissions),
			Reduced:        int(row.Reduced),
			Failed:         int(row.Submissions - row.Delivered),
			AvgTimeSeconds: deref(row.AvgTime),
			AvgCompletion:  deref(row.AvgCompletion),
			AvgHelpful:     deref(row.AvgHelpful),
			AvgEngagement:  deref(row.AvgEngagement),
		}
	}
	return stats, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(p *int64) *int {
	if p == nil {
		return nil
	}
	v := int(*p)
	return &v
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
