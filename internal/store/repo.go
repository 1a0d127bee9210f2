package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// FeedbackEventData is one feedback submission attempt. Ratings are nil
// when the submission was the reduced (no rating) form.
type FeedbackEventData struct {
	SessionID         string
	InteractionID     string
	Surface           string
	HelpfulRating     *int
	EngagementRating  *int
	TimeSpentSeconds  int
	CompletionPercent int
	Reduced           bool
	Delivered         bool
	ErrorMessage      string
}

// FeedbackEventRecord is a stored feedback event.
type FeedbackEventRecord struct {
	FeedbackEventData
	ID        int64
	Sequence  int64
	Timestamp time.Time
}

// QuizResultData summarizes a finished assessment.
type QuizResultData struct {
	SessionID     string
	AssessmentID  string
	Subject       string
	Topic         string
	Questions     int
	Correct       int
	OverallScore  int
	MasteryBefore float64
	MasteryAfter  float64
}

// QuizResultRecord is a stored quiz result.
type QuizResultRecord struct {
	QuizResultData
	ID        int64
	Sequence  int64
	Timestamp time.Time
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	SessionID    string
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEventRecord is a stored LLM request event.
type LLMEventRecord struct {
	LLMRequestEventData
	ID        int64
	Sequence  int64
	Timestamp time.Time
}

// SurfaceStats aggregates feedback events for one surface.
type SurfaceStats struct {
	Surface        string
	Submissions    int
	Reduced        int
	Failed         int
	AvgTimeSeconds float64
	AvgCompletion  float64
	AvgHelpful     float64
	AvgEngagement  float64
}

// QuizStats aggregates quiz results.
type QuizStats struct {
	Quizzes   int
	AvgScore  float64
	BestScore int
	LastScore int
	LastTopic string
	LastTaken time.Time
}

// LLMUsage aggregates LLM calls by purpose or model.
type LLMUsage struct {
	Purpose      string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// EventRepo provides append and query access to the journal.
type EventRepo interface {
	AppendFeedback(ctx context.Context, data FeedbackEventData) error
	QueryFeedback(ctx context.Context, opts QueryOpts) ([]FeedbackEventRecord, error)
	FeedbackStats(ctx context.Context) ([]SurfaceStats, error)

	AppendQuizResult(ctx context.Context, data QuizResultData) error
	QueryQuizResults(ctx context.Context, opts QueryOpts) ([]QuizResultRecord, error)
	QuizStats(ctx context.Context) (QuizStats, error)

	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error)
	// GetLLMEvent returns nil when no event has the id.
	GetLLMEvent(ctx context.Context, id int64) (*LLMEventRecord, error)
	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)
}
