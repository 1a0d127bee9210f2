package store

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases,
		// so journal_mode is not checked here.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	for _, table := range []string{tableFeedback, tableQuiz, tableLLM, "global_sequence"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestSequenceCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var seqs []int64
	for i := 0; i < 5; i++ {
		seq, err := s.seq.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		seqs = append(seqs, seq)
	}

	for i, seq := range seqs {
		expected := int64(i + 1)
		if seq != expected {
			t.Errorf("seq[%d] = %d, want %d", i, seq, expected)
		}
	}
}

func ptr(v int) *int { return &v }

func TestFeedbackAppendAndQuery(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	events := []FeedbackEventData{
		{InteractionID: "i-1", Surface: "lesson", HelpfulRating: ptr(5), TimeSpentSeconds: 120, CompletionPercent: 100, Delivered: true},
		{InteractionID: "i-2", Surface: "scenario", TimeSpentSeconds: 45, CompletionPercent: 30, Reduced: true, Delivered: true},
		{InteractionID: "i-3", Surface: "lesson", HelpfulRating: ptr(3), TimeSpentSeconds: 60, CompletionPercent: 80, ErrorMessage: "503"},
	}
	for _, e := range events {
		if err := repo.AppendFeedback(ctx, e); err != nil {
			t.Fatalf("append feedback: %v", err)
		}
	}

	got, err := repo.QueryFeedback(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("query feedback: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].InteractionID != "i-3" {
		t.Errorf("newest first: got %s", got[0].InteractionID)
	}
	if got[1].HelpfulRating != nil || !got[1].Reduced {
		t.Errorf("reduced event = %+v, want no rating", got[1])
	}
	if got[2].HelpfulRating == nil || *got[2].HelpfulRating != 5 {
		t.Errorf("helpful rating = %v, want 5", got[2].HelpfulRating)
	}

	limited, err := repo.QueryFeedback(ctx, QueryOpts{Limit: 1, Before: got[0].Sequence})
	if err != nil {
		t.Fatalf("query limited: %v", err)
	}
	if len(limited) != 1 || limited[0].InteractionID != "i-2" {
		t.Errorf("limited = %+v, want i-2", limited)
	}
}

func TestFeedbackStats(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	for _, e := range []FeedbackEventData{
		{InteractionID: "a", Surface: "lesson", HelpfulRating: ptr(4), TimeSpentSeconds: 100, CompletionPercent: 100, Delivered: true},
		{InteractionID: "b", Surface: "lesson", TimeSpentSeconds: 50, CompletionPercent: 40, Reduced: true, Delivered: true},
		{InteractionID: "c", Surface: "flashcards", EngagementRating: ptr(2), TimeSpentSeconds: 30, CompletionPercent: 60},
	} {
		if err := repo.AppendFeedback(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stats, err := repo.FeedbackStats(ctx)
	if err != nil {
		t.Fatalf("feedback stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("len = %d, want 2", len(stats))
	}

	fc, lesson := stats[0], stats[1]
	if fc.Surface != "flashcards" || fc.Failed != 1 || fc.AvgEngagement != 2 {
		t.Errorf("flashcards = %+v", fc)
	}
	if lesson.Submissions != 2 || lesson.Reduced != 1 || lesson.Failed != 0 {
		t.Errorf("lesson counts = %+v", lesson)
	}
	if lesson.AvgTimeSeconds != 75 || lesson.AvgCompletion != 70 {
		t.Errorf("lesson averages = %+v", lesson)
	}
	if lesson.AvgHelpful != 4 {
		t.Errorf("avg helpful = %v, want 4 (reduced rows carry no rating)", lesson.AvgHelpful)
	}
}

func TestQuizResults(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	stats, err := repo.QuizStats(ctx)
	if err != nil {
		t.Fatalf("quiz stats (empty): %v", err)
	}
	if stats.Quizzes != 0 {
		t.Errorf("quizzes = %d, want 0", stats.Quizzes)
	}

	for _, q := range []QuizResultData{
		{AssessmentID: "a-1", Topic: "capitals", Questions: 3, Correct: 2, OverallScore: 55, MasteryBefore: 0.4, MasteryAfter: 0.55},
		{AssessmentID: "a-2", Topic: "rivers", Questions: 4, Correct: 4, OverallScore: 100},
	} {
		if err := repo.AppendQuizResult(ctx, q); err != nil {
			t.Fatalf("append quiz result: %v", err)
		}
	}

	stats, err = repo.QuizStats(ctx)
	if err != nil {
		t.Fatalf("quiz stats: %v", err)
	}
	if stats.Quizzes != 2 || stats.BestScore != 100 || stats.AvgScore != 77.5 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastTopic != "rivers" || stats.LastScore != 100 {
		t.Errorf("last = %s/%d, want rivers/100", stats.LastTopic, stats.LastScore)
	}

	results, err := repo.QueryQuizResults(ctx, QueryOpts{From: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("query quiz results: %v", err)
	}
	if len(results) != 2 || results[1].MasteryAfter != 0.55 {
		t.Errorf("results = %+v", results)
	}
}

func TestLLMEvents(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	data := []LLMRequestEventData{
		{Provider: "anthropic", Model: "claude-haiku-4-5", Purpose: "evaluation", InputTokens: 100, OutputTokens: 20, LatencyMs: 300, Success: true, RequestBody: "[user]\nq", ResponseBody: `{"score":80}`},
		{Provider: "anthropic", Model: "claude-haiku-4-5", Purpose: "evaluation", InputTokens: 50, OutputTokens: 10, LatencyMs: 100, Success: false, ErrorMessage: "rate limited"},
		{Provider: "openai", Model: "gpt-4.1-mini", Purpose: "other", InputTokens: 10, OutputTokens: 5, LatencyMs: 50, Success: true},
	}
	for _, d := range data {
		if err := repo.AppendLLMRequest(ctx, d); err != nil {
			t.Fatalf("append LLM request: %v", err)
		}
	}

	events, err := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 10})
	if err != nil {
		t.Fatalf("query LLM events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}

	e, err := repo.GetLLMEvent(ctx, events[2].ID)
	if err != nil {
		t.Fatalf("get LLM event: %v", err)
	}
	if e == nil || e.ResponseBody != `{"score":80}` || !e.Success {
		t.Errorf("event = %+v", e)
	}

	missing, err := repo.GetLLMEvent(ctx, 9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing event")
	}

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("usage by purpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("purposes = %d, want 2", len(byPurpose))
	}
	ev := byPurpose[0]
	if ev.Purpose != "evaluation" || ev.Calls != 2 || ev.InputTokens != 150 || ev.AvgLatencyMs != 200 {
		t.Errorf("evaluation usage = %+v", ev)
	}

	byModel, err := repo.LLMUsageByModel(ctx)
	if err != nil {
		t.Fatalf("usage by model: %v", err)
	}
	if len(byModel) != 2 || byModel[1].Model != "gpt-4.1-mini" {
		t.Errorf("models = %+v", byModel)
	}
}
