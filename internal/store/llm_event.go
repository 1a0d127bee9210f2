package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

type llmRow struct {
	ID           int64  `sql:"id"`
	Sequence     int64  `sql:"sequence"`
	Timestamp    int64  `sql:"timestamp"`
	SessionID    string `sql:"session_id"`
	Provider     string `sql:"provider"`
	Model        string `sql:"model"`
	Purpose      string `sql:"purpose"`
	InputTokens  int64  `sql:"input_tokens"`
	OutputTokens int64  `sql:"output_tokens"`
	LatencyMs    int64  `sql:"latency_ms"`
	Success      bool   `sql:"success"`
	ErrorMessage string `sql:"error_message"`
	RequestBody  string `sql:"request_body"`
	ResponseBody string `sql:"response_body"`
}

var llmColumns = []string{
	"id", "sequence", "timestamp", "session_id", "provider", "model", "purpose",
	"input_tokens", "output_tokens", "latency_ms", "success", "error_message",
	"request_body", "response_body",
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	_, err := r.insert(ctx, tableLLM,
		llmColumns[3:],
		[]any{
			data.SessionID, data.Provider, data.Model, data.Purpose,
			data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success,
			data.ErrorMessage, data.RequestBody, data.ResponseBody,
		},
	)
	if err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error) {
	sel := applyOpts(r.builder().Select(llmColumns...).From(entsql.Table(tableLLM)), opts)
	return r.llmEvents(ctx, sel)
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id int64) (*LLMEventRecord, error) {
	sel := r.builder().Select(llmColumns...).
		From(entsql.Table(tableLLM)).
		Where(entsql.EQ("id", id))

	events, err := r.llmEvents(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *eventRepo) llmEvents(ctx context.Context, sel *entsql.Selector) ([]LLMEventRecord, error) {
	var rows []llmRow
	if err := r.query(ctx, sel, &rows); err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}

	records := make([]LLMEventRecord, len(rows))
	for i, row := range rows {
		records[i] = LLMEventRecord{
			ID:        row.ID,
			Sequence:  row.Sequence,
			Timestamp: fromMillis(row.Timestamp),
			LLMRequestEventData: LLMRequestEventData{
				SessionID:    row.SessionID,
				Provider:     row.Provider,
				Model:        row.Model,
				Purpose:      row.Purpose,
				InputTokens:  int(row.InputTokens),
				OutputTokens: int(row.OutputTokens),
				LatencyMs:    row.LatencyMs,
				Success:      row.Success,
				ErrorMessage: row.ErrorMessage,
				RequestBody:  row.RequestBody,
				ResponseBody: row.ResponseBody,
			},
		}
	}
	return records, nil
}

type usageRow struct {
	Key          string   `sql:"key"`
	Calls        int64    `sql:"calls"`
	InputTokens  *int64   `sql:"input_tokens"`
	OutputTokens *int64   `sql:"output_tokens"`
	AvgLatency   *float64 `sql:"avg_latency"`
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error) {
	rows, err := r.usage(ctx, "purpose")
	if err != nil {
		return nil, err
	}
	out := make([]LLMUsage, len(rows))
	for i, row := range rows {
		out[i] = row.usage()
		out[i].Purpose = row.Key
	}
	return out, nil
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]LLMUsage, error) {
	rows, err := r.usage(ctx, "model")
	if err != nil {
		return nil, err
	}
	out := make([]LLMUsage, len(rows))
	for i, row := range rows {
		out[i] = row.usage()
		out[i].Model = row.Key
	}
	return out, nil
}

func (r *eventRepo) usage(ctx context.Context, column string) ([]usageRow, error) {
	sel := r.builder().Select(
		entsql.As(column, "key"),
		entsql.As(entsql.Count("*"), "calls"),
		entsql.As(entsql.Sum("input_tokens"), "input_tokens"),
		entsql.As(entsql.Sum("output_tokens"), "output_tokens"),
		entsql.As(entsql.Avg("latency_ms"), "avg_latency"),
	).
		From(entsql.Table(tableLLM)).
		GroupBy(column).
		OrderBy(column)

	var rows []usageRow
	if err := r.query(ctx, sel, &rows); err != nil {
		return nil, fmt.Errorf("LLM usage by %s: %w", column, err)
	}
	return rows, nil
}

func (u usageRow) usage() LLMUsage {
	var in, out int64
	if u.InputTokens != nil {
		in = *u.InputTokens
	}
	if u.OutputTokens != nil {
		out = *u.OutputTokens
	}
	return LLMUsage{
		Calls:        int(u.Calls),
		InputTokens:  int(in),
		OutputTokens: int(out),
		AvgLatencyMs: int64(deref(u.AvgLatency)),
	}
}
