package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/engage/internal/logger"
	"github.com/abhisek/engage/internal/store"
)

// Journal receives one record per LLM call. store.EventRepo satisfies it.
type Journal interface {
	AppendLLMRequest(ctx context.Context, data store.LLMRequestEventData) error
}

// LoggingProvider is a decorator that journals every call and logs a
// one-line summary.
type LoggingProvider struct {
	inner    Provider
	provider string
	journal  Journal
	log      *logger.Logger
}

// WithLogging wraps a Provider with call journaling. Either journal or log
// may be nil.
func WithLogging(p Provider, providerName string, journal Journal, log *logger.Logger) Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingProvider{
		inner:    p,
		provider: providerName,
		journal:  journal,
		log:      log.With("component", "llm", "provider", providerName),
	}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	data := store.LLMRequestEventData{
		SessionID:   SessionFrom(ctx),
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		LatencyMs:   time.Since(start).Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}
	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		if resp.Model != "" {
			data.Model = resp.Model
		}
		data.ResponseBody = string(resp.Content)
	}
	if err != nil {
		data.ErrorMessage = err.Error()
		l.log.Warn("llm call failed",
			"purpose", data.Purpose, "session_id", data.SessionID,
			"latency_ms", data.LatencyMs, "error", err)
	} else {
		l.log.Debug("llm call",
			"purpose", data.Purpose, "session_id", data.SessionID, "model", data.Model,
			"input_tokens", data.InputTokens, "output_tokens", data.OutputTokens,
			"latency_ms", data.LatencyMs)
	}

	// Journal failures never fail the call.
	if l.journal != nil {
		if jerr := l.journal.AppendLLMRequest(ctx, data); jerr != nil {
			l.log.Warn("journal llm request", "error", jerr)
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest renders the request the way `engage llm view` shows it.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
	}

	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}

	return b.String()
}
