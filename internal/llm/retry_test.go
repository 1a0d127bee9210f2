package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

var okResponse = MockResponse{Content: json.RawMessage(`{"ok":true}`)}

func down() MockResponse {
	return MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}}
}

func invalid() MockResponse {
	return MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`bad`), Err: errors.New("bad")}}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		responses []MockResponse
		wantErr   bool
		wantCalls int
	}{
		{"first attempt", []MockResponse{okResponse}, false, 1},
		{"transient then success", []MockResponse{down(), okResponse}, false, 2},
		{"all attempts fail", []MockResponse{down(), down(), down()}, true, 3},
		{"max tokens is final", []MockResponse{{Err: &ErrMaxTokensExceeded{}}, okResponse}, true, 1},
		{"invalid response retried once", []MockResponse{invalid(), invalid(), okResponse}, true, 2},
		{"invalid then valid", []MockResponse{invalid(), okResponse}, false, 2},
		{"rate limit honours retry-after", []MockResponse{{Err: &ErrRateLimit{RetryAfter: time.Millisecond}}, okResponse}, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.responses...)
			resp, err := WithRetry(mock, retryConfig()).Generate(context.Background(), Request{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(resp.Content) != `{"ok":true}` {
				t.Fatalf("content = %s", resp.Content)
			}
			if mock.CallCount() != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", mock.CallCount(), tt.wantCalls)
			}
		})
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	mock := NewMockProvider(down(), down(), okResponse)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithRetry(mock, retryConfig()).Generate(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("calls = %d, want 1", mock.CallCount())
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(context.DeadlineExceeded) {
		t.Fatal("deadline must not be retried")
	}
	if Retryable(&ErrMaxTokensExceeded{}) {
		t.Fatal("truncation must not be retried")
	}
	if !Retryable(errors.New("connection reset")) {
		t.Fatal("network errors are transient")
	}
}

func TestRetry_ZeroAttemptsStillCallsOnce(t *testing.T) {
	mock := NewMockProvider(okResponse)
	if _, err := WithRetry(mock, RetryConfig{}).Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := WithRetry(mock, RetryConfig{}); p.ModelID() != "mock" {
		t.Fatalf("ModelID = %q", p.ModelID())
	}
}
