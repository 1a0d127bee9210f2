package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/abhisek/engage/internal/engagement"
)

var _ engagement.Sender = (*Client)(nil)

// SendFeedback posts one feedback submission. It is never retried.
func (c *Client) SendFeedback(ctx context.Context, p engagement.Payload) error {
	if err := c.doJSON(ctx, http.MethodPost, "/v1/feedback", p, nil); err != nil {
		return fmt.Errorf("send feedback: %w", err)
	}
	return nil
}
