package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/abhisek/engage/internal/assessment"
)

var _ assessment.Service = (*Client)(nil)

type assessmentResponse struct {
	AssessmentID string            `json:"assessment_id"`
	Questions    []json.RawMessage `json:"questions"`
}

// SubmitRequest is the assessment submission body.
type SubmitRequest struct {
	AssessmentID string         `json:"assessment_id"`
	Responses    map[string]any `json:"responses"`
}

// FetchAssessment requests a question set. Malformed questions come back
// as *assessment.Invalid rather than failing the whole fetch.
func (c *Client) FetchAssessment(ctx context.Context, req assessment.FetchRequest) (*assessment.Assessment, error) {
	var out assessmentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/assessments", req, &out); err != nil {
		return nil, fmt.Errorf("fetch assessment: %w", err)
	}
	return &assessment.Assessment{
		ID:        out.AssessmentID,
		Questions: assessment.DecodeQuestions(out.Questions),
	}, nil
}

// SubmitAssessment posts the responses and returns the service's result.
func (c *Client) SubmitAssessment(ctx context.Context, assessmentID string, responses map[string]assessment.Response) (*assessment.QuizResult, error) {
	body := SubmitRequest{
		AssessmentID: assessmentID,
		Responses:    assessment.EncodeResponses(responses),
	}
	var out assessment.QuizResult
	path := "/v1/assessments/" + url.PathEscape(assessmentID) + "/submit"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("submit assessment: %w", err)
	}
	if out.AssessmentID == "" {
		out.AssessmentID = assessmentID
	}
	return &out, nil
}
