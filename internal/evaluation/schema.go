package evaluation

import "github.com/abhisek/engage/internal/llm"

// EvaluationSchema is the structured output requested from the model.
var EvaluationSchema = &llm.Schema{
	Name:        "answer-evaluation",
	Description: "Score and feedback for a learner's free-text answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        "integer",
				"description": "0-100 accuracy and completeness score",
				"minimum":     0,
				"maximum":     100,
			},
			"correct": map[string]any{
				"type":        "boolean",
				"description": "Whether the answer earns a passing grade",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "At most two sentences addressed to the learner",
			},
		},
		"required":             []any{"score", "correct", "feedback"},
		"additionalProperties": false,
	},
}
