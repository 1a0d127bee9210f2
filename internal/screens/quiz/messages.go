package quiz

import "github.com/abhisek/engage/internal/assessment"

// loadedMsg is sent when the question set has been fetched.
type loadedMsg struct {
	Err error
}

// finalizedMsg is sent when a finalize or retry attempt ends. Result is
// set only when the assessment completed.
type finalizedMsg struct {
	Result *assessment.QuizResult
	Err    error
}
