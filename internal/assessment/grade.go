package assessment

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrNotInProgress     = errors.New("assessment is not in progress")
	ErrIncomplete        = errors.New("every question needs a response before finalizing")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrInvalidQuestion   = errors.New("question is invalid")
	ErrResponseMismatch  = errors.New("response does not fit the question type")
	ErrSubjective        = errors.New("question needs an external evaluation")
	ErrEvaluationPending = errors.New("evaluations are still pending")
	ErrNoQuestions       = errors.New("assessment has no gradeable questions")
	ErrBusy              = errors.New("assessment is already finalizing")
	ErrNoService         = errors.New("no assessment service configured")
)

// EvaluationResult is the verdict for one question.
type EvaluationResult struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
	Score      int    `json:"score"`
	Feedback   string `json:"feedback,omitempty"`

	// Blanks holds per-blank correctness for fill-in-blank questions.
	Blanks map[string]bool `json:"blanks,omitempty"`
}

// Grade evaluates an objective question locally. Long-answer questions
// return ErrSubjective.
func Grade(q Question, r Response) (EvaluationResult, error) {
	if !Fits(q, r) {
		if _, ok := q.(*Invalid); ok {
			return EvaluationResult{}, fmt.Errorf("%w: %s", ErrInvalidQuestion, q.QuestionID())
		}
		return EvaluationResult{}, fmt.Errorf("%w: %s expects a %s answer", ErrResponseMismatch, q.QuestionID(), q.Type())
	}

	res := EvaluationResult{QuestionID: q.QuestionID()}
	switch v := q.(type) {
	case *MultipleChoice:
		res.Correct = MatchesOption(r.(OptionResponse).Option, v.CorrectAnswer)
	case *TrueFalse:
		res.Correct = r.(BoolResponse).Value == v.CorrectAnswer
	case *ShortAnswer:
		res.Correct = MatchesText(r.(TextResponse).Text, v.CorrectAnswer, v.AcceptableAnswers)
	case *FillInBlank:
		return gradeBlanks(v, r.(BlanksResponse)), nil
	case *Matching:
		return gradeMatching(v, r.(*Pairing)), nil
	case *LongAnswer:
		return EvaluationResult{}, fmt.Errorf("%w: %s", ErrSubjective, q.QuestionID())
	}
	if res.Correct {
		res.Score = 100
	}
	return res, nil
}

// MatchesOption is the multiple-choice rule: exact comparison after
// trimming. It is deliberately case-sensitive, unlike MatchesText.
func MatchesOption(response, correct string) bool {
	return strings.TrimSpace(response) == strings.TrimSpace(correct)
}

// MatchesText is the short-answer rule: lowercase and trim, then compare
// against the correct answer and every acceptable alternative.
func MatchesText(response, correct string, acceptable []string) bool {
	got := normalizeText(response)
	if got == "" {
		return false
	}
	if got == normalizeText(correct) {
		return true
	}
	for _, a := range acceptable {
		if got == normalizeText(a) {
			return true
		}
	}
	return false
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// gradeBlanks grades each blank independently. A missing entry counts as
// an incorrect blank. The partial score truncates: 2 of 3 is 66.
func gradeBlanks(q *FillInBlank, r BlanksResponse) EvaluationResult {
	res := EvaluationResult{QuestionID: q.ID, Blanks: make(map[string]bool, len(q.Blanks))}
	correct := 0
	for _, b := range q.Blanks {
		ok := MatchesText(r.Blanks[b.ID], b.CorrectAnswer, b.AcceptableAnswers)
		res.Blanks[b.ID] = ok
		if ok {
			correct++
		}
	}
	res.Correct = correct == len(q.Blanks)
	res.Score = correct * 100 / len(q.Blanks)
	if !res.Correct {
		res.Feedback = fmt.Sprintf("%d of %d blanks correct", correct, len(q.Blanks))
	}
	return res
}

// gradeMatching is all-or-nothing: every correct pair present and no
// incorrect pair.
func gradeMatching(q *Matching, p *Pairing) EvaluationResult {
	want := make(map[Pair]bool, len(q.CorrectPairs))
	for _, cp := range q.CorrectPairs {
		want[cp] = true
	}
	right, wrong := 0, 0
	for item, match := range p.Pairs() {
		if want[Pair{ItemID: item, MatchID: match}] {
			right++
		} else {
			wrong++
		}
	}
	res := EvaluationResult{QuestionID: q.ID}
	res.Correct = right == len(want) && wrong == 0
	if res.Correct {
		res.Score = 100
	} else {
		res.Feedback = fmt.Sprintf("%d of %d pairs correct", right, len(want))
	}
	return res
}

// PairCorrect reports whether (item, match) is one of q's correct pairs.
func PairCorrect(q *Matching, itemID, matchID string) bool {
	for _, cp := range q.CorrectPairs {
		if cp.ItemID == itemID && cp.MatchID == matchID {
			return true
		}
	}
	return false
}

// GradeAll grades every objective question that has a response. Ids of
// long-answer questions with a response are returned as pending. Invalid
// and unanswered questions are skipped.
func GradeAll(questions []Question, responses map[string]Response) (map[string]EvaluationResult, []string, error) {
	evals := make(map[string]EvaluationResult, len(questions))
	var pending []string
	for _, q := range questions {
		r, ok := responses[q.QuestionID()]
		if !ok || !IsGradeable(q) {
			continue
		}
		if !IsObjective(q) {
			pending = append(pending, q.QuestionID())
			continue
		}
		res, err := Grade(q, r)
		if err != nil {
			return nil, nil, err
		}
		evals[q.QuestionID()] = res
	}
	return evals, pending, nil
}

// ClampScore bounds an externally supplied score to 0..100.
func ClampScore(s int) int {
	return min(100, max(0, s))
}

// OverallScore is round(mean(score)) over the given results. It is 0 for
// an empty set.
func OverallScore(results []EvaluationResult) int {
	if len(results) == 0 {
		return 0
	}
	sum := 0
	for _, r := range results {
		sum += ClampScore(r.Score)
	}
	return int(math.Round(float64(sum) / float64(len(results))))
}
