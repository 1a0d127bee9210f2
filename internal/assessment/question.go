package assessment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QuestionType is the wire tag of a question.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple-choice"
	TypeTrueFalse      QuestionType = "true-false"
	TypeShortAnswer    QuestionType = "short-answer"
	TypeFillInBlank    QuestionType = "fill-in-blank"
	TypeMatching       QuestionType = "matching"
	TypeLongAnswer     QuestionType = "long-answer"
	TypeInvalid        QuestionType = "invalid"
)

// QuestionTypes lists the gradeable types in display order.
func QuestionTypes() []QuestionType {
	return []QuestionType{
		TypeMultipleChoice, TypeTrueFalse, TypeShortAnswer,
		TypeFillInBlank, TypeMatching, TypeLongAnswer,
	}
}

// Question is one of the concrete question variants below. The set is
// closed: switch on the concrete type, not on Type().
type Question interface {
	QuestionID() string
	Type() QuestionType
	Prompt() string
	isQuestion()
}

// Base holds the fields every variant carries.
type Base struct {
	ID          string
	Text        string
	Explanation string
}

func (b Base) QuestionID() string { return b.ID }
func (b Base) Prompt() string     { return b.Text }

// MultipleChoice is answered by selecting one of Options.
type MultipleChoice struct {
	Base
	Options       []string
	CorrectAnswer string
}

// TrueFalse is answered with a boolean.
type TrueFalse struct {
	Base
	CorrectAnswer bool
}

// ShortAnswer is answered with a short free-text string compared against
// the correct answer and any acceptable alternatives.
type ShortAnswer struct {
	Base
	CorrectAnswer     string
	AcceptableAnswers []string
}

// Blank is one gap in a fill-in-blank question.
type Blank struct {
	ID                string   `json:"id" yaml:"id"`
	CorrectAnswer     string   `json:"correct_answer" yaml:"correct_answer"`
	AcceptableAnswers []string `json:"acceptable_answers,omitempty" yaml:"acceptable_answers,omitempty"`
}

// FillInBlank has one or more blanks, each graded independently.
type FillInBlank struct {
	Base
	Blanks []Blank
}

// Option is a labeled entry on either side of a matching question.
type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Pair is an (item, match) association.
type Pair struct {
	ItemID  string `json:"item_id" yaml:"item_id"`
	MatchID string `json:"match_id" yaml:"match_id"`
}

// Matching asks the learner to pair each item with a match.
type Matching struct {
	Base
	Items        []Option
	Matches      []Option
	CorrectPairs []Pair
}

// LongAnswer is an essay-style question scored by an evaluation
// collaborator.
type LongAnswer struct {
	Base
	Rubric   string
	MinWords int
}

// Invalid stands in for a question whose data could not be used. It is
// shown as an invalid question and excluded from completeness and scoring.
type Invalid struct {
	Base
	Declared QuestionType
	Reason   string
}

func (MultipleChoice) Type() QuestionType { return TypeMultipleChoice }
func (TrueFalse) Type() QuestionType      { return TypeTrueFalse }
func (ShortAnswer) Type() QuestionType    { return TypeShortAnswer }
func (FillInBlank) Type() QuestionType    { return TypeFillInBlank }
func (Matching) Type() QuestionType       { return TypeMatching }
func (LongAnswer) Type() QuestionType     { return TypeLongAnswer }
func (Invalid) Type() QuestionType        { return TypeInvalid }

func (*MultipleChoice) isQuestion() {}
func (*TrueFalse) isQuestion()      {}
func (*ShortAnswer) isQuestion()    {}
func (*FillInBlank) isQuestion()    {}
func (*Matching) isQuestion()       {}
func (*LongAnswer) isQuestion()     {}
func (*Invalid) isQuestion()        {}

// IsObjective reports whether q can be graded locally.
func IsObjective(q Question) bool {
	switch q.(type) {
	case *MultipleChoice, *TrueFalse, *ShortAnswer, *FillInBlank, *Matching:
		return true
	}
	return false
}

// IsGradeable reports whether q counts towards completeness and score.
func IsGradeable(q Question) bool {
	_, invalid := q.(*Invalid)
	return !invalid
}

// Item returns the text of a matching item.
func (m *Matching) Item(id string) (Option, bool) {
	return findOption(m.Items, id)
}

// Match returns the text of a matching match.
func (m *Matching) Match(id string) (Option, bool) {
	return findOption(m.Matches, id)
}

func findOption(opts []Option, id string) (Option, bool) {
	for _, o := range opts {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// RawQuestion is the flat wire form shared by the assessment service and
// the fixture files. CorrectAnswer is a string for most types and a bool
// for true-false.
type RawQuestion struct {
	ID                string       `json:"id" yaml:"id"`
	Type              QuestionType `json:"type" yaml:"type"`
	Question          string       `json:"question" yaml:"question"`
	Explanation       string       `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Options           []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer     any          `json:"correct_answer,omitempty" yaml:"correct_answer,omitempty"`
	AcceptableAnswers []string     `json:"acceptable_answers,omitempty" yaml:"acceptable_answers,omitempty"`
	Blanks            []Blank      `json:"blanks,omitempty" yaml:"blanks,omitempty"`
	Items             []Option     `json:"items,omitempty" yaml:"items,omitempty"`
	Matches           []Option     `json:"matches,omitempty" yaml:"matches,omitempty"`
	CorrectPairs      []Pair       `json:"correct_pairs,omitempty" yaml:"correct_pairs,omitempty"`
	Rubric            string       `json:"rubric,omitempty" yaml:"rubric,omitempty"`
	MinWords          int          `json:"min_words,omitempty" yaml:"min_words,omitempty"`
}

// Variant converts the wire form into a variant. Malformed data yields an
// *Invalid rather than an error, so one bad question never aborts a
// session.
func (r RawQuestion) Variant() Question {
	base := Base{
		ID:          strings.TrimSpace(r.ID),
		Text:        strings.TrimSpace(r.Question),
		Explanation: strings.TrimSpace(r.Explanation),
	}
	invalid := func(format string, args ...any) Question {
		return &Invalid{Base: base, Declared: r.Type, Reason: fmt.Sprintf(format, args...)}
	}

	if base.ID == "" {
		return invalid("missing id")
	}
	if base.Text == "" {
		return invalid("missing question text")
	}

	switch QuestionType(strings.ToLower(strings.TrimSpace(string(r.Type)))) {
	case TypeMultipleChoice:
		answer, ok := stringAnswer(r.CorrectAnswer)
		if len(r.Options) < 2 {
			return invalid("multiple choice needs at least 2 options, got %d", len(r.Options))
		}
		if !ok || answer == "" {
			return invalid("missing correct answer")
		}
		options := make([]string, len(r.Options))
		found := false
		for i, o := range r.Options {
			options[i] = strings.TrimSpace(o)
			if options[i] == answer {
				found = true
			}
		}
		if !found {
			return invalid("correct answer %q is not one of the options", answer)
		}
		return &MultipleChoice{Base: base, Options: options, CorrectAnswer: answer}

	case TypeTrueFalse:
		v, ok := boolAnswer(r.CorrectAnswer)
		if !ok {
			return invalid("true-false needs a boolean correct answer")
		}
		return &TrueFalse{Base: base, CorrectAnswer: v}

	case TypeShortAnswer:
		answer, ok := stringAnswer(r.CorrectAnswer)
		if !ok || answer == "" {
			return invalid("missing correct answer")
		}
		return &ShortAnswer{Base: base, CorrectAnswer: answer, AcceptableAnswers: r.AcceptableAnswers}

	case TypeFillInBlank:
		if len(r.Blanks) == 0 {
			return invalid("fill-in-blank has no blanks")
		}
		seen := make(map[string]bool, len(r.Blanks))
		for _, b := range r.Blanks {
			if b.ID == "" || strings.TrimSpace(b.CorrectAnswer) == "" {
				return invalid("blank %q is missing an id or answer", b.ID)
			}
			if seen[b.ID] {
				return invalid("duplicate blank %q", b.ID)
			}
			seen[b.ID] = true
		}
		return &FillInBlank{Base: base, Blanks: r.Blanks}

	case TypeMatching:
		if len(r.Items) == 0 || len(r.Matches) == 0 {
			return invalid("matching needs items and matches")
		}
		if len(r.CorrectPairs) == 0 {
			return invalid("matching has no correct pairs")
		}
		m := &Matching{Base: base, Items: r.Items, Matches: r.Matches, CorrectPairs: r.CorrectPairs}
		for _, p := range r.CorrectPairs {
			if _, ok := m.Item(p.ItemID); !ok {
				return invalid("correct pair references unknown item %q", p.ItemID)
			}
			if _, ok := m.Match(p.MatchID); !ok {
				return invalid("correct pair references unknown match %q", p.MatchID)
			}
		}
		return m

	case TypeLongAnswer:
		return &LongAnswer{Base: base, Rubric: r.Rubric, MinWords: max(r.MinWords, 0)}

	default:
		return invalid("unknown question type %q", r.Type)
	}
}

// Raw converts a variant back to its wire form.
func Raw(q Question) RawQuestion {
	r := RawQuestion{ID: q.QuestionID(), Type: q.Type(), Question: q.Prompt()}
	switch v := q.(type) {
	case *MultipleChoice:
		r.Explanation = v.Explanation
		r.Options = v.Options
		r.CorrectAnswer = v.CorrectAnswer
	case *TrueFalse:
		r.Explanation = v.Explanation
		r.CorrectAnswer = v.CorrectAnswer
	case *ShortAnswer:
		r.Explanation = v.Explanation
		r.CorrectAnswer = v.CorrectAnswer
		r.AcceptableAnswers = v.AcceptableAnswers
	case *FillInBlank:
		r.Explanation = v.Explanation
		r.Blanks = v.Blanks
	case *Matching:
		r.Explanation = v.Explanation
		r.Items = v.Items
		r.Matches = v.Matches
		r.CorrectPairs = v.CorrectPairs
	case *LongAnswer:
		r.Explanation = v.Explanation
		r.Rubric = v.Rubric
		r.MinWords = v.MinWords
	case *Invalid:
		r.Type = v.Declared
	}
	return r
}

// DecodeQuestions decodes a question list. Every element becomes a
// question; ids that are missing or repeated are replaced so the ids stay
// unique within the session and the offending question is marked invalid.
func DecodeQuestions(raw []json.RawMessage) []Question {
	out := make([]Question, 0, len(raw))
	for i, msg := range raw {
		var rq RawQuestion
		if err := json.Unmarshal(msg, &rq); err != nil {
			out = append(out, &Invalid{
				Base:   Base{ID: placeholderID(i)},
				Reason: fmt.Sprintf("undecodable question: %v", err),
			})
			continue
		}
		out = append(out, rq.Variant())
	}
	return Uniquify(out)
}

// FromRaw converts a list of wire questions, enforcing id uniqueness.
func FromRaw(raw []RawQuestion) []Question {
	out := make([]Question, len(raw))
	for i, rq := range raw {
		out[i] = rq.Variant()
	}
	return Uniquify(out)
}

// Uniquify guarantees unique non-empty ids. A question whose id is empty
// or already taken is replaced by an *Invalid with a placeholder id.
func Uniquify(qs []Question) []Question {
	taken := make(map[string]bool, len(qs))
	for i, q := range qs {
		id := q.QuestionID()
		if id != "" && !taken[id] {
			taken[id] = true
			continue
		}
		reason := "missing id"
		if id != "" {
			reason = fmt.Sprintf("duplicate id %q", id)
		}
		if inv, ok := q.(*Invalid); ok && id == "" {
			reason = inv.Reason
		}
		nid := placeholderID(i)
		for taken[nid] {
			nid += "'"
		}
		taken[nid] = true
		qs[i] = &Invalid{
			Base:     Base{ID: nid, Text: q.Prompt()},
			Declared: declaredType(q),
			Reason:   reason,
		}
	}
	return qs
}

func declaredType(q Question) QuestionType {
	if inv, ok := q.(*Invalid); ok {
		return inv.Declared
	}
	return q.Type()
}

func placeholderID(i int) string {
	return "invalid-" + strconv.Itoa(i+1)
}

func stringAnswer(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case nil:
		return "", false
	default:
		return strings.TrimSpace(fmt.Sprint(t)), true
	}
}

func boolAnswer(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t)))
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}
