package content

// Kind names a content-consumption surface.
type Kind string

const (
	KindLesson     Kind = "lesson"
	KindCheatsheet Kind = "cheatsheet"
	KindFlashcards Kind = "flashcards"
	KindScenario   Kind = "scenario"
	KindQuiz       Kind = "quiz"
)

// Kinds lists every surface in menu order.
func Kinds() []Kind {
	return []Kind{KindLesson, KindCheatsheet, KindFlashcards, KindScenario, KindQuiz}
}

// Valid reports whether k is a known surface.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// FetchRequest asks the content service for a subject/topic.
type FetchRequest struct {
	ContentType   Kind     `json:"content_type"`
	Subject       string   `json:"subject"`
	Topic         string   `json:"topic"`
	QuestionCount int      `json:"question_count,omitempty"`
	QuestionTypes []string `json:"question_types,omitempty"`
}

// Metadata describes how the content was produced. InteractionID keys the
// feedback submission for this content session.
type Metadata struct {
	InteractionID    string `json:"interaction_id" yaml:"interaction_id"`
	DifficultyChoice string `json:"difficulty_choice" yaml:"difficulty_choice"`
	Strategy         string `json:"strategy" yaml:"strategy"`
}

// FetchResponse is a fully received content payload.
type FetchResponse struct {
	Sections          []Section `json:"sections"`
	InstructionalPlan string    `json:"instructional_plan,omitempty"`
	Metadata          Metadata  `json:"metadata"`
}

// Frame is one line of a streamed content response. Intermediate frames
// carry a section; the last frame carries metadata and Progress 100.
type Frame struct {
	Progress          int       `json:"progress"`
	Section           *Section  `json:"section,omitempty"`
	Metadata          *Metadata `json:"metadata,omitempty"`
	InstructionalPlan string    `json:"instructional_plan,omitempty"`
	Error             string    `json:"error,omitempty"`
}
