// Package stub serves the content, feedback and assessment collaborators
// from local fixtures, so the terminal surfaces work without a backend.
package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/logger"
)

// DefaultAddr is where `engage stub` listens by default.
const DefaultAddr = "127.0.0.1:8787"

// Feedback is a feedback submission as received on the wire.
type Feedback struct {
	InteractionID        string    `json:"interaction_id"`
	HelpfulRating        *int      `json:"helpful_rating,omitempty"`
	EngagementRating     *int      `json:"engagement_rating,omitempty"`
	TimeSpentSeconds     int       `json:"time_spent_seconds"`
	CompletionPercentage int       `json:"completion_percentage"`
	ReceivedAt           time.Time `json:"-"`
}

type issued struct {
	subject   string
	topic     string
	questions []assessment.Question

	// Mastery is updated on the first submission only; resubmissions
	// regrade but report the same movement.
	submitted     bool
	masteryBefore float64
	masteryAfter  float64
}

// Server is the stub collaborator service.
type Server struct {
	lib       *Library
	log       *logger.Logger
	evaluator assessment.Evaluator
	delay     time.Duration

	mu          sync.Mutex
	assessments map[string]*issued
	feedback    []Feedback
	interaction map[string]bool
	mastery     map[string]float64
}

// Option customizes a Server.
type Option func(*Server)

// WithEvaluator scores long answers with e instead of the length heuristic.
func WithEvaluator(e assessment.Evaluator) Option {
	return func(s *Server) { s.evaluator = e }
}

// WithStreamDelay pauses between streamed content frames.
func WithStreamDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a stub server over lib.
func New(lib *Library, opts ...Option) *Server {
	s := &Server{
		lib:         lib,
		log:         logger.Nop(),
		assessments: make(map[string]*issued),
		interaction: make(map[string]bool),
		mastery:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "stub")
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/v1", func(r chi.Router) {
		r.Post("/content", s.handleContent)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/feedback", s.handleListFeedback)
		r.Route("/assessments", func(r chi.Router) {
			r.Post("/", s.handleAssessment)
			r.Post("/{assessmentID}/submit", s.handleSubmit)
		})
	})
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("stub listening", "addr", addr, "topics", s.lib.Topics())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Feedback returns the submissions received so far.
func (s *Server) Feedback() []Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Feedback(nil), s.feedback...)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	var req content.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.ContentType == "" {
		req.ContentType = content.KindLesson
	}
	if !req.ContentType.Valid() {
		respondError(w, http.StatusBadRequest, "bad_content_type", fmt.Errorf("unknown content type %q", req.ContentType))
		return
	}

	fx, exact := s.lib.Lookup(req.Subject, req.Topic)
	if !exact {
		s.log.Debug("no fixture for topic; serving default", "subject", req.Subject, "topic", req.Topic)
	}
	meta := fx.Metadata
	meta.InteractionID = uuid.New().String()
	s.mu.Lock()
	s.interaction[meta.InteractionID] = true
	s.mu.Unlock()

	resp := content.FetchResponse{
		Sections:          sectionsFor(req.ContentType, fx.Sections),
		InstructionalPlan: fx.InstructionalPlan,
		Metadata:          meta,
	}

	if strings.Contains(r.Header.Get("Accept"), "application/x-ndjson") {
		s.stream(w, r, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// sectionsFor shapes the fixture for a surface: cheatsheets drop worked
// examples and practice, flashcards keep the concept and summary cards.
func sectionsFor(kind content.Kind, all []content.Section) []content.Section {
	keep := func(content.SectionType) bool { return true }
	switch kind {
	case content.KindCheatsheet:
		keep = func(t content.SectionType) bool {
			return t != content.SectionExample && t != content.SectionPractice
		}
	case content.KindFlashcards:
		keep = func(t content.SectionType) bool {
			return t == content.SectionConcept || t == content.SectionSummary
		}
	}
	out := make([]content.Section, 0, len(all))
	for _, sec := range all {
		if keep(sec.Type) {
			out = append(out, sec)
		}
	}
	return out
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, resp content.FetchResponse) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	n := len(resp.Sections)
	for i := range resp.Sections {
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}
		frame := content.Frame{Progress: (i + 1) * 90 / n, Section: &resp.Sections[i]}
		if err := enc.Encode(frame); err != nil {
			s.log.Debug("stream write failed", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	meta := resp.Metadata
	_ = enc.Encode(content.Frame{Progress: 100, Metadata: &meta, InstructionalPlan: resp.InstructionalPlan})
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(fb.InteractionID) == "" {
		respondError(w, http.StatusBadRequest, "missing_interaction", errors.New("interaction_id is required"))
		return
	}
	for _, rating := range []*int{fb.HelpfulRating, fb.EngagementRating} {
		if rating != nil && (*rating < 1 || *rating > 5) {
			respondError(w, http.StatusBadRequest, "bad_rating", fmt.Errorf("rating %d outside 1..5", *rating))
			return
		}
	}
	if fb.CompletionPercentage < 0 || fb.CompletionPercentage > 100 || fb.TimeSpentSeconds < 0 {
		respondError(w, http.StatusBadRequest, "bad_payload", errors.New("completion or time out of range"))
		return
	}
	fb.ReceivedAt = time.Now()

	s.mu.Lock()
	known := s.interaction[fb.InteractionID]
	s.feedback = append(s.feedback, fb)
	s.mu.Unlock()

	s.log.Info("feedback received",
		"interaction_id", fb.InteractionID,
		"known_interaction", known,
		"completion", fb.CompletionPercentage,
		"time_spent", fb.TimeSpentSeconds,
		"rated", fb.HelpfulRating != nil || fb.EngagementRating != nil,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Feedback())
}

type assessmentResponse struct {
	AssessmentID string                   `json:"assessment_id"`
	Questions    []assessment.RawQuestion `json:"questions"`
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessment.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	fx, _ := s.lib.Lookup(req.Subject, req.Topic)
	raw := selectQuestions(fx.Questions, req.QuestionTypes, req.QuestionCount)
	if len(raw) == 0 {
		respondError(w, http.StatusNotFound, "no_questions", errors.New("no questions match the requested types"))
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.assessments[id] = &issued{subject: fx.Subject, topic: fx.Topic, questions: assessment.FromRaw(raw)}
	s.mu.Unlock()

	s.log.Info("assessment issued", "assessment_id", id, "questions", len(raw))
	respondJSON(w, http.StatusOK, assessmentResponse{AssessmentID: id, Questions: raw})
}

func selectQuestions(bank []assessment.RawQuestion, types []string, count int) []assessment.RawQuestion {
	allowed := make(map[assessment.QuestionType]bool, len(types))
	for _, t := range types {
		allowed[assessment.QuestionType(strings.ToLower(strings.TrimSpace(t)))] = true
	}
	var out []assessment.RawQuestion
	for _, q := range bank {
		if len(allowed) > 0 && !allowed[q.Type] {
			continue
		}
		out = append(out, q)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out
}

type submitRequest struct {
	AssessmentID string                     `json:"assessment_id"`
	Responses    map[string]json.RawMessage `json:"responses"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "assessmentID")
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	s.mu.Lock()
	a, ok := s.assessments[id]
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_assessment", fmt.Errorf("assessment %q not found", id))
		return
	}

	responses := make(map[string]assessment.Response, len(req.Responses))
	for _, q := range a.questions {
		raw, ok := req.Responses[q.QuestionID()]
		if !ok || !assessment.IsGradeable(q) {
			continue
		}
		resp, err := assessment.DecodeResponse(q, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "bad_response", fmt.Errorf("%s: %w", q.QuestionID(), err))
			return
		}
		responses[q.QuestionID()] = resp
	}

	res, err := s.grade(r.Context(), id, a, responses)
	if err != nil {
		respondError(w, http.StatusBadGateway, "evaluation_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) grade(ctx context.Context, id string, a *issued, responses map[string]assessment.Response) (*assessment.QuizResult, error) {
	evals, pending, err := assessment.GradeAll(a.questions, responses)
	if err != nil {
		return nil, err
	}
	for _, qid := range pending {
		la := findLongAnswer(a.questions, qid)
		text := responses[qid].(assessment.EssayResponse).Text
		var res assessment.EvaluationResult
		if s.evaluator != nil {
			res, err = s.evaluator.Evaluate(ctx, la, text)
			if err != nil {
				return nil, err
			}
		} else {
			res = lengthScore(la, text)
		}
		res.QuestionID = qid
		evals[qid] = res
	}

	var (
		scored                     []assessment.EvaluationResult
		strengths, misconceptions []string
	)
	for _, q := range a.questions {
		ev, ok := evals[q.QuestionID()]
		if !ok || !assessment.IsGradeable(q) {
			continue
		}
		scored = append(scored, ev)
		switch {
		case ev.Correct:
			strengths = append(strengths, q.Prompt())
		case assessment.Raw(q).Explanation != "":
			misconceptions = append(misconceptions, assessment.Raw(q).Explanation)
		default:
			misconceptions = append(misconceptions, q.Prompt())
		}
	}
	overall := assessment.OverallScore(scored)

	s.mu.Lock()
	if !a.submitted {
		mk := key(a.subject, a.topic)
		a.masteryBefore = s.mastery[mk]
		a.masteryAfter = math.Round((a.masteryBefore*0.7+float64(overall)/100*0.3)*1000) / 1000
		s.mastery[mk] = a.masteryAfter
		a.submitted = true
	}
	before, after := a.masteryBefore, a.masteryAfter
	s.mu.Unlock()

	var recs []string
	if overall < 70 {
		recs = append(recs, fmt.Sprintf("Review the %s lesson before retrying the quiz.", a.topic))
	} else {
		recs = append(recs, fmt.Sprintf("Try the %s scenario to apply what you know.", a.topic))
	}

	s.log.Info("assessment graded", "assessment_id", id, "overall_score", overall)
	return &assessment.QuizResult{
		AssessmentID:         id,
		OverallScore:         overall,
		MasteryBefore:        before,
		MasteryAfter:         after,
		Evaluations:          evals,
		Strengths:            strengths,
		CommonMisconceptions: misconceptions,
		Recommendations:      recs,
	}, nil
}

func findLongAnswer(qs []assessment.Question, id string) *assessment.LongAnswer {
	for _, q := range qs {
		if la, ok := q.(*assessment.LongAnswer); ok && la.ID == id {
			return la
		}
	}
	return nil
}

// lengthScore stands in for a real evaluator: full marks at the minimum
// length, proportionally less below it.
func lengthScore(q *assessment.LongAnswer, text string) assessment.EvaluationResult {
	words := len(strings.Fields(text))
	want := max(q.MinWords, 1)
	score := assessment.ClampScore(words * 100 / want)
	res := assessment.EvaluationResult{QuestionID: q.ID, Score: score, Correct: score >= 60}
	if score < 100 {
		res.Feedback = fmt.Sprintf("%d of %d words; say more about: %s", words, q.MinWords, q.Rubric)
	}
	return res
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code string, err error) {
	respondJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}
