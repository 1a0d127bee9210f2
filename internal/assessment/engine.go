package assessment

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/engage/internal/logger"
)

// State is a phase of an assessment session.
type State int

const (
	StateLoading State = iota
	StateReady
	StateInProgress
	StateEvaluating
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateInProgress:
		return "in_progress"
	case StateEvaluating:
		return "evaluating"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FetchRequest asks the assessment service for a question set.
type FetchRequest struct {
	Subject       string   `json:"subject"`
	Topic         string   `json:"topic"`
	QuestionCount int      `json:"question_count"`
	QuestionTypes []string `json:"question_types"`
}

// Assessment is a fetched question set.
type Assessment struct {
	ID        string
	Questions []Question
}

// QuizResult is the outcome of a finalized assessment.
type QuizResult struct {
	AssessmentID         string                      `json:"assessment_id"`
	OverallScore         int                         `json:"overall_score"`
	MasteryBefore        float64                     `json:"mastery_before"`
	MasteryAfter         float64                     `json:"mastery_after"`
	Evaluations          map[string]EvaluationResult `json:"evaluations"`
	Strengths            []string                    `json:"strengths"`
	CommonMisconceptions []string                    `json:"common_misconceptions"`
	Recommendations      []string                    `json:"recommendations"`
}

// Service is the assessment collaborator.
type Service interface {
	FetchAssessment(ctx context.Context, req FetchRequest) (*Assessment, error)
	SubmitAssessment(ctx context.Context, assessmentID string, responses map[string]Response) (*QuizResult, error)
}

// Evaluator scores long-answer responses.
type Evaluator interface {
	Evaluate(ctx context.Context, q *LongAnswer, answer string) (EvaluationResult, error)
}

// Session is a snapshot of the engine's question set and answers.
type Session struct {
	ID           string
	Questions    []Question
	Responses    map[string]Response
	Evaluations  map[string]EvaluationResult
	CurrentIndex int
}

const defaultParallelism = 4

// Engine drives one assessment session:
//
//	Loading → Ready → InProgress → Evaluating → Complete
//
// with Error reachable from Loading and Evaluating. The engine is safe for
// use from concurrent commands; network calls run without the lock held.
type Engine struct {
	mu sync.Mutex

	svc      Service
	eval     Evaluator
	req      FetchRequest
	log      *logger.Logger
	parallel int

	state      State
	err        error
	failedLoad bool
	finalizing bool

	id          string
	questions   []Question
	index       map[string]int
	responses   map[string]Response
	evaluations map[string]EvaluationResult
	current     int
	result      *QuizResult
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEvaluator sets the long-answer evaluator. Without one, long-answer
// scores come from the assessment service.
func WithEvaluator(e Evaluator) EngineOption {
	return func(en *Engine) { en.eval = e }
}

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) EngineOption {
	return func(en *Engine) { en.log = l }
}

// WithParallelism bounds concurrent evaluator calls.
func WithParallelism(n int) EngineOption {
	return func(en *Engine) {
		if n > 0 {
			en.parallel = n
		}
	}
}

// NewEngine creates an engine in the Loading state.
func NewEngine(svc Service, req FetchRequest, opts ...EngineOption) *Engine {
	e := &Engine{
		svc:         svc,
		req:         req,
		log:         logger.Nop(),
		parallel:    defaultParallelism,
		state:       StateLoading,
		responses:   make(map[string]Response),
		evaluations: make(map[string]EvaluationResult),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "assessment_engine", "subject", req.Subject, "topic", req.Topic)
	return e
}

// Load fetches the question set. On success the engine is Ready; on
// failure it moves to Error and Retry fetches again.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateLoading {
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("load in state %s", st)
	}
	e.mu.Unlock()

	var a *Assessment
	var err error
	if e.svc == nil {
		err = ErrNoService
	} else {
		a, err = e.svc.FetchAssessment(ctx, e.req)
	}
	if err == nil && a != nil {
		ok := false
		for _, q := range a.Questions {
			if IsGradeable(q) {
				ok = true
				break
			}
		}
		if !ok {
			err = ErrNoQuestions
		}
	} else if err == nil {
		err = ErrNoQuestions
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.fail(fmt.Errorf("fetch assessment: %w", err), true)
		return e.err
	}

	e.id = a.ID
	e.questions = Uniquify(a.Questions)
	e.index = make(map[string]int, len(e.questions))
	for i, q := range e.questions {
		e.index[q.QuestionID()] = i
		if inv, ok := q.(*Invalid); ok {
			e.log.Warn("invalid question in assessment", "question_id", inv.ID, "reason", inv.Reason)
		}
	}
	e.state = StateReady
	e.err = nil
	e.log.Info("assessment loaded", "assessment_id", e.id, "questions", len(e.questions))
	return nil
}

// Begin moves a Ready session to InProgress at the first question.
func (e *Engine) Begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateReady:
		e.state = StateInProgress
		e.current = 0
		return nil
	case StateInProgress:
		return nil
	}
	return fmt.Errorf("begin in state %s", e.state)
}

// Start loads and begins in one step.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Load(ctx); err != nil {
		return err
	}
	return e.Begin()
}

func (e *Engine) fail(err error, loading bool) {
	e.state = StateError
	e.err = err
	e.failedLoad = loading
	e.log.Warn("assessment error", "state", e.state.String(), "loading", loading, "error", err)
}

// State returns the current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the error behind the Error state, or the pending-evaluation
// error while stuck in Evaluating.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Session returns a snapshot of the session.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs := make(map[string]Response, len(e.responses))
	for id, r := range e.responses {
		if p, ok := r.(*Pairing); ok {
			r = p.Clone()
		}
		rs[id] = r
	}
	return Session{
		ID:           e.id,
		Questions:    append([]Question(nil), e.questions...),
		Responses:    rs,
		Evaluations:  maps.Clone(e.evaluations),
		CurrentIndex: e.current,
	}
}

// Current returns the question at the current index.
func (e *Engine) Current() (Question, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.questions) == 0 {
		return nil, 0
	}
	return e.questions[e.current], e.current
}

// Response returns the stored response for a question.
func (e *Engine) Response(questionID string) (Response, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.responses[questionID]
	if p, isPairing := r.(*Pairing); isPairing {
		r = p.Clone()
	}
	return r, ok
}

// Result returns the finalized result, if any.
func (e *Engine) Result() *QuizResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// SubmitResponse upserts the answer to a question. Only valid while
// InProgress; the last write wins.
func (e *Engine) SubmitResponse(questionID string, r Response) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInProgress {
		return ErrNotInProgress
	}
	i, ok := e.index[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	q := e.questions[i]
	if !IsGradeable(q) {
		return fmt.Errorf("%w: %s", ErrInvalidQuestion, questionID)
	}
	if !Fits(q, r) {
		return fmt.Errorf("%w: %s expects a %s answer", ErrResponseMismatch, questionID, q.Type())
	}
	if p, isPairing := r.(*Pairing); isPairing {
		r = p.Clone()
	}
	e.responses[questionID] = r
	return nil
}

// ClearResponse removes the stored response for a question, so it counts
// as unanswered again. Clearing an unanswered question is a no-op.
func (e *Engine) ClearResponse(questionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInProgress {
		return ErrNotInProgress
	}
	if _, ok := e.index[questionID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	delete(e.responses, questionID)
	return nil
}

// Next advances the current index. It is a no-op at the last question.
func (e *Engine) Next() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current+1 >= len(e.questions) {
		return false
	}
	e.current++
	return true
}

// Previous moves the current index back. It is a no-op at the first
// question.
func (e *Engine) Previous() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == 0 {
		return false
	}
	e.current--
	return true
}

// Progress returns answered and gradeable question counts.
func (e *Engine) Progress() (answered, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

func (e *Engine) progressLocked() (answered, total int) {
	for _, q := range e.questions {
		if !IsGradeable(q) {
			continue
		}
		total++
		if _, ok := e.responses[q.QuestionID()]; ok {
			answered++
		}
	}
	return answered, total
}

// IsComplete reports whether every gradeable question has a response.
func (e *Engine) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	answered, total := e.progressLocked()
	return total > 0 && answered == total
}

// Finalize grades the session and submits it. From InProgress it needs a
// complete session. It may also be called again from Evaluating or from an
// Error raised during evaluation, which is how retries work: evaluations
// already obtained are kept.
func (e *Engine) Finalize(ctx context.Context) (*QuizResult, error) {
	e.mu.Lock()
	if e.finalizing {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	switch {
	case e.state == StateInProgress:
		answered, total := e.progressLocked()
		if total == 0 || answered != total {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %d of %d answered", ErrIncomplete, answered, total)
		}
	case e.state == StateEvaluating:
	case e.state == StateError && !e.failedLoad:
	case e.state == StateComplete:
		res := e.result
		e.mu.Unlock()
		return res, nil
	default:
		st := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrNotInProgress, st)
	}
	e.state = StateEvaluating
	e.err = nil
	e.finalizing = true
	questions := append([]Question(nil), e.questions...)
	responses := maps.Clone(e.responses)
	have := maps.Clone(e.evaluations)
	id := e.id
	e.mu.Unlock()

	res, evals, err := e.finalize(ctx, id, questions, responses, have)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalizing = false
	maps.Copy(e.evaluations, evals)
	switch {
	case err == nil:
		e.state = StateComplete
		e.result = res
		e.log.Info("assessment complete", "assessment_id", id, "overall_score", res.OverallScore)
		return res, nil
	case errors.Is(err, errSubmit):
		e.fail(err, false)
	default:
		// Evaluation trouble keeps the session in Evaluating for a retry.
		e.err = err
		e.log.Warn("assessment evaluation incomplete", "assessment_id", id, "error", err)
	}
	return nil, err
}

var errSubmit = errors.New("submit assessment")

func (e *Engine) finalize(ctx context.Context, id string, questions []Question, responses map[string]Response, have map[string]EvaluationResult) (*QuizResult, map[string]EvaluationResult, error) {
	local, pending, err := GradeAll(questions, responses)
	if err != nil {
		return nil, nil, err
	}
	evals := have
	maps.Copy(evals, local)

	if err := e.evaluateSubjective(ctx, questions, responses, pending, evals); err != nil {
		return nil, evals, err
	}

	remote, err := e.svc.SubmitAssessment(ctx, id, responses)
	if err != nil {
		return nil, evals, fmt.Errorf("%w: %w", errSubmit, err)
	}
	if remote == nil {
		remote = &QuizResult{}
	}

	var missing []string
	for _, qid := range pending {
		if _, ok := evals[qid]; ok {
			continue
		}
		if r, ok := remote.Evaluations[qid]; ok {
			r.QuestionID = qid
			r.Score = ClampScore(r.Score)
			evals[qid] = r
			continue
		}
		missing = append(missing, qid)
	}
	if len(missing) > 0 {
		return nil, evals, fmt.Errorf("%w: %v", ErrEvaluationPending, missing)
	}

	scored := make([]EvaluationResult, 0, len(evals))
	for _, q := range questions {
		if r, ok := evals[q.QuestionID()]; ok && IsGradeable(q) {
			scored = append(scored, r)
		}
	}
	res := &QuizResult{
		AssessmentID:         id,
		OverallScore:         OverallScore(scored),
		MasteryBefore:        remote.MasteryBefore,
		MasteryAfter:         remote.MasteryAfter,
		Evaluations:          maps.Clone(evals),
		Strengths:            remote.Strengths,
		CommonMisconceptions: remote.CommonMisconceptions,
		Recommendations:      remote.Recommendations,
	}
	if remote.OverallScore != 0 && remote.OverallScore != res.OverallScore {
		e.log.Debug("remote overall score differs", "local", res.OverallScore, "remote", remote.OverallScore)
	}
	return res, evals, nil
}

func (e *Engine) evaluateSubjective(ctx context.Context, questions []Question, responses map[string]Response, pending []string, evals map[string]EvaluationResult) error {
	if e.eval == nil {
		return nil
	}
	byID := make(map[string]*LongAnswer, len(pending))
	for _, q := range questions {
		if la, ok := q.(*LongAnswer); ok {
			byID[la.ID] = la
		}
	}

	var todo []string
	for _, qid := range pending {
		if _, done := evals[qid]; !done {
			todo = append(todo, qid)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for _, qid := range todo {
		q := byID[qid]
		answer := responses[qid].(EssayResponse).Text
		g.Go(func() error {
			res, err := e.eval.Evaluate(gctx, q, answer)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", qid, err)
			}
			res.QuestionID = qid
			res.Score = ClampScore(res.Score)
			mu.Lock()
			evals[qid] = res
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// Retry recovers from Error: a failed fetch loads again, a failed submit
// or a stuck evaluation finalizes again.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	state, failedLoad := e.state, e.failedLoad
	if state == StateError && failedLoad {
		e.state = StateLoading
		e.err = nil
		e.failedLoad = false
	}
	e.mu.Unlock()

	switch {
	case state == StateError && failedLoad:
		return e.Start(ctx)
	case state == StateError, state == StateEvaluating:
		_, err := e.Finalize(ctx)
		return err
	}
	return fmt.Errorf("retry in state %s", state)
}
