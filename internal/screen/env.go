package screen

import (
	"context"
	"errors"
	"sync"

	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/logger"
	"github.com/abhisek/engage/internal/store"
)

// ContentSource fetches content for the viewers.
type ContentSource interface {
	FetchContent(ctx context.Context, req content.FetchRequest) (*content.FetchResponse, error)
	StreamContent(ctx context.Context, req content.FetchRequest, onFrame func(content.Frame)) (*content.FetchResponse, error)
}

// Drainer waits for background work started by a closed session.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Env carries the collaborators shared by every screen.
type Env struct {
	Learner     string
	Content     ContentSource
	Feedback    engagement.Sender
	Assessments assessment.Service
	Evaluator   assessment.Evaluator
	Repo        store.EventRepo
	Stream      bool
	Parallelism int
	Profiles    func(content.Kind) engagement.Profile
	Log         *logger.Logger

	mu      sync.Mutex
	pending []Drainer
}

// Profile returns the profile for a surface, using configured overrides
// when present.
func (e *Env) Profile(kind content.Kind) engagement.Profile {
	if e.Profiles != nil {
		return e.Profiles(kind)
	}
	return engagement.ProfileFor(kind)
}

// Logger never returns nil.
func (e *Env) Logger() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

// Track registers a session whose teardown work must finish before exit.
func (e *Env) Track(d Drainer) {
	e.mu.Lock()
	e.pending = append(e.pending, d)
	e.mu.Unlock()
}

// Drain waits for every tracked session, bounded by ctx.
func (e *Env) Drain(ctx context.Context) error {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	var errs []error
	for _, d := range pending {
		if err := d.Drain(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
