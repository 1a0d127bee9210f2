package engagement

import "time"

// VisibilityEvent is emitted by a viewport observer when a section crosses
// its visibility threshold. Only BecameVisible transitions are retained.
type VisibilityEvent struct {
	SectionID     string
	BecameVisible bool
	At            time.Time
}

// Ledger records which sections have been seen. Marking is idempotent:
// it is a set, not a counter.
type Ledger struct {
	seen  map[string]struct{}
	order []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// MarkSeen records id and reports whether it was new.
func (l *Ledger) MarkSeen(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
	return true
}

// Apply records a visibility event. Events reporting that a section left
// the viewport are ignored.
func (l *Ledger) Apply(ev VisibilityEvent) bool {
	if !ev.BecameVisible {
		return false
	}
	return l.MarkSeen(ev.SectionID)
}

// Seen reports whether id has been marked.
func (l *Ledger) Seen(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// SeenCount returns the number of distinct ids marked.
func (l *Ledger) SeenCount() int {
	return len(l.seen)
}

// SeenIDs returns the marked ids in first-seen order.
func (l *Ledger) SeenIDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Reset clears all state. Used when content is replaced, e.g. on retry.
func (l *Ledger) Reset() {
	l.seen = make(map[string]struct{})
	l.order = nil
}
