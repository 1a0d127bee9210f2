package engagement

import (
	"fmt"
	"time"
)

// BlockKind distinguishes the two kinds of rendered block the observer
// watches.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
)

// Visibility thresholds, as intersection ratios.
const (
	HeadingThreshold   = 0.5
	ParagraphThreshold = 0.7
)

// Block is a rendered span of lines belonging to a section.
type Block struct {
	SectionID string
	Kind      BlockKind
	Index     int // position of the block within its section
	Top       int // first line, in content coordinates
	Height    int // number of lines
}

func (b Block) key() string {
	return fmt.Sprintf("%s/%d", b.SectionID, b.Index)
}

// Observer converts scroll geometry into visibility events.
//
// A heading is visible while at least half of it is inside the viewport,
// and emits an event every time it enters. A paragraph needs 70% and
// fires once for the life of the observer. A block taller than the
// viewport is measured against the viewport height, since it could
// otherwise never qualify.
type Observer struct {
	visible map[string]bool
	fired   map[string]bool
}

// NewObserver returns an observer with no history.
func NewObserver() *Observer {
	return &Observer{
		visible: make(map[string]bool),
		fired:   make(map[string]bool),
	}
}

// Observe evaluates every block against the viewport [offset,
// offset+height) and returns the transitions since the previous call.
func (o *Observer) Observe(blocks []Block, offset, height int, now time.Time) []VisibilityEvent {
	var events []VisibilityEvent
	for _, b := range blocks {
		k := b.key()
		r := IntersectionRatio(b, offset, height)

		switch b.Kind {
		case BlockHeading:
			in := r >= HeadingThreshold
			if in != o.visible[k] {
				o.visible[k] = in
				events = append(events, VisibilityEvent{SectionID: b.SectionID, BecameVisible: in, At: now})
			}
		case BlockParagraph:
			if o.fired[k] {
				continue
			}
			if r >= ParagraphThreshold {
				o.fired[k] = true
				events = append(events, VisibilityEvent{SectionID: b.SectionID, BecameVisible: true, At: now})
			}
		}
	}
	return events
}

// Reset forgets every block, e.g. when content is replaced.
func (o *Observer) Reset() {
	o.visible = make(map[string]bool)
	o.fired = make(map[string]bool)
}

// IntersectionRatio is the visible share of a block within the viewport.
func IntersectionRatio(b Block, offset, height int) float64 {
	if b.Height <= 0 || height <= 0 {
		return 0
	}
	top := max(b.Top, offset)
	bottom := min(b.Top+b.Height, offset+height)
	if bottom <= top {
		return 0
	}
	return float64(bottom-top) / float64(min(b.Height, height))
}
