package engagement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersectionRatio(t *testing.T) {
	tests := []struct {
		name           string
		b              Block
		offset, height int
		want           float64
	}{
		{"fully inside", Block{Top: 2, Height: 4}, 0, 10, 1},
		{"above", Block{Top: 0, Height: 4}, 10, 10, 0},
		{"half", Block{Top: 8, Height: 4}, 0, 10, 0.5},
		{"taller than viewport", Block{Top: 0, Height: 30}, 5, 10, 1},
		{"zero height", Block{Top: 0, Height: 0}, 0, 10, 0},
		{"zero viewport", Block{Top: 0, Height: 3}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IntersectionRatio(tt.b, tt.offset, tt.height), 1e-9)
		})
	}
}

func TestObserver_HeadingEmitsOnEachEntry(t *testing.T) {
	o := NewObserver()
	blocks := []Block{{SectionID: "s1", Kind: BlockHeading, Index: 0, Top: 0, Height: 2}}

	evs := o.Observe(blocks, 0, 10, t0)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].BecameVisible)

	assert.Empty(t, o.Observe(blocks, 0, 10, at(1)), "no transition, no event")

	evs = o.Observe(blocks, 20, 10, at(2))
	require.Len(t, evs, 1)
	assert.False(t, evs[0].BecameVisible)

	evs = o.Observe(blocks, 0, 10, at(3))
	require.Len(t, evs, 1)
	assert.True(t, evs[0].BecameVisible)
}

func TestObserver_ParagraphFiresOnce(t *testing.T) {
	o := NewObserver()
	blocks := []Block{{SectionID: "s2", Kind: BlockParagraph, Index: 1, Top: 10, Height: 10}}

	// 6 of 10 lines visible: below the paragraph threshold.
	assert.Empty(t, o.Observe(blocks, 0, 16, t0))

	evs := o.Observe(blocks, 0, 17, at(1))
	require.Len(t, evs, 1)
	assert.Equal(t, "s2", evs[0].SectionID)

	o.Observe(blocks, 100, 10, at(2))
	assert.Empty(t, o.Observe(blocks, 10, 10, at(3)))

	o.Reset()
	assert.Len(t, o.Observe(blocks, 10, 10, at(4)), 1)
}

func TestObserver_FeedsLedgerIdempotently(t *testing.T) {
	o := NewObserver()
	l := NewLedger()
	blocks := []Block{
		{SectionID: "s1", Kind: BlockHeading, Index: 0, Top: 0, Height: 1},
		{SectionID: "s1", Kind: BlockParagraph, Index: 1, Top: 1, Height: 3},
	}
	for i := 0; i < 4; i++ {
		offset := 0
		if i%2 == 1 {
			offset = 50
		}
		for _, ev := range o.Observe(blocks, offset, 10, at(i)) {
			l.Apply(ev)
		}
	}
	assert.Equal(t, 1, l.SeenCount())
}
