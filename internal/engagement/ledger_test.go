package engagement

import (
	"testing"
	"time"
)

func TestLedger_MarkSeenIdempotent(t *testing.T) {
	l := NewLedger()
	if !l.MarkSeen("s1") {
		t.Fatal("first mark should be new")
	}
	for i := 0; i < 5; i++ {
		if l.MarkSeen("s1") {
			t.Fatal("repeat mark should not be new")
		}
	}
	if l.SeenCount() != 1 {
		t.Errorf("SeenCount = %d, want 1", l.SeenCount())
	}
}

func TestLedger_IgnoresEmptyAndHidden(t *testing.T) {
	l := NewLedger()
	if l.MarkSeen("") {
		t.Error("empty id should be ignored")
	}
	if l.Apply(VisibilityEvent{SectionID: "s1", BecameVisible: false, At: time.Now()}) {
		t.Error("not-visible event should be ignored")
	}
	if l.Seen("s1") {
		t.Error("s1 should not be seen")
	}
}

func TestLedger_OrderAndReset(t *testing.T) {
	l := NewLedger()
	for _, id := range []string{"b", "a", "b", "c"} {
		l.MarkSeen(id)
	}
	got := l.SeenIDs()
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("SeenIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SeenIDs = %v, want %v", got, want)
		}
	}

	l.Reset()
	if l.SeenCount() != 0 || len(l.SeenIDs()) != 0 {
		t.Error("Reset should clear the ledger")
	}
}
