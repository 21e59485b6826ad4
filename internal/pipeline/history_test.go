package pipeline

import (
	"fmt"
	"testing"
	"time"
)

func TestLedger_EvictsOldestBeyondLimit(t *testing.T) {
	l := NewLedger(0)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		l.Record("owner", HistoryEntry{
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			ResultReference: fmt.Sprintf("video-%d", i),
		})
	}

	got := l.List("owner")
	if len(got) != DefaultHistoryLimit {
		t.Fatalf("expected %d entries, got %d", DefaultHistoryLimit, len(got))
	}
	for i, e := range got {
		want := fmt.Sprintf("video-%d", i+3)
		if e.ResultReference != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, e.ResultReference)
		}
	}
}

func TestLedger_IdentitiesAreIndependent(t *testing.T) {
	l := NewLedger(2)
	l.Record("a", HistoryEntry{ResultReference: "a1"})
	l.Record("b", HistoryEntry{ResultReference: "b1"})
	l.Record("a", HistoryEntry{ResultReference: "a2"})
	l.Record("a", HistoryEntry{ResultReference: "a3"})

	if got := l.List("a"); len(got) != 2 || got[0].ResultReference != "a2" || got[1].ResultReference != "a3" {
		t.Errorf("unexpected entries for a: %+v", got)
	}
	if got := l.List("b"); len(got) != 1 {
		t.Errorf("expected one entry for b, got %d", len(got))
	}
	if got := l.List("nobody"); len(got) != 0 {
		t.Errorf("expected no entries, got %d", len(got))
	}
}

func TestLedger_ListReturnsCopy(t *testing.T) {
	l := NewLedger(5)
	l.Record("owner", HistoryEntry{ResultReference: "original"})

	got := l.List("owner")
	got[0].ResultReference = "mutated"

	if l.List("owner")[0].ResultReference != "original" {
		t.Error("List must not expose internal storage")
	}
}
