package manager

import (
	"fmt"
	"strings"
	"testing"

	"github.com/voyplan/memory-backend/internal/types"
)

func TestQASummaryPairsMessages(t *testing.T) {
	msgs := []types.Message{
		{Type: types.MessageUser, Content: "Where should I go in May?"},
		{Type: types.MessageAgent, Content: "Lisbon is great in May."},
		{Type: types.MessageUser, Content: "How about food?"},
		{Type: types.MessageAgent, Content: "Try the seafood in Cascais."},
	}

	got := QASummary(msgs)
	want := "Q: Where should I go in May?\nA: Lisbon is great in May.\n\n" +
		"Q: How about food?\nA: Try the seafood in Cascais."
	if got != want {
		t.Fatalf("unexpected summary:\n%q\nwant:\n%q", got, want)
	}
}

func TestQASummaryDropsUnpairedTail(t *testing.T) {
	msgs := []types.Message{
		{Type: types.MessageUser, Content: "first question"},
		{Type: types.MessageAgent, Content: "first answer"},
		{Type: types.MessageUser, Content: "dangling question"},
	}

	got := QASummary(msgs)
	if strings.Contains(got, "dangling") {
		t.Fatalf("unpaired trailing message leaked into summary: %q", got)
	}
}

func TestQASummaryTruncatesEntriesAndTotal(t *testing.T) {
	long := strings.Repeat("x", 500)
	msgs := []types.Message{
		{Type: types.MessageUser, Content: long},
		{Type: types.MessageAgent, Content: long},
		{Type: types.MessageUser, Content: long},
		{Type: types.MessageAgent, Content: long},
	}

	got := QASummary(msgs)
	if len(got) > qaSummaryChars {
		t.Fatalf("summary exceeds cap: %d > %d", len(got), qaSummaryChars)
	}
	// Each side of the first pair must have been cut before joining.
	if strings.Contains(got, strings.Repeat("x", qaEntryChars+1)) {
		t.Fatal("per-entry truncation not applied")
	}
}

func TestQASummaryEmpty(t *testing.T) {
	if got := QASummary(nil); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
	if got := QASummary([]types.Message{{Type: types.MessageUser, Content: "alone"}}); got != "" {
		t.Fatalf("single message should not form a pair, got %q", got)
	}
}

func TestFormatMemoriesForContext(t *testing.T) {
	mems := []types.ScoredMemory{
		{Item: types.MemoryItem{Type: types.MemoryInterSession, Content: "planned a Tokyo trip"}, Score: 0.91},
		{Item: types.MemoryItem{Type: types.MemoryInterSession, Content: "prefers window seats"}, Score: 0.77},
	}

	got := FormatMemoriesForContext(mems, 800)
	if !strings.HasPrefix(got, "Relevant context from past conversations:\n") {
		t.Fatalf("missing header: %q", got)
	}
	wantLine := fmt.Sprintf("- (%s, similarity=0.91) planned a Tokyo trip", types.MemoryInterSession)
	if !strings.Contains(got, wantLine) {
		t.Fatalf("missing formatted line %q in %q", wantLine, got)
	}
	if lines := strings.Split(got, "\n"); len(lines) != 3 {
		t.Fatalf("expected header plus two lines, got %d", len(lines))
	}
}

func TestFormatMemoriesForContextEmpty(t *testing.T) {
	if got := FormatMemoriesForContext(nil, 800); got != "" {
		t.Fatalf("expected empty string for no memories, got %q", got)
	}
}

func TestFormatMemoriesForContextBudget(t *testing.T) {
	var mems []types.ScoredMemory
	for i := 0; i < 20; i++ {
		mems = append(mems, types.ScoredMemory{
			Item:  types.MemoryItem{Type: types.MemoryInterSession, Content: strings.Repeat("m", 150)},
			Score: 0.5,
		})
	}

	got := FormatMemoriesForContext(mems, 400)
	lines := strings.Split(got, "\n")
	// Header plus lines: accumulation stops after crossing the budget, and
	// the crossing line is kept. 150-char content plus prefix is ~180 chars,
	// so three body lines at most.
	if len(lines) < 2 || len(lines) > 4 {
		t.Fatalf("budget not applied, got %d lines", len(lines))
	}
}
