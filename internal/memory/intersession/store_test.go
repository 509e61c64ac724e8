package intersession

import (
	"strings"
	"testing"

	"github.com/voyplan/memory-backend/internal/types"
)

func TestBuildSummaryFormat(t *testing.T) {
	msgs := []types.Message{
		{Type: types.MessageUser, Content: "plan me a week in Portugal"},
		{Type: types.MessageAgent, Content: "Lisbon, Porto, and the Algarve"},
	}
	got := BuildSummary(msgs)
	want := "[user] plan me a week in Portugal | [agent] Lisbon, Porto, and the Algarve"
	if got != want {
		t.Fatalf("summary mismatch:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildSummaryCapsMessageCount(t *testing.T) {
	var msgs []types.Message
	for i := 0; i < 25; i++ {
		msgs = append(msgs, types.Message{Type: types.MessageUser, Content: "m"})
	}
	got := BuildSummary(msgs)
	if n := strings.Count(got, "[user]"); n != summaryMessageLimit {
		t.Fatalf("expected %d entries, got %d", summaryMessageLimit, n)
	}
}

func TestBuildSummaryTruncation(t *testing.T) {
	long := strings.Repeat("a", 1000)
	msgs := []types.Message{
		{Type: types.MessageUser, Content: long},
		{Type: types.MessageAgent, Content: long},
		{Type: types.MessageUser, Content: long},
		{Type: types.MessageAgent, Content: long},
		{Type: types.MessageUser, Content: long},
		{Type: types.MessageAgent, Content: long},
	}
	got := BuildSummary(msgs)
	if len(got) > summaryMaxChars {
		t.Fatalf("summary exceeds cap: %d > %d", len(got), summaryMaxChars)
	}
	if strings.Contains(got, strings.Repeat("a", summaryEntryChars+1)) {
		t.Fatal("per-entry truncation not applied")
	}
}

func TestBuildSummaryEmpty(t *testing.T) {
	if got := BuildSummary(nil); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
}

func TestBuildPointPayload(t *testing.T) {
	vector := []float32{0.1, 0.2, 0.3}
	long := strings.Repeat("c", 900)

	p := BuildPoint("u1", "s1", long, 1724668800, "worker", vector)

	if p.ID == "" {
		t.Fatal("point must carry a fresh id")
	}
	if len(p.Vector) != 3 {
		t.Fatalf("vector not carried: %v", p.Vector)
	}
	if p.Payload["user_id"] != "u1" || p.Payload["session_id"] != "s1" {
		t.Fatalf("identity payload wrong: %v", p.Payload)
	}
	content, _ := p.Payload["content"].(string)
	if len(content) != payloadContentChars {
		t.Fatalf("content not bounded: %d", len(content))
	}
	if p.Payload["source"] != "worker" {
		t.Fatalf("source wrong: %v", p.Payload["source"])
	}
	if p.Payload["created_at"] != float64(1724668800) {
		t.Fatalf("created_at wrong: %v", p.Payload["created_at"])
	}
}

func TestBuildPointFreshIDs(t *testing.T) {
	a := BuildPoint("u1", "s1", "same content", 1, "worker", []float32{1})
	b := BuildPoint("u1", "s1", "same content", 1, "worker", []float32{1})
	if a.ID == b.ID {
		t.Fatal("redelivered jobs must produce distinct point ids")
	}
}
