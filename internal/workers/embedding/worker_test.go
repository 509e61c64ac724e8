package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/platform/qdrant"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

type fakeClient struct {
	upserted [][]qdrant.Point
	upsertEr error
}

func (f *fakeClient) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeClient) Upsert(ctx context.Context, points []qdrant.Point) error {
	if f.upsertEr != nil {
		return f.upsertEr
	}
	f.upserted = append(f.upserted, points)
	return nil
}

func (f *fakeClient) Search(ctx context.Context, vector []float32, userID string, limit int, scoreThreshold float64) ([]qdrant.SearchHit, error) {
	return nil, nil
}

func (f *fakeClient) Info(ctx context.Context) (qdrant.CollectionInfo, error) {
	return qdrant.CollectionInfo{}, nil
}

type fakeVectorSource struct {
	client qdrant.Client
}

func (f *fakeVectorSource) Client() qdrant.Client { return f.client }

func newTestWorker(t *testing.T, embed *fakeEmbedder, client qdrant.Client) *Worker {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	cfg := &config.Config{EmbeddingQueue: "embedding_queue", EmbeddingBatchSize: 10}
	return NewWorker(log, cfg, nil, &fakeVectorSource{client: client}, embed, Options{})
}

func jobFields() map[string]any {
	return map[string]any{
		"user_id":    "u1",
		"session_id": "s1",
		"content":    "Q: beach trip\nA: try Crete",
		"created_at": "1724668800",
	}
}

func TestHandleEntryAcksOnSuccess(t *testing.T) {
	embed := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	client := &fakeClient{}
	w := newTestWorker(t, embed, client)

	if !w.HandleEntry(context.Background(), jobFields()) {
		t.Fatal("expected ack on successful embed+upsert")
	}
	if len(client.upserted) != 1 || len(client.upserted[0]) != 1 {
		t.Fatalf("expected one upserted point, got %v", client.upserted)
	}
	p := client.upserted[0][0]
	if p.Payload["user_id"] != "u1" || p.Payload["session_id"] != "s1" {
		t.Fatalf("payload identity wrong: %v", p.Payload)
	}
	if p.Payload["source"] != "embedding_worker" {
		t.Fatalf("expected embedding_worker source, got %v", p.Payload["source"])
	}
	if p.ID == "" {
		t.Fatal("point needs a fresh id")
	}
}

func TestHandleEntryAcksEmptyContent(t *testing.T) {
	embed := &fakeEmbedder{vector: []float32{0.5}}
	client := &fakeClient{}
	w := newTestWorker(t, embed, client)

	fields := jobFields()
	fields["content"] = "   "
	if !w.HandleEntry(context.Background(), fields) {
		t.Fatal("empty content must ack as a no-op, not stay pending forever")
	}
	if embed.calls != 0 {
		t.Fatal("empty content must not reach the embedder")
	}
	if len(client.upserted) != 0 {
		t.Fatal("empty content must not create a point")
	}
}

func TestHandleEntryLeavesPendingOnEmbedFailure(t *testing.T) {
	embed := &fakeEmbedder{err: errors.New("rate limited")}
	client := &fakeClient{}
	w := newTestWorker(t, embed, client)

	if w.HandleEntry(context.Background(), jobFields()) {
		t.Fatal("embed failure must not ack")
	}
	if len(client.upserted) != 0 {
		t.Fatal("nothing should be upserted after an embed failure")
	}
}

func TestHandleEntryLeavesPendingOnUpsertFailure(t *testing.T) {
	embed := &fakeEmbedder{vector: []float32{0.5}}
	client := &fakeClient{upsertEr: errors.New("qdrant down")}
	w := newTestWorker(t, embed, client)

	if w.HandleEntry(context.Background(), jobFields()) {
		t.Fatal("upsert failure must not ack")
	}
}

func TestHandleEntryAcksMalformedJob(t *testing.T) {
	embed := &fakeEmbedder{vector: []float32{0.5}}
	client := &fakeClient{}
	w := newTestWorker(t, embed, client)

	ok := w.HandleEntry(context.Background(), map[string]any{"content": "no identity"})
	if !ok {
		t.Fatal("malformed job must be acked so it cannot wedge the group")
	}
	if embed.calls != 0 {
		t.Fatal("malformed job must not reach the embedder")
	}
}

func TestHandleEntryLeavesPendingWithoutBackend(t *testing.T) {
	embed := &fakeEmbedder{vector: []float32{0.5}}
	w := newTestWorker(t, embed, nil)

	if w.HandleEntry(context.Background(), jobFields()) {
		t.Fatal("missing vector backend must not ack")
	}
}

func TestHandleEntryLeavesPendingWithoutEmbedder(t *testing.T) {
	w := newTestWorker(t, &fakeEmbedder{}, &fakeClient{})
	w.embedder = nil

	if w.HandleEntry(context.Background(), jobFields()) {
		t.Fatal("missing embedder must not ack")
	}
}
