package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voyplan/memory-backend/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(testLogger(t), Options{
		BaseURL:    srv.URL,
		Collection: "conversations",
		VectorDim:  3,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func writeEnvelope(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	})
}

func TestEnsureCollectionCreatesOnNotFound(t *testing.T) {
	var created bool
	var createReq map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/conversations" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			if created {
				writeEnvelope(w, map[string]any{"points_count": 0})
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Collection does not exist"}}`))
		case http.MethodPut:
			created = true
			_ = json.NewDecoder(r.Body).Decode(&createReq)
			writeEnvelope(w, true)
		default:
			t.Fatalf("unexpected method: %s", r.Method)
		}
	}))

	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if !created {
		t.Fatalf("expected create call")
	}
	vectors, ok := createReq["vectors"].(map[string]any)
	if !ok {
		t.Fatalf("create body vectors: got=%v", createReq)
	}
	if vectors["size"] != float64(3) || vectors["distance"] != "Cosine" {
		t.Fatalf("create params: got=%v", vectors)
	}

	// Second call sees the collection and must not create again.
	created = false
	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection second call: %v", err)
	}
}

func TestEnsureCollectionSkipsCreateOnOtherStatus(t *testing.T) {
	var putSeen bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			putSeen = true
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if putSeen {
		t.Fatalf("create must not run on non-404 lookup status")
	}
}

func TestSearchSendsUserFilterAndThreshold(t *testing.T) {
	var searchReq map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/conversations/points/search" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&searchReq)
		writeEnvelope(w, []map[string]any{
			{"id": "p-1", "score": 0.91, "payload": map[string]any{"user_id": "u1", "session_id": "s1"}},
			{"id": 42, "score": 0.55, "payload": map[string]any{"user_id": "u1"}},
		})
	}))

	hits, err := c.Search(context.Background(), []float32{0.1, 0.2, 0.3}, "u1", 6, 0.4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: want=2 got=%d", len(hits))
	}
	if hits[0].ID != "p-1" || hits[0].Score != 0.91 {
		t.Fatalf("first hit: got=%+v", hits[0])
	}
	if hits[1].ID != "42" {
		t.Fatalf("numeric id decode: got=%q", hits[1].ID)
	}

	if searchReq["score_threshold"] != 0.4 {
		t.Fatalf("score_threshold: got=%v", searchReq["score_threshold"])
	}
	filter, _ := searchReq["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("filter must: got=%v", filter)
	}
	cond, _ := must[0].(map[string]any)
	if cond["key"] != "user_id" {
		t.Fatalf("filter key: got=%v", cond)
	}
	match, _ := cond["match"].(map[string]any)
	if match["value"] != "u1" {
		t.Fatalf("filter value: got=%v", match)
	}
}

func TestSearchForwardsZeroThreshold(t *testing.T) {
	var searchReq map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&searchReq)
		writeEnvelope(w, []map[string]any{})
	}))

	if _, err := c.Search(context.Background(), []float32{0.1, 0.2, 0.3}, "u1", 6, 0); err != nil {
		t.Fatalf("Search: %v", err)
	}
	v, ok := searchReq["score_threshold"]
	if !ok {
		t.Fatalf("score_threshold must be sent for a zero minimum, body=%v", searchReq)
	}
	if v != float64(0) {
		t.Fatalf("score_threshold: got=%v", v)
	}
}

func TestSearchRequiresUserID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("request must not be sent")
	}))
	_, err := c.Search(context.Background(), []float32{0.1, 0.2, 0.3}, "", 6, 0)
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("request must not be sent")
	}))
	err := c.Upsert(context.Background(), []Point{{ID: "a", Vector: []float32{1, 2}}})
	if err == nil {
		t.Fatalf("expected dimension error")
	}
}

func TestUpsertBodyShape(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/conversations/points" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Fatalf("missing wait=true")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, true)
	}))

	err := c.Upsert(context.Background(), []Point{{
		ID:      "11111111-1111-1111-1111-111111111111",
		Vector:  []float32{1, 2, 3},
		Payload: map[string]any{"user_id": "u1", "content": "hi"},
	}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	points, _ := body["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("points: got=%v", body)
	}
	p, _ := points[0].(map[string]any)
	payload, _ := p["payload"].(map[string]any)
	if payload["user_id"] != "u1" {
		t.Fatalf("payload: got=%v", payload)
	}
}

func TestNotFoundClassification(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	_, err := c.Info(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}
