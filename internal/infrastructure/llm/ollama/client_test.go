package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/resilience"
)

func testClient(url string, timeout time.Duration) *Client {
	exec := resilience.NewExecutor(resilience.Policy{
		Retry: resilience.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1},
	})
	return New(Options{BaseURL: url + "/", RequestTimeout: timeout}, exec)
}

func TestEmbedBatchSplitsRequestsAndPreservesOrder(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var payload struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Model != "nomic-embed-text" {
			t.Errorf("unexpected model %q", payload.Model)
		}
		vectors := make([][]float32, 0, len(payload.Input))
		for _, in := range payload.Input {
			vectors = append(vectors, []float32{float32(len(in)), 1})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	}))
	defer server.Close()

	embedder := NewEmbedder(testClient(server.URL, time.Second), "nomic-embed-text", 2)
	vectors, err := embedder.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 batched calls, got %d", calls.Load())
	}
	for i, v := range vectors {
		if int(v[0]) != i+1 {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
	if embedder.Dimension() != 2 {
		t.Fatalf("expected recorded dimension 2, got %d", embedder.Dimension())
	}
}

func TestEmbedDetectsDimensionMismatch(t *testing.T) {
	var dim atomic.Int32
	dim.Store(3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{make([]float32, dim.Load())}})
	}))
	defer server.Close()

	embedder := NewEmbedder(testClient(server.URL, time.Second), "m", 8)
	if _, err := embedder.Embed(context.Background(), "first"); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	dim.Store(4)
	_, err := embedder.Embed(context.Background(), "second")
	if kind, _ := domain.BackendKind(err); kind != domain.BackendDimensionMismatch {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestUnknownModelIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"model \"missing\" not found, try pulling it first"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewEmbedder(testClient(server.URL, time.Second), "missing", 1).Embed(context.Background(), "x")
	if kind, _ := domain.BackendKind(err); kind != domain.BackendInvalidModel {
		t.Fatalf("expected invalid model, got %v", err)
	}
	if errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("invalid model must not be temporary")
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent failure must not be retried, got %d calls", calls.Load())
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestServerErrorIsUnreachableAndRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewGenerator(testClient(server.URL, time.Second), "llama3", 0.2).Generate(context.Background(), "hi")
	if kind, _ := domain.BackendKind(err); kind != domain.BackendUnreachable {
		t.Fatalf("expected unreachable, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("unreachable must be temporary")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestRequestTimeoutSurfacesAsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := NewGenerator(testClient(server.URL, 30*time.Millisecond), "llama3", 0).Generate(context.Background(), "hi")
	if kind, _ := domain.BackendKind(err); kind != domain.BackendTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestConnectionRefusedIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewEmbedder(testClient(url, time.Second), "m", 1).Embed(context.Background(), "x")
	if kind, _ := domain.BackendKind(err); kind != domain.BackendUnreachable {
		t.Fatalf("expected unreachable, got %v", err)
	}
}

func TestGenerateSendsTemperatureAndReturnsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		options, _ := payload["options"].(map[string]any)
		if options["temperature"] != 0.7 {
			t.Errorf("unexpected temperature %v", options["temperature"])
		}
		if payload["stream"] != false {
			t.Errorf("stream must be disabled")
		}
		_, _ = w.Write([]byte(`{"model":"llama3","response":"Olá","done":true}`))
	}))
	defer server.Close()

	raw, err := NewGenerator(testClient(server.URL, time.Second), "llama3", 0.7).Generate(context.Background(), "question")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(string(raw), `"response":"Olá"`) {
		t.Fatalf("unexpected raw body %s", raw)
	}
}

func TestCallerCancellationPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := NewGenerator(testClient(server.URL, time.Second), "llama3", 0).Generate(ctx, "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
