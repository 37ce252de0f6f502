package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/complaints-rag/internal/config"
	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

func testConfig(t *testing.T, ollamaURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")
	records := `[{"Status":"Aberto","Descrição":"Buraco na rua"},{"Status":"Fechado","Descrição":"Poste apagado"}]`
	if err := os.WriteFile(path, []byte(records), 0o600); err != nil {
		t.Fatalf("write records: %v", err)
	}
	cfg := config.Defaults()
	cfg.OllamaURL = ollamaURL
	cfg.SourcePath = path
	cfg.PersistDirectory = filepath.Join(dir, "index")
	cfg.RebuildOnOpenFailure = false
	cfg.RetryMaxAttempts = 1
	return cfg
}

func TestPrepareIndexWithoutFallbackFails(t *testing.T) {
	app, err := New(context.Background(), testConfig(t, "http://127.0.0.1:1"), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.SQLite == nil || app.Events != nil {
		t.Fatalf("expected sqlite backend without events")
	}
	if _, err := app.PrepareIndex(context.Background()); !errors.Is(err, domain.ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
}

func TestPrepareIndexBuildsAndAnswers(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/embed":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			vectors := make([][]float32, len(req.Input))
			for i := range vectors {
				vectors[i] = []float32{1, 0.5, float32(i + 1)}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
		case "/api/generate":
			_, _ = w.Write([]byte(`{"response":"Há uma reclamação aberta.","done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ollama.Close()

	cfg := testConfig(t, ollama.URL)
	cfg.RebuildOnStart = true
	app, err := New(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	info, err := app.PrepareIndex(context.Background())
	if err != nil {
		t.Fatalf("PrepareIndex() error = %v", err)
	}
	if info.Entries != 2 || info.EmbeddingModelID != cfg.EmbeddingModelID {
		t.Fatalf("unexpected index info: %+v", info)
	}

	answer := app.QueryUC.Answer(context.Background(), "qual o status?")
	if !answer.OK || len(answer.SourceChunks) != 2 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestNewRejectsBadPromptTemplate(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.PromptTemplate = "{{.Question"
	if _, err := New(context.Background(), cfg, nil, nil); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestAnswerBudgetCoversRetriesOfBothCalls(t *testing.T) {
	cfg := config.Defaults()
	cfg.RequestTimeout = 10 * time.Second
	cfg.QueryQueueTimeout = 5 * time.Second
	cfg.RetryMaxAttempts = 3

	// queue 5s + 2 calls x (3 attempts x 10s + 2 backoffs x 2s)
	want := 5*time.Second + 2*(30*time.Second+4*time.Second)
	if got := AnswerBudget(cfg); got != want {
		t.Fatalf("AnswerBudget() = %s, want %s", got, want)
	}

	cfg.RetryMaxAttempts = 1
	if got := AnswerBudget(cfg); got != 25*time.Second {
		t.Fatalf("AnswerBudget() without retries = %s, want 25s", got)
	}
}
