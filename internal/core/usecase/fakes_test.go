package usecase

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

type embedderFake struct {
	err   error
	calls atomic.Int32
}

func (f *embedderFake) vector(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(text)))
	sum := h.Sum32()
	return []float32{1, float32(sum&0xff) / 255, float32((sum>>8)&0xff) / 255}
}

func (f *embedderFake) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *embedderFake) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *embedderFake) Dimension() int  { return 3 }
func (f *embedderFake) ModelID() string { return "embed-fake" }

type generatorFake struct {
	body    string
	err     error
	prompts []string
	block   chan struct{}
	mu      sync.Mutex
}

func (f *generatorFake) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.body), nil
}

func (f *generatorFake) ModelID() string { return "llm-fake" }

func (f *generatorFake) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// handleFake ranks its chunks by list order and reports the requested k.
type handleFake struct {
	info     domain.IndexInfo
	chunks   []domain.Chunk
	queryErr error
	closed   atomic.Bool
}

func (h *handleFake) Query(_ context.Context, _ []float32, k int) ([]domain.RetrievalResult, error) {
	if h.queryErr != nil {
		return nil, h.queryErr
	}
	if k > len(h.chunks) {
		k = len(h.chunks)
	}
	out := make([]domain.RetrievalResult, k)
	for i := range out {
		out[i] = domain.RetrievalResult{ChunkID: h.chunks[i].ID, Score: 1 - float64(i)/10}
	}
	return out, nil
}

func (h *handleFake) Chunks(_ context.Context, ids []string) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		for _, c := range h.chunks {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (h *handleFake) Info() domain.IndexInfo { return h.info }
func (h *handleFake) Close() error           { h.closed.Store(true); return nil }

func newHandleFake(buildID string, contents ...string) *handleFake {
	h := &handleFake{info: domain.IndexInfo{BuildID: buildID, Dimension: 3, Entries: len(contents)}}
	for i, c := range contents {
		h.chunks = append(h.chunks, domain.Chunk{
			ID:         "doc-" + string(rune('a'+i)) + ":00000",
			DocumentID: "doc-" + string(rune('a'+i)),
			Content:    c,
		})
	}
	return h
}

type storeFake struct {
	rebuildErr error
	openErr    error
	open       *handleFake
	rebuilt    [][]domain.Chunk
	builds     int
}

func (s *storeFake) Rebuild(_ context.Context, chunks []domain.Chunk) (ports.IndexHandle, error) {
	if s.rebuildErr != nil {
		return nil, s.rebuildErr
	}
	s.builds++
	s.rebuilt = append(s.rebuilt, chunks)
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	return newHandleFake("build-"+string(rune('0'+s.builds)), contents...), nil
}

func (s *storeFake) Open(context.Context) (ports.IndexHandle, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.open, nil
}

type documentsFake struct {
	docs []domain.Document
	err  error
}

func (f documentsFake) LoadDocuments(context.Context) ([]domain.Document, error) {
	return f.docs, f.err
}

// wholeChunker emits one chunk per document.
type wholeChunker struct{}

func (wholeChunker) Split(docs []domain.Document) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(docs))
	for i, d := range docs {
		out[i] = domain.Chunk{ID: d.ID + ":00000", DocumentID: d.ID, Content: d.Content}
	}
	return out, nil
}

type eventsFake struct {
	swapped []string
	err     error
}

func (f *eventsFake) PublishRebuildRequested(context.Context, string) error { return nil }
func (f *eventsFake) SubscribeRebuildRequested(context.Context, func(context.Context, string) error) error {
	return nil
}
func (f *eventsFake) PublishIndexSwapped(_ context.Context, buildID string) error {
	f.swapped = append(f.swapped, buildID)
	return f.err
}
func (f *eventsFake) SubscribeIndexSwapped(context.Context, func(context.Context, string) error) error {
	return nil
}

type observerFake struct {
	mu       sync.Mutex
	answers  []domain.FailureKind
	oks      []bool
	rebuilds []error
	swaps    []string
}

func (o *observerFake) AnswerCompleted(ok bool, kind domain.FailureKind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.oks = append(o.oks, ok)
	o.answers = append(o.answers, kind)
}
func (o *observerFake) RetrievalCompleted(int, time.Duration) {}
func (o *observerFake) RebuildCompleted(_ domain.IndexInfo, _ time.Duration, err error) {
	o.rebuilds = append(o.rebuilds, err)
}
func (o *observerFake) IndexSwapped(info domain.IndexInfo) {
	o.swaps = append(o.swaps, info.BuildID)
}

func holderWith(h ports.IndexHandle) *IndexHolder {
	holder := NewIndexHolder()
	if h != nil {
		holder.Swap(h)
	}
	return holder
}
