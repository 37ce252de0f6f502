package chunking

import (
	"fmt"
	"maps"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 20
)

// Separator levels from coarsest to finest: paragraph, line, sentence, word.
// When no level matches inside the window the chunk is cut at the character limit.
var defaultSeparators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators [][]string
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, domain.WrapError(domain.ErrConfig, "new splitter", fmt.Errorf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap < 0 {
		return nil, domain.WrapError(domain.ErrConfig, "new splitter", fmt.Errorf("chunk overlap must not be negative, got %d", overlap))
	}
	if overlap >= chunkSize {
		return nil, domain.WrapError(domain.ErrConfig, "new splitter", fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, chunkSize))
	}
	return &Splitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: defaultSeparators,
	}, nil
}

// Split is a convenience wrapper for one-off splitting.
func Split(docs []domain.Document, chunkSize, overlap int) ([]domain.Chunk, error) {
	s, err := NewSplitter(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	return s.Split(docs)
}

// Split keeps document order, then intra-document order.
func (s *Splitter) Split(docs []domain.Document) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		out = append(out, s.splitDocument(doc)...)
	}
	return out, nil
}

func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%05d", documentID, index)
}

func (s *Splitter) splitDocument(doc domain.Document) []domain.Chunk {
	text := []rune(doc.Content)
	if len(text) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, 0, len(text)/(s.ChunkSize-s.Overlap)+1)
	start := 0
	for idx := 0; start < len(text); idx++ {
		overlap := 0
		if idx > 0 {
			overlap = min(s.Overlap, start)
		}

		end := len(text)
		if budget := s.ChunkSize - overlap; len(text)-start > budget {
			end = s.cutPoint(text, start, start+budget)
		}

		chunks = append(chunks, domain.Chunk{
			ID:          ChunkID(doc.ID, idx),
			DocumentID:  doc.ID,
			Content:     string(text[start-overlap : end]),
			StartOffset: start,
			Metadata:    maps.Clone(doc.Metadata),
		})
		start = end
	}
	return chunks
}

// cutPoint picks the chunk end in (start, limit] at the coarsest separator found.
// The end is never placed before Overlap so the next chunk can carry a full overlap.
func (s *Splitter) cutPoint(text []rune, start, limit int) int {
	lowest := max(start+1, s.Overlap)
	for _, level := range s.Separators {
		best := -1
		for _, sep := range level {
			if cut := lastSeparatorEnd(text, []rune(sep), start, lowest, limit); cut > best {
				best = cut
			}
		}
		if best > 0 {
			return best
		}
	}
	return limit
}

// lastSeparatorEnd returns the largest end in [lowest, limit] such that sep lies
// entirely inside text[start:end] and ends at end, or -1.
func lastSeparatorEnd(text, sep []rune, start, lowest, limit int) int {
	for end := limit; end >= lowest; end-- {
		from := end - len(sep)
		if from < start {
			return -1
		}
		if runesEqual(text[from:end], sep) {
			return end
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
