package domain

// Record is one normalized source entry: named fields mapped to values.
type Record map[string]any

// Document is immutable once rendered from a Record.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk is a bounded slice of one Document. StartOffset is the rune offset of
// the first character not shared with the previous chunk.
type Chunk struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	Content     string         `json:"content"`
	StartOffset int            `json:"start_offset"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Embedding   []float32      `json:"-"`
}

// IndexEntry is the persisted form of a chunk.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
}
