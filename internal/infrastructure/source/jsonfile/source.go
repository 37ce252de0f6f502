package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// Source reads a JSON array of flat objects, as written by the dataset
// preparation scripts.
type Source struct {
	path string
}

func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Name() string {
	return filepath.Base(s.path)
}

func (s *Source) Records(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "read json source", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "decode json source", fmt.Errorf("%s: %w", s.path, err))
	}
	if dec.More() {
		return nil, domain.WrapError(domain.ErrIO, "decode json source", errors.New("trailing data after array"))
	}

	records := make([]domain.Record, 0, len(items))
	for i, item := range items {
		if item == nil {
			return nil, domain.WrapError(domain.ErrIO, "decode json source", fmt.Errorf("record %d is not an object", i))
		}
		records = append(records, domain.Record(item))
	}
	return records, nil
}
