package source

import (
	"context"
	"log/slog"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

// Loader reads records from a RecordSource, renders them and tracks the
// dataset through loaded, changed and released.
type Loader struct {
	source   ports.RecordSource
	renderer *Renderer
	logger   *slog.Logger
}

func NewLoader(source ports.RecordSource, renderer *Renderer, logger *slog.Logger) *Loader {
	if renderer == nil {
		renderer = NewRenderer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, renderer: renderer, logger: logger}
}

func (l *Loader) LoadDocuments(ctx context.Context) ([]domain.Document, error) {
	records, err := l.source.Records(ctx)
	if err != nil {
		return nil, err
	}

	dataset := domain.NewDataset(l.source.Name(), records)
	l.logStatus(dataset, len(records))

	docs := l.renderer.Render(dataset.Name, dataset.Records)
	if err := dataset.Transition(domain.DatasetChanged); err != nil {
		return nil, err
	}
	l.logStatus(dataset, len(docs))

	if err := dataset.Transition(domain.DatasetReleased); err != nil {
		return nil, err
	}
	l.logStatus(dataset, len(docs))
	return docs, nil
}

func (l *Loader) logStatus(d *domain.Dataset, count int) {
	l.logger.Info("dataset_status", "dataset", d.Name, "status", string(d.Status()), "records", count)
}
