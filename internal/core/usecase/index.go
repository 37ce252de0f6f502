package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

var _ ports.IndexManager = (*IndexService)(nil)

// IndexService owns the index lifecycle: building, reopening and swapping the
// serving handle.
type IndexService struct {
	source   ports.DocumentSource
	chunker  ports.Chunker
	store    ports.VectorIndex
	holder   *IndexHolder
	events   ports.IndexEvents
	observer Observer
	logger   *slog.Logger

	// rebuilds are serialized; readers never take this lock.
	mu sync.Mutex
}

func NewIndexService(
	source ports.DocumentSource,
	chunker ports.Chunker,
	store ports.VectorIndex,
	holder *IndexHolder,
	observer Observer,
	logger *slog.Logger,
) *IndexService {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexService{
		source:   source,
		chunker:  chunker,
		store:    store,
		holder:   holder,
		observer: observer,
		logger:   logger,
	}
}

// WithEvents makes the service announce every swap it performs after a rebuild.
func (s *IndexService) WithEvents(events ports.IndexEvents) *IndexService {
	s.events = events
	return s
}

func (s *IndexService) Holder() *IndexHolder {
	return s.holder
}

// Rebuild loads, chunks and indexes the whole source, then swaps the new
// build in. On failure the serving index is left as it was.
func (s *IndexService) Rebuild(ctx context.Context) (domain.IndexInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	s.logger.Info("index_rebuild_started")

	info, err := s.rebuild(ctx)
	s.observer.RebuildCompleted(info, time.Since(started), err)
	if err != nil {
		s.logger.Error("index_rebuild_failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
		return domain.IndexInfo{}, err
	}
	s.logger.Info("index_rebuild_completed",
		"build_id", info.BuildID,
		"entries", info.Entries,
		"dimension", info.Dimension,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if s.events != nil {
		if err := s.events.PublishIndexSwapped(ctx, info.BuildID); err != nil {
			s.logger.Warn("index_swap_publish_failed", "build_id", info.BuildID, "error", err)
		}
	}
	return info, nil
}

func (s *IndexService) rebuild(ctx context.Context) (domain.IndexInfo, error) {
	docs, err := s.source.LoadDocuments(ctx)
	if err != nil {
		return domain.IndexInfo{}, err
	}
	chunks, err := s.chunker.Split(docs)
	if err != nil {
		return domain.IndexInfo{}, err
	}
	s.logger.Info("index_chunks_prepared", "documents", len(docs), "chunks", len(chunks))

	handle, err := s.store.Rebuild(ctx, chunks)
	if err != nil {
		return domain.IndexInfo{}, err
	}
	s.install(handle)
	return handle.Info(), nil
}

// Reload opens the persisted index and swaps it in.
func (s *IndexService) Reload(ctx context.Context) (domain.IndexInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(ctx)
}

func (s *IndexService) reload(ctx context.Context) (domain.IndexInfo, error) {
	handle, err := s.store.Open(ctx)
	if err != nil {
		return domain.IndexInfo{}, err
	}
	s.install(handle)
	return handle.Info(), nil
}

// ReloadIfChanged reloads unless buildID is already being served. It is the
// handler for swap notifications from other processes.
func (s *IndexService) ReloadIfChanged(ctx context.Context, buildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.holder.Info(); ok && buildID != "" && info.BuildID == buildID {
		return nil
	}
	info, err := s.reload(ctx)
	if err != nil {
		s.logger.Error("index_reload_failed", "notified_build_id", buildID, "error", err)
		return err
	}
	s.logger.Info("index_reloaded", "build_id", info.BuildID, "notified_build_id", buildID)
	return nil
}

// OpenOrRebuild prepares the serving index at startup. With force it always
// rebuilds. Otherwise it opens the persisted index and, if that fails with an
// index error and fallback is set, rebuilds instead.
func (s *IndexService) OpenOrRebuild(ctx context.Context, force, fallback bool) (domain.IndexInfo, error) {
	if force {
		return s.Rebuild(ctx)
	}
	info, err := s.Reload(ctx)
	if err == nil {
		s.logger.Info("index_opened", "build_id", info.BuildID, "entries", info.Entries)
		return info, nil
	}
	if !fallback || !errors.Is(err, domain.ErrIndex) {
		return domain.IndexInfo{}, err
	}
	s.logger.Warn("index_open_failed_rebuilding", "error", err)
	return s.Rebuild(ctx)
}

func (s *IndexService) Status() (domain.IndexInfo, bool) {
	return s.holder.Info()
}

func (s *IndexService) install(handle ports.IndexHandle) {
	old := s.holder.Swap(handle)
	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("index_handle_close_failed", "build_id", old.Info().BuildID, "error", err)
		}
	}
	s.observer.IndexSwapped(handle.Info())
}
