package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/vector"
)

const (
	payloadKind     = "kind"
	payloadChunkID  = "chunk_id"
	kindMeta        = "meta"
	kindChunk       = "chunk"
	upsertBatchSize = 256
)

var metaPointID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("complaints-rag:index-meta")).String()

// PointID maps a chunk id to a stable Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("complaints-rag:chunk:"+chunkID)).String()
}

type Options struct {
	Collection string
	Metric     domain.SimilarityMetric
}

// Store builds every index into a fresh collection named <alias>_<build id>
// and publishes it by switching the alias.
type Store struct {
	client   *Client
	alias    string
	metric   domain.SimilarityMetric
	embedder ports.Embedder

	mu    sync.Mutex
	now   func() time.Time
	newID func(time.Time) string
}

func NewStore(client *Client, opts Options, embedder ports.Embedder) (*Store, error) {
	if strings.TrimSpace(opts.Collection) == "" {
		return nil, domain.WrapError(domain.ErrConfig, "qdrant index", errors.New("collection name is empty"))
	}
	metric := opts.Metric
	if metric == "" {
		metric = domain.MetricCosine
	}
	return &Store{
		client:   client,
		alias:    opts.Collection,
		metric:   metric,
		embedder: embedder,
		now:      time.Now,
		newID: func(at time.Time) string {
			return strings.ToLower(at.UTC().Format("20060102t150405z")) + "_" + uuid.NewString()[:8]
		},
	}, nil
}

func distance(metric domain.SimilarityMetric) string {
	if metric == domain.MetricDot {
		return "Dot"
	}
	return "Cosine"
}

func (s *Store) Rebuild(ctx context.Context, chunks []domain.Chunk) (ports.IndexHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, dim, err := vector.EmbedChunks(ctx, s.embedder, chunks)
	if err != nil {
		return nil, err
	}

	createdAt := s.now().UTC()
	info := domain.IndexInfo{
		BuildID:          s.newID(createdAt),
		EmbeddingModelID: s.embedder.ModelID(),
		Metric:           s.metric,
		Dimension:        dim,
		Entries:          len(entries),
		CreatedAt:        createdAt,
	}
	collection := s.alias + "_" + info.BuildID
	size := max(dim, 1)

	if err := s.client.CreateCollection(ctx, collection, size, distance(s.metric)); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "qdrant rebuild", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.client.DeleteCollection(cleanupCtx, collection); err != nil {
			slog.Warn("qdrant_staging_cleanup_failed", "collection", collection, "error", err)
		}
	}()

	for start := 0; start < len(entries); start += upsertBatchSize {
		batch := entries[start:min(start+upsertBatchSize, len(entries))]
		points := make([]point, 0, len(batch))
		for _, e := range batch {
			points = append(points, point{
				ID:     PointID(e.Chunk.ID),
				Vector: e.Vector,
				Payload: map[string]any{
					payloadKind:    kindChunk,
					payloadChunkID: e.Chunk.ID,
					"document_id":  e.Chunk.DocumentID,
					"content":      e.Chunk.Content,
					"start_offset": e.Chunk.StartOffset,
					"metadata":     e.Chunk.Metadata,
				},
			})
		}
		if err := s.client.Upsert(ctx, collection, points); err != nil {
			return nil, domain.WrapError(domain.ErrIO, "qdrant rebuild", err)
		}
	}

	if err := s.client.Upsert(ctx, collection, []point{metaPoint(info, size)}); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "qdrant rebuild", err)
	}

	previous, err := s.client.AliasTarget(ctx, s.alias)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "qdrant rebuild", err)
	}
	if err := s.client.SwitchAlias(ctx, s.alias, collection, previous != ""); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "qdrant rebuild", err)
	}
	committed = true

	s.prune(ctx, collection, previous)
	return &handle{client: s.client, collection: collection, info: info}, nil
}

// prune drops builds older than the previous one.
func (s *Store) prune(ctx context.Context, keep ...string) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		slog.Warn("qdrant_prune_failed", "alias", s.alias, "error", err)
		return
	}
	prefix := s.alias + "_"
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || containsString(keep, name) {
			continue
		}
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			slog.Warn("qdrant_prune_failed", "collection", name, "error", err)
			continue
		}
		slog.Info("qdrant_collection_pruned", "collection", name)
	}
}

func (s *Store) Open(ctx context.Context) (ports.IndexHandle, error) {
	collection, err := s.client.AliasTarget(ctx, s.alias)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open", err)
	}
	if collection == "" {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open", fmt.Errorf("alias %q not found", s.alias))
	}

	points, err := s.client.Retrieve(ctx, collection, []string{metaPointID})
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open", err)
	}
	if len(points) != 1 {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open", fmt.Errorf("collection %s has no build metadata", collection))
	}
	info, err := parseMeta(points[0].Payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open", fmt.Errorf("collection %s: %w", collection, err))
	}

	count, err := s.client.PointsCount(ctx, collection)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open", err)
	}
	if count != info.Entries+1 {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open",
			fmt.Errorf("collection %s holds %d points, expected %d", collection, count, info.Entries+1))
	}
	if model := s.embedder.ModelID(); model != "" && info.EmbeddingModelID != model {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant open",
			fmt.Errorf("index built with embedding model %q, configured %q", info.EmbeddingModelID, model))
	}
	return &handle{client: s.client, collection: collection, info: info}, nil
}

func metaPoint(info domain.IndexInfo, size int) point {
	vec := make([]float32, size)
	for i := range vec {
		vec[i] = 1
	}
	return point{
		ID:     metaPointID,
		Vector: vec,
		Payload: map[string]any{
			payloadKind:          kindMeta,
			"build_id":           info.BuildID,
			"embedding_model_id": info.EmbeddingModelID,
			"metric":             string(info.Metric),
			"dimension":          info.Dimension,
			"entries":            info.Entries,
			"created_at":         info.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func parseMeta(payload map[string]any) (domain.IndexInfo, error) {
	if payload[payloadKind] != kindMeta {
		return domain.IndexInfo{}, errors.New("metadata point has wrong kind")
	}
	metric, ok := domain.ParseSimilarityMetric(stringPayload(payload, "metric"))
	if !ok {
		return domain.IndexInfo{}, fmt.Errorf("unknown metric %q", stringPayload(payload, "metric"))
	}
	dim, ok := intPayload(payload, "dimension")
	if !ok || dim < 0 {
		return domain.IndexInfo{}, errors.New("invalid dimension")
	}
	entries, ok := intPayload(payload, "entries")
	if !ok || entries < 0 {
		return domain.IndexInfo{}, errors.New("invalid entry count")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stringPayload(payload, "created_at"))
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("invalid created_at: %w", err)
	}
	buildID := stringPayload(payload, "build_id")
	if buildID == "" {
		return domain.IndexInfo{}, errors.New("missing build id")
	}
	return domain.IndexInfo{
		BuildID:          buildID,
		EmbeddingModelID: stringPayload(payload, "embedding_model_id"),
		Metric:           metric,
		Dimension:        dim,
		Entries:          entries,
		CreatedAt:        createdAt,
	}, nil
}

func stringPayload(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func intPayload(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	default:
		return 0, false
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item != "" && item == s {
			return true
		}
	}
	return false
}
