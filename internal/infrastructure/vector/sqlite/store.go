package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/vector"
)

const (
	dbFile        = "index.db"
	formatVersion = "1"
	insertBatch   = 500
)

//go:embed schema.sql
var schema string

type Options struct {
	Dir    string
	Metric domain.SimilarityMetric
}

// Store is a directory-rooted vector index. Each rebuild writes a complete
// SQLite database into a staging directory and becomes visible only when the
// CURRENT pointer is atomically replaced.
type Store struct {
	dir      string
	metric   domain.SimilarityMetric
	embedder ports.Embedder

	mu    sync.Mutex
	now   func() time.Time
	newID func(time.Time) string
}

func New(opts Options, embedder ports.Embedder) (*Store, error) {
	if opts.Dir == "" {
		return nil, domain.WrapError(domain.ErrConfig, "sqlite index", errors.New("persist directory is empty"))
	}
	metric := opts.Metric
	if metric == "" {
		metric = domain.MetricCosine
	}
	return &Store{
		dir:      opts.Dir,
		metric:   metric,
		embedder: embedder,
		now:      time.Now,
		newID:    newBuildID,
	}, nil
}

func newBuildID(at time.Time) string {
	return at.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

func (s *Store) Dir() string {
	return s.dir
}

// Rebuild embeds chunks and swaps the result in. On any failure the previous
// build stays current and the staging directory is removed.
func (s *Store) Rebuild(ctx context.Context, chunks []domain.Chunk) (ports.IndexHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	layout, err := localfs.New(s.dir)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "sqlite rebuild", err)
	}
	previous, _ := layout.Current()

	createdAt := s.now().UTC()
	info := domain.IndexInfo{
		BuildID:          s.newID(createdAt),
		EmbeddingModelID: s.embedder.ModelID(),
		Metric:           s.metric,
		Entries:          len(chunks),
		CreatedAt:        createdAt,
	}

	stagingDir, err := layout.Stage(info.BuildID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "sqlite rebuild", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = layout.Discard(info.BuildID)
		}
	}()

	entries, dim, err := vector.EmbedChunks(ctx, s.embedder, chunks)
	if err != nil {
		return nil, err
	}
	info.Dimension = dim

	if err := writeBuild(ctx, filepath.Join(stagingDir, dbFile), info, entries); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "sqlite rebuild", err)
	}
	if err := layout.Promote(info.BuildID); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "sqlite rebuild", err)
	}
	if err := layout.SetCurrent(info.BuildID); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "sqlite rebuild", err)
	}
	committed = true

	keep := []string{info.BuildID}
	if previous != "" {
		keep = append(keep, previous)
	}
	if removed, err := layout.Prune(keep...); err != nil {
		slog.Warn("index_prune_failed", "dir", s.dir, "error", err)
	} else if len(removed) > 0 {
		slog.Info("index_pruned", "dir", s.dir, "removed", removed)
	}

	return newHandle(info, entries), nil
}

// Open loads the build named by CURRENT. Anything missing, unreadable or
// inconsistent is reported as ErrIndex; the store never repairs it.
func (s *Store) Open(ctx context.Context) (ports.IndexHandle, error) {
	layout := localfs.Existing(s.dir)
	id, err := layout.Current()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrIndex, "sqlite open", fmt.Errorf("no index at %s", s.dir))
		}
		return nil, domain.WrapError(domain.ErrIndex, "sqlite open", err)
	}

	path := filepath.Join(layout.BuildDir(id), dbFile)
	if _, err := os.Stat(path); err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "sqlite open", fmt.Errorf("build %s: %w", id, err))
	}

	info, entries, err := readBuild(ctx, path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "sqlite open", fmt.Errorf("build %s: %w", id, err))
	}
	if info.BuildID != id {
		return nil, domain.WrapError(domain.ErrIndex, "sqlite open", fmt.Errorf("build %s records id %q", id, info.BuildID))
	}
	if model := s.embedder.ModelID(); model != "" && info.EmbeddingModelID != model {
		return nil, domain.WrapError(domain.ErrIndex, "sqlite open",
			fmt.Errorf("index built with embedding model %q, configured %q", info.EmbeddingModelID, model))
	}
	return newHandle(info, entries), nil
}

func writeBuild(ctx context.Context, path string, info domain.IndexInfo, entries []domain.IndexEntry) error {
	db, err := sql.Open("sqlite", path+"?_pragma=synchronous(FULL)")
	if err != nil {
		return fmt.Errorf("open staging db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format_version":     formatVersion,
		"build_id":           info.BuildID,
		"embedding_model_id": info.EmbeddingModelID,
		"metric":             string(info.Metric),
		"dimension":          strconv.Itoa(info.Dimension),
		"entries":            strconv.Itoa(len(entries)),
		"created_at":         info.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
		(chunk_id, position, document_id, content, start_offset, metadata, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if i%insertBatch == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		metadata := []byte("{}")
		if e.Chunk.Metadata != nil {
			if metadata, err = json.Marshal(e.Chunk.Metadata); err != nil {
				return fmt.Errorf("encode metadata of %s: %w", e.Chunk.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, e.Chunk.ID, i, e.Chunk.DocumentID, e.Chunk.Content,
			e.Chunk.StartOffset, string(metadata), encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("insert %s: %w", e.Chunk.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func readBuild(ctx context.Context, path string) (domain.IndexInfo, []domain.IndexEntry, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=query_only(1)")
	if err != nil {
		return domain.IndexInfo{}, nil, fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	info, expected, err := readMeta(ctx, db)
	if err != nil {
		return domain.IndexInfo{}, nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT chunk_id, document_id, content, start_offset, metadata, vector
		FROM entries ORDER BY position`)
	if err != nil {
		return domain.IndexInfo{}, nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.IndexEntry, 0, expected)
	for rows.Next() {
		var (
			c        domain.Chunk
			metadata string
			blob     []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.StartOffset, &metadata, &blob); err != nil {
			return domain.IndexInfo{}, nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return domain.IndexInfo{}, nil, fmt.Errorf("decode metadata of %s: %w", c.ID, err)
		}
		vec, err := decodeVector(blob, info.Dimension)
		if err != nil {
			return domain.IndexInfo{}, nil, fmt.Errorf("entry %s: %w", c.ID, err)
		}
		c.Embedding = vec
		entries = append(entries, domain.IndexEntry{Chunk: c, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return domain.IndexInfo{}, nil, fmt.Errorf("read entries: %w", err)
	}
	if len(entries) != expected {
		return domain.IndexInfo{}, nil, fmt.Errorf("expected %d entries, found %d", expected, len(entries))
	}
	info.Entries = len(entries)
	return info, entries, nil
}

func readMeta(ctx context.Context, db *sql.DB) (domain.IndexInfo, int, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return domain.IndexInfo{}, 0, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return domain.IndexInfo{}, 0, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return domain.IndexInfo{}, 0, fmt.Errorf("read meta: %w", err)
	}

	if meta["format_version"] != formatVersion {
		return domain.IndexInfo{}, 0, fmt.Errorf("unsupported format version %q", meta["format_version"])
	}
	metric, ok := domain.ParseSimilarityMetric(meta["metric"])
	if !ok {
		return domain.IndexInfo{}, 0, fmt.Errorf("unknown metric %q", meta["metric"])
	}
	dim, err := strconv.Atoi(meta["dimension"])
	if err != nil || dim < 0 {
		return domain.IndexInfo{}, 0, fmt.Errorf("invalid dimension %q", meta["dimension"])
	}
	count, err := strconv.Atoi(meta["entries"])
	if err != nil || count < 0 {
		return domain.IndexInfo{}, 0, fmt.Errorf("invalid entry count %q", meta["entries"])
	}
	if count > 0 && dim == 0 {
		return domain.IndexInfo{}, 0, fmt.Errorf("non-empty index without dimension")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, meta["created_at"])
	if err != nil {
		return domain.IndexInfo{}, 0, fmt.Errorf("invalid created_at: %w", err)
	}
	if meta["build_id"] == "" {
		return domain.IndexInfo{}, 0, fmt.Errorf("missing build id")
	}

	return domain.IndexInfo{
		BuildID:          meta["build_id"],
		EmbeddingModelID: meta["embedding_model_id"],
		Metric:           metric,
		Dimension:        dim,
		CreatedAt:        createdAt,
	}, count, nil
}
