package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/kirillkom/complaints-rag/internal/config"
	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
	"github.com/kirillkom/complaints-rag/internal/core/usecase"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kirillkom/complaints-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/source"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/source/jsonfile"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/source/postgres"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/source/xlsx"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/vector/sqlite"
)

// Observer is what bootstrap needs from a metrics implementation.
type Observer interface {
	usecase.Observer
	RecordRetry(operation string)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Ollama   *ollama.Client
	Embedder *ollama.Embedder
	Holder   *usecase.IndexHolder
	IndexUC  *usecase.IndexService
	QueryUC  *usecase.QueryService

	// Events is nil when NATS_URL is not set.
	Events *natsqueue.Events
	// SQLite is set only for the sqlite backend; it drives local swap detection.
	SQLite *sqlite.Store

	closeFns []func()
}

// New builds every client once and injects it into the use cases. Nothing is
// loaded or built yet; call PrepareIndex for that.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer Observer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	executor := resilience.NewExecutor(backendPolicy(cfg))

	var useObserver usecase.Observer
	if observer != nil {
		executor.OnRetry(observer.RecordRetry)
		useObserver = observer
	}

	app.Ollama = ollama.New(ollama.Options{BaseURL: cfg.OllamaURL, RequestTimeout: cfg.RequestTimeout}, executor)
	app.Embedder = ollama.NewEmbedder(app.Ollama, cfg.EmbeddingModelID, cfg.EmbedBatchSize)
	generator := ollama.NewGenerator(app.Ollama, cfg.LLMModelID, cfg.Temperature)

	records, err := app.recordSource(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	loader := source.NewLoader(records, source.NewRenderer(cfg.DocumentFields), logger)

	splitter, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		app.Close()
		return nil, err
	}

	store, err := app.vectorIndex()
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.NATSURL != "" {
		events, err := natsqueue.Connect(cfg.NATSURL, natsqueue.Options{
			RebuildSubject:     cfg.NATSRebuildSubject,
			SwappedSubject:     cfg.NATSSwappedSubject,
			ResilienceExecutor: executor,
		})
		if err != nil {
			app.Close()
			return nil, domain.WrapError(domain.ErrIO, "init index events", err)
		}
		app.Events = events
		app.closeFns = append(app.closeFns, events.Close)
	}

	app.Holder = usecase.NewIndexHolder()
	app.IndexUC = usecase.NewIndexService(loader, splitter, store, app.Holder, useObserver, logger)
	if app.Events != nil {
		app.IndexUC.WithEvents(app.Events)
	}

	composer, err := usecase.NewAnswerComposer(generator, usecase.ComposerConfig{
		PromptTemplate: cfg.PromptTemplate,
		LanguagePolicy: cfg.ResponseLanguagePolicy,
	}, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	retriever := usecase.NewRetriever(app.Embedder, app.Holder, useObserver)
	app.QueryUC = usecase.NewQueryService(retriever, composer, usecase.QueryConfig{
		TopK:          cfg.TopK,
		MaxConcurrent: cfg.MaxConcurrentQueries,
		QueueTimeout:  cfg.QueryQueueTimeout,
	}, useObserver, logger)

	return app, nil
}

func backendPolicy(cfg config.Config) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.Retry.MaxAttempts = cfg.RetryMaxAttempts
	policy.Breaker.Enabled = cfg.BreakerEnabled
	return policy
}

// answerBackendCalls is the number of sequential backend calls per answer:
// one question embedding and one generation.
const answerBackendCalls = 2

// AnswerBudget is the longest a successful answer can take: the queue wait
// plus, for each backend call, every retry attempt running to the request
// timeout with the largest backoff in between.
func AnswerBudget(cfg config.Config) time.Duration {
	retry := backendPolicy(cfg).Retry
	attempts := time.Duration(max(retry.MaxAttempts, 1))
	perCall := attempts*cfg.RequestTimeout + (attempts-1)*retry.MaxBackoff
	return cfg.QueryQueueTimeout + answerBackendCalls*perCall
}

func (a *App) recordSource(ctx context.Context) (ports.RecordSource, error) {
	switch a.Config.SourceKind {
	case config.SourceXLSX:
		return xlsx.New(a.Config.SourcePath, a.Config.SourceSheet), nil
	case config.SourcePostgres:
		repo, db, err := OpenRecordRepository(ctx, a.Config)
		if err != nil {
			return nil, err
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		return repo, nil
	default:
		return jsonfile.New(a.Config.SourcePath), nil
	}
}

// OpenRecordRepository connects to Postgres and makes sure the record table exists.
func OpenRecordRepository(ctx context.Context, cfg config.Config) (*postgres.RecordRepository, *sql.DB, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrIO, "open postgres", err)
	}
	repo, err := postgres.NewRecordRepository(db, cfg.SourceTable)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}

func (a *App) vectorIndex() (ports.VectorIndex, error) {
	if a.Config.IndexBackend == config.BackendQdrant {
		client := qdrant.NewClient(a.Config.QdrantURL, a.Config.RequestTimeout)
		return qdrant.NewStore(client, qdrant.Options{
			Collection: a.Config.QdrantCollection,
			Metric:     a.Config.Metric(),
		}, a.Embedder)
	}
	store, err := sqlite.New(sqlite.Options{Dir: a.Config.PersistDirectory, Metric: a.Config.Metric()}, a.Embedder)
	if err != nil {
		return nil, err
	}
	a.SQLite = store
	return store, nil
}

// PrepareIndex opens or builds the serving index according to the rebuild
// settings. Any error here is fatal for startup.
func (a *App) PrepareIndex(ctx context.Context) (domain.IndexInfo, error) {
	return a.IndexUC.OpenOrRebuild(ctx, a.Config.RebuildOnStart, a.Config.RebuildOnOpenFailure)
}

// FollowSwaps reloads the serving index whenever another process publishes a
// new build: over NATS when configured, otherwise by watching the sqlite
// CURRENT pointer. It blocks until ctx is done.
func (a *App) FollowSwaps(ctx context.Context) error {
	switch {
	case a.Events != nil:
		return a.Events.SubscribeIndexSwapped(ctx, a.IndexUC.ReloadIfChanged)
	case a.SQLite != nil:
		return a.SQLite.Watch(ctx, func(ctx context.Context, buildID string) {
			_ = a.IndexUC.ReloadIfChanged(ctx, buildID)
		})
	default:
		<-ctx.Done()
		return nil
	}
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
