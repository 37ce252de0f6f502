package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

const FileEnv = "RAG_CONFIG_FILE"

const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"

	SourceJSON     = "json"
	SourceXLSX     = "xlsx"
	SourcePostgres = "postgres"
)

// Config is resolved from defaults, then the optional YAML file named by
// RAG_CONFIG_FILE, then environment variables.
type Config struct {
	EmbeddingModelID       string        `yaml:"embedding_model_id"`
	LLMModelID             string        `yaml:"llm_model_id"`
	RequestTimeout         time.Duration `yaml:"request_timeout"`
	Temperature            float64       `yaml:"temperature"`
	ChunkSize              int           `yaml:"chunk_size"`
	ChunkOverlap           int           `yaml:"chunk_overlap"`
	TopK                   int           `yaml:"top_k"`
	PersistDirectory       string        `yaml:"persist_directory"`
	PromptTemplate         string        `yaml:"prompt_template"`
	PromptTemplateFile     string        `yaml:"prompt_template_file"`
	ResponseLanguagePolicy string        `yaml:"response_language_policy"`

	OllamaURL      string `yaml:"ollama_url"`
	EmbedBatchSize int    `yaml:"embed_batch_size"`

	SimilarityMetric     string `yaml:"similarity_metric"`
	IndexBackend         string `yaml:"index_backend"`
	QdrantURL            string `yaml:"qdrant_url"`
	QdrantCollection     string `yaml:"qdrant_collection"`
	RebuildOnStart       bool   `yaml:"rebuild_on_start"`
	RebuildOnOpenFailure bool   `yaml:"rebuild_on_open_failure"`

	SourceKind     string   `yaml:"source_kind"`
	SourcePath     string   `yaml:"source_path"`
	SourceSheet    string   `yaml:"source_sheet"`
	PostgresDSN    string   `yaml:"postgres_dsn"`
	SourceTable    string   `yaml:"source_table"`
	DocumentFields []string `yaml:"document_fields"`

	NATSURL            string `yaml:"nats_url"`
	NATSRebuildSubject string `yaml:"nats_rebuild_subject"`
	NATSSwappedSubject string `yaml:"nats_swapped_subject"`

	APIPort              string        `yaml:"api_port"`
	LogLevel             string        `yaml:"log_level"`
	APIRateLimitRPS      float64       `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst    int           `yaml:"api_rate_limit_burst"`
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries"`
	QueryQueueTimeout    time.Duration `yaml:"query_queue_timeout"`
	RetryMaxAttempts     int           `yaml:"retry_max_attempts"`
	BreakerEnabled       bool          `yaml:"breaker_enabled"`
	WorkerMetricsPort    string        `yaml:"worker_metrics_port"`
}

func Defaults() Config {
	return Config{
		EmbeddingModelID:       "deepseek-r1",
		LLMModelID:             "deepseek-r1",
		RequestTimeout:         5 * time.Minute,
		Temperature:            0,
		ChunkSize:              4000,
		ChunkOverlap:           20,
		TopK:                   3,
		PersistDirectory:       "./data/index",
		ResponseLanguagePolicy: "Always answer in Brazilian Portuguese.",

		OllamaURL:      "http://localhost:11434",
		EmbedBatchSize: 32,

		SimilarityMetric:     string(domain.MetricCosine),
		IndexBackend:         BackendSQLite,
		QdrantURL:            "http://localhost:6333",
		QdrantCollection:     "complaints",
		RebuildOnOpenFailure: true,

		SourceKind:  SourceJSON,
		SourcePath:  "./data/reclamacoes.json",
		SourceSheet: "",
		SourceTable: "complaint_records",

		NATSRebuildSubject: "rag.index.rebuild",
		NATSSwappedSubject: "rag.index.swapped",

		APIPort:              "8080",
		LogLevel:             "info",
		APIRateLimitRPS:      20,
		APIRateLimitBurst:    40,
		MaxConcurrentQueries: 8,
		QueryQueueTimeout:    30 * time.Second,
		RetryMaxAttempts:     3,
		BreakerEnabled:       true,
		WorkerMetricsPort:    "9090",
	}
}

// Load resolves the configuration and validates it. Every failure matches
// domain.ErrConfig.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	env := &envReader{}
	cfg.EmbeddingModelID = env.String("EMBEDDING_MODEL_ID", cfg.EmbeddingModelID)
	cfg.LLMModelID = env.String("LLM_MODEL_ID", cfg.LLMModelID)
	cfg.RequestTimeout = env.Duration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.Temperature = env.Float("TEMPERATURE", cfg.Temperature)
	cfg.ChunkSize = env.Int("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = env.Int("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.TopK = env.Int("TOP_K", cfg.TopK)
	cfg.PersistDirectory = env.String("PERSIST_DIRECTORY", cfg.PersistDirectory)
	cfg.PromptTemplate = env.String("PROMPT_TEMPLATE", cfg.PromptTemplate)
	cfg.PromptTemplateFile = env.String("PROMPT_TEMPLATE_FILE", cfg.PromptTemplateFile)
	cfg.ResponseLanguagePolicy = env.String("RESPONSE_LANGUAGE_POLICY", cfg.ResponseLanguagePolicy)

	cfg.OllamaURL = env.String("OLLAMA_URL", cfg.OllamaURL)
	cfg.EmbedBatchSize = env.Int("EMBED_BATCH_SIZE", cfg.EmbedBatchSize)

	cfg.SimilarityMetric = env.String("SIMILARITY_METRIC", cfg.SimilarityMetric)
	cfg.IndexBackend = env.String("INDEX_BACKEND", cfg.IndexBackend)
	cfg.QdrantURL = env.String("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantCollection = env.String("QDRANT_COLLECTION", cfg.QdrantCollection)
	cfg.RebuildOnStart = env.Bool("REBUILD_ON_START", cfg.RebuildOnStart)
	cfg.RebuildOnOpenFailure = env.Bool("REBUILD_ON_OPEN_FAILURE", cfg.RebuildOnOpenFailure)

	cfg.SourceKind = env.String("SOURCE_KIND", cfg.SourceKind)
	cfg.SourcePath = env.String("SOURCE_PATH", cfg.SourcePath)
	cfg.SourceSheet = env.String("SOURCE_SHEET", cfg.SourceSheet)
	cfg.PostgresDSN = env.String("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.SourceTable = env.String("SOURCE_TABLE", cfg.SourceTable)
	cfg.DocumentFields = env.List("DOCUMENT_FIELDS", cfg.DocumentFields)

	cfg.NATSURL = env.String("NATS_URL", cfg.NATSURL)
	cfg.NATSRebuildSubject = env.String("NATS_REBUILD_SUBJECT", cfg.NATSRebuildSubject)
	cfg.NATSSwappedSubject = env.String("NATS_SWAPPED_SUBJECT", cfg.NATSSwappedSubject)

	cfg.APIPort = env.String("API_PORT", cfg.APIPort)
	cfg.LogLevel = env.String("LOG_LEVEL", cfg.LogLevel)
	cfg.APIRateLimitRPS = env.Float("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS)
	cfg.APIRateLimitBurst = env.Int("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst)
	cfg.MaxConcurrentQueries = env.Int("MAX_CONCURRENT_QUERIES", cfg.MaxConcurrentQueries)
	cfg.QueryQueueTimeout = env.Duration("QUERY_QUEUE_TIMEOUT", cfg.QueryQueueTimeout)
	cfg.RetryMaxAttempts = env.Int("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.BreakerEnabled = env.Bool("BREAKER_ENABLED", cfg.BreakerEnabled)
	cfg.WorkerMetricsPort = env.String("WORKER_METRICS_PORT", cfg.WorkerMetricsPort)

	if err := env.Err(); err != nil {
		return Config{}, domain.WrapError(domain.ErrConfig, "read environment", err)
	}
	if err := cfg.resolvePromptTemplate(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.WrapError(domain.ErrConfig, "read config file", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return domain.WrapError(domain.ErrConfig, "parse config file", err)
	}
	return nil
}

// resolvePromptTemplate loads PromptTemplateFile when no inline template is set.
func (c *Config) resolvePromptTemplate() error {
	if strings.TrimSpace(c.PromptTemplate) != "" || strings.TrimSpace(c.PromptTemplateFile) == "" {
		return nil
	}
	raw, err := os.ReadFile(c.PromptTemplateFile)
	if err != nil {
		return domain.WrapError(domain.ErrConfig, "read prompt template file", err)
	}
	c.PromptTemplate = string(raw)
	return nil
}

func (c Config) Metric() domain.SimilarityMetric {
	metric, _ := domain.ParseSimilarityMetric(c.SimilarityMetric)
	return metric
}

func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.EmbeddingModelID) != "", "embedding_model_id is required")
	check(strings.TrimSpace(c.LLMModelID) != "", "llm_model_id is required")
	check(c.RequestTimeout > 0, "request_timeout must be positive, got %s", c.RequestTimeout)
	check(c.Temperature >= 0, "temperature must not be negative, got %v", c.Temperature)
	check(c.ChunkSize > 0, "chunk_size must be positive, got %d", c.ChunkSize)
	check(c.ChunkOverlap >= 0, "chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	check(c.ChunkOverlap < c.ChunkSize, "chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	check(c.TopK >= 0, "top_k must not be negative, got %d", c.TopK)
	check(c.EmbedBatchSize > 0, "embed_batch_size must be positive, got %d", c.EmbedBatchSize)
	check(strings.TrimSpace(c.OllamaURL) != "", "ollama_url is required")

	_, metricOK := domain.ParseSimilarityMetric(c.SimilarityMetric)
	check(metricOK, "unknown similarity_metric %q", c.SimilarityMetric)

	switch c.IndexBackend {
	case BackendSQLite:
		check(strings.TrimSpace(c.PersistDirectory) != "", "persist_directory is required for the sqlite backend")
	case BackendQdrant:
		check(strings.TrimSpace(c.QdrantURL) != "", "qdrant_url is required for the qdrant backend")
		check(strings.TrimSpace(c.QdrantCollection) != "", "qdrant_collection is required for the qdrant backend")
	default:
		errs = append(errs, fmt.Errorf("unknown index_backend %q", c.IndexBackend))
	}

	switch c.SourceKind {
	case SourceJSON, SourceXLSX:
		check(strings.TrimSpace(c.SourcePath) != "", "source_path is required for the %s source", c.SourceKind)
	case SourcePostgres:
		check(strings.TrimSpace(c.PostgresDSN) != "", "postgres_dsn is required for the postgres source")
		check(strings.TrimSpace(c.SourceTable) != "", "source_table is required for the postgres source")
	default:
		errs = append(errs, fmt.Errorf("unknown source_kind %q", c.SourceKind))
	}

	check(strings.TrimSpace(c.APIPort) != "", "api_port is required")
	check(strings.TrimSpace(c.WorkerMetricsPort) != "", "worker_metrics_port is required")
	check(strings.TrimSpace(c.NATSRebuildSubject) != "", "nats_rebuild_subject is required")
	check(strings.TrimSpace(c.NATSSwappedSubject) != "", "nats_swapped_subject is required")
	check(c.APIRateLimitRPS >= 0, "api_rate_limit_rps must not be negative")
	check(c.APIRateLimitBurst >= 0, "api_rate_limit_burst must not be negative")
	check(c.MaxConcurrentQueries > 0, "max_concurrent_queries must be positive, got %d", c.MaxConcurrentQueries)
	check(c.QueryQueueTimeout > 0, "query_queue_timeout must be positive, got %s", c.QueryQueueTimeout)
	check(c.RetryMaxAttempts > 0, "retry_max_attempts must be positive, got %d", c.RetryMaxAttempts)

	if len(errs) > 0 {
		return domain.WrapError(domain.ErrConfig, "validate config", errors.Join(errs...))
	}
	return nil
}

// envReader falls back to the current value when a variable is unset and
// remembers malformed values instead of silently ignoring them.
type envReader struct {
	errs []error
}

func (r *envReader) Err() error {
	return errors.Join(r.errs...)
}

func (r *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

// String treats a variable that is set but empty as an explicit empty value,
// so RESPONSE_LANGUAGE_POLICY= clears the default policy.
func (r *envReader) String(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

func (r *envReader) Int(key string, fallback int) int {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return n
}

func (r *envReader) Float(key string, fallback float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return f
}

func (r *envReader) Bool(key string, fallback bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return parsed
}

// Duration accepts Go duration strings and bare seconds.
func (r *envReader) Duration(key string, fallback time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return d
}

// List splits a comma separated value and drops blank items.
func (r *envReader) List(key string, fallback []string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
