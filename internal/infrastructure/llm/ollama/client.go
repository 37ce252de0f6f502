package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/complaints-rag/internal/infrastructure/resilience"
)

const DefaultRequestTimeout = 120 * time.Second

type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// Client is the shared HTTP handle for embedding and generation calls. It is
// built once at startup and injected into Embedder and Generator.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(opts Options, executor *resilience.Executor) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultPolicy())
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Ping checks that the Ollama server answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, "/api/tags", nil)
	return err
}
