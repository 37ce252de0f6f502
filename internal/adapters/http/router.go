package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/usecase"
	"github.com/kirillkom/complaints-rag/internal/observability/metrics"
)

// QueryService is the part of usecase.QueryService the API serves.
type QueryService interface {
	AnswerWithLimit(ctx context.Context, question string, limit int) domain.Answer
	Rank(ctx context.Context, question string, k int) ([]usecase.RankedChunk, error)
	TopK() int
}

type IndexService interface {
	Rebuild(ctx context.Context) (domain.IndexInfo, error)
	Status() (domain.IndexInfo, bool)
}

// RebuildRequester hands rebuilds to the worker instead of running them in
// the API process.
type RebuildRequester interface {
	PublishRebuildRequested(ctx context.Context, reason string) error
}

type Options struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
	Metrics        *metrics.HTTPServerMetrics
	Rebuilds       RebuildRequester
}

type Router struct {
	query  QueryService
	index  IndexService
	opts   Options
	logger *slog.Logger
}

func NewRouter(query QueryService, index IndexService, opts Options) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{query: query, index: index, opts: opts, logger: logger}
}

// Handler wires routes and middleware. It fails only if the embedded OpenAPI
// document is invalid.
func (rt *Router) Handler() (http.Handler, error) {
	openAPIRouter, err := loadOpenAPIRouter()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("POST /v1/answer", rt.answer)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieve)
	mux.HandleFunc("GET /v1/index", rt.indexStatus)
	mux.HandleFunc("POST /v1/index/rebuild", rt.rebuild)

	var handler http.Handler = validationMiddleware(openAPIRouter, mux)
	var onLimited func(string)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
		onLimited = func(path string) { rt.opts.Metrics.RecordRateLimited(rt.opts.Service, path) }
	}
	handler = rateLimitMiddleware(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, onLimited, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler), nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	info, ok := rt.index.Status()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no index loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "build_id": info.BuildID})
}

type questionRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k"`
}

func (rt *Router) decodeQuestion(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", "invalid_input")
		return "", 0, false
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required", "invalid_input")
		return "", 0, false
	}
	limit := rt.query.TopK()
	if req.TopK != nil {
		limit = *req.TopK
	}
	return question, limit, true
}

// answer always reports the answer value. Only an overloaded query pool
// changes the status code, so clients can back off.
func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	question, limit, ok := rt.decodeQuestion(w, r)
	if !ok {
		return
	}
	answer := rt.query.AnswerWithLimit(r.Context(), question, limit)
	status := http.StatusOK
	if answer.Failure != nil && answer.Failure.Kind == domain.FailureOverloaded {
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, answer)
}

type retrieveResponse struct {
	Chunks []usecase.RankedChunk `json:"chunks"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	question, limit, ok := rt.decodeQuestion(w, r)
	if !ok {
		return
	}
	ranked, err := rt.query.Rank(r.Context(), question, limit)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Chunks: ranked})
}

func (rt *Router) indexStatus(w http.ResponseWriter, _ *http.Request) {
	info, ok := rt.index.Status()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no index loaded", string(domain.FailureIndexUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rt *Router) rebuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json", "invalid_input")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "api"
	}

	if rt.opts.Rebuilds != nil {
		if err := rt.opts.Rebuilds.PublishRebuildRequested(r.Context(), reason); err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "reason": reason})
		return
	}

	info, err := rt.index.Rebuild(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if errors.Is(err, usecase.ErrOverloaded) {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, err.Error(), errorKind(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}
