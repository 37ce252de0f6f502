// Package mcpadapter exposes the question answering use cases as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/usecase"
)

const (
	serverName    = "complaints-rag"
	serverVersion = "1.0.0"
	maxTopK       = 100
)

var errTopKRange = errors.New("must be between 0 and 100")

type QueryService interface {
	AnswerWithLimit(ctx context.Context, question string, limit int) domain.Answer
	Rank(ctx context.Context, question string, k int) ([]usecase.RankedChunk, error)
	TopK() int
}

type Server struct {
	query  QueryService
	mcp    *server.MCPServer
	logger *slog.Logger
}

func NewServer(query QueryService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		query:  query,
		mcp:    server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool("answer",
		mcp.WithDescription("Answer a question about the complaints dataset using retrieved complaint records as context."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language.")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to retrieve as context.")),
	), s.handleAnswer)

	s.mcp.AddTool(mcp.NewTool("retrieve",
		mcp.WithDescription("Return the complaint chunks most similar to a question, with scores."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language.")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to return.")),
	), s.handleRetrieve)

	return s
}

// ServeStdio runs the MCP protocol over the given streams until ctx ends or
// the input is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, in, out)
}

func (s *Server) limit(request mcp.CallToolRequest) (int, error) {
	k := request.GetInt("top_k", s.query.TopK())
	if k < 0 || k > maxTopK {
		return 0, domain.WrapError(domain.ErrInvalidInput, "top_k", errTopKRange)
	}
	return k, nil
}

func (s *Server) handleAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k, err := s.limit(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer := s.query.AnswerWithLimit(ctx, question, k)
	return jsonResult(answer, !answer.OK)
}

func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k, err := s.limit(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ranked, err := s.query.Rank(ctx, question, k)
	if err != nil {
		s.logger.Warn("mcp_retrieve_failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"chunks": ranked}, false)
}

func jsonResult(payload any, isError bool) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	result := mcp.NewToolResultText(string(raw))
	result.IsError = isError
	return result, nil
}
