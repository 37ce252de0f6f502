package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

const maxErrorBody = 2048

// do sends one request through the resilience executor. Every attempt gets its
// own deadline of the configured request timeout.
func (c *Client) do(ctx context.Context, operation, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = encoded
	}

	var out []byte
	err := c.executor.Run(ctx, "ollama_"+operation, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		raw, err := c.roundTrip(attemptCtx, operation, method, path, body)
		if err != nil {
			return classifyError(ctx, operation, err)
		}
		out = raw
		return nil
	}, nil)
	if err != nil {
		return nil, finalizeError(operation, err)
	}
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, operation, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}
	return raw, nil
}

func (c *Client) postJSON(ctx context.Context, operation, path string, payload, out any) error {
	raw, err := c.do(ctx, operation, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewBackendError(domain.BackendUnreachable, operation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
