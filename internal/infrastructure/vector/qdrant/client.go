package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a thin wrapper over the Qdrant REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return nil
	}
	envelope := struct {
		Result any `json:"result"`
	}{Result: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) CreateCollection(ctx context.Context, name string, size int, distance string) error {
	return c.call(ctx, "create_collection", http.MethodPut, "/collections/"+name, map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": distance,
		},
	}, nil)
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.call(ctx, "delete_collection", http.MethodDelete, "/collections/"+name, nil, nil)
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.call(ctx, "list_collections", http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Collections))
	for _, col := range result.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

func (c *Client) PointsCount(ctx context.Context, name string) (int, error) {
	var result struct {
		PointsCount int `json:"points_count"`
	}
	if err := c.call(ctx, "collection_info", http.MethodGet, "/collections/"+name, nil, &result); err != nil {
		return 0, err
	}
	return result.PointsCount, nil
}

func (c *Client) Upsert(ctx context.Context, collection string, points []point) error {
	return c.call(ctx, "upsert", http.MethodPut, "/collections/"+collection+"/points?wait=true",
		map[string]any{"points": points}, nil)
}

func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]scoredPoint, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": []string{payloadChunkID},
	}
	if filter != nil {
		body["filter"] = filter
	}
	var result []scoredPoint
	if err := c.call(ctx, "search", http.MethodPost, "/collections/"+collection+"/points/search", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) Retrieve(ctx context.Context, collection string, ids []string) ([]scoredPoint, error) {
	var result []scoredPoint
	err := c.call(ctx, "retrieve", http.MethodPost, "/collections/"+collection+"/points", map[string]any{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  false,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AliasTarget returns the collection an alias points to, or "" if unset.
func (c *Client) AliasTarget(ctx context.Context, alias string) (string, error) {
	var result struct {
		Aliases []struct {
			AliasName      string `json:"alias_name"`
			CollectionName string `json:"collection_name"`
		} `json:"aliases"`
	}
	if err := c.call(ctx, "list_aliases", http.MethodGet, "/aliases", nil, &result); err != nil {
		return "", err
	}
	for _, a := range result.Aliases {
		if a.AliasName == alias {
			return a.CollectionName, nil
		}
	}
	return "", nil
}

// SwitchAlias repoints alias at collection in a single atomic request.
func (c *Client) SwitchAlias(ctx context.Context, alias, collection string, exists bool) error {
	actions := make([]map[string]any, 0, 2)
	if exists {
		actions = append(actions, map[string]any{
			"delete_alias": map[string]any{"alias_name": alias},
		})
	}
	actions = append(actions, map[string]any{
		"create_alias": map[string]any{"collection_name": collection, "alias_name": alias},
	})
	return c.call(ctx, "switch_alias", http.MethodPost, "/collections/aliases", map[string]any{"actions": actions}, nil)
}
