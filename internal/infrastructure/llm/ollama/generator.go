package ollama

import (
	"context"
	"encoding/json"
	"net/http"
)

// Generator calls /api/generate with streaming disabled and hands back the raw
// response body; answer extraction happens in the composer.
type Generator struct {
	client      *Client
	model       string
	temperature float64
}

func NewGenerator(client *Client, model string, temperature float64) *Generator {
	return &Generator{client: client, model: model, temperature: temperature}
}

func (g *Generator) ModelID() string {
	return g.model
}

func (g *Generator) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	request := map[string]any{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": g.temperature,
		},
	}
	raw, err := g.client.do(ctx, "generate", http.MethodPost, "/api/generate", request)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
