package embedding

import (
	"context"
	"fmt"
)

// APIProvider embeds text through an OpenAI-compatible /embeddings endpoint.
type APIProvider struct {
	endpoint string
	model    string
	apiKey   string
	dim      dimTracker
}

// NewAPIProvider creates an APIProvider from the given Config.
func NewAPIProvider(cfg Config) *APIProvider {
	p := &APIProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
	}
	p.dim.configured = cfg.Dimension
	return p
}

type apiRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type apiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests one embedding for text.
func (p *APIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	var result apiResponse
	if err := postJSON(ctx, p.endpoint+"/embeddings", p.apiKey, apiRequest{Model: p.model, Input: text}, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding: no data in response from %s", p.endpoint)
	}

	vec := result.Data[0].Embedding
	p.dim.observe(vec)
	return vec, nil
}

// Dimension returns the observed vector dimension, or the configured default
// before the first successful call.
func (p *APIProvider) Dimension() int {
	return p.dim.value()
}
