package embedding

import "context"

// OllamaProvider embeds text through an Ollama server, which takes one prompt
// per request.
type OllamaProvider struct {
	endpoint string
	model    string
	dim      dimTracker
}

// NewOllamaProvider creates an OllamaProvider from the given Config.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	p := &OllamaProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
	}
	p.dim.configured = cfg.Dimension
	return p
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests one embedding for text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	var result ollamaResponse
	if err := postJSON(ctx, p.endpoint+"/api/embeddings", "", ollamaRequest{Model: p.model, Prompt: text}, &result); err != nil {
		return nil, err
	}

	p.dim.observe(result.Embedding)
	return result.Embedding, nil
}

// Dimension returns the observed vector dimension, or the configured default
// before the first successful call.
func (p *OllamaProvider) Dimension() int {
	return p.dim.value()
}
