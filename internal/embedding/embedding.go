package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Provider turns one piece of text into a vector. The memory manager embeds a
// single description or query per call, so the interface is single-text; a nil
// or failing provider degrades retrieval to recency ordering.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api", "ollama" or "hash"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "api":
		return NewAPIProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	case "hash", "":
		return NewHashProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// httpClient bounds how long a single embedding call may take.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// postJSON posts payload to url and decodes a 200 response into out. Both
// remote providers speak simple JSON-over-POST, so they share the transport.
func postJSON(ctx context.Context, url, apiKey string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedding: endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}

// dimTracker reports the configured dimension until a remote provider returns
// its first vector, after which the model's actual dimension wins.
type dimTracker struct {
	configured int
	observed   atomic.Int32
}

func (d *dimTracker) observe(vec []float32) {
	if len(vec) > 0 {
		d.observed.CompareAndSwap(0, int32(len(vec)))
	}
}

func (d *dimTracker) value() int {
	if n := d.observed.Load(); n > 0 {
		return int(n)
	}
	return d.configured
}
