package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"compliance-rag-be/pkg/retry"
)

// HTTPProvider calls a self-hosted embedding service over plain HTTP.
// The transport carries no proxy function: the service is deployed on the
// local network and must never be reached through HTTP(S)_PROXY.
type HTTPProvider struct {
	BaseURL   string
	ModelName string
	Dim       int
	Client    *http.Client
	Retry     retry.Policy
}

var _ EmbeddingProvider = (*HTTPProvider)(nil)

func NewHTTPProvider(baseURL, modelName string, dim int, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if dim <= 0 {
		dim = 1024
	}
	return &HTTPProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: modelName,
		Dim:       dim,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: nil},
		},
		Retry: retry.DefaultPolicy(),
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embedRequest{Texts: texts, Model: p.ModelName})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(ctx, p.Retry, func() ([][]float32, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/embed", bytes.NewReader(payload))
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			respErr := fmt.Errorf("embedding error: status %d, body: %s", resp.StatusCode, string(body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, retry.Permanent(respErr)
			}
			return nil, respErr
		}

		var parsed embedResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
		if len(parsed.Embeddings) != len(texts) {
			return nil, retry.Permanent(fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Embeddings), len(texts)))
		}
		return parsed.Embeddings, nil
	})
}

func (p *HTTPProvider) Dimension() int { return p.Dim }
