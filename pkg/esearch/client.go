package esearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"compliance-rag-be/pkg/retry"
)

// Hit is one document returned by a search or knn query.
type Hit struct {
	Id     string
	Score  float64
	Source map[string]interface{}
}

// ISearchClient is the narrow text-index contract the rest of the system
// depends on.
type ISearchClient interface {
	Search(ctx context.Context, index string, query map[string]interface{}, size int) ([]Hit, error)
	KNN(ctx context.Context, index, field string, vector []float32, k int) ([]Hit, error)
	IndexDoc(ctx context.Context, index, id string, doc interface{}) error
	DeleteDoc(ctx context.Context, index, id string) error
	DeleteByQuery(ctx context.Context, index string, query map[string]interface{}) error
	Ping(ctx context.Context) error
}

type Config struct {
	Addresses []string
	Username  string
	Password  string
	Timeout   time.Duration
	Retry     retry.Policy
}

// Client wraps the official v8 driver. The transport carries no proxy
// function so HTTP(S)_PROXY from the environment never applies to the
// locally deployed index.
type Client struct {
	es      *elasticsearch.Client
	timeout time.Duration
	policy  retry.Policy
}

var _ ISearchClient = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{Proxy: nil},
	})
	if err != nil {
		return nil, fmt.Errorf("esearch: build client: %w", err)
	}
	return &Client{es: es, timeout: timeout, policy: policy}, nil
}

func (c *Client) Search(ctx context.Context, index string, query map[string]interface{}, size int) ([]Hit, error) {
	body := map[string]interface{}{"size": size}
	if query != nil {
		body["query"] = query
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("esearch: marshal query: %w", err)
	}
	return c.searchWithRetry(ctx, index, payload, "search")
}

func (c *Client) KNN(ctx context.Context, index, field string, vector []float32, k int) ([]Hit, error) {
	body := map[string]interface{}{
		"size": k,
		"knn": map[string]interface{}{
			"field":          field,
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("esearch: marshal knn query: %w", err)
	}
	return c.searchWithRetry(ctx, index, payload, "knn")
}

// searchWithRetry retries transport failures; an answered request, error
// response included, is final.
func (c *Client) searchWithRetry(ctx context.Context, index string, payload []byte, op string) ([]Hit, error) {
	return retry.Do(ctx, c.policy, func() ([]Hit, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		res, err := c.es.Search(
			c.es.Search.WithContext(callCtx),
			c.es.Search.WithIndex(index),
			c.es.Search.WithBody(bytes.NewReader(payload)),
		)
		if err != nil {
			return nil, fmt.Errorf("esearch: %s %s: %w", op, index, err)
		}
		hits, err := parseHits(res)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return hits, nil
	})
}

func (c *Client) IndexDoc(ctx context.Context, index, id string, doc interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("esearch: marshal doc: %w", err)
	}

	res, err := c.es.Index(
		index,
		bytes.NewReader(payload),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("esearch: index %s/%s: %w", index, id, err)
	}
	return drainResponse(res, "index "+index)
}

func (c *Client) DeleteDoc(ctx context.Context, index, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Delete(index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("esearch: delete %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()
	// 404 is fine: delete is idempotent.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("esearch: delete %s/%s: %s", index, id, res.String())
	}
	return nil
}

func (c *Client) DeleteByQuery(ctx context.Context, index string, query map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{"query": query})
	if err != nil {
		return fmt.Errorf("esearch: marshal query: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("esearch: delete_by_query %s: %w", index, err)
	}
	return drainResponse(res, "delete_by_query "+index)
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("esearch: ping: %w", err)
	}
	return drainResponse(res, "ping")
}

func parseHits(res *esapi.Response) ([]Hit, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("esearch: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Id     string                 `json:"_id"`
				Score  float64                `json:"_score"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("esearch: decode response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{Id: h.Id, Score: h.Score, Source: h.Source})
	}
	return hits, nil
}

func drainResponse(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("esearch: %s: %s", op, res.String())
	}
	return nil
}
