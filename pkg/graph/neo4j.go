package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"compliance-rag-be/pkg/retry"
)

// IGraphClient is the graph-engine contract: execute one read statement
// with a per-call timeout.
type IGraphClient interface {
	Execute(ctx context.Context, stmt string, params map[string]interface{}) ([]map[string]interface{}, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Client struct {
	driver  neo4j.DriverWithContext
	timeout time.Duration
	policy  retry.Policy
}

var _ IGraphClient = (*Client)(nil)

func NewClient(uri, user, password string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: build driver: %w", err)
	}
	return &Client{driver: driver, timeout: timeout, policy: retry.DefaultPolicy()}, nil
}

// Execute retries connectivity failures and per-call timeouts; statement
// errors (bad Cypher, constraint violations) are final.
func (c *Client) Execute(ctx context.Context, stmt string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return retry.Do(ctx, c.policy, func() ([]map[string]interface{}, error) {
		rows, err := c.runOnce(ctx, stmt, params)
		if err != nil && !neo4j.IsConnectivityError(err) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, retry.Permanent(err)
		}
		return rows, err
	})
}

func (c *Client) runOnce(ctx context.Context, stmt string, params map[string]interface{}) ([]map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, stmt, params)
	if err != nil {
		return nil, fmt.Errorf("graph: run statement: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: collect rows: %w", err)
	}

	rows := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.AsMap())
	}
	return rows, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph: ping: %w", err)
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}
