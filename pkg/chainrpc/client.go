// Package chainrpc implements the JSON-over-HTTP ledger-query client.
//
// It exposes typed access to the chain API's table queries and the
// exhaustive cursor-based pagination used by the aggregation engine. The
// ledger offers no cross-call consistency token; every query observes
// whatever height the node happened to serve.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dsphq/dapphub/internal/metrics"
)

const (
	tableRowsPath = "/v1/chain/get_table_rows"
	accountPath   = "/v1/chain/get_account"
)

// TableReader is the minimal table-query capability consumed by the
// aggregation engine. Satisfied by *Client; tests provide in-memory fakes.
type TableReader interface {
	GetTableRows(ctx context.Context, req TableRowsRequest) (*TableRowsResponse, error)
}

// Client is an HTTP client for a chain API node.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a chain API client for the given node URL.
func New(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTableRows issues a single ranged table query.
func (c *Client) GetTableRows(ctx context.Context, req TableRowsRequest) (*TableRowsResponse, error) {
	req.JSON = true

	start := time.Now()
	var resp TableRowsResponse
	err := c.post(ctx, tableRowsPath, req, &resp)
	metrics.ObserveUpstreamQuery(req.Table, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("get_table_rows %s/%s/%s: %w", req.Code, req.Scope, req.Table, err)
	}

	c.logger.Debug("table query",
		zap.String("code", req.Code),
		zap.String("scope", req.Scope),
		zap.String("table", req.Table),
		zap.Int("rows", len(resp.Rows)),
		zap.Bool("more", resp.More),
	)
	return &resp, nil
}

// GetAccount retrieves basic account info from the node.
func (c *Client) GetAccount(ctx context.Context, name string) (*AccountInfo, error) {
	var resp AccountInfo
	payload := map[string]string{"account_name": name}
	if err := c.post(ctx, accountPath, payload, &resp); err != nil {
		return nil, fmt.Errorf("get_account %s: %w", name, err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
