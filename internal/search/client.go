// Package search talks to the product vector-search backend and exposes it as
// an agent tool.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/extract"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/metrics"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// Client queries the vector search REST API.
type Client struct {
	url     string
	dataset string
	client  *http.Client
}

// Config holds search client configuration.
type Config struct {
	URL      string
	Dataset  string
	PoolSize int
	Timeout  time.Duration
}

// NewClient creates a vector search client with a pooled HTTP transport.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:     cfg.URL,
		dataset: cfg.Dataset,
		client:  newPooledHTTPClient(cfg.PoolSize, timeout),
	}
}

type queryRequest struct {
	Query     string  `json:"query"`
	Rows      int     `json:"rows"`
	DatasetID string  `json:"dataset_id"`
	UseDense  bool    `json:"use_dense"`
	UseSparse bool    `json:"use_sparse"`
	RRFAlpha  float64 `json:"rrf_alpha"`
	UseRerank bool    `json:"use_rerank"`
}

type queryResponse struct {
	Items []any `json:"items"`
}

// Query runs one hybrid search and returns the validated products. Records the
// backend returns with missing fields are dropped, not fatal.
func (c *Client) Query(ctx context.Context, query string, rows int) ([]shop.Product, []error, error) {
	start := time.Now()
	metrics.SearchRequests.Inc()

	body, err := json.Marshal(queryRequest{
		Query:     query,
		Rows:      rows,
		DatasetID: c.dataset,
		UseDense:  true,
		UseSparse: true,
		RRFAlpha:  0.5,
		UseRerank: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.SearchErrors.Inc()
		return nil, nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SearchErrors.Inc()
		return nil, nil, fmt.Errorf("search status %d", resp.StatusCode)
	}

	var result queryResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.SearchErrors.Inc()
		return nil, nil, fmt.Errorf("decode search response: %w", err)
	}

	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	payload, dropped := extract.FromStructured(result.Items)
	return payload.Products, dropped, nil
}

func newPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
