// Package vectorstore is the HTTP client for the external nearest-neighbor
// search service. Each ingested source lives in its own named collection;
// document creation, chunking, and embedding all happen on the service side.
// The gateway only reads.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/contextlabs/ragway/internal/config"
)

// Passage is one retrieved chunk in rank order. The relevance score is kept
// here for logging; it does not cross the aggregator boundary.
type Passage struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Searcher is the read surface the retrieval aggregator depends on.
type Searcher interface {
	TopK(ctx context.Context, collectionID, query string, k int) ([]Passage, error)
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.VectorStoreConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type queryResponse struct {
	Results []Passage `json:"results"`
}

// TopK returns up to k passages for query from one collection, ordered by
// descending relevance as ranked by the store.
func (c *Client) TopK(ctx context.Context, collectionID, query string, k int) ([]Passage, error) {
	body, err := json.Marshal(queryRequest{Query: query, K: k})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/collections/%s/query", c.baseURL, url.PathEscape(collectionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collectionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("query collection %s: status %d: %s", collectionID, resp.StatusCode, string(b))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return qr.Results, nil
}

type collectionsResponse struct {
	Collections []string `json:"collections"`
}

// ListCollections returns the collection IDs the store itself knows about.
// The gateway routes retrieval through the metadata registry instead; this
// call backs the health and debug surface.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/collections", nil)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list collections: status %d: %s", resp.StatusCode, string(b))
	}

	var lr collectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode collections response: %w", err)
	}
	return lr.Collections, nil
}
