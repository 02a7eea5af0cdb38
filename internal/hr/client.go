// Package hr fetches the staff and student roster from the HR system.
package hr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/types"
)

var ErrNotConfigured = errors.New("hr source is not configured")

// Client reads the roster from a JSON endpoint returning
// [{"email": ..., "firstName": ..., "lastName": ...}].
type Client struct {
	sourceURL  string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.HRConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		sourceURL:  strings.TrimSpace(cfg.SourceURL),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool {
	return c.sourceURL != ""
}

// Fetch downloads the full roster.
func (c *Client) Fetch(ctx context.Context) ([]types.ImportRecord, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hr source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []types.ImportRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode hr roster: %w", err)
	}
	for i := range records {
		records[i].Email = strings.ToLower(strings.TrimSpace(records[i].Email))
		records[i].FirstName = strings.TrimSpace(records[i].FirstName)
		records[i].LastName = strings.TrimSpace(records[i].LastName)
	}
	return records, nil
}
