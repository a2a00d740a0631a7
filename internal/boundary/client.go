// Package boundary calls the external boundary service to resolve which
// locality codes exist for a tenant. Lookups are bounded by the configured
// client timeout; a timeout fails only the entities that needed the lookup,
// a policy enforced by the referential validator, not here.
package boundary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"registrar/internal/platform/config"
)

type searchRequest struct {
	TenantId string   `json:"tenantId"`
	Codes    []string `json:"codes"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

type searchResponse struct {
	Codes []string `json:"codes"`
}

// Client is the HTTP client for the boundary service.
type Client struct {
	baseURL  string
	http     *http.Client
	pageSize int
	logger   *slog.Logger
}

// NewClient builds a client with a per-call timeout from config.
func NewClient(cfg config.BoundaryConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		pageSize: 100,
		logger:   logger,
	}
}

// ExistingCodes returns the subset of codes known to the boundary service
// for the tenant, paging through the search contract.
func (c *Client) ExistingCodes(ctx context.Context, tenantId string, codes []string) ([]string, error) {
	var existing []string
	for offset := 0; ; offset += c.pageSize {
		page, err := c.searchPage(ctx, searchRequest{
			TenantId: tenantId,
			Codes:    codes,
			Limit:    c.pageSize,
			Offset:   offset,
		})
		if err != nil {
			return nil, err
		}
		existing = append(existing, page...)
		if len(page) < c.pageSize {
			return existing, nil
		}
	}
}

func (c *Client) searchPage(ctx context.Context, req searchRequest) ([]string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode boundary search: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/boundary/v1/_search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build boundary search: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("boundary search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("boundary search: unexpected status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode boundary search: %w", err)
	}
	return decoded.Codes, nil
}
