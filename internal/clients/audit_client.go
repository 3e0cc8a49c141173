// internal/clients/audit_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"libraengage/internal/consistency"
)

// AuditClient fetches a consistency report from a running engage server.
type AuditClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAuditClient(baseURL, token string) *AuditClient {
	return &AuditClient{baseURL: baseURL, token: token, http: &http.Client{Timeout: 60 * time.Second}}
}

func (c *AuditClient) Fetch(ctx context.Context) (*consistency.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/admin/audit", nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var report consistency.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
