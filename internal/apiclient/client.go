// Package apiclient talks to the linkgate HTTP control plane.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"linkgate/internal/linking/handler"
)

const defaultTimeout = 15 * time.Second

// Response is a raw reply. Body is the JSON document returned by the server.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Indented returns Body re-indented for display, or Body unchanged when it is not JSON.
func (r *Response) Indented() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Body, "", "  "); err != nil {
		return string(r.Body)
	}
	return buf.String()
}

// Client calls the /api endpoints with a bearer key.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// New returns a Client for baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Stats(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/api/stats", nil, nil)
}

func (c *Client) Health(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// Link looks a link up by account id, or by external id when externalID > 0.
func (c *Client) Link(ctx context.Context, accountID string, externalID int64) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/api/links", linkQuery(accountID, externalID), nil)
}

// Unlink removes a link by account id, or by external id when externalID > 0.
func (c *Client) Unlink(ctx context.Context, accountID string, externalID int64) (*Response, error) {
	return c.do(ctx, http.MethodDelete, "/api/links", linkQuery(accountID, externalID), nil)
}

func (c *Client) IssueCode(ctx context.Context, accountID, displayName string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/codes", nil, handler.CodeRequest{AccountID: accountID, DisplayName: displayName})
}

func (c *Client) Verify(ctx context.Context, code string, externalID int64) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/verify", nil, handler.VerifyRequest{Code: code, ExternalID: externalID})
}

// Audit lists recent audit entries for an account. limit <= 0 uses the server default.
func (c *Client) Audit(ctx context.Context, accountID string, limit int) (*Response, error) {
	q := url.Values{"account_id": {accountID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.do(ctx, http.MethodGet, "/api/audit", q, nil)
}

func linkQuery(accountID string, externalID int64) url.Values {
	q := url.Values{}
	if externalID > 0 {
		q.Set("external_id", strconv.FormatInt(externalID, 10))
	} else if accountID != "" {
		q.Set("account_id", accountID)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("apiclient: read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}
