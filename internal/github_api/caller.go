// Package githubapi pages through the GitHub GraphQL repository search. The Caller does
// the HTTP round trip; the Fetcher turns one cursor into one page of records, sorting
// every failure into a retry class on the way.
package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/thep200/repo-harvester/cfg"
	"github.com/thep200/repo-harvester/pkg/log"
)

const maxResponseBytes = 16 << 20

type Caller struct {
	Logger log.Logger
	Config *cfg.Config
	client *http.Client
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewCaller uses client when given, otherwise one with the configured timeout.
func NewCaller(logger log.Logger, config *cfg.Config, client *http.Client) *Caller {
	if client == nil {
		client = &http.Client{Timeout: config.GithubApi.Timeout}
	}
	return &Caller{
		Logger: logger,
		Config: config,
		client: client,
	}
}

// Post sends payload as JSON to the GraphQL endpoint. Any status is returned as a
// Response; only transport failures are errors.
func (c *Caller) Post(ctx context.Context, payload any) (*Response, error) {
	// Encode payload
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	// Tạo request với header xác thực
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.GithubApi.ApiUrl, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Config.GithubApi.AccessToken)
	if c.Config.GithubApi.UserAgent != "" {
		req.Header.Set("User-Agent", c.Config.GithubApi.UserAgent)
	}

	// Gửi request, đọc toàn bộ body để đóng kết nối sớm
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	//
	c.Logger.Debug(ctx, "GraphQL call returned %d (%d bytes), rate limit remaining: %s",
		resp.StatusCode, len(data), resp.Header.Get("X-RateLimit-Remaining"))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
