// Package client is a typed Go client for the econsult HTTP API, used by
// the CLI and the MCP server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ziadkadry99/econsult/internal/history"
	"github.com/ziadkadry99/econsult/internal/identity"
	"github.com/ziadkadry99/econsult/internal/search"
	"github.com/ziadkadry99/econsult/internal/settings"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("econsult API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("econsult API error (%d): %s", e.StatusCode, e.Detail)
}

// ErrUnsuccessful is returned when a settings call answers success:false.
var ErrUnsuccessful = errors.New("request was not successful")

// Client calls the econsult API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	user       string
	cluster    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, whose timeout covers the
// longest search.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithIdentity sets the pp-identity and pp-cluster headers sent with every
// request.
func WithIdentity(user, cluster string) Option {
	return func(c *Client) {
		c.user = user
		c.cluster = cluster
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 150 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetSettings fetches the stored settings.
func (c *Client) GetSettings(ctx context.Context) (*settings.Settings, error) {
	return c.settingsCall(ctx, http.MethodGet, nil)
}

// SaveSettings stores new default system prompts and returns the result.
func (c *Client) SaveSettings(ctx context.Context, defaultSystemPrompts string) (*settings.Settings, error) {
	return c.settingsCall(ctx, http.MethodPost, settings.UpdateRequest{DefaultSystemPrompts: defaultSystemPrompts})
}

// ResetSettings restores the defaults.
func (c *Client) ResetSettings(ctx context.Context) (*settings.Settings, error) {
	return c.settingsCall(ctx, http.MethodDelete, nil)
}

func (c *Client) settingsCall(ctx context.Context, method string, body any) (*settings.Settings, error) {
	var resp settings.Response
	if err := c.do(ctx, method, "/api/settings", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Settings == nil {
		if resp.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Message)
		}
		return nil, ErrUnsuccessful
	}
	return resp.Settings, nil
}

// Search asks a question. A response with Success false is not an error:
// its ErrorMessage is meant for the user.
func (c *Client) Search(ctx context.Context, query, doctorInstructions string) (*search.Response, error) {
	var resp search.Response
	req := search.Request{Query: query, DoctorInstructions: doctorInstructions}
	if err := c.do(ctx, http.MethodPost, "/api/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists the caller's recent searches, newest first. limit <= 0
// uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	path := "/api/search/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode()
	}
	var resp history.ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(identity.HeaderIdentity, c.user)
	}
	if c.cluster != "" {
		req.Header.Set(identity.HeaderCluster, c.cluster)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			apiErr.Detail = s
		} else {
			raw, _ := json.Marshal(body.Detail)
			apiErr.Detail = string(raw)
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return apiErr
}
