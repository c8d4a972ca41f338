package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/psantana5/ytconvert/pkg/models"
)

// Client talks to a convertd API server
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError is a non-2xx response with its decoded error body
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// ErrTruncated is returned when the server aborted the body after streaming began
var ErrTruncated = errors.New("conversion stream truncated")

// NewClient creates a new API client. A nil httpClient gets a default with no
// overall timeout, since conversions stream for as long as the media takes.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Download is the result of a finished conversion
type Download struct {
	FileName    string
	ContentType string
	Bytes       int64
	RequestID   string
}

// Convert posts a conversion request and copies the streamed attachment to w
func (c *Client) Convert(ctx context.Context, body models.ConversionRequestBody, w io.Writer) (*Download, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/convert", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	dl := &Download{
		FileName:    AttachmentName(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		RequestID:   resp.Header.Get("X-Request-ID"),
	}
	dl.Bytes, err = io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return dl, ctx.Err()
		}
		return dl, fmt.Errorf("%w after %d bytes: %v", ErrTruncated, dl.Bytes, err)
	}
	return dl, nil
}

// HistoryPage is the body of GET /api/history
type HistoryPage struct {
	Conversions []*models.ConversionRecord `json:"conversions"`
	Count       int                        `json:"count"`
}

// History lists recent conversions, newest first
func (c *Client) History(ctx context.Context, limit int) (*HistoryPage, error) {
	var page HistoryPage
	if err := c.getJSON(ctx, fmt.Sprintf("/api/history?limit=%d", limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Health returns the decoded /health document. A degraded server is not an error.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, decodeError(resp)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode health: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to convertd API: %w", err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// AttachmentName extracts the filename parameter of a Content-Disposition value
func AttachmentName(header string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
