// Package remote implements gateway.Gateway over the SmartBot backend's
// HTTP API (POST /api/chat and POST /api/uploads).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jxucoder/smartbot/gateway"
)

const (
	opComplete = "complete"
	opUpload   = "upload"

	// maxBody caps how much of a response body is read.
	maxBody = 4 << 20
)

// Client talks to the backend. The zero value is not usable; call New.
type Client struct {
	baseURL string
	token   string
	cookie  string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCookie attaches a raw Cookie header to every request, for backends
// that authenticate with a session cookie.
func WithCookie(cookie string) Option {
	return func(c *Client) { c.cookie = cookie }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the overall per-request timeout. It applies to a copy of
// the current client, so a client passed to WithHTTPClient keeps its
// transport and is not mutated.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.client
		hc.Timeout = d
		c.client = &hc
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ gateway.Gateway = (*Client)(nil)

// Complete posts a chat message and returns the reply.
func (c *Client) Complete(ctx context.Context, req gateway.CompletionRequest) (gateway.CompletionResponse, error) {
	var out gateway.CompletionResponse

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return out, gateway.Fail(opComplete, 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return out, gateway.Fail(opComplete, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := c.do(httpReq, opComplete, &out); err != nil {
		return gateway.CompletionResponse{}, err
	}
	return out, nil
}

// Upload sends file as multipart form data under the "file" field.
func (c *Client) Upload(ctx context.Context, file gateway.File) (gateway.UploadResult, error) {
	var out gateway.UploadResult
	if file.Content == nil {
		return out, gateway.Fail(opUpload, 0, fmt.Errorf("no content for %q", file.Name))
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, file))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/uploads", pr)
	if err != nil {
		pr.CloseWithError(err)
		return out, gateway.Fail(opUpload, 0, err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	if err := c.do(httpReq, opUpload, &out); err != nil {
		return gateway.UploadResult{}, err
	}
	if !out.Success {
		return gateway.UploadResult{}, gateway.Fail(opUpload, 0, fmt.Errorf("server reported unsuccessful upload"))
	}
	return out, nil
}

// writeMultipart streams file into mw as the "file" form field.
func writeMultipart(mw *multipart.Writer, file gateway.File) error {
	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return fmt.Errorf("reading %q: %w", file.Name, err)
	}
	return mw.Close()
}

func (c *Client) do(req *http.Request, op string, v any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return gateway.Fail(op, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return gateway.Fail(op, resp.StatusCode, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gateway.Fail(op, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}

	if err := json.Unmarshal(respBody, v); err != nil {
		return gateway.Fail(op, resp.StatusCode, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}
