// Package backend provides HTTP connectivity to the test collection backend,
// either directly (agentless) or through a local agent's EVP proxy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/klauspost/compress/gzip"
)

const DefaultTimeout = 15 * time.Second

const (
	headerAPIKey          = "dd-api-key"
	headerEVPSubdomain    = "X-Datadog-EVP-Subdomain"
	headerContentEncoding = "Content-Encoding"
	headerAcceptEncoding  = "Accept-Encoding"
	headerContentType     = "Content-Type"
)

// Connector sends requests to one backend endpoint. It is safe for concurrent use.
type Connector struct {
	baseURL string
	headers map[string]string
	useGzip bool
	client  *http.Client
	log     log.Logger
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

func WithHTTPClient(client *http.Client) ConnectorOption {
	return func(c *Connector) { c.client = client }
}

func WithLogger(logger log.Logger) ConnectorOption {
	return func(c *Connector) {
		if logger != nil {
			c.log = logger
		}
	}
}

// NewConnector creates a connector for baseURL. When useGzip is set, request
// bodies may be compressed and compressed responses are accepted.
func NewConnector(baseURL string, headers map[string]string, useGzip bool, opts ...ConnectorOption) *Connector {
	c := &Connector{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: make(map[string]string, len(headers)+1),
		useGzip: useGzip,
		client:  &http.Client{Timeout: DefaultTimeout},
		log:     log.Root(),
	}
	for k, v := range headers {
		c.headers[k] = v
	}
	if useGzip {
		c.headers[headerAcceptEncoding] = "gzip"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) BaseURL() string { return c.baseURL }

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Request performs a request and returns the decompressed response body.
// Bodies are gzipped only when both sendGzip and the connector allow it.
func (c *Connector) Request(ctx context.Context, method, path string, body []byte, headers map[string]string, sendGzip bool) (*Response, error) {
	full := make(map[string]string, len(c.headers)+len(headers)+1)
	for k, v := range c.headers {
		full[k] = v
	}
	for k, v := range headers {
		full[k] = v
	}

	if sendGzip && c.useGzip && body != nil {
		compressed, err := gzipBytes(body)
		if err != nil {
			return nil, fmt.Errorf("failed to compress request body: %w", err)
		}
		body = compressed
		full[headerContentEncoding] = "gzip"
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range full {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var respReader io.Reader = resp.Body
	if resp.Header.Get(headerContentEncoding) == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress response: %w", err)
		}
		defer gz.Close()
		respReader = gz
	}
	data, err := io.ReadAll(respReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debug("Backend request finished", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// PostJSON encodes in as JSON, posts it, and decodes a 2xx response into out.
// A nil out discards the response body.
func (c *Connector) PostJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := c.Request(ctx, http.MethodPost, path, body, map[string]string{headerContentType: "application/json"}, false)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// GetJSON fetches path and decodes a 2xx response into out.
func (c *Connector) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Request(ctx, http.MethodGet, path, nil, nil, false)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

func decodeJSON(resp *Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
