package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/namikmesic/chatstream/internal/config"
	"github.com/namikmesic/chatstream/internal/stream"
	"github.com/namikmesic/chatstream/internal/transcript"
	"github.com/rs/zerolog/log"
)

const maxErrorBody = 64 * 1024

// APIError is returned when the endpoint answers with a non-success status.
// No stream is opened in that case.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Client opens streaming generations against an NDJSON chat endpoint.
type Client struct {
	baseURL    string
	path       string
	apiKey     string
	bufferSize int
	header     http.Header
	client     *http.Client
}

func New(cfg *config.Config) *Client {
	c := &Client{
		baseURL:    cfg.EndpointURL,
		path:       cfg.StreamPath,
		apiKey:     cfg.APIKey,
		bufferSize: cfg.ReadBufferSize,
		header:     make(http.Header),
		client: &http.Client{
			// No timeout, streams are long-lived
			Timeout: 0,
			// Don't follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for k, v := range cfg.ExtraHeaders {
		c.SetHeader(k, v)
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// SetHeader adds a static header sent with every request.
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// Open posts req and returns the response body as a chunk source. A
// non-success status is returned as *APIError before any byte is read.
func (c *Client) Open(ctx context.Context, req transcript.Request) (stream.ChunkSource, error) {
	start := time.Now()

	targetURL, err := buildTargetURL(c.baseURL, c.path)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header = prepareRequestHeaders(c.header, c.apiKey)

	log.Debug().
		Str("url", targetURL).
		Str("model", req.ModelID).
		Int("messages", len(req.Messages)).
		Interface("headers", redactedHeaders(httpReq.Header)).
		Msg("opening chat stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return nil, fmt.Errorf("read error body: %w", readErr)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		log.Warn().Str("content_type", ct).Msg("unexpected content type for chat stream")
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("ttfb", time.Since(start)).
		Msg("chat stream opened")

	return stream.NewReaderSource(resp.Body, c.bufferSize), nil
}
