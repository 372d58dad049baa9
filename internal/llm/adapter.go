package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Adapter is an abstraction for one LLM backend wire protocol.
// Each implementation handles provider-specific HTTP details, authentication,
// request/response formatting, and error classification.
type Adapter interface {
	// Call sends the conversation and returns the single best-effort text.
	Call(ctx context.Context, conv []Message, model, credential string) (*Response, error)

	// Capabilities declares what the adapter supports beyond Call.
	Capabilities() Capabilities
}

// Streamer is implemented by adapters whose Capabilities report Streaming.
type Streamer interface {
	// Stream relays text fragments to onChunk in arrival order and returns
	// when the upstream closes. The response body is released on every
	// return path.
	Stream(ctx context.Context, conv []Message, model, credential string, onChunk func(string) error) error
}

// Capabilities is the explicit per-adapter feature set.
type Capabilities struct {
	Streaming bool
}

// Fixed generation parameters shared by the bundled adapters.
const (
	maxOutputTokens = 4096
	temperature     = 0.7
	maxBodyBytes    = 8 << 20
)

// AdapterOption configures the HTTP side of an adapter.
type AdapterOption func(*httpBackend)

// WithBaseURL overrides the backend root URL (proxies, tests).
func WithBaseURL(u string) AdapterOption {
	return func(b *httpBackend) {
		if u != "" {
			b.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(b *httpBackend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithTimeout bounds a single Call.
func WithTimeout(d time.Duration) AdapterOption {
	return func(b *httpBackend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithStreamTimeout bounds a whole Stream, from request to last chunk.
func WithStreamTimeout(d time.Duration) AdapterOption {
	return func(b *httpBackend) {
		if d > 0 {
			b.streamTimeout = d
		}
	}
}

// httpBackend holds the transport settings every bundled adapter shares.
type httpBackend struct {
	name          string
	baseURL       string
	client        *http.Client
	timeout       time.Duration
	streamTimeout time.Duration
}

func newHTTPBackend(name, baseURL string, opts []AdapterOption) httpBackend {
	b := httpBackend{
		name:          name,
		baseURL:       baseURL,
		client:        &http.Client{},
		timeout:       60 * time.Second,
		streamTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// post sends body as JSON. A returned error is always a transport failure;
// HTTP error statuses come back as a response for the caller to classify.
func (b *httpBackend) post(ctx context.Context, url string, headers map[string]string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", b.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", b.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", b.name, err)
	}
	return resp, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// Unimplemented stands in for a backend whose adapter does not exist yet.
type Unimplemented struct {
	Provider ProviderID
}

func (u Unimplemented) Call(context.Context, []Message, string, string) (*Response, error) {
	return nil, &Error{
		Kind:           KindUnsupportedProvider,
		Provider:       u.Provider,
		Message:        "adapter not implemented",
		NotImplemented: true,
	}
}

func (Unimplemented) Capabilities() Capabilities { return Capabilities{} }
