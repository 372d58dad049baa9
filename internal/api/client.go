package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/forge-ai/uigen/internal/llm"
)

// Client talks to a gateway server. It reads its credential source before
// every send and satisfies chat.Completer.
type Client struct {
	baseURL string
	http    *http.Client
	creds   llm.CredentialSource
}

type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Streams are bounded by the
// caller's context, so the default client has no timeout.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func NewClient(baseURL string, creds llm.CredentialSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		creds:   creds,
	}
	if c.creds == nil {
		c.creds = llm.Credentials{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SendMessage(ctx context.Context, conv []llm.Message, provider llm.ProviderID, model string) (*llm.Response, error) {
	resp, err := c.post(ctx, conv, provider, model, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRequestBytes)).Decode(&out); err != nil {
		return nil, &llm.Error{Kind: llm.KindMalformedResponse, Provider: provider, Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, &llm.Error{Kind: llm.KindMalformedResponse, Provider: provider, Message: "no choices"}
	}
	return &llm.Response{Text: out.Choices[0].Message.Content}, nil
}

// SendMessageStreaming relays the raw text body to onChunk as it arrives.
// Multi-byte characters split across reads are held back until complete.
func (c *Client) SendMessageStreaming(ctx context.Context, conv []llm.Message, provider llm.ProviderID, model string, onChunk func(string) error) error {
	resp, err := c.post(ctx, conv, provider, model, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completePrefix(data)
			if cut > 0 {
				if err := onChunk(string(data[:cut])); err != nil {
					return err
				}
			}
			carry = append([]byte(nil), data[cut:]...)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return &llm.Error{Kind: llm.KindUpstreamUnavailable, Provider: provider, Err: rerr}
		}
	}
	if len(carry) > 0 {
		return onChunk(string(carry))
	}
	return nil
}

// completePrefix returns the length of b without a trailing incomplete rune.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}

func (c *Client) post(ctx context.Context, conv []llm.Message, provider llm.ProviderID, model string, stream bool) (*http.Response, error) {
	creds := map[string]string{}
	for _, p := range llm.Providers {
		if v, ok := c.creds.Credential(p); ok {
			creds[string(p)] = v
		}
	}
	body, err := json.Marshal(chatRequest{
		Messages:    conv,
		Provider:    string(provider),
		Model:       model,
		Stream:      stream,
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := llm.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindUpstreamUnavailable, Provider: provider, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp, provider)
	}
	return resp, nil
}

// decodeError rebuilds the typed error from a gateway error body.
func decodeError(resp *http.Response, provider llm.ProviderID) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return &llm.Error{
			Kind:     llm.KindUpstreamUnavailable,
			Provider: provider,
			Message:  fmt.Sprintf("gateway answered %s", resp.Status),
		}
	}

	kind := llm.Kind(body.Kind)
	switch kind {
	case llm.KindMissingCredential, llm.KindInvalidCredential, llm.KindQuotaExceeded,
		llm.KindUnsupportedProvider, llm.KindUpstreamUnavailable, llm.KindMalformedResponse,
		llm.KindInvalidRequest:
	default:
		kind = llm.KindUpstreamUnavailable
	}
	return &llm.Error{
		Kind:           kind,
		Provider:       provider,
		Message:        body.Error,
		NotImplemented: resp.StatusCode == http.StatusNotImplemented,
	}
}
