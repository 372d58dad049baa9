package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

var anthropicSignatures = withCommon(SignatureTable{
	{Code: "authentication_error", Kind: KindInvalidCredential},
	{Code: "permission_error", Kind: KindInvalidCredential},
	{Code: "rate_limit_error", Kind: KindQuotaExceeded},
	{Code: "invalid_request_error", Text: "credit balance", Kind: KindQuotaExceeded},
	{Code: "overloaded_error", Kind: KindUpstreamUnavailable},
	{Code: "api_error", Kind: KindUpstreamUnavailable},
	{Code: "not_found_error", Kind: KindInvalidRequest},
})

// AnthropicAdapter implements Adapter for Anthropic's Messages API.
// System text travels in the top-level system field.
type AnthropicAdapter struct {
	httpBackend
}

// NewAnthropic creates a new Anthropic adapter instance.
func NewAnthropic(opts ...AdapterOption) *AnthropicAdapter {
	return &AnthropicAdapter{httpBackend: newHTTPBackend(string(Anthropic), anthropicURL, opts)}
}

func (a *AnthropicAdapter) Capabilities() Capabilities { return Capabilities{} }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

func (a *AnthropicAdapter) buildRequest(conv []Message, model string) anthropicRequest {
	var system []string
	msgs := make([]anthropicMessage, 0, len(conv))
	for _, m := range conv {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	return anthropicRequest{
		Model:       model,
		MaxTokens:   maxOutputTokens,
		Temperature: temperature,
		System:      strings.Join(system, "\n\n"),
		Messages:    msgs,
	}
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Call calls the Messages API and joins the text content blocks.
func (a *AnthropicAdapter) Call(ctx context.Context, conv []Message, model, credential string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.post(ctx, a.baseURL+"/messages", map[string]string{
		"x-api-key":         credential,
		"anthropic-version": anthropicVersion,
	}, a.buildRequest(conv, model))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("anthropic: read response: %w", err)
	}

	var ar struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error *anthropicError `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &ar)

	if !isSuccess(resp.StatusCode) || (decodeErr == nil && ar.Error != nil) {
		if decodeErr != nil || ar.Error == nil {
			return nil, classify(Anthropic, anthropicSignatures, resp.StatusCode, "", strings.TrimSpace(string(raw)))
		}
		return nil, classify(Anthropic, anthropicSignatures, resp.StatusCode, ar.Error.Type, ar.Error.Message)
	}
	if decodeErr != nil {
		return nil, malformed(Anthropic, resp.StatusCode, fmt.Errorf("decode: %w", decodeErr))
	}

	var sb strings.Builder
	found := false
	for _, block := range ar.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		found = true
		sb.WriteString(block.Text)
	}
	if !found {
		return nil, malformed(Anthropic, resp.StatusCode, fmt.Errorf("empty response"))
	}
	return &Response{Text: sb.String()}, nil
}
