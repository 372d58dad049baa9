package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const openaiURL = "https://api.openai.com/v1"

// openaiSignatures maps OpenAI error codes and types to kinds.
var openaiSignatures = withCommon(SignatureTable{
	{Code: "invalid_api_key", Kind: KindInvalidCredential},
	{Code: "insufficient_quota", Kind: KindQuotaExceeded},
	{Code: "rate_limit_exceeded", Kind: KindQuotaExceeded},
	{Code: "model_not_found", Kind: KindInvalidRequest},
	{Text: "incorrect api key", Kind: KindInvalidCredential},
	{Code: "server_error", Kind: KindUpstreamUnavailable},
})

// OpenAIAdapter speaks the OpenAI-compatible chat completions protocol,
// including server-sent-event streaming.
type OpenAIAdapter struct {
	httpBackend
}

// NewOpenAI creates an adapter for api.openai.com or any compatible endpoint.
func NewOpenAI(opts ...AdapterOption) *OpenAIAdapter {
	return &OpenAIAdapter{httpBackend: newHTTPBackend(string(OpenAI), openaiURL, opts)}
}

func (a *OpenAIAdapter) Capabilities() Capabilities { return Capabilities{Streaming: true} }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream,omitempty"`
}

type openaiError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

// code prefers the specific code over the broad type; code may be null,
// a string or a number depending on the compatible server.
func (e *openaiError) code() string {
	var s string
	if len(e.Code) > 0 && json.Unmarshal(e.Code, &s) == nil && s != "" {
		return s
	}
	return e.Type
}

func (a *OpenAIAdapter) buildRequest(conv []Message, model string, stream bool) openaiRequest {
	msgs := make([]openaiMessage, len(conv))
	for i, m := range conv {
		msgs[i] = openaiMessage{Role: string(m.Role), Content: m.Content}
	}
	return openaiRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxOutputTokens,
		Temperature: temperature,
		Stream:      stream,
	}
}

func (a *OpenAIAdapter) headers(credential string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + credential}
}

func (a *OpenAIAdapter) failure(status int, raw []byte) *Error {
	var env struct {
		Error *openaiError `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == nil {
		return classify(OpenAI, openaiSignatures, status, "", strings.TrimSpace(string(raw)))
	}
	return classify(OpenAI, openaiSignatures, status, env.Error.code(), env.Error.Message)
}

// Call sends a chat completion request and returns choices[0].message.content.
func (a *OpenAIAdapter) Call(ctx context.Context, conv []Message, model, credential string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.post(ctx, a.baseURL+"/chat/completions", a.headers(credential), a.buildRequest(conv, model, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, a.failure(resp.StatusCode, raw)
	}

	var cr struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *openaiError `json:"error"`
	}
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, malformed(OpenAI, resp.StatusCode, fmt.Errorf("decode: %w", err))
	}
	if cr.Error != nil {
		return nil, classify(OpenAI, openaiSignatures, resp.StatusCode, cr.Error.code(), cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, malformed(OpenAI, resp.StatusCode, fmt.Errorf("no choices in response"))
	}
	return &Response{Text: cr.Choices[0].Message.Content}, nil
}

// Stream reads the SSE body line by line, forwarding every delta.content.
func (a *OpenAIAdapter) Stream(ctx context.Context, conv []Message, model, credential string, onChunk func(string) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.streamTimeout)
	defer cancel()

	resp, err := a.post(ctx, a.baseURL+"/chat/completions", a.headers(credential), a.buildRequest(conv, model, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		raw, err := readBody(resp)
		if err != nil {
			return fmt.Errorf("openai: read error response: %w", err)
		}
		return a.failure(resp.StatusCode, raw)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *openaiError `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return malformed(OpenAI, resp.StatusCode, fmt.Errorf("decode stream chunk: %w", err))
		}
		if chunk.Error != nil {
			return classify(OpenAI, openaiSignatures, resp.StatusCode, chunk.Error.code(), chunk.Error.Message)
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			if err := onChunk(c.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("openai: read stream: %w", err)
	}
	return nil
}
