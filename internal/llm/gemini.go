package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const geminiURL = "https://generativelanguage.googleapis.com/v1beta"

var geminiSignatures = withCommon(SignatureTable{
	{Text: "api key not valid", Kind: KindInvalidCredential},
	{Text: "api key expired", Kind: KindInvalidCredential},
	{Code: "UNAUTHENTICATED", Kind: KindInvalidCredential},
	{Code: "PERMISSION_DENIED", Kind: KindInvalidCredential},
	{Code: "RESOURCE_EXHAUSTED", Kind: KindQuotaExceeded},
	{Code: "UNAVAILABLE", Kind: KindUpstreamUnavailable},
	{Code: "DEADLINE_EXCEEDED", Kind: KindUpstreamUnavailable},
	{Code: "NOT_FOUND", Kind: KindInvalidRequest},
})

// GeminiAdapter speaks the Generative Language generateContent protocol.
// Its contents array has no system role, so system text is folded into the
// first user turn.
type GeminiAdapter struct {
	httpBackend
}

// NewGemini creates a new Gemini adapter instance.
func NewGemini(opts ...AdapterOption) *GeminiAdapter {
	return &GeminiAdapter{httpBackend: newHTTPBackend(string(Gemini), geminiURL, opts)}
}

func (a *GeminiAdapter) Capabilities() Capabilities { return Capabilities{} }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

func (a *GeminiAdapter) buildRequest(conv []Message) geminiRequest {
	var system []string
	contents := make([]geminiContent, 0, len(conv))
	for _, m := range conv {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
			continue
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	if len(system) > 0 {
		prefix := strings.Join(system, "\n\n")
		folded := false
		for i := range contents {
			if contents[i].Role == "user" {
				contents[i].Parts[0].Text = prefix + "\n\n" + contents[i].Parts[0].Text
				folded = true
				break
			}
		}
		if !folded {
			contents = append([]geminiContent{{Role: "user", Parts: []geminiPart{{Text: prefix}}}}, contents...)
		}
	}

	var req geminiRequest
	req.Contents = contents
	req.GenerationConfig.MaxOutputTokens = maxOutputTokens
	req.GenerationConfig.Temperature = temperature
	return req
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Call posts to models/{model}:generateContent and joins the first
// candidate's text parts.
func (a *GeminiAdapter) Call(ctx context.Context, conv []Message, model, credential string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	endpoint := a.baseURL + "/models/" + url.PathEscape(model) + ":generateContent"
	resp, err := a.post(ctx, endpoint, map[string]string{"x-goog-api-key": credential}, a.buildRequest(conv))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}

	var gr struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		PromptFeedback *struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
		Error *geminiError `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &gr)

	if !isSuccess(resp.StatusCode) || (decodeErr == nil && gr.Error != nil) {
		if decodeErr != nil || gr.Error == nil {
			return nil, classify(Gemini, geminiSignatures, resp.StatusCode, "", strings.TrimSpace(string(raw)))
		}
		return nil, classify(Gemini, geminiSignatures, resp.StatusCode, gr.Error.Status, gr.Error.Message)
	}
	if decodeErr != nil {
		return nil, malformed(Gemini, resp.StatusCode, fmt.Errorf("decode: %w", decodeErr))
	}
	if len(gr.Candidates) == 0 {
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			return nil, malformed(Gemini, resp.StatusCode, fmt.Errorf("prompt blocked: %s", gr.PromptFeedback.BlockReason))
		}
		return nil, malformed(Gemini, resp.StatusCode, fmt.Errorf("no candidates in response"))
	}

	parts := gr.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return nil, malformed(Gemini, resp.StatusCode, fmt.Errorf("empty candidate"))
	}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	return &Response{Text: sb.String()}, nil
}
