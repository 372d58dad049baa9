package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureTables(t *testing.T) {
	tests := []struct {
		name    string
		table   SignatureTable
		status  int
		code    string
		message string
		want    Kind
	}{
		// openai
		{"openai bad key", openaiSignatures, 401, "invalid_api_key", "Incorrect API key provided", KindInvalidCredential},
		{"openai bad key text only", openaiSignatures, 200, "", "Incorrect API key provided: sk-***", KindInvalidCredential},
		{"openai quota", openaiSignatures, 429, "insufficient_quota", "You exceeded your current quota", KindQuotaExceeded},
		{"openai rate limit", openaiSignatures, 429, "rate_limit_exceeded", "Rate limit reached", KindQuotaExceeded},
		{"openai model", openaiSignatures, 404, "model_not_found", "The model does not exist", KindInvalidRequest},
		{"openai server", openaiSignatures, 500, "server_error", "boom", KindUpstreamUnavailable},
		{"openai bare 401", openaiSignatures, 401, "", "", KindInvalidCredential},
		{"openai bare 503", openaiSignatures, 503, "", "", KindUpstreamUnavailable},

		// anthropic
		{"anthropic auth", anthropicSignatures, 401, "authentication_error", "invalid x-api-key", KindInvalidCredential},
		{"anthropic permission", anthropicSignatures, 403, "permission_error", "no access", KindInvalidCredential},
		{"anthropic rate", anthropicSignatures, 429, "rate_limit_error", "slow down", KindQuotaExceeded},
		{"anthropic credits", anthropicSignatures, 400, "invalid_request_error", "Your credit balance is too low", KindQuotaExceeded},
		{"anthropic bad request", anthropicSignatures, 400, "invalid_request_error", "messages: field required", KindInvalidRequest},
		{"anthropic overloaded", anthropicSignatures, 529, "overloaded_error", "Overloaded", KindUpstreamUnavailable},
		{"anthropic api error", anthropicSignatures, 500, "api_error", "internal", KindUpstreamUnavailable},
		{"anthropic not found", anthropicSignatures, 404, "not_found_error", "model: nope", KindInvalidRequest},

		// gemini
		{"gemini bad key", geminiSignatures, 400, "INVALID_ARGUMENT", "API key not valid. Please pass a valid API key.", KindInvalidCredential},
		{"gemini expired key", geminiSignatures, 400, "INVALID_ARGUMENT", "API key expired. Please renew the API key.", KindInvalidCredential},
		{"gemini unauthenticated", geminiSignatures, 401, "UNAUTHENTICATED", "", KindInvalidCredential},
		{"gemini denied", geminiSignatures, 403, "PERMISSION_DENIED", "", KindInvalidCredential},
		{"gemini quota", geminiSignatures, 429, "RESOURCE_EXHAUSTED", "Quota exceeded", KindQuotaExceeded},
		{"gemini unavailable", geminiSignatures, 503, "UNAVAILABLE", "The model is overloaded", KindUpstreamUnavailable},
		{"gemini deadline", geminiSignatures, 504, "DEADLINE_EXCEEDED", "", KindUpstreamUnavailable},
		{"gemini not found", geminiSignatures, 404, "NOT_FOUND", "models/x is not found", KindInvalidRequest},
		{"gemini other invalid argument", geminiSignatures, 400, "INVALID_ARGUMENT", "contents is empty", KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.table.Classify(tt.status, tt.code, tt.message)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignatureTablesEndInCatchAll(t *testing.T) {
	for name, table := range map[string]SignatureTable{
		"openai":    openaiSignatures,
		"anthropic": anthropicSignatures,
		"gemini":    geminiSignatures,
	} {
		kind, ok := table.Classify(418, "teapot", "short and stout")
		assert.True(t, ok, name)
		assert.Equal(t, KindUpstreamUnavailable, kind, name)
	}
}

func TestSignatureMatchingIsCaseInsensitive(t *testing.T) {
	table := SignatureTable{{Code: "rate_limit_error", Text: "Slow", Kind: KindQuotaExceeded}}

	kind, ok := table.Classify(0, "RATE_LIMIT_ERROR", "please SLOW down")
	assert.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, kind)

	_, ok = table.Classify(0, "rate_limit_error", "go faster")
	assert.False(t, ok)
}

func TestClassifyFallsBackToCode(t *testing.T) {
	err := classify(Gemini, geminiSignatures, 429, "RESOURCE_EXHAUSTED", "")
	assert.Equal(t, KindQuotaExceeded, err.Kind)
	assert.Equal(t, "RESOURCE_EXHAUSTED", err.Message)
	assert.Equal(t, 429, err.Status)
}
