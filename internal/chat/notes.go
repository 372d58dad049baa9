package chat

import (
	"errors"
	"fmt"

	"github.com/forge-ai/uigen/internal/llm"
)

// FailureNote is the assistant message shown in place of a reply when a
// turn fails. It never includes credentials.
func FailureNote(provider llm.ProviderID, err error) string {
	var e *llm.Error
	if !errors.As(err, &e) {
		return "Something went wrong while contacting the model. Please try again."
	}
	if e.Provider != "" {
		provider = e.Provider
	}

	switch e.Kind {
	case llm.KindMissingCredential:
		return fmt.Sprintf("No API key is configured for %s. Add one and try again.", provider)
	case llm.KindInvalidCredential:
		return fmt.Sprintf("The %s API key was rejected. Check that it is correct and try again.", provider)
	case llm.KindQuotaExceeded:
		return fmt.Sprintf("%s reports that the quota or rate limit is exhausted. Wait a moment and try again.", provider)
	case llm.KindUnsupportedProvider:
		return fmt.Sprintf("%s is not available. Pick another provider.", provider)
	case llm.KindUpstreamUnavailable:
		return fmt.Sprintf("Could not reach %s. Try again in a moment.", provider)
	case llm.KindMalformedResponse:
		return fmt.Sprintf("%s sent a reply that could not be read. Try again.", provider)
	case llm.KindInvalidRequest:
		if e.Message != "" {
			return "The request was rejected: " + e.Message + "."
		}
		return "The request was rejected."
	}
	return "Something went wrong while contacting the model. Please try again."
}
