// Package llm is the multi-provider completion gateway. It owns the canonical
// request and response shapes, one adapter per backend wire protocol, the
// dispatch table that selects an adapter by provider, and the error taxonomy
// callers see.
package llm

import "strings"

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one chat turn. Conversations are ordered oldest first.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is the canonical completion result every adapter produces.
type Response struct {
	Text string `json:"text"`
}

// ProviderID selects exactly one adapter in a Registry.
type ProviderID string

const (
	OpenAI    ProviderID = "openai"
	Anthropic ProviderID = "anthropic"
	Gemini    ProviderID = "gemini"
)

// Providers lists every known provider in display order.
var Providers = []ProviderID{OpenAI, Anthropic, Gemini}

// ParseProviderID maps a case-insensitive name to a known provider.
func ParseProviderID(s string) (ProviderID, bool) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range Providers {
		if p == id {
			return p, true
		}
	}
	return id, false
}
