package llm

import "strings"

// CredentialSource resolves the secret for a provider. Implementations are
// read-only from the gateway's point of view.
type CredentialSource interface {
	Credential(p ProviderID) (string, bool)
}

// Credentials is an in-memory source; blank values count as absent.
type Credentials map[ProviderID]string

func (c Credentials) Credential(p ProviderID) (string, bool) {
	v := strings.TrimSpace(c[p])
	return v, v != ""
}

// Chain consults each source in order and returns the first hit.
type Chain []CredentialSource

func (c Chain) Credential(p ProviderID) (string, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if v, ok := src.Credential(p); ok {
			return v, true
		}
	}
	return "", false
}
