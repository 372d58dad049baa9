package llm

import "strings"

// Signature matches one backend error shape. Zero-valued fields match
// anything, so an empty Signature is a catch-all.
type Signature struct {
	// Status is the HTTP status; 0 matches any.
	Status int
	// Code is compared case-insensitively with the backend's error code,
	// type or status field.
	Code string
	// Text is a case-insensitive substring of the backend's error message.
	Text string
	Kind Kind
}

func (s Signature) matches(status int, code, message string) bool {
	if s.Status != 0 && s.Status != status {
		return false
	}
	if s.Code != "" && !strings.EqualFold(s.Code, code) {
		return false
	}
	if s.Text != "" && !strings.Contains(strings.ToLower(message), strings.ToLower(s.Text)) {
		return false
	}
	return true
}

// SignatureTable is an ordered list of signatures; the first match wins.
type SignatureTable []Signature

// Classify returns the kind of the first signature matching the error.
func (t SignatureTable) Classify(status int, code, message string) (Kind, bool) {
	for _, s := range t {
		if s.matches(status, code, message) {
			return s.Kind, true
		}
	}
	return "", false
}

// commonSignatures close every backend table: generic HTTP semantics first,
// then a catch-all.
var commonSignatures = SignatureTable{
	{Status: 401, Kind: KindInvalidCredential},
	{Status: 403, Kind: KindInvalidCredential},
	{Status: 429, Kind: KindQuotaExceeded},
	{Status: 400, Kind: KindInvalidRequest},
	{Status: 404, Kind: KindInvalidRequest},
	{Kind: KindUpstreamUnavailable},
}

func withCommon(t SignatureTable) SignatureTable {
	out := make(SignatureTable, 0, len(t)+len(commonSignatures))
	out = append(out, t...)
	return append(out, commonSignatures...)
}

// classify builds the typed error for a backend-reported failure.
func classify(p ProviderID, table SignatureTable, status int, code, message string) *Error {
	kind, ok := table.Classify(status, code, message)
	if !ok {
		kind = KindUpstreamUnavailable
	}
	if message == "" && code != "" {
		message = code
	}
	return &Error{Kind: kind, Provider: p, Status: status, Message: message}
}
