// Package consent decides whether a consent prompt is needed and remembers
// prior grants when the client allows it.
package consent

import "time"

// Response is the externally supplied outcome of a consent prompt. It is
// input only; the engine persists at most the remembered scope set.
type Response struct {
	Granted         bool
	ScopesConsented []string
	RememberConsent bool
}

// ScopeConsented reports whether the raw scope value was approved.
func (r Response) ScopeConsented(raw string) bool {
	for _, s := range r.ScopesConsented {
		if s == raw {
			return true
		}
	}
	return false
}

// RememberedGrant is a stored prior consent for a subject+client pair.
type RememberedGrant struct {
	SubjectID string
	ClientID  string
	Scopes    []string
	UpdatedAt time.Time
}

// Covers reports whether every requested raw scope value was previously
// consented.
func (g RememberedGrant) Covers(requested []string) bool {
	for _, want := range requested {
		found := false
		for _, have := range g.Scopes {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
