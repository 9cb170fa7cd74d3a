// Package auth implements the API-Key Authenticator (§4.7): a lookup
// from an inbound API key to the client identifier the rest of the
// pipeline (rate limiting, logging) uses.
package auth

import (
	"context"
	"fmt"

	"github.com/KingSajxxd/pathhelm/pkg/store"
)

// Outcome is the authenticator's terminal-or-continue verdict.
type Outcome int

const (
	// OK means the key was found; ClientID is populated.
	OK Outcome = iota
	// MissingKey means the X-API-Key header was absent -> 401.
	MissingKey
	// UnknownKey means the key does not map to a client -> 403.
	UnknownKey
	// Unavailable means the store could not be reached -> 500 (auth
	// fails closed, per §7's degrade-open/closed distinction).
	Unavailable
)

func keyFor(apiKey string) string { return fmt.Sprintf("api_key:%s", apiKey) }

// Authenticate resolves apiKey to a client ID. An empty apiKey is treated
// as MissingKey without touching the store.
func Authenticate(ctx context.Context, st *store.Store, apiKey string) (clientID string, outcome Outcome) {
	if apiKey == "" {
		return "", MissingKey
	}

	v, found, err := st.Get(ctx, keyFor(apiKey))
	if err != nil {
		return "", Unavailable
	}
	if !found {
		return "", UnknownKey
	}
	return v, OK
}
