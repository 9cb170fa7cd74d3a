// Package accesslist implements the Access List Gate (§4.2): deny-then-allow
// membership checks against the ip_blacklist and ip_whitelist sets.
package accesslist

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/KingSajxxd/pathhelm/pkg/store"
)

const (
	blacklistKey = "ip_blacklist"
	whitelistKey = "ip_whitelist"
)

// Decision is the gate's terminal-or-continue verdict for one request.
type Decision int

const (
	// Continue means neither list matched; downstream stages (auth, rate
	// limiting, anomaly scoring) still apply.
	Continue Decision = iota
	// Deny means the IP is blacklisted; the request is rejected with 403.
	Deny
	// AllowBypass means the IP is whitelisted; the request skips auth,
	// rate limiting, and anomaly scoring and goes straight to dispatch.
	AllowBypass
)

// Gate checks client IP against the blacklist then the whitelist.
// Blacklist takes precedence when both match (§3 invariant). If the store
// is unreachable the gate degrades open: it returns Continue so that
// authentication (which fails closed) gets to decide instead.
func Gate(ctx context.Context, st *store.Store, clientIP string) Decision {
	blacklisted, err := st.SIsMember(ctx, blacklistKey, clientIP)
	if err != nil {
		log.Warn().Err(err).Str("client_ip", clientIP).Msg("access_list_store_unavailable")
		return Continue
	}
	if blacklisted {
		return Deny
	}

	whitelisted, err := st.SIsMember(ctx, whitelistKey, clientIP)
	if err != nil {
		log.Warn().Err(err).Str("client_ip", clientIP).Msg("access_list_store_unavailable")
		return Continue
	}
	if whitelisted {
		return AllowBypass
	}

	return Continue
}
