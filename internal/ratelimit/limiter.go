// Package ratelimit implements the Rate Limiter (§4.4): a fixed-window
// per-key counter with atomic increment-and-expire. The window boundary
// is set by the first request to land in it; later requests only
// increment, never extend the TTL (§9 forbids silently upgrading this to
// a sliding window).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/KingSajxxd/pathhelm/pkg/store"
)

type Limiter struct {
	st *store.Store
}

func New(st *store.Store) *Limiter {
	return &Limiter{st: st}
}

func keyFor(clientKey string) string { return fmt.Sprintf("rate_limit:%s", clientKey) }

// Allow increments the fixed-window counter for clientKey and reports
// whether the request is within the configured per-window budget. The
// caller decides whether clientKey is a client_id or a client_ip (§3).
func (l *Limiter) Allow(ctx context.Context, clientKey string, perWindow int, windowSeconds int) (allowed bool, count int64, err error) {
	count, err = l.st.IncrExpireNX(ctx, keyFor(clientKey), time.Duration(windowSeconds)*time.Second)
	if err != nil {
		return false, 0, err
	}
	return count <= int64(perWindow), count, nil
}
