// Package store adapts the gateway's shared cross-process state (rate
// limit counters, access lists, per-IP feature windows, analytics
// counters) onto a Redis client. It exposes only the primitive operations
// the gateway's components need, so every caller depends on a narrow
// surface instead of *redis.Client directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the store cannot be reached. Callers
// that must fail closed (auth, rate limiting) treat this as fatal;
// callers that degrade open (feature tracking, anomaly scoring) treat it
// as "skip this stage".
var ErrUnavailable = errors.New("store: unavailable")

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// FromClient wraps an existing client, used by tests against miniredis.
func FromClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Client() *redis.Client { return s.rdb }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return errors.Join(ErrUnavailable, err)
}

// ---- strings ----

// Get returns (value, false, nil) when the key is absent, rather than an
// error, since absence is a normal outcome for most callers.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return v, true, nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// IncrExpireNX increments key, and sets its TTL only on the increment
// that created the key (current == 1) via a single round trip. This is
// the fixed-window semantics §4.4 requires: the window boundary is set by
// the first request in the interval and never extended by later ones.
func (s *Store) IncrExpireNX(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := incrExpireNXScript.Run(ctx, s.rdb, []string{key}, int64(ttl/time.Second)).Result()
	if err != nil {
		return 0, wrap(err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, errors.New("store: unexpected script result")
	}
	return n, nil
}

// ---- sets ----

func (s *Store) SAdd(ctx context.Context, key string, member string) error {
	if err := s.rdb.SAdd(ctx, key, member).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) SRem(ctx context.Context, key string, member string) error {
	if err := s.rdb.SRem(ctx, key, member).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return members, nil
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// ---- sorted sets ----

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// ZRemRangeByScoreLess evicts every member with score strictly less than
// cutoff, i.e. the range (-inf, cutoff). Used to age out sliding-window
// members while keeping the invariant that every surviving member's
// score is >= cutoff (§3).
func (s *Store) ZRemRangeByScoreLess(ctx context.Context, key string, cutoff float64) error {
	if err := s.rdb.ZRemRangeByScore(ctx, key, "-inf", "("+formatScore(cutoff)).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// ---- pipelined execution ----

// Pipeline exposes go-redis's pipeliner for callers (the feature tracker
// write-back) that need to batch several commands into one round trip.
// The rate limiter does not use it; it calls IncrExpireNX. Errors from
// the batch are wrapped uniformly.
func (s *Store) Pipeline() redis.Pipeliner { return s.rdb.Pipeline() }

func (s *Store) ExecPipeline(ctx context.Context, pipe redis.Pipeliner) error {
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return wrap(err)
	}
	return nil
}
