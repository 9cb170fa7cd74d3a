// Package features maintains the per-client-IP sliding-window
// accumulators §4.3 describes: a timestamp sorted set, an error counter,
// and a path set, each carrying a TTL of TIMEFRAME refreshed on write.
package features

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KingSajxxd/pathhelm/pkg/store"
)

func timestampsKey(ip string) string { return fmt.Sprintf("%s:timestamps", ip) }
func errorsKey(ip string) string     { return fmt.Sprintf("%s:errors", ip) }
func pathsKey(ip string) string      { return fmt.Sprintf("%s:paths", ip) }

// Snapshot is the read-phase result consumed by the anomaly scorer.
type Snapshot struct {
	RequestFrequency int64
	ErrorCount       int64
	UniquePaths      int64
}

// Read evicts timestamps older than now-timeframe, then reads the three
// window accumulators. Per §4.3 this happens before dispatch.
func Read(ctx context.Context, st *store.Store, ip string, now time.Time, timeframe time.Duration) (Snapshot, error) {
	cutoff := now.Add(-timeframe)
	if err := st.ZRemRangeByScoreLess(ctx, timestampsKey(ip), float64(cutoff.Unix())); err != nil {
		return Snapshot{}, err
	}

	freq, err := st.ZCard(ctx, timestampsKey(ip))
	if err != nil {
		return Snapshot{}, err
	}

	errStr, found, err := st.Get(ctx, errorsKey(ip))
	if err != nil {
		return Snapshot{}, err
	}
	var errCount int64
	if found {
		errCount, _ = strconv.ParseInt(errStr, 10, 64)
	}

	paths, err := st.SCard(ctx, pathsKey(ip))
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{RequestFrequency: freq, ErrorCount: errCount, UniquePaths: paths}, nil
}

// WriteBack appends the current request's timestamp and path, bumps the
// error counter when isError is set, and refreshes all three keys' TTL to
// timeframe (§4.3 write phase, run after dispatch regardless of the
// upstream outcome).
func WriteBack(ctx context.Context, st *store.Store, ip, path string, now time.Time, isError bool, timeframe time.Duration) error {
	pipe := st.Pipeline()
	ttl := timeframe

	tsKey := timestampsKey(ip)
	pathKey := pathsKey(ip)
	errKey := errorsKey(ip)

	pipe.ZAdd(ctx, tsKey, redis.Z{Score: float64(now.Unix()), Member: formatTimestamp(now)})
	pipe.Expire(ctx, tsKey, ttl)

	pipe.SAdd(ctx, pathKey, path)
	pipe.Expire(ctx, pathKey, ttl)

	if isError {
		pipe.Incr(ctx, errKey)
	}
	pipe.Expire(ctx, errKey, ttl)

	return st.ExecPipeline(ctx, pipe)
}

func formatTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}
