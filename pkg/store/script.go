package store

import (
	_ "embed"
	"strconv"

	"github.com/redis/go-redis/v9"
)

//go:embed incr_expire_nx.lua
var incrExpireNXSrc string

var incrExpireNXScript = redis.NewScript(incrExpireNXSrc)

// formatScore renders a float as the string form ZREMRANGEBYSCORE expects,
// trimming the trailing ".000000" go-redis would otherwise send for whole
// seconds so the wire form stays readable in a MONITOR trace.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
