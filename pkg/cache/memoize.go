package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"
)

// Key derives a deterministic cache key from a prefix, a function name and
// its arguments: "{prefix}:{name}:{md5(json(args))}".
func Key(prefix, name string, args ...interface{}) string {
	canonical, err := json.Marshal(args)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", args))
	}
	return fmt.Sprintf("%s:%s:%x", prefix, name, md5.Sum(canonical))
}

// Memoize wraps fn so repeated calls with equal arguments are served from
// the cache. A cache hit bypasses fn entirely; errors are never cached.
func Memoize[A any, R any](c *Memory, prefix, name string, ttl time.Duration, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		key := Key(prefix, name, arg)
		if cached, ok := c.Get(key); ok {
			if value, ok := cached.(R); ok {
				return value, nil
			}
		}
		value, err := fn(ctx, arg)
		if err != nil {
			var zero R
			return zero, err
		}
		c.SetTTL(key, value, ttl)
		return value, nil
	}
}
