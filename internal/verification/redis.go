package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces verification entries in Redis.
const KeyPrefix = "verify:"

// consumeScript deletes the key only when it still holds the submitted code,
// so two concurrent verifications of one code cannot both succeed.
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and v == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// RedisRegistry stores codes in Redis with a server-side TTL, which makes
// them visible to every instance sharing the server.
type RedisRegistry struct {
	rdb     redis.UniversalClient
	ttl     time.Duration
	newCode func() (string, error)
}

func NewRedisRegistry(rdb redis.UniversalClient, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRegistry{rdb: rdb, ttl: ttl, newCode: NewCode}
}

func (r *RedisRegistry) key(email string) string { return KeyPrefix + normalizeEmail(email) }

func (r *RedisRegistry) Issue(ctx context.Context, email string) (string, error) {
	code, err := r.newCode()
	if err != nil {
		return "", err
	}
	if err := r.rdb.Set(ctx, r.key(email), code, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

func (r *RedisRegistry) Verify(ctx context.Context, email, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	n, err := consumeScript.Run(ctx, r.rdb, []string{r.key(email)}, code).Int()
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return n == 1, nil
}
