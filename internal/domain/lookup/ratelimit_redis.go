package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// attemptScript runs the whole attempt server-side so the block check and
// increment cannot interleave across clients. Returns
// {allowed, remaining, blockSeconds}.
var attemptScript = redis.NewScript(`
local countKey = KEYS[1]
local blockKey = KEYS[2]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local blockTTL = redis.call('TTL', blockKey)
if blockTTL > 0 then
	return {0, 0, blockTTL}
end

local count = redis.call('INCR', countKey)
if count == 1 then
	redis.call('EXPIRE', countKey, window)
end
if count <= max then
	return {1, max - count, 0}
end

redis.call('SET', blockKey, '1', 'EX', window)
redis.call('DEL', countKey)
return {0, 0, window}
`)

type rateLimitRedis struct{ client *redis.Client }

// NewRateLimitRedis returns a RateLimitStore on Redis for deployments where
// several intake instances share one counter space. The sliding window is
// approximated by key TTL: the count key expires windowSeconds after the
// first attempt of the window.
func NewRateLimitRedis(client *redis.Client) RateLimitStore {
	return &rateLimitRedis{client: client}
}

func (r *rateLimitRedis) Attempt(ctx context.Context, subject string, maxAttempts int, window time.Duration) (*RateLimitResult, error) {
	keys := []string{
		"lookup:attempts:" + subject,
		"lookup:block:" + subject,
	}
	raw, err := attemptScript.Run(ctx, r.client, keys, maxAttempts, int(window.Seconds())).Result()
	if err != nil {
		return nil, err
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return nil, fmt.Errorf("unexpected script result %v", raw)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	blockSecs, _ := vals[2].(int64)

	res := &RateLimitResult{Allowed: allowed == 1, Remaining: int(remaining)}
	if blockSecs > 0 {
		until := time.Now().Add(time.Duration(blockSecs) * time.Second)
		res.BlockedUntil = &until
	}
	return res, nil
}
