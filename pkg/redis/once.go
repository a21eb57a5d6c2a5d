package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaClaimOnce 通过 SETNX 锁保证同一个键位只被认领一次。
const luaClaimOnce = `
local lockKey = KEYS[1]
local ttlSec = tonumber(ARGV[1])

if redis.call('SETNX', lockKey, '1') == 1 then
  redis.call('EXPIRE', lockKey, ttlSec)
  return 1
end
return 0
`

// ClaimOnce 幂等认领：
// - 首次认领返回 true
// - 重复认领返回 false
// 用于 webhook 快照去重等「最多发一次」的场景。
func ClaimOnce(ctx context.Context, rdb *rd.Client, key string, ttl time.Duration) (bool, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	n, err := rdb.Eval(ctx, luaClaimOnce, []string{key}, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
