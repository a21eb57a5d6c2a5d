package store

import (
	"context"

	rediskey "ticket_desk/pkg/redis"

	rd "github.com/redis/go-redis/v9"
)

// luaCreateDoc：文档已存在时拒绝（订单号冲突不覆盖），
// 否则写入全部字段并加入状态索引。
// KEYS[1]=文档key；ARGV[1]=索引前缀，ARGV[2]=orderId，之后为字段键值对。
const luaCreateDoc = `
local docKey = KEYS[1]
local idxPrefix = ARGV[1]
local orderId = ARGV[2]

if redis.call('EXISTS', docKey) == 1 then
  return 0
end
for i = 3, #ARGV, 2 do
  redis.call('HSET', docKey, ARGV[i], ARGV[i + 1])
end
local status = redis.call('HGET', docKey, 'status')
if status then
  redis.call('SADD', idxPrefix .. status, orderId)
end
return 1
`

// luaUpdateDoc：只更新已存在的文档（不存在返回 -1，不做 upsert），
// 状态变化时同步维护状态索引。
const luaUpdateDoc = `
local docKey = KEYS[1]
local idxPrefix = ARGV[1]

if redis.call('EXISTS', docKey) == 0 then
  return -1
end
local oldStatus = redis.call('HGET', docKey, 'status')
for i = 2, #ARGV, 2 do
  redis.call('HSET', docKey, ARGV[i], ARGV[i + 1])
end
local newStatus = redis.call('HGET', docKey, 'status')
local orderId = redis.call('HGET', docKey, 'orderId')
if newStatus ~= oldStatus then
  if oldStatus then
    redis.call('SREM', idxPrefix .. oldStatus, orderId)
  end
  redis.call('SADD', idxPrefix .. newStatus, orderId)
end
return 1
`

// luaCASStatus：状态 CAS，当前状态不等于期望值时整个更新不落盘。
// ARGV[1]=索引前缀，ARGV[2]=期望状态，之后为字段键值对。
const luaCASStatus = `
local docKey = KEYS[1]
local idxPrefix = ARGV[1]
local expected = ARGV[2]

if redis.call('EXISTS', docKey) == 0 then
  return -1
end
if redis.call('HGET', docKey, 'status') ~= expected then
  return 0
end
for i = 3, #ARGV, 2 do
  redis.call('HSET', docKey, ARGV[i], ARGV[i + 1])
end
local newStatus = redis.call('HGET', docKey, 'status')
local orderId = redis.call('HGET', docKey, 'orderId')
if newStatus ~= expected then
  redis.call('SREM', idxPrefix .. expected, orderId)
  redis.call('SADD', idxPrefix .. newStatus, orderId)
end
return 1
`

const luaDeleteDoc = `
local docKey = KEYS[1]
local idxPrefix = ARGV[1]

local status = redis.call('HGET', docKey, 'status')
local orderId = redis.call('HGET', docKey, 'orderId')
local n = redis.call('DEL', docKey)
if n == 1 and status then
  redis.call('SREM', idxPrefix .. status, orderId)
end
return n
`

// RemoteStore 远端文档库适配器：每单一个 hash 文档（camelCase 字段），
// 外加按状态的订单号索引集合。可达时为权威后端。
type RemoteStore struct {
	rdb *rd.Client
}

func NewRemoteStore(rdb *rd.Client) *RemoteStore {
	return &RemoteStore{rdb: rdb}
}

func indexPrefix() string { return rediskey.StatusIndexKey("") }

// Create 写入新订单文档，订单号已存在时拒绝。
func (s *RemoteStore) Create(ctx context.Context, orderID string, doc map[string]any) error {
	args := make([]any, 0, 2+len(doc)*2)
	args = append(args, indexPrefix(), orderID)
	args = appendPairs(args, doc)

	n, err := s.rdb.Eval(ctx, luaCreateDoc, []string{rediskey.OrderDocKey(orderID)}, args...).Int()
	if err != nil {
		return wrapStorage("remote", "create", err)
	}
	if n == 0 {
		return wrapStorage("remote", "create", ErrDuplicateOrder)
	}
	return nil
}

// Get 读取订单文档。found=false 表示不存在。
func (s *RemoteStore) Get(ctx context.Context, orderID string) (map[string]string, bool, error) {
	doc, err := s.rdb.HGetAll(ctx, rediskey.OrderDocKey(orderID)).Result()
	if err != nil {
		return nil, false, wrapStorage("remote", "get", err)
	}
	if len(doc) == 0 {
		return nil, false, nil
	}
	return doc, true, nil
}

// Update 部分更新已有文档，fields 的键已是远端字段名。
// 文档不存在按错误上抛（调用方据此回退本地），不做 upsert。
func (s *RemoteStore) Update(ctx context.Context, orderID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, 1+len(fields)*2)
	args = append(args, indexPrefix())
	args = appendPairs(args, fields)

	n, err := s.rdb.Eval(ctx, luaUpdateDoc, []string{rediskey.OrderDocKey(orderID)}, args...).Int()
	if err != nil {
		return wrapStorage("remote", "update", err)
	}
	if n < 0 {
		return wrapStorage("remote", "update", ErrNotFound)
	}
	return nil
}

// CASStatus 状态守卫更新。applied=false 表示状态已被并发迁移抢先。
func (s *RemoteStore) CASStatus(ctx context.Context, orderID string, expected string, fields map[string]any) (bool, error) {
	args := make([]any, 0, 2+len(fields)*2)
	args = append(args, indexPrefix(), expected)
	args = appendPairs(args, fields)

	n, err := s.rdb.Eval(ctx, luaCASStatus, []string{rediskey.OrderDocKey(orderID)}, args...).Int()
	if err != nil {
		return false, wrapStorage("remote", "cas", err)
	}
	if n < 0 {
		return false, wrapStorage("remote", "cas", ErrNotFound)
	}
	return n == 1, nil
}

// Delete 删除文档并清理状态索引。
func (s *RemoteStore) Delete(ctx context.Context, orderID string) error {
	_, err := s.rdb.Eval(ctx, luaDeleteDoc, []string{rediskey.OrderDocKey(orderID)}, indexPrefix()).Int()
	if err != nil {
		return wrapStorage("remote", "delete", err)
	}
	return nil
}

func appendPairs(args []any, fields map[string]any) []any {
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
