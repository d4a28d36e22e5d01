package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRepo 脚本在执行中拼出用户相关的 key，只支持单节点 Redis（含主从），不支持 Cluster
type redisRepo struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRepo(rdb *redis.Client, prefix string) Repo {
	return &redisRepo{rdb: rdb, prefix: prefix}
}

// key 约定（prefix 默认 voice_match:）：
//
//	list: {prefix}pool:{male|female}   -> 等待中的 user id，先进先出
//	kv  : {prefix}user:{id}            -> 入池标记，TTL 5 分钟
//	kv  : {prefix}matched:{id}         -> 配对结果 room id，TTL 2 分钟
//	kv  : {prefix}room:{id}            -> 通话中的 room id
func (r *redisRepo) poolKey(pool string) string {
	return fmt.Sprintf("%spool:%s", r.prefix, pool)
}
func (r *redisRepo) markerKey(userID int64) string {
	return fmt.Sprintf("%suser:%d", r.prefix, userID)
}
func (r *redisRepo) matchedKey(userID int64) string {
	return fmt.Sprintf("%smatched:%d", r.prefix, userID)
}
func (r *redisRepo) roomKey(userID int64) string {
	return fmt.Sprintf("%sroom:%d", r.prefix, userID)
}

// joinScript 检查通话中标记、占用入池标记、去重后入池，一次完成。
//
// KEYS[1] = marker, KEYS[2] = room, KEYS[3] = 目标池, KEYS[4..] = 其他池
// ARGV[1] = user id, ARGV[2] = marker TTL（毫秒）
// 返回 0 入池，1 已在池中，2 通话中
var joinScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
    return 2
end
if not redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[2]) then
    return 1
end
for i = 3, #KEYS do
    redis.call("LREM", KEYS[i], 0, ARGV[1])
end
redis.call("RPUSH", KEYS[3], ARGV[1])
return 0
`)

func (r *redisRepo) JoinPool(ctx context.Context, pool string, userID int64, markerTTL time.Duration) (JoinOutcome, error) {
	keys := []string{r.markerKey(userID), r.roomKey(userID), r.poolKey(pool)}
	for _, p := range allPools {
		if p != pool {
			keys = append(keys, r.poolKey(p))
		}
	}
	n, err := joinScript.Run(ctx, r.rdb, keys, userID, markerTTL.Milliseconds()).Int()
	if err != nil {
		return 0, err
	}
	switch n {
	case 0:
		return JoinQueued, nil
	case 1:
		return JoinAlreadyQueued, nil
	case 2:
		return JoinInRoom, nil
	}
	return 0, fmt.Errorf("unexpected join reply: %d", n)
}

func (r *redisRepo) DequeueHead(ctx context.Context, pool string) (int64, bool, error) {
	raw, err := r.rdb.LPop(ctx, r.poolKey(pool)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// 非法条目直接丢弃，不放回池中
		return 0, false, fmt.Errorf("corrupt pool entry %q in %s: %w", raw, pool, err)
	}
	return id, true, nil
}

func (r *redisRepo) PushFront(ctx context.Context, pool string, userID int64) error {
	return r.rdb.LPush(ctx, r.poolKey(pool), userID).Err()
}

// popPairScript 两个池各弹出一个仍持有入池标记的用户。
// 池头的失效条目（取消或标记过期）顺带清理掉；任一侧没有有效用户时，已弹出的有效用户放回池头。
// 配对成功时双方的入池标记立即换成通话中标记，之后的 join 与配对都看不到这两人。
//
// KEYS[1] = poolA, KEYS[2] = poolB
// ARGV[1] = marker key 前缀, ARGV[2] = room key 前缀, ARGV[3] = room id, ARGV[4] = room TTL（毫秒）
var popPairScript = redis.NewScript(`
local function pop_live(key)
    while true do
        local id = redis.call("LPOP", key)
        if not id then
            return nil
        end
        if redis.call("EXISTS", ARGV[1] .. id) == 1 then
            return id
        end
    end
end

local a = pop_live(KEYS[1])
if not a then
    return nil
end
local b = pop_live(KEYS[2])
if not b then
    redis.call("LPUSH", KEYS[1], a)
    return nil
end
for _, id in ipairs({a, b}) do
    redis.call("DEL", ARGV[1] .. id)
    redis.call("SET", ARGV[2] .. id, ARGV[3], "PX", ARGV[4])
end
return {a, b}
`)

func (r *redisRepo) PopPair(ctx context.Context, poolA, poolB, roomID string, roomTTL time.Duration) (int64, int64, bool, error) {
	res, err := popPairScript.Run(ctx, r.rdb,
		[]string{r.poolKey(poolA), r.poolKey(poolB)},
		r.prefix+"user:", r.prefix+"room:", roomID, roomTTL.Milliseconds(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if len(res) != 2 {
		return 0, 0, false, fmt.Errorf("unexpected pop pair reply: %v", res)
	}
	a, errA := strconv.ParseInt(res[0], 10, 64)
	b, errB := strconv.ParseInt(res[1], 10, 64)
	if err := errors.Join(errA, errB); err != nil {
		return 0, 0, false, fmt.Errorf("corrupt pool entries %v: %w", res, err)
	}
	return a, b, true, nil
}

// requeueScript KEYS[1] = marker, KEYS[2] = room, KEYS[3] = pool
// ARGV[1] = user id, ARGV[2] = marker TTL（毫秒）, ARGV[3] = room id
var requeueScript = redis.NewScript(`
redis.call("SET", KEYS[1], "1", "PX", ARGV[2])
if redis.call("GET", KEYS[2]) == ARGV[3] then
    redis.call("DEL", KEYS[2])
end
redis.call("LREM", KEYS[3], 0, ARGV[1])
redis.call("LPUSH", KEYS[3], ARGV[1])
return 1
`)

func (r *redisRepo) Requeue(ctx context.Context, pool string, userID int64, roomID string, markerTTL time.Duration) error {
	return requeueScript.Run(ctx, r.rdb,
		[]string{r.markerKey(userID), r.roomKey(userID), r.poolKey(pool)},
		userID, markerTTL.Milliseconds(), roomID,
	).Err()
}

func (r *redisRepo) RemoveFromPool(ctx context.Context, pool string, userID int64) error {
	return r.rdb.LRem(ctx, r.poolKey(pool), 0, userID).Err()
}

func (r *redisRepo) PoolSize(ctx context.Context, pool string) (int64, error) {
	return r.rdb.LLen(ctx, r.poolKey(pool)).Result()
}

func (r *redisRepo) HasMarker(ctx context.Context, userID int64) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.markerKey(userID)).Result()
	return n == 1, err
}

func (r *redisRepo) TouchMarker(ctx context.Context, userID int64, ttl time.Duration) error {
	return r.rdb.Expire(ctx, r.markerKey(userID), ttl).Err()
}

func (r *redisRepo) DeleteMarker(ctx context.Context, userID int64) error {
	return r.rdb.Del(ctx, r.markerKey(userID)).Err()
}

func (r *redisRepo) PublishMatchResult(ctx context.Context, userID int64, roomID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.matchedKey(userID), roomID, ttl).Err()
}

func (r *redisRepo) ConsumeMatchResult(ctx context.Context, userID int64) (string, bool, error) {
	return r.getString(r.rdb.GetDel(ctx, r.matchedKey(userID)))
}

func (r *redisRepo) DeleteMatchResult(ctx context.Context, userID int64) error {
	return r.rdb.Del(ctx, r.matchedKey(userID)).Err()
}

func (r *redisRepo) SetActiveRoom(ctx context.Context, userID int64, roomID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.roomKey(userID), roomID, ttl).Err()
}

func (r *redisRepo) ActiveRoom(ctx context.Context, userID int64) (string, bool, error) {
	return r.getString(r.rdb.Get(ctx, r.roomKey(userID)))
}

func (r *redisRepo) ClearActiveRoom(ctx context.Context, userID int64) error {
	return r.rdb.Del(ctx, r.roomKey(userID)).Err()
}

func (r *redisRepo) getString(cmd *redis.StringCmd) (string, bool, error) {
	val, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
