package matchmaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "voice_match:"

type repoCase struct {
	name    string
	repo    Repo
	advance func(d time.Duration) // 让 TTL 走过 d
}

func newRedisCase(t *testing.T) (repoCase, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return repoCase{name: "redis", repo: NewRedisRepo(rdb, testPrefix), advance: mr.FastForward}, mr
}

func newMemoryCase() repoCase {
	r := NewMemoryRepo().(*memRepo)
	base := time.Now()
	var offset time.Duration
	r.now = func() time.Time { return base.Add(offset) }
	return repoCase{name: "memory", repo: r, advance: func(d time.Duration) { offset += d }}
}

// eachRepo 两种实现跑同一组用例
func eachRepo(t *testing.T, fn func(t *testing.T, rc repoCase)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryCase()) })
	t.Run("redis", func(t *testing.T) {
		rc, _ := newRedisCase(t)
		fn(t, rc)
	})
}

// queue 入池并持有标记
func queue(t *testing.T, repo Repo, pool string, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		outcome, err := repo.JoinPool(ctx, pool, id, 5*time.Minute)
		require.NoError(t, err)
		require.Equal(t, JoinQueued, outcome)
	}
}

func TestRepo_PopPairFIFO(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		queue(t, rc.repo, PoolMale, 1, 2)
		queue(t, rc.repo, PoolFemale, 11, 12)

		a, b, ok, err := rc.repo.PopPair(ctx, PoolMale, PoolFemale, "r1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []int64{1, 11}, []int64{a, b})

		a, b, ok, err = rc.repo.PopPair(ctx, PoolMale, PoolFemale, "r2", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []int64{2, 12}, []int64{a, b})

		_, _, ok, err = rc.repo.PopPair(ctx, PoolMale, PoolFemale, "r3", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepo_PopPairOneSideEmpty(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		queue(t, rc.repo, PoolMale, 1, 2)

		_, _, ok, err := rc.repo.PopPair(ctx, PoolMale, PoolFemale, "r1", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		// 没配上的人仍持有入池标记，没有通话中标记
		has, err := rc.repo.HasMarker(ctx, 1)
		require.NoError(t, err)
		assert.True(t, has)
		_, inRoom, err := rc.repo.ActiveRoom(ctx, 1)
		require.NoError(t, err)
		assert.False(t, inRoom)

		// 弹出的人放回池头，顺序不变
		n, err := rc.repo.PoolSize(ctx, PoolMale)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		head, ok, err := rc.repo.DequeueHead(ctx, PoolMale)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), head)
	})
}

func TestRepo_PopPairSkipsGhosts(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		// 1 已取消（标记删除），2 标记过期，3 有效
		queue(t, rc.repo, PoolMale, 1, 2)
		require.NoError(t, rc.repo.DeleteMarker(ctx, 1))
		rc.advance(6 * time.Minute)
		queue(t, rc.repo, PoolMale, 3)
		queue(t, rc.repo, PoolFemale, 11)

		a, b, ok, err := rc.repo.PopPair(ctx, PoolMale, PoolFemale, "r1", time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(3), a)
		assert.Equal(t, int64(11), b)

		n, err := rc.repo.PoolSize(ctx, PoolMale)
		require.NoError(t, err)
		assert.Zero(t, n, "ghost entries are purged")
	})
}

func TestRepo_JoinPool(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		outcome, err := rc.repo.JoinPool(ctx, PoolMale, 7, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, JoinQueued, outcome)

		outcome, err = rc.repo.JoinPool(ctx, PoolMale, 7, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, JoinAlreadyQueued, outcome)
		n, _ := rc.repo.PoolSize(ctx, PoolMale)
		assert.Equal(t, int64(1), n)

		// 通话中优先于入池标记判断
		require.NoError(t, rc.repo.SetActiveRoom(ctx, 8, "room-a", time.Hour))
		outcome, err = rc.repo.JoinPool(ctx, PoolFemale, 8, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, JoinInRoom, outcome)
		has, _ := rc.repo.HasMarker(ctx, 8)
		assert.False(t, has, "rejected join leaves no marker")
		n, _ = rc.repo.PoolSize(ctx, PoolFemale)
		assert.Zero(t, n)
	})
}

func TestRepo_JoinPoolDropsStaleEntries(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		queue(t, rc.repo, PoolMale, 7, 8)
		// 7 的标记过期，旧条目还在池里
		rc.advance(6 * time.Minute)
		queue(t, rc.repo, PoolMale, 7)

		var got []int64
		for {
			id, ok, err := rc.repo.DequeueHead(ctx, PoolMale)
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, id)
		}
		assert.Equal(t, []int64{8, 7}, got, "only the new entry remains")

		// 换池重新加入时旧池的条目也被清掉
		rc.advance(6 * time.Minute)
		queue(t, rc.repo, PoolFemale, 9)
		rc.advance(6 * time.Minute)
		queue(t, rc.repo, PoolMale, 9)
		n, _ := rc.repo.PoolSize(ctx, PoolFemale)
		assert.Zero(t, n)
	})
}

func TestRepo_PopPairClaimsBothUsers(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		queue(t, rc.repo, PoolMale, 1)
		queue(t, rc.repo, PoolFemale, 11)

		_, _, ok, err := rc.repo.PopPair(ctx, PoolMale, PoolFemale, "room-a", time.Hour)
		require.NoError(t, err)
		require.True(t, ok)

		for _, uid := range []int64{1, 11} {
			has, err := rc.repo.HasMarker(ctx, uid)
			require.NoError(t, err)
			assert.False(t, has)
			roomID, ok, err := rc.repo.ActiveRoom(ctx, uid)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "room-a", roomID)
		}

		// 房间还没写库，本人再次 join 也会被拒绝
		outcome, err := rc.repo.JoinPool(ctx, PoolMale, 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, JoinInRoom, outcome)
	})
}

func TestRepo_Requeue(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		queue(t, rc.repo, PoolMale, 1, 2)
		queue(t, rc.repo, PoolFemale, 11)
		a, b, ok, err := rc.repo.PopPair(ctx, PoolMale, PoolFemale, "room-a", time.Hour)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, rc.repo.Requeue(ctx, PoolMale, a, "room-a", time.Minute))
		require.NoError(t, rc.repo.Requeue(ctx, PoolFemale, b, "room-a", time.Minute))

		for _, uid := range []int64{1, 11} {
			has, _ := rc.repo.HasMarker(ctx, uid)
			assert.True(t, has)
			_, ok, _ := rc.repo.ActiveRoom(ctx, uid)
			assert.False(t, ok)
		}
		head, ok, err := rc.repo.DequeueHead(ctx, PoolMale)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), head)

		// 只清除同一房间的通话中标记
		require.NoError(t, rc.repo.SetActiveRoom(ctx, 5, "room-b", time.Hour))
		require.NoError(t, rc.repo.Requeue(ctx, PoolMale, 5, "room-a", time.Minute))
		roomID, ok, _ := rc.repo.ActiveRoom(ctx, 5)
		assert.True(t, ok)
		assert.Equal(t, "room-b", roomID)
	})
}

func TestRepo_Markers(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		queue(t, rc.repo, PoolMale, 7)

		// 续期后不会按旧 TTL 过期
		rc.advance(4 * time.Minute)
		require.NoError(t, rc.repo.TouchMarker(ctx, 7, 5*time.Minute))
		rc.advance(4 * time.Minute)
		has, err := rc.repo.HasMarker(ctx, 7)
		require.NoError(t, err)
		assert.True(t, has)

		rc.advance(2 * time.Minute)
		has, err = rc.repo.HasMarker(ctx, 7)
		require.NoError(t, err)
		assert.False(t, has)

		// 没有标记时 touch 不会创建
		require.NoError(t, rc.repo.TouchMarker(ctx, 8, time.Minute))
		has, err = rc.repo.HasMarker(ctx, 8)
		require.NoError(t, err)
		assert.False(t, has)

		queue(t, rc.repo, PoolMale, 7)
		require.NoError(t, rc.repo.DeleteMarker(ctx, 7))
		has, err = rc.repo.HasMarker(ctx, 7)
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestRepo_MatchResultConsumedOnce(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		require.NoError(t, rc.repo.PublishMatchResult(ctx, 1, "room-a", 2*time.Minute))

		roomID, ok, err := rc.repo.ConsumeMatchResult(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "room-a", roomID)

		_, ok, err = rc.repo.ConsumeMatchResult(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		// 过期
		require.NoError(t, rc.repo.PublishMatchResult(ctx, 2, "room-b", 2*time.Minute))
		rc.advance(3 * time.Minute)
		_, ok, err = rc.repo.ConsumeMatchResult(ctx, 2)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, rc.repo.PublishMatchResult(ctx, 3, "room-c", 2*time.Minute))
		require.NoError(t, rc.repo.DeleteMatchResult(ctx, 3))
		_, ok, err = rc.repo.ConsumeMatchResult(ctx, 3)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepo_ActiveRoom(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		_, ok, err := rc.repo.ActiveRoom(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, rc.repo.SetActiveRoom(ctx, 1, "room-a", 2*time.Hour))
		roomID, ok, err := rc.repo.ActiveRoom(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "room-a", roomID)

		require.NoError(t, rc.repo.ClearActiveRoom(ctx, 1))
		_, ok, err = rc.repo.ActiveRoom(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepo_RemoveFromPool(t *testing.T) {
	eachRepo(t, func(t *testing.T, rc repoCase) {
		ctx := context.Background()
		queue(t, rc.repo, PoolFemale, 1, 2, 3)
		require.NoError(t, rc.repo.RemoveFromPool(ctx, PoolFemale, 2))
		// 不存在的用户不报错
		require.NoError(t, rc.repo.RemoveFromPool(ctx, PoolMale, 2))

		n, err := rc.repo.PoolSize(ctx, PoolFemale)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		require.NoError(t, rc.repo.PushFront(ctx, PoolFemale, 9))
		queue(t, rc.repo, PoolFemale, 10)
		var got []int64
		for {
			id, ok, err := rc.repo.DequeueHead(ctx, PoolFemale)
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, id)
		}
		assert.Equal(t, []int64{9, 1, 3, 10}, got)
	})
}

func TestRedisRepo_KeyLayout(t *testing.T) {
	rc, mr := newRedisCase(t)
	ctx := context.Background()
	queue(t, rc.repo, PoolMale, 42)
	require.NoError(t, rc.repo.PublishMatchResult(ctx, 42, "abc", 2*time.Minute))
	require.NoError(t, rc.repo.SetActiveRoom(ctx, 42, "abc", 2*time.Hour))

	list, err := mr.List("voice_match:pool:male")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, list)
	assert.True(t, mr.Exists("voice_match:user:42"))
	assert.Equal(t, 5*time.Minute, mr.TTL("voice_match:user:42"))

	v, err := mr.Get("voice_match:matched:42")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
	assert.Equal(t, 2*time.Minute, mr.TTL("voice_match:matched:42"))
	assert.True(t, mr.Exists("voice_match:room:42"))
}

func TestRedisRepo_CorruptEntry(t *testing.T) {
	rc, mr := newRedisCase(t)
	_, err := mr.Lpush("voice_match:pool:male", "not-a-number")
	require.NoError(t, err)

	_, ok, err := rc.repo.DequeueHead(context.Background(), PoolMale)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("voice_match:pool:male"), "corrupt entry is dropped")
}
