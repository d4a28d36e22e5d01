package matchmaker

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	value    string
	expireAt time.Time // 零值表示不过期
}

// memRepo 单进程实现，供测试与本地开发使用
type memRepo struct {
	mu    sync.Mutex
	now   func() time.Time
	pools map[string][]int64
	kv    map[string]memEntry
}

func NewMemoryRepo() Repo {
	return &memRepo{
		now:   time.Now,
		pools: make(map[string][]int64),
		kv:    make(map[string]memEntry),
	}
}

func memMarkerKey(userID int64) string  { return "user:" + strconv.FormatInt(userID, 10) }
func memMatchedKey(userID int64) string { return "matched:" + strconv.FormatInt(userID, 10) }
func memRoomKey(userID int64) string    { return "room:" + strconv.FormatInt(userID, 10) }

// get 需持有锁
func (m *memRepo) get(key string) (string, bool) {
	e, ok := m.kv[key]
	if !ok {
		return "", false
	}
	if !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		delete(m.kv, key)
		return "", false
	}
	return e.value, true
}

func (m *memRepo) set(key, value string, ttl time.Duration) {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.kv[key] = e
}

func (m *memRepo) JoinPool(ctx context.Context, pool string, userID int64, markerTTL time.Duration) (JoinOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.get(memRoomKey(userID)); ok {
		return JoinInRoom, nil
	}
	if _, ok := m.get(memMarkerKey(userID)); ok {
		return JoinAlreadyQueued, nil
	}
	m.set(memMarkerKey(userID), "1", markerTTL)
	for _, p := range allPools {
		m.removeLocked(p, userID)
	}
	m.pools[pool] = append(m.pools[pool], userID)
	return JoinQueued, nil
}

func (m *memRepo) DequeueHead(ctx context.Context, pool string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popHead(pool)
}

func (m *memRepo) popHead(pool string) (int64, bool, error) {
	q := m.pools[pool]
	if len(q) == 0 {
		return 0, false, nil
	}
	id := q[0]
	m.pools[pool] = q[1:]
	return id, true, nil
}

func (m *memRepo) PushFront(ctx context.Context, pool string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushFrontLocked(pool, userID)
	return nil
}

func (m *memRepo) pushFrontLocked(pool string, userID int64) {
	m.pools[pool] = append([]int64{userID}, m.pools[pool]...)
}

// popLive 与 Redis 脚本一致：跳过没有入池标记的条目
func (m *memRepo) popLive(pool string) (int64, bool) {
	for {
		id, ok, _ := m.popHead(pool)
		if !ok {
			return 0, false
		}
		if _, live := m.get(memMarkerKey(id)); live {
			return id, true
		}
	}
}

func (m *memRepo) PopPair(ctx context.Context, poolA, poolB, roomID string, roomTTL time.Duration) (int64, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.popLive(poolA)
	if !ok {
		return 0, 0, false, nil
	}
	b, ok := m.popLive(poolB)
	if !ok {
		m.pushFrontLocked(poolA, a)
		return 0, 0, false, nil
	}
	for _, id := range []int64{a, b} {
		delete(m.kv, memMarkerKey(id))
		m.set(memRoomKey(id), roomID, roomTTL)
	}
	return a, b, true, nil
}

func (m *memRepo) Requeue(ctx context.Context, pool string, userID int64, roomID string, markerTTL time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(memMarkerKey(userID), "1", markerTTL)
	if cur, ok := m.get(memRoomKey(userID)); ok && cur == roomID {
		delete(m.kv, memRoomKey(userID))
	}
	m.removeLocked(pool, userID)
	m.pushFrontLocked(pool, userID)
	return nil
}

func (m *memRepo) removeLocked(pool string, userID int64) {
	m.pools[pool] = slices.DeleteFunc(m.pools[pool], func(id int64) bool { return id == userID })
}

func (m *memRepo) RemoveFromPool(ctx context.Context, pool string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(pool, userID)
	return nil
}

func (m *memRepo) PoolSize(ctx context.Context, pool string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pools[pool])), nil
}

func (m *memRepo) HasMarker(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.get(memMarkerKey(userID))
	return ok, nil
}

func (m *memRepo) TouchMarker(ctx context.Context, userID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memMarkerKey(userID)
	if v, ok := m.get(key); ok {
		m.set(key, v, ttl)
	}
	return nil
}

func (m *memRepo) DeleteMarker(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, memMarkerKey(userID))
	return nil
}

func (m *memRepo) PublishMatchResult(ctx context.Context, userID int64, roomID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(memMatchedKey(userID), roomID, ttl)
	return nil
}

func (m *memRepo) ConsumeMatchResult(ctx context.Context, userID int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memMatchedKey(userID)
	v, ok := m.get(key)
	delete(m.kv, key)
	return v, ok, nil
}

func (m *memRepo) DeleteMatchResult(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, memMatchedKey(userID))
	return nil
}

func (m *memRepo) SetActiveRoom(ctx context.Context, userID int64, roomID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(memRoomKey(userID), roomID, ttl)
	return nil
}

func (m *memRepo) ActiveRoom(ctx context.Context, userID int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.get(memRoomKey(userID))
	return v, ok, nil
}

func (m *memRepo) ClearActiveRoom(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, memRoomKey(userID))
	return nil
}
