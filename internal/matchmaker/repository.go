package matchmaker

import (
	"context"
	"time"
)

// JoinOutcome JoinPool 的结果
type JoinOutcome int

const (
	JoinQueued        JoinOutcome = iota // 已入池
	JoinAlreadyQueued                    // 已持有入池标记
	JoinInRoom                           // 通话中
)

// Repo 定义对匹配池与用户临时状态的抽象操作。
// 入池与配对出池都在一次原子操作内完成，多实例之间不需要额外的锁。
type Repo interface {
	// JoinPool 原子入池：通话中或已持有入池标记时拒绝；
	// 否则占用标记、清掉该用户在各池中的旧条目并追加到池尾
	JoinPool(ctx context.Context, pool string, userID int64, markerTTL time.Duration) (JoinOutcome, error)
	// DequeueHead 原子弹出池头，池空返回 ok=false
	DequeueHead(ctx context.Context, pool string) (userID int64, ok bool, err error)
	// PushFront 单侧为空时把已弹出的用户放回池头
	PushFront(ctx context.Context, pool string, userID int64) error
	// PopPair 两个池都有有效用户时各弹出一人，跳过 marker 已失效的条目。
	// 弹出的同时删除双方入池标记并写入 roomID 的通话中标记
	PopPair(ctx context.Context, poolA, poolB, roomID string, roomTTL time.Duration) (a, b int64, ok bool, err error)
	// Requeue 房间创建失败时撤销 PopPair：恢复入池标记、清除 roomID 的通话中标记并放回池头
	Requeue(ctx context.Context, pool string, userID int64, roomID string, markerTTL time.Duration) error
	// RemoveFromPool 取消时从池中间删除指定用户
	RemoveFromPool(ctx context.Context, pool string, userID int64) error
	// PoolSize 池内条目数（包括 marker 已过期但尚未清理的条目）
	PoolSize(ctx context.Context, pool string) (int64, error)

	HasMarker(ctx context.Context, userID int64) (bool, error)
	TouchMarker(ctx context.Context, userID int64, ttl time.Duration) error
	DeleteMarker(ctx context.Context, userID int64) error

	// PublishMatchResult 写入配对结果，ConsumeMatchResult 读后即删
	PublishMatchResult(ctx context.Context, userID int64, roomID string, ttl time.Duration) error
	ConsumeMatchResult(ctx context.Context, userID int64) (roomID string, ok bool, err error)
	DeleteMatchResult(ctx context.Context, userID int64) error

	// ActiveRoom 通话中标记，防止通话中再次匹配
	SetActiveRoom(ctx context.Context, userID int64, roomID string, ttl time.Duration) error
	ActiveRoom(ctx context.Context, userID int64) (roomID string, ok bool, err error)
	ClearActiveRoom(ctx context.Context, userID int64) error
}

// allPools JoinPool 清理旧条目时覆盖的池
var allPools = []string{PoolMale, PoolFemale}
