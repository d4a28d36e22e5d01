package matchmaker

import (
	"context"
	"time"
)

// Ledger voice_room 表的访问，配对成功后持久化房间
type Ledger interface {
	// Create 写入一条 ongoing 的房间记录
	Create(ctx context.Context, room *Room) error
	// Get 按 room id 读取，不存在返回 ErrRoomNotFound
	Get(ctx context.Context, roomID string) (*Room, error)
	// End 仅当房间仍为 ongoing 时改为 ended，返回是否发生了变更
	End(ctx context.Context, roomID string, at time.Time) (bool, error)
	// EndStale 结束 started_at 早于 before 的 ongoing 房间，返回结束的数量
	EndStale(ctx context.Context, before, at time.Time) (int64, error)
}
