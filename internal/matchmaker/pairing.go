package matchmaker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"VoiceMatch/internal/metrics"
	"VoiceMatch/internal/utils"
)

// Notifier 配对成功后主动推送给双方（可选，轮询 status 仍然是主通道）
type Notifier interface {
	NotifyMatched(ctx context.Context, p *Pairing) error
}

type EngineOptions struct {
	MarkerTTL  time.Duration // 配对失败放回池中时恢复的入池标记有效期
	MatchedTTL time.Duration // 配对结果保留时间
	RoomTTL    time.Duration // 通话中标记的最长保留时间
	// AtomicPairPop 为 true 时用一次脚本同时弹出两侧；
	// false 时逐个 LPOP，单侧为空再放回池头
	AtomicPairPop bool
}

// Engine 男池女池各取一人组成房间，先到先配
type Engine struct {
	repo     Repo
	ledger   Ledger
	notifier Notifier
	opts     EngineOptions

	now       func() time.Time
	newRoomID func() string
}

func NewEngine(repo Repo, ledger Ledger, notifier Notifier, opts EngineOptions) *Engine {
	return &Engine{
		repo:      repo,
		ledger:    ledger,
		notifier:  notifier,
		opts:      opts,
		now:       time.Now,
		newRoomID: newRoomID,
	}
}

func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// ChannelName 房间对应的声网频道名
func ChannelName(roomID string) string {
	return "voice_" + roomID
}

// TryPair 执行一次配对。池不够时返回 (nil, nil)。
// 房间写库失败时两人放回各自池头、恢复入池标记，并返回错误。
func (e *Engine) TryPair(ctx context.Context) (*Pairing, error) {
	roomID := e.newRoomID()
	a, b, ok, err := e.take(ctx, roomID)
	if err != nil {
		metrics.ObservePairAttempt(metrics.PairResultError)
		return nil, err
	}
	if !ok {
		metrics.ObservePairAttempt(metrics.PairResultEmpty)
		return nil, nil
	}

	startedAt := e.now()
	room := &Room{
		RoomID:     roomID,
		UserID1:    a,
		UserID2:    b,
		RTCChannel: ChannelName(roomID),
		Status:     RoomOngoing,
		StartedAt:  &startedAt,
	}
	if err := e.ledger.Create(ctx, room); err != nil {
		e.restore(ctx, roomID, a, b)
		metrics.ObservePairAttempt(metrics.PairResultError)
		return nil, NewError(ErrorStatusUnknown, "创建房间失败", err)
	}

	p := &Pairing{RoomID: roomID, Channel: room.RTCChannel, UserA: a, UserB: b}
	err = e.handoff(ctx, p)
	metrics.ObservePairAttempt(metrics.PairResultPaired)
	utils.Log.Info("voice room created", "roomId", roomID, "male", a, "female", b)

	if e.notifier != nil {
		if nerr := e.notifier.NotifyMatched(ctx, p); nerr != nil {
			utils.Log.Warn("notify matched failed", "roomId", roomID, "err", nerr)
		}
	}
	return p, err
}

// take 从两个池各取一人，并把双方的入池标记换成 roomID 的通话中标记
func (e *Engine) take(ctx context.Context, roomID string) (int64, int64, bool, error) {
	if e.opts.AtomicPairPop {
		return e.repo.PopPair(ctx, PoolMale, PoolFemale, roomID, e.opts.RoomTTL)
	}

	a, okA, err := e.repo.DequeueHead(ctx, PoolMale)
	if err != nil {
		return 0, 0, false, err
	}
	b, okB, err := e.repo.DequeueHead(ctx, PoolFemale)
	if err != nil {
		if okA {
			e.pushFront(ctx, PoolMale, a)
		}
		return 0, 0, false, err
	}

	// 已取消或标记过期的条目直接丢弃
	if okA {
		if okA, err = e.repo.HasMarker(ctx, a); err != nil {
			return 0, 0, false, e.abort(ctx, a, b, true, okB, err)
		}
	}
	if okB {
		if okB, err = e.repo.HasMarker(ctx, b); err != nil {
			return 0, 0, false, e.abort(ctx, a, b, okA, true, err)
		}
	}

	if !okA || !okB {
		if okA {
			e.pushFront(ctx, PoolMale, a)
		}
		if okB {
			e.pushFront(ctx, PoolFemale, b)
		}
		return 0, 0, false, nil
	}

	// 逐个 LPOP 的兼容路径：先写通话中标记再删入池标记，任意时刻至少有一个在
	for _, uid := range []int64{a, b} {
		if err := e.repo.SetActiveRoom(ctx, uid, roomID, e.opts.RoomTTL); err != nil {
			e.restore(ctx, roomID, a, b)
			return 0, 0, false, err
		}
		if err := e.repo.DeleteMarker(ctx, uid); err != nil {
			e.restore(ctx, roomID, a, b)
			return 0, 0, false, err
		}
	}
	return a, b, true, nil
}

func (e *Engine) abort(ctx context.Context, a, b int64, restoreA, restoreB bool, err error) error {
	if restoreA {
		e.pushFront(ctx, PoolMale, a)
	}
	if restoreB {
		e.pushFront(ctx, PoolFemale, b)
	}
	return err
}

// restore 撤销 take：两人回到各自池头
func (e *Engine) restore(ctx context.Context, roomID string, a, b int64) {
	for _, it := range []struct {
		pool string
		uid  int64
	}{{PoolMale, a}, {PoolFemale, b}} {
		if err := e.repo.Requeue(ctx, it.pool, it.uid, roomID, e.opts.MarkerTTL); err != nil {
			utils.Log.Error("requeue after failed pairing", "pool", it.pool, "userId", it.uid, "roomId", roomID, "err", err)
		}
	}
}

func (e *Engine) pushFront(ctx context.Context, pool string, userID int64) {
	if err := e.repo.PushFront(ctx, pool, userID); err != nil {
		// 放回失败用户会丢失排队位置，入池标记到期后可重新加入
		utils.Log.Error("restore pool entry failed", "pool", pool, "userId", userID, "err", err)
	}
}

// handoff 给双方写入配对结果，status 轮询读取
func (e *Engine) handoff(ctx context.Context, p *Pairing) error {
	var errs []error
	for _, uid := range []int64{p.UserA, p.UserB} {
		if err := e.repo.PublishMatchResult(ctx, uid, p.RoomID, e.opts.MatchedTTL); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		utils.Log.Error("match handoff incomplete", "roomId", p.RoomID, "err", err)
		return err
	}
	return nil
}
