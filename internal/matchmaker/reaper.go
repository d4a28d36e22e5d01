package matchmaker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"VoiceMatch/internal/metrics"
	"VoiceMatch/internal/utils"
)

// Reaper 定期结束超时仍为 ongoing 的房间。
// 双方客户端都异常退出时没人调用 room/leave，房间会一直挂着。
type Reaper struct {
	ledger Ledger
	maxAge time.Duration
	now    func() time.Time
	cron   *cron.Cron
}

// NewReaper maxAge 一般与通话中标记的 TTL 相同
func NewReaper(ledger Ledger, maxAge time.Duration) *Reaper {
	return &Reaper{
		ledger: ledger,
		maxAge: maxAge,
		now:    time.Now,
		cron:   cron.New(),
	}
}

// Start 按 schedule（如 "@every 10m"）后台执行
func (r *Reaper) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.ReapOnce(ctx); err != nil {
			utils.Log.Error("reap stale rooms failed", "err", err)
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop 等正在执行的任务结束
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reaper) ReapOnce(ctx context.Context) (int64, error) {
	now := r.now()
	n, err := r.ledger.EndStale(ctx, now.Add(-r.maxAge), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.ObserveRoomsReaped(n)
		utils.Log.Info("stale rooms ended", "count", n, "maxAge", r.maxAge)
	}
	return n, nil
}
