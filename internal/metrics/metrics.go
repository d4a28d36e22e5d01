// Package metrics 匹配服务的 Prometheus 指标
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PairResultPaired = "paired"
	PairResultEmpty  = "empty"
	PairResultError  = "error"
)

var (
	// Registry 应用自己的指标，避免和默认注册表冲突
	Registry = prometheus.NewRegistry()

	joinTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice_match",
			Name:      "join_total",
			Help:      "Join requests by resulting status.",
		},
		[]string{"status"},
	)

	pairAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice_match",
			Name:      "pair_attempts_total",
			Help:      "Pairing attempts by result.",
		},
		[]string{"result"},
	)

	roomsEnded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voice_match",
			Name:      "rooms_ended_total",
			Help:      "Rooms transitioned from ongoing to ended.",
		},
	)

	roomsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voice_match",
			Name:      "rooms_reaped_total",
			Help:      "Ongoing rooms force-ended after exceeding the room TTL.",
		},
	)

	poolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "voice_match",
			Name:      "pool_size",
			Help:      "Entries currently queued in each pool.",
		},
		[]string{"pool"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice_match",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "voice_match",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		joinTotal,
		pairAttempts,
		roomsEnded,
		roomsReaped,
		poolSize,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveJoin(status string) {
	joinTotal.WithLabelValues(status).Inc()
}

func ObservePairAttempt(result string) {
	pairAttempts.WithLabelValues(result).Inc()
}

func ObserveRoomEnded() {
	roomsEnded.Inc()
}

func ObserveRoomsReaped(n int64) {
	roomsReaped.Add(float64(n))
}

func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// PoolSizer 能返回池大小的存储
type PoolSizer interface {
	PoolSize(ctx context.Context, pool string) (int64, error)
}

// SamplePools 周期性采样池大小，ctx 结束时退出
func SamplePools(ctx context.Context, src PoolSizer, pools []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		samplePoolsOnce(ctx, src, pools)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func samplePoolsOnce(ctx context.Context, src PoolSizer, pools []string) {
	for _, p := range pools {
		n, err := src.PoolSize(ctx, p)
		if err != nil {
			continue
		}
		poolSize.WithLabelValues(p).Set(float64(n))
	}
}
