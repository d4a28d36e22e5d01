package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"VoiceMatch/internal/matchmaker"
	"VoiceMatch/internal/utils"
)

// matchedEvent 跨实例广播的配对事件
type matchedEvent struct {
	RoomID  string `json:"roomId"`
	Channel string `json:"channel"`
	UserA   int64  `json:"userA"`
	UserB   int64  `json:"userB"`
}

// Relay 把配对结果通过 Redis pub/sub 发给所有实例，
// 每个实例再推给连在自己身上的用户
type Relay struct {
	rdb     redis.UniversalClient
	channel string
	hub     *Hub
}

// NewRelay channel 一般为 {prefix}events
func NewRelay(rdb redis.UniversalClient, channel string, hub *Hub) *Relay {
	return &Relay{rdb: rdb, channel: channel, hub: hub}
}

// NotifyMatched 实现 matchmaker.Notifier
func (r *Relay) NotifyMatched(ctx context.Context, p *matchmaker.Pairing) error {
	body, err := json.Marshal(matchedEvent{
		RoomID:  p.RoomID,
		Channel: p.Channel,
		UserA:   p.UserA,
		UserB:   p.UserB,
	})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, body).Err()
}

// Run 订阅事件直到 ctx 结束
func (r *Relay) Run(ctx context.Context) error {
	ps, err := r.subscribe(ctx)
	if err != nil {
		return err
	}
	r.forward(ctx, ps)
	return nil
}

func (r *Relay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	ps := r.rdb.Subscribe(ctx, r.channel)
	// 等订阅确认，之后发布的事件不会丢
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	return ps, nil
}

func (r *Relay) forward(ctx context.Context, ps *redis.PubSub) {
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev matchedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				utils.Log.Warn("bad relay payload", "err", err)
				continue
			}
			r.deliver(ev)
		}
	}
}

func (r *Relay) deliver(ev matchedEvent) {
	for _, pair := range [][2]int64{{ev.UserA, ev.UserB}, {ev.UserB, ev.UserA}} {
		r.hub.SendToUser(pair[0], OutgoingMessage{
			Event: EventMatched,
			Data:  MatchedPayload{RoomID: ev.RoomID, Channel: ev.Channel, PeerID: pair[1]},
		})
	}
}
