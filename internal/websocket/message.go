package websocket

// 推送事件
const (
	EventMatched = "matched"
)

type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// MatchedPayload matched 事件内容，客户端收到后直接调用 room/join
type MatchedPayload struct {
	RoomID  string `json:"roomId"`
	Channel string `json:"channel"`
	PeerID  int64  `json:"peerId"`
}
