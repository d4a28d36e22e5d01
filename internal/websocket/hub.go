package websocket

import (
	"context"

	"VoiceMatch/internal/utils"
)

// Hub 管理本实例上的长连接，同一用户只保留最新的一条连接
type Hub struct {
	clients    map[int64]*Client // user id -> client
	register   chan *Client
	unregister chan *Client
	sendOne    chan sendReq
	count      chan chan int
	done       chan struct{}
}

type sendReq struct {
	UserID  int64
	Message OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sendOne:    make(chan sendReq),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run 处理注册、注销与投递，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	utils.Log.Info("websocket hub started")
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			if old, ok := h.clients[c.UserID]; ok && old != c {
				// 新连接顶掉旧连接
				close(old.Send)
			}
			h.clients[c.UserID] = c
			utils.Log.Debug("hub register", "userId", c.UserID, "conns", len(h.clients))

		case c := <-h.unregister:
			if cur, ok := h.clients[c.UserID]; ok && cur == c {
				delete(h.clients, c.UserID)
				close(c.Send)
				utils.Log.Debug("hub unregister", "userId", c.UserID, "conns", len(h.clients))
			}

		case req := <-h.sendOne:
			client, ok := h.clients[req.UserID]
			if !ok {
				continue
			}
			select {
			case client.Send <- req.Message:
			default:
				// 客户端太慢，丢弃；它还可以轮询 status
				utils.Log.Warn("drop push for slow client", "userId", req.UserID, "event", req.Message.Event)
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case <-ctx.Done():
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			utils.Log.Info("websocket hub stopped")
			return
		}
	}
}

// SendToUser 投递给本实例上的某个用户，不在线则忽略
func (h *Hub) SendToUser(userID int64, msg OutgoingMessage) {
	select {
	case h.sendOne <- sendReq{UserID: userID, Message: msg}:
	case <-h.done:
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connections 当前连接数，hub 已停止返回 0
func (h *Hub) Connections() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}
