package matchmaker

import (
	"github.com/gin-gonic/gin"

	"VoiceMatch/internal/middleware"
	"VoiceMatch/internal/response"
	"VoiceMatch/internal/utils"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register 挂载匹配与房间路由，group 需已经过 AuthMiddleware
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/join", h.Join)
	g.POST("/cancel", h.Cancel)
	g.GET("/status", h.Status)
	g.GET("/room/join", h.RoomJoin)
	g.POST("/room/leave", h.RoomLeave)
}

func (h *Handler) fail(c *gin.Context, err error) {
	e := AsError(err)
	if e.Status == ErrorStatusUnknown || e.Status == ErrorStatusUpstream {
		utils.Log.Error("voice match request failed", "path", c.FullPath(), "userId", middleware.UserID(c), "err", err)
	}
	response.Fail(c, e.HTTPStatus(), e.Message)
}

// POST /voice-match/join
func (h *Handler) Join(c *gin.Context) {
	res, err := h.svc.Join(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// POST /voice-match/cancel
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{})
}

// GET /voice-match/status
func (h *Handler) Status(c *gin.Context) {
	res, err := h.svc.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// GET /voice-match/room/join?roomId=xxx
func (h *Handler) RoomJoin(c *gin.Context) {
	roomID := c.Query("roomId")
	if roomID == "" {
		roomID = c.Query("room_id")
	}
	res, err := h.svc.RoomJoin(c.Request.Context(), middleware.UserID(c), roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// POST /voice-match/room/leave body: {roomId}
func (h *Handler) RoomLeave(c *gin.Context) {
	var req RoomLeaveRequest
	// JSON 与表单都支持，解析失败按缺少 roomId 处理
	_ = c.ShouldBind(&req)
	if err := h.svc.RoomLeave(c.Request.Context(), middleware.UserID(c), req.ID()); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{})
}
