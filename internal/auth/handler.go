package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"VoiceMatch/internal/response"
)

// ContextUserID 认证后 user id 在 gin context 中的 key
const ContextUserID = "userId"

// WSTokenTTL 推送连接用的短期 token，放在 URL 里，有效期尽量短
const WSTokenTTL = 2 * time.Minute

// Chain 依次尝试多个 Resolver，全部判定无效时返回 ErrInvalidToken
type Chain []Resolver

func (c Chain) ResolveUserID(ctx context.Context, token string) (int64, error) {
	for _, r := range c {
		id, err := r.ResolveUserID(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrInvalidToken) {
			return 0, err
		}
	}
	return 0, ErrInvalidToken
}

type Handler struct {
	signer *JWTResolver
}

// 工厂方法：创建 handler
func NewHandler(signer *JWTResolver) *Handler {
	return &Handler{signer: signer}
}

type wsTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// WSToken POST /voice-match/ws-token，需已登录。
// 浏览器 websocket 不能带 header，用短期 JWT 放在 ?token= 里，避免暴露登录会话
func (h *Handler) WSToken(c *gin.Context) {
	userID := c.GetInt64(ContextUserID)
	if userID == 0 {
		response.Fail(c, http.StatusUnauthorized, "请先登录")
		return
	}
	token, err := h.signer.Sign(userID, WSTokenTTL)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "签发失败")
		return
	}
	response.OK(c, wsTokenResponse{Token: token, ExpiresIn: int(WSTokenTTL / time.Second)})
}
