package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"VoiceMatch/internal/auth"
	"VoiceMatch/internal/response"
	"VoiceMatch/internal/utils"
)

// AuthMiddleware 解析 Authorization: Bearer <token>，成功后把 user id 写入 gin context
func AuthMiddleware(resolver auth.Resolver) gin.HandlerFunc {
	return authenticate(resolver, false)
}

// WSAuthMiddleware 用于 websocket 握手：浏览器无法带 header，没有 header 时读 ?token=
func WSAuthMiddleware(resolver auth.Resolver) gin.HandlerFunc {
	return authenticate(resolver, true)
}

func authenticate(resolver auth.Resolver, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c, allowQuery)
		if !ok || token == "" {
			response.Abort(c, http.StatusUnauthorized, "请先登录")
			return
		}
		userID, err := resolver.ResolveUserID(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				utils.Log.Error("resolve token failed", "path", c.Request.URL.Path, "err", err)
			}
			response.Abort(c, http.StatusUnauthorized, "请先登录")
			return
		}
		c.Set(auth.ContextUserID, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if allowQuery {
			return c.Query("token"), true
		}
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	return strings.TrimSpace(token), ok
}

// UserID 读取 AuthMiddleware 写入的 user id，未登录返回 0
func UserID(c *gin.Context) int64 {
	return c.GetInt64(auth.ContextUserID)
}
