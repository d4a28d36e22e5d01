package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Resolver 把 bearer token 解析为 user id
type Resolver interface {
	ResolveUserID(ctx context.Context, token string) (int64, error)
}

// SessionTTL 登录会话有效期 7 天
const SessionTTL = 7 * 24 * time.Hour

type sessionData struct {
	UserID   int64  `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// SessionResolver 读取 Redis 中的登录会话：{prefix}{token} -> {"user_id":..,"device_id":..}
type SessionResolver struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewSessionResolver(rdb redis.UniversalClient, prefix string) *SessionResolver {
	return &SessionResolver{rdb: rdb, prefix: prefix}
}

func (s *SessionResolver) ResolveUserID(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	raw, err := s.rdb.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("read session: %w", err)
	}
	var data sessionData
	if err := json.Unmarshal(raw, &data); err != nil || data.UserID <= 0 {
		return 0, ErrInvalidToken
	}
	return data.UserID, nil
}

// CreateSession 写入新会话并返回 token，登录服务与测试使用
func (s *SessionResolver) CreateSession(ctx context.Context, userID int64, deviceID string) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	data, _ := json.Marshal(sessionData{UserID: userID, DeviceID: deviceID})
	if err := s.rdb.Set(ctx, s.prefix+token, data, SessionTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}
