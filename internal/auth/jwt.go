package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret 未配置签名密钥
var ErrEmptySecret = errors.New("jwt secret is empty")

// JWTResolver 校验 HS256 签名的 JWT，sub 为 user id。
// 密钥为空时不签发也不接受任何 token
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

// Configured 是否配置了密钥
func (j *JWTResolver) Configured() bool {
	return len(j.secret) > 0
}

func (j *JWTResolver) ResolveUserID(ctx context.Context, token string) (int64, error) {
	if !j.Configured() {
		return 0, ErrInvalidToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Sign 签发 token，与登录服务保持一致：sub / iat / exp
func (j *JWTResolver) Sign(userID int64, ttl time.Duration) (string, error) {
	if !j.Configured() {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}
