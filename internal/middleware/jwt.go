package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// PlayerKey gin.Context 中已验证的玩家 ID（token 的 sub）
	PlayerKey = "player"
	// ServiceKey 已验证的内部服务名，仅由 ServiceAuthMiddleware 设置
	ServiceKey = "service"
)

var ErrMissingToken = errors.New("missing bearer token")

// JwtAuthMiddleware 校验外部签发的 HS256 token；浏览器 websocket 无法带 header，允许 ?token=
func JwtAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
			return
		}

		player, err := ParsePlayer(raw, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(PlayerKey, player)
		c.Next()
	}
}

// ServiceAuthMiddleware 校验内部服务 token（与玩家 token 使用不同的密钥）
func ServiceAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
			return
		}
		service, err := ParsePlayer(raw, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service token"})
			return
		}
		c.Set(ServiceKey, service)
		c.Next()
	}
}

// ParsePlayer verifies the token signature and expiry and returns its subject.
func ParsePlayer(raw string, secret []byte) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return ""
	}
	return c.Query("token")
}
