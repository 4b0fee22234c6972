package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/pkg/auth"
	"github.com/d60-Lab/vertex-tips/pkg/logger"
	"github.com/d60-Lab/vertex-tips/pkg/response"
)

const claimsKey = "claims"

// RequireAuth 校验 Authorization: Bearer <token>，失败返回 401
func RequireAuth(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, v) {
			return
		}
		c.Next()
	}
}

// RequireAdmin 先认证（401），再校验角色（403）
func RequireAdmin(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, v) {
			return
		}
		if !requireRole(c, model.RoleAdmin) {
			return
		}
		c.Next()
	}
}

// AdminOnly 只做角色校验，用于已挂载 RequireAuth 的路由组
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Claims(c); !ok {
			response.Unauthorized(c, "authentication required")
			return
		}
		if !requireRole(c, model.RoleAdmin) {
			return
		}
		c.Next()
	}
}

// Claims 读取当前请求的 claims
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*auth.Claims)
	return cl, ok && cl != nil
}

// UserID 当前用户 ID，未认证时为 0
func UserID(c *gin.Context) uint {
	if cl, ok := Claims(c); ok {
		return cl.UserID
	}
	return 0
}

func authenticate(c *gin.Context, v auth.Verifier) bool {
	header := c.GetHeader("Authorization")
	if header == "" {
		response.Unauthorized(c, "access denied, no token provided")
		return false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		response.Unauthorized(c, "invalid authorization header, expected: Bearer <token>")
		return false
	}
	claims, err := v.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		logger.Debug("token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Unauthorized(c, "invalid token")
		return false
	}
	c.Set(claimsKey, claims)
	return true
}

func requireRole(c *gin.Context, role string) bool {
	cl, _ := Claims(c)
	if cl.Role != role {
		response.Forbidden(c, "access denied, admin role required")
		return false
	}
	return true
}
