package middleware

import (
	"Campus/internal/pkg/consts"
	"Campus/internal/pkg/redis"
	"Campus/internal/pkg/response"
	"Campus/internal/pkg/security"
	"context"
	log "log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxUserID    = "user_id"
	CtxRoles     = "roles"
	CtxBranchIDs = "branch_ids"
	CtxClaims    = "claims"
)

// AuthMiddleware 校验 JWT 与吊销名单，将身份写入 gin.Context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		signature, err := security.ExtractSignature(tokenString)
		if err != nil {
			abortUnauthorized(c, "Token 缺失或格式错误")
			return
		}

		// 先验签，伪造的 Token 不必再查 Redis
		claims, err := security.ValidateToken(tokenString)
		if err != nil {
			abortUnauthorized(c, "Token 无效或已过期")
			return
		}

		revoked, err := redis.Exists(c.Request.Context(), consts.TokenBlacklistKey+signature)
		if err != nil {
			log.ErrorContext(c.Request.Context(), "token blacklist lookup failed", "user_id", claims.UserID, "err", err)
			response.Fail(c, response.InternalServerError, "未知错误")
			c.Abort()
			return
		}
		if revoked {
			abortUnauthorized(c, "Token 无效或已过期")
			return
		}

		c.Set(CtxClaims, claims)
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRoles, claims.Roles)
		c.Set(CtxBranchIDs, claims.BranchIDs)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), CtxUserID, claims.UserID))

		c.Next()
	}
}

// ClaimsFrom 取出 AuthMiddleware 写入的身份，未认证时返回 nil
func ClaimsFrom(c *gin.Context) *security.UserClaims {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*security.UserClaims)
	return claims
}

func abortUnauthorized(c *gin.Context, msg string) {
	response.Fail(c, response.Unauthorized, msg)
	c.Abort()
}

// bearerToken 优先取 Authorization 头，WebSocket 握手时退回 token 查询参数
func bearerToken(c *gin.Context) string {
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return token
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}
