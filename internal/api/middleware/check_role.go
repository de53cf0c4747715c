package middleware

import (
	"Campus/internal/pkg/response"
	log "log/slog"
	"slices"

	"github.com/gin-gonic/gin"
)

// CheckRoles 至少具备其中一个角色才放行
func CheckRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles := c.GetStringSlice(CtxRoles)
		if slices.ContainsFunc(requiredRoles, func(r string) bool { return slices.Contains(roles, r) }) {
			c.Next()
			return
		}

		log.WarnContext(c.Request.Context(), "role check denied",
			"user_id", c.GetUint64(CtxUserID),
			"roles", roles,
			"required", requiredRoles,
			"path", c.FullPath())
		response.Fail(c, response.Forbidden, "权限不足：无权访问该资源")
		c.Abort()
	}
}
