package handler

import (
	"Campus/internal/api/middleware"
	"Campus/internal/pkg/response"
	"Campus/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseConvID 解析路径中的会话 ID，失败时已写回响应
func parseConvID(c *gin.Context) (uint64, bool) {
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || convID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return 0, false
	}
	return convID, true
}

// allowBranch 无权访问该分校时已写回响应
func allowBranch(c *gin.Context, branchID uint64) bool {
	if claims := middleware.ClaimsFrom(c); claims != nil && claims.CanAccessBranch(branchID) {
		return true
	}
	response.Error(c, service.UnauthorizedError)
	return false
}
