package security

import (
	"Campus/internal/pkg/consts"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const JWTExpirationTime = time.Hour * 12

// UserClaims 教职工 Token 中的身份、角色与可访问分校
type UserClaims struct {
	UserID    uint64   `json:"user_id"`
	Roles     []string `json:"roles"`
	BranchIDs []uint64 `json:"branch_ids"`
	jwt.RegisteredClaims
}

// HasRole 是否拥有任一角色
func (c *UserClaims) HasRole(roles ...string) bool {
	return slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(c.Roles, r) })
}

// CanAccessBranch 管理员可访问全部分校，其余只能访问 Token 中授权的分校
func (c *UserClaims) CanAccessBranch(branchID uint64) bool {
	if branchID == 0 {
		return false
	}
	return c.HasRole(consts.RoleAdmin) || slices.Contains(c.BranchIDs, branchID)
}
