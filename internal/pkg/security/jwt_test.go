package security

import (
	"Campus/internal/api/config"
	"Campus/internal/pkg/consts"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	Init(config.JWTConfig{Secret: "unit-secret", Issuer: "Campus"})

	token, err := GenerateToken(7, []string{"COMM_VIEW"}, []uint64{1, 2})
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)
	assert.Equal(t, []uint64{1, 2}, claims.BranchIDs)
	assert.True(t, claims.HasRole("ADMIN", "COMM_VIEW"))
	assert.False(t, claims.HasRole("ADMIN"))

	sig, err := ExtractSignature(token)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	Init(config.JWTConfig{Secret: "first", Issuer: "Campus"})
	token, err := GenerateToken(1, nil, nil)
	require.NoError(t, err)

	Init(config.JWTConfig{Secret: "second", Issuer: "Campus"})
	_, err = ValidateToken(token)
	assert.Error(t, err)

	_, err = ExtractSignature("not-a-token")
	assert.Error(t, err)
}

func TestCanAccessBranch(t *testing.T) {
	staff := &UserClaims{Roles: []string{"COMM_SEND"}, BranchIDs: []uint64{3, 4}}
	assert.True(t, staff.CanAccessBranch(3))
	assert.False(t, staff.CanAccessBranch(5))
	assert.False(t, staff.CanAccessBranch(0))

	admin := &UserClaims{Roles: []string{consts.RoleAdmin}}
	assert.True(t, admin.CanAccessBranch(99))
	assert.False(t, admin.CanAccessBranch(0))
}
