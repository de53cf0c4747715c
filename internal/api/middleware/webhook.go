package middleware

import (
	"Campus/internal/pkg/consts"
	"Campus/internal/pkg/response"
	"crypto/subtle"

	"github.com/gin-gonic/gin"
)

// WebhookSecretMiddleware 外部通道回调只校验共享密钥，不走 JWT
func WebhookSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(consts.WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Fail(c, response.Unauthorized, "回调签名无效")
			c.Abort()
			return
		}
		c.Next()
	}
}
