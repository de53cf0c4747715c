package middleware

import (
	"Campus/internal/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceHeader   = "X-Trace-ID"
	requestHeader = "X-Request-ID"
	maxTraceIDLen = 64
)

// TraceMiddleware 透传或生成 trace_id，日志经 ContextHandler 自动带出
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = c.GetHeader(requestHeader)
		}
		if !validTraceID(traceID) {
			traceID = uuid.New().String()
		}

		c.Set(logger.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Header(traceHeader, traceID)
		c.Next()
	}
}

// validTraceID 外部传入的 id 会写进日志，只接受短的可打印 ASCII
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e || id[i] == '"' || id[i] == '\\' {
			return false
		}
	}
	return true
}
