package middleware

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

const (
	maxAuditBody = 4096
	redacted     = "***"
)

// auditSensitiveKeys 消息正文、联系人电话与凭据不进审计日志
var auditSensitiveKeys = map[string]struct{}{
	"content":              {},
	"last_message_content": {},
	"phone":                {},
	"participant_phone":    {},
	"media_url":            {},
	"token":                {},
	"q":                    {},
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseBodyWriter) Write(b []byte) (int, error) {
	if r.body.Len() < maxAuditBody {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseBodyWriter) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// AuditMiddleware 记录写操作的请求与响应，敏感字段脱敏；读接口与 WebSocket 握手只记请求行
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		fields := []any{
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.String("query", redactQuery(c.Request.URL.RawQuery)),
		}

		if c.IsWebsocket() || c.Request.Method == http.MethodGet {
			start := time.Now()
			c.Next()
			log.DebugContext(ctx, "Request", append(fields,
				log.Int("status", c.Writer.Status()),
				log.Duration("latency", time.Since(start)))...)
			return
		}

		if c.Request.Body != nil {
			reqBody, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
			fields = append(fields, log.String("req_body", redactBody(reqBody)))
		}
		log.InfoContext(ctx, "Recv Request", fields...)

		w := &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w
		start := time.Now()

		c.Next()

		log.InfoContext(ctx, "Send Response",
			log.Int("status", c.Writer.Status()),
			log.Duration("latency", time.Since(start)),
			log.String("res_body", redactBody(w.body.Bytes())),
		)
	}
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparsable query]"
	}
	for k := range values {
		if _, ok := auditSensitiveKeys[k]; ok {
			values.Set(k, redacted)
		}
	}
	return values.Encode()
}

// redactBody JSON 体按字段脱敏，非 JSON 只记长度
func redactBody(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return "[non-json body " + strconv.Itoa(len(b)) + " bytes]"
	}
	out, err := json.Marshal(redactValue(v))
	if err != nil {
		return "[unencodable body]"
	}
	if len(out) > maxAuditBody {
		return string(out[:maxAuditBody]) + "...[truncated]"
	}
	return string(out)
}

func redactValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, inner := range x {
			if _, ok := auditSensitiveKeys[k]; ok {
				x[k] = redacted
				continue
			}
			x[k] = redactValue(inner)
		}
	case []any:
		for i := range x {
			x[i] = redactValue(x[i])
		}
	}
	return v
}
