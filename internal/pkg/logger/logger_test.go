package logger

import (
	"bytes"
	"context"
	log "log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONHandler(buf *bytes.Buffer, level log.Level) log.Handler {
	return log.NewJSONHandler(buf, &log.HandlerOptions{Level: level})
}

func TestTeeHandlerRespectsEachLevel(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	tee := &TeeHandler{handlers: []log.Handler{
		newJSONHandler(&debugBuf, log.LevelDebug),
		newJSONHandler(&warnBuf, log.LevelWarn),
	}}
	l := log.New(tee).With("component", "test")

	l.Info("only debug sink")
	l.Warn("both sinks")

	assert.Contains(t, debugBuf.String(), "only debug sink")
	assert.Contains(t, debugBuf.String(), "both sinks")
	assert.NotContains(t, warnBuf.String(), "only debug sink")
	assert.Contains(t, warnBuf.String(), `"component":"test"`)
}

func TestRemoteFilterNeedsTrace(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&ContextHandler{&RemoteFilterHandler{next: newJSONHandler(&buf, log.LevelInfo)}})

	l.Info("no trace")
	assert.Empty(t, buf.String())

	l.InfoContext(WithTraceID(context.Background(), "t-1"), "with ctx trace")
	assert.Contains(t, buf.String(), `"trace_id":"t-1"`)

	buf.Reset()
	l.Info("explicit attr", TraceIDKey, "t-2")
	assert.Contains(t, buf.String(), "explicit attr")
}

func TestWithTraceIDKeepsEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTraceID(ctx, ""))
	assert.Equal(t, "abc", TraceID(WithTraceID(ctx, "abc")))
	assert.Equal(t, "", TraceID(ctx))
}

func TestRedisArgsRedactsPayloads(t *testing.T) {
	ctx := context.Background()

	pub := redis.NewIntCmd(ctx, "publish", "comm:branch:7", `{"content":"secret"}`)
	assert.Equal(t, "[publish comm:branch:7 <event>]", redisArgs(pub))
	assert.NotContains(t, redisArgs(pub), "secret")

	auth := redis.NewStatusCmd(ctx, "auth", "pw")
	assert.Equal(t, "[PROTECTED]", redisArgs(auth))

	long := redis.NewStatusCmd(ctx, "set", "k", strings.Repeat("x", 2*maxLoggedBody))
	assert.True(t, strings.HasSuffix(redisArgs(long), "...[truncated]"))

	assert.True(t, ignorableRedisError("get", redis.Nil))
}

func TestFormatAccessDropsQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/comm/search?q=private+words", nil)
	req = req.WithContext(WithTraceID(req.Context(), "trace-9"))

	line := formatAccess(gin.LogFormatterParams{
		Request:    req,
		TimeStamp:  time.Unix(0, 0).UTC(),
		StatusCode: 502,
		Latency:    time.Millisecond,
		Method:     "GET",
		Path:       "/api/comm/search?q=private+words",
	})
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.NotContains(t, line, "private")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, "/api/comm/search", got["path"])
	assert.Equal(t, "trace-9", got["trace_id"])
	assert.Equal(t, "ERROR", got["level"])
	assert.EqualValues(t, 502, got["status"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.LevelDebug, parseLevel("debug"))
	assert.Equal(t, log.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, log.LevelInfo, parseLevel(""))
	assert.Equal(t, log.LevelInfo, parseLevel("verbose"))
}
