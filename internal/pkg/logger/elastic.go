package logger

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	maxLoggedBody   = 1000
	esSlowThreshold = 500 * time.Millisecond
)

// ESTransport 记录检索请求耗时
// 索引写入的请求体含消息正文，只记路径不记 body
type ESTransport struct {
	Transport http.RoundTripper
}

func NewESTransport(next http.RoundTripper) *ESTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &ESTransport{Transport: next}
}

func (t *ESTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	isSearch := strings.HasSuffix(req.URL.Path, "/_search")

	var reqBody []byte
	if isSearch && req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	resp, err := t.Transport.RoundTrip(req)
	elapsed := time.Since(start)

	fields := []any{
		log.String("method", req.Method),
		log.String("path", req.URL.Path),
		log.Duration("latency", elapsed),
	}
	if isSearch {
		fields = append(fields, log.String("req_body", truncate(string(reqBody), maxLoggedBody)))
	}

	if err != nil {
		log.ErrorContext(req.Context(), "ES_REQUEST_ERROR", append(fields, log.Any("err", err))...)
		return nil, err
	}
	fields = append(fields, log.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict:
		// 外部版本冲突属于正常的旧版本写入
		log.WarnContext(req.Context(), "ES_REQUEST_FAILED", fields...)
	case elapsed > esSlowThreshold:
		log.WarnContext(req.Context(), "ES_REQUEST_SLOW", fields...)
	default:
		log.DebugContext(req.Context(), "ES_REQUEST", fields...)
	}
	return resp, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...[truncated]"
}
