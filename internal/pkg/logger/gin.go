package logger

import (
	"Campus/internal/api/config"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// accessLogSkipPaths 探活请求不记访问日志
var accessLogSkipPaths = []string{"/api/ping"}

type accessLine struct {
	Time        string `json:"time"`
	Level       string `json:"level"`
	Msg         string `json:"msg"`
	TraceID     string `json:"trace_id"`
	LogToken    string `json:"log_token,omitempty"`
	TargetIndex string `json:"target_index,omitempty"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      int    `json:"status"`
	Latency     string `json:"latency"`
	ClientIP    string `json:"client_ip"`
	Error       string `json:"error,omitempty"`
}

func SetupGin(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    LogWriter,
		SkipPaths: accessLogSkipPaths,
		Formatter: formatAccess,
	}))

	r.Use(gin.Recovery())
}

// formatAccess 输出一行 JSON 访问日志
// 路径不带 query，检索关键词不落日志
func formatAccess(p gin.LogFormatterParams) string {
	line := accessLine{
		Time:     p.TimeStamp.Format(time.RFC3339),
		Level:    "INFO",
		Msg:      "GIN_ACCESS",
		Method:   p.Method,
		Path:     p.Path,
		Status:   p.StatusCode,
		Latency:  p.Latency.String(),
		ClientIP: p.ClientIP,
		Error:    p.ErrorMessage,
	}
	if p.StatusCode >= 500 {
		line.Level = "ERROR"
	}
	if p.Keys != nil {
		line.TraceID, _ = p.Keys[TraceIDKey].(string)
	}
	if p.Request != nil {
		line.Path = p.Request.URL.Path
		if line.TraceID == "" {
			line.TraceID = TraceID(p.Request.Context())
		}
	}
	if config.Cfg != nil {
		line.LogToken = config.Cfg.Logstash.Token
		line.TargetIndex = config.Cfg.Logstash.Index
	}

	b, err := json.Marshal(line)
	if err != nil {
		return ""
	}
	return string(b) + "\n"
}
