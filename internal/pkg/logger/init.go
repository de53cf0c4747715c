package logger

import (
	"Campus/internal/api/config"
	"errors"
	"io"
	log "log/slog"
	"net"
	"os"
	"time"
)

var errLogstashDisabled = errors.New("logstash address not configured")

// LogWriter gin 访问日志的输出
var LogWriter io.Writer = os.Stdout

const logstashDialTimeout = 3 * time.Second

// InitLogger stdout 必开，Logstash 可连通时双写
func InitLogger() {
	cfg := config.Cfg.Logstash
	opts := &log.HandlerOptions{Level: parseLevel(cfg.Level)}

	stdout := log.NewJSONHandler(os.Stdout, opts)
	var final log.Handler = stdout

	conn, err := dialLogstash(cfg.Address)
	if err == nil {
		remote := log.NewJSONHandler(conn, opts).WithAttrs([]log.Attr{
			log.String("target_index", cfg.Index),
			log.String("log_token", cfg.Token),
		})
		final = &TeeHandler{handlers: []log.Handler{stdout, &RemoteFilterHandler{next: remote}}}
		LogWriter = io.MultiWriter(os.Stdout, conn)
	} else {
		LogWriter = os.Stdout
	}

	log.SetDefault(log.New(&ContextHandler{final}))
	if err != nil {
		log.Warn("Failed to connect to Logstash, logging to stdout only", "err", err)
	}
}

func dialLogstash(addr string) (net.Conn, error) {
	if addr == "" {
		return nil, errLogstashDisabled
	}
	return net.DialTimeout("tcp", addr, logstashDialTimeout)
}

// parseLevel 无法识别时按 info 处理
func parseLevel(s string) log.Level {
	var level log.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return log.LevelInfo
	}
	return level
}
