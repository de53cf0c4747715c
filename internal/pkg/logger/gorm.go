package logger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

const defaultSQLSlowThreshold = 200 * time.Millisecond

// SlogGormLogger 将 gorm 的 SQL 日志桥接到 slog
// SQL 只输出占位符形式，消息正文等参数不落日志
type SlogGormLogger struct {
	LogLevel      logger.LogLevel
	SlowThreshold time.Duration
}

func NewGormLogger(slowThreshold time.Duration) *SlogGormLogger {
	if slowThreshold <= 0 {
		slowThreshold = defaultSQLSlowThreshold
	}
	return &SlogGormLogger{LogLevel: logger.Warn, SlowThreshold: slowThreshold}
}

func (l *SlogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	nl := *l
	nl.LogLevel = level
	return &nl
}

// ParamsFilter 实现 gorm.ParamsFilter，丢弃绑定参数
func (l *SlogGormLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (l *SlogGormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		slog.InfoContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		slog.WarnContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		slog.ErrorContext(ctx, msg, "data", data)
	}
}

// Trace 出错记 Error，慢查询记 Warn，其余仅在 Info 模式下以 Debug 输出
func (l *SlogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, logger.ErrRecordNotFound)
	slow := elapsed > l.SlowThreshold

	if !(failed && l.LogLevel >= logger.Error) && !(slow && l.LogLevel >= logger.Warn) && l.LogLevel < logger.Info {
		return
	}

	sql, rows := fc()
	msg := "SQL " + sqlOperation(sql)
	fields := []any{
		slog.String("sql", truncate(sql, maxLoggedBody)),
		slog.Duration("latency", elapsed),
		slog.Int64("rows", rows),
	}

	switch {
	case failed && l.LogLevel >= logger.Error:
		slog.ErrorContext(ctx, msg+" Error", append(fields, slog.Any("err", err))...)
	case slow && l.LogLevel >= logger.Warn:
		slog.WarnContext(ctx, msg+" Slow", fields...)
	case l.LogLevel >= logger.Info:
		slog.DebugContext(ctx, msg, fields...)
	}
}

func sqlOperation(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexByte(sql, ' '); i > 0 {
		return strings.ToUpper(sql[:i])
	}
	return "QUERY"
}
