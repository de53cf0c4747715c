package repository

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213

	txMaxAttempts = 3
	txRetryDelay  = 20 * time.Millisecond
)

// transact 执行事务，MySQL 死锁或锁等待超时时整体重试
// 同一会话并发追加消息时行锁竞争会触发死锁，回滚后重放即可
func transact(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !retryableTxError(err) {
			return err
		}
		log.WarnContext(ctx, "transaction conflict, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryDelay):
		}
	}
	return err
}

func retryableTxError(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout
}
