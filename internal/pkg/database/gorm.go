package database

import (
	"Campus/internal/api/config"
	"Campus/internal/model"
	"Campus/internal/pkg/logger"
	"context"
	"fmt"
	log "log/slog"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const pingTimeout = 5 * time.Second

// NewGormDB 打开 MySQL 连接池，按配置决定是否自动建表
func NewGormDB(cfg *config.DBConfig) (*gorm.DB, error) {
	dsn, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	// 会话时间字段依赖 parseTime
	if !dsn.ParseTime {
		return nil, fmt.Errorf("dsn for %s/%s must set parseTime=true", dsn.Addr, dsn.DBName)
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:      logger.NewGormLogger(time.Duration(cfg.SlowSQLMs) * time.Millisecond),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err = Migrate(db); err != nil {
			return nil, err
		}
	}

	log.Info("Database connection established", "addr", dsn.Addr, "db", dsn.DBName, "max_open", cfg.MaxOpen, "auto_migrate", cfg.AutoMigrate)
	return db, nil
}

// Migrate 建表并补齐索引，会话与消息两张表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Conversation{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
