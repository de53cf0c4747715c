package mongo

import (
	"Campus/internal/api/config"
	"Campus/internal/pkg/logger"
	"context"
	"fmt"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// InitMongo 建立连接并返回 Database 引用，同时初始化提醒集合索引
func InitMongo(cfg config.MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URL).
		SetMonitor(logger.NewMongoMonitor()),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	if _, err = db.Collection(NoticeCollection).Indexes().CreateMany(ctx, noticeIndexes(cfg.NoticeTTLDays)); err != nil {
		return nil, fmt.Errorf("create notice indexes: %w", err)
	}

	log.Info("MongoDB initialized successfully", "db", cfg.Database, "notice_ttl_days", cfg.NoticeTTLDays)
	return db, nil
}

// noticeIndexes 列表 / 未读计数走复合索引；配置了保留天数时按 created_at 过期
func noticeIndexes(ttlDays int) []mongo.IndexModel {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "message_id", Value: 1}},
		},
	}
	if ttlDays > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttlDays * 24 * 3600)),
		})
	}
	return indexes
}
