package es

import (
	"Campus/internal/api/config"
	"Campus/internal/pkg/logger"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

var Client *elasticsearch.TypedClient

var MessageIndex = defaultMessageIndex

const (
	NotFoundCode = 404
	ConflictCode = 409

	defaultMessageIndex = "comm_messages"
	initTimeout         = 10 * time.Second
)

// InitClient 连接 ES 并确保消息索引存在；失败时 Client 保持为 nil
func InitClient(cfg config.ElasticConfig) error {
	if cfg.Indices.MessageIndex != "" {
		MessageIndex = cfg.Indices.MessageIndex
	}

	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Addresses: []string{cfg.Address},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: logger.NewESTransport(http.DefaultTransport),
	})
	if err != nil {
		return fmt.Errorf("create es client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	info, err := client.Info().Do(ctx)
	if err != nil {
		return fmt.Errorf("es info %s: %w", cfg.Address, err)
	}
	if err = ensureMessageIndex(ctx, client); err != nil {
		return err
	}

	Client = client
	log.Info("Connected to Elasticsearch", "version", info.Version.Int, "index", MessageIndex)
	return nil
}

// ensureMessageIndex 索引不存在时按检索文档结构建索引
func ensureMessageIndex(ctx context.Context, client *elasticsearch.TypedClient) error {
	exists, err := client.Indices.Exists(MessageIndex).Do(ctx)
	if err != nil {
		return fmt.Errorf("check index %s: %w", MessageIndex, err)
	}
	if exists {
		return nil
	}

	_, err = client.Indices.Create(MessageIndex).Mappings(messageMapping()).Do(ctx)
	if err != nil {
		var e *types.ElasticsearchError
		// 多实例同时启动时可能已被别的实例建好
		if errors.As(err, &e) && e.ErrorCause.Type == "resource_already_exists_exception" {
			return nil
		}
		return fmt.Errorf("create index %s: %w", MessageIndex, err)
	}
	log.Info("Elasticsearch index created", "index", MessageIndex)
	return nil
}

func messageMapping() *types.TypeMapping {
	return &types.TypeMapping{
		Properties: map[string]types.Property{
			"id":               types.NewUnsignedLongNumberProperty(),
			"conversation_id":  types.NewUnsignedLongNumberProperty(),
			"branch_id":        types.NewUnsignedLongNumberProperty(),
			"seq":              types.NewUnsignedLongNumberProperty(),
			"direction":        types.NewKeywordProperty(),
			"msg_type":         types.NewKeywordProperty(),
			"status":           types.NewKeywordProperty(),
			"participant_type": types.NewKeywordProperty(),
			"participant_name": types.NewTextProperty(),
			"content":          types.NewTextProperty(),
			"created_at":       types.NewDateProperty(),
		},
	}
}
