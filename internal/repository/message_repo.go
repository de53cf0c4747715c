package repository

import (
	"Campus/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

type MessageRepo interface {
	GetMessage(ctx context.Context, msgID uint64) (*model.Message, error)
	GetByProviderMsgID(ctx context.Context, providerMsgID string) (*model.Message, error)
	ListByConversation(ctx context.Context, convID uint64, beforeSeq uint64, limit int) ([]*model.Message, error)
	SyncAfter(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*model.Message, error)
	MarkRead(ctx context.Context, convID uint64, upToSeq uint64, at time.Time) (int64, error)
	SetProviderMsgID(ctx context.Context, msgID uint64, providerMsgID string) error
	AdvanceStatus(ctx context.Context, providerMsgID string, status model.DeliveryStatus) (*model.Message, bool, error)
	ListRecent(ctx context.Context, convID uint64, limit int) ([]*model.Message, error)
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// ClampLimit 将分页大小限制在 [1, MaxPageSize]
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func (s *messageRepoImpl) GetMessage(ctx context.Context, msgID uint64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).First(&msg, msgID).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetByProviderMsgID 按外部通道消息 ID 查找，用于入站去重与回执关联
func (s *messageRepoImpl) GetByProviderMsgID(ctx context.Context, providerMsgID string) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Where("provider_msg_id = ?", providerMsgID).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByConversation 历史分页
// beforeSeq 为当前页面最旧一条消息的序号，第一页传 0。
// 返回的一页内按 seq 升序 (旧 -> 新) 排列。
func (s *messageRepoImpl) ListByConversation(ctx context.Context, convID uint64, beforeSeq uint64, limit int) ([]*model.Message, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", convID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}

	var messages []*model.Message
	err := q.Order("seq DESC").Limit(ClampLimit(limit)).Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SyncAfter 增量拉取 afterSeq 之后的消息，升序
func (s *messageRepoImpl) SyncAfter(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", convID, afterSeq).
		Order("seq ASC").
		Limit(ClampLimit(limit)).
		Find(&messages).Error
	return messages, err
}

// ListRecent 最近的若干条消息 (倒序)，供缓存校准使用
func (s *messageRepoImpl) ListRecent(ctx context.Context, convID uint64, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// MarkRead 为截至 upToSeq 的未读入站消息写入已读时间，幂等
func (s *messageRepoImpl) MarkRead(ctx context.Context, convID uint64, upToSeq uint64, at time.Time) (int64, error) {
	return markReadTx(s.db.WithContext(ctx), convID, upToSeq, at)
}

func markReadTx(tx *gorm.DB, convID uint64, upToSeq uint64, at time.Time) (int64, error) {
	res := tx.Model(&model.Message{}).
		Where("conversation_id = ? AND direction = ? AND read_at IS NULL AND seq <= ?",
			convID, model.DirectionIncoming, upToSeq).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

func (s *messageRepoImpl) SetProviderMsgID(ctx context.Context, msgID uint64, providerMsgID string) error {
	return s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", msgID).
		Update("provider_msg_id", providerMsgID).Error
}

// AdvanceStatus 回执推进出站消息状态，只进不退
func (s *messageRepoImpl) AdvanceStatus(ctx context.Context, providerMsgID string, status model.DeliveryStatus) (*model.Message, bool, error) {
	var msg model.Message
	changed := false
	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("provider_msg_id = ?", providerMsgID).First(&msg).Error; err != nil {
			return err
		}
		if msg.Direction != model.DirectionOutgoing {
			return nil
		}

		lower := status.Before()
		if len(lower) == 0 {
			return nil
		}
		res := tx.Model(&model.Message{}).
			Where("id = ? AND status IN ?", msg.ID, lower).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			changed = true
			msg.Status = &status
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &msg, changed, nil
}
