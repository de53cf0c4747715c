package repository

import (
	"Campus/internal/model"
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConversationInactive 会话已停用
var ErrConversationInactive = errors.New("conversation is inactive")

// ConversationFilter 会话列表过滤条件，BranchID 必填
type ConversationFilter struct {
	BranchID        uint64
	ParticipantType model.ParticipantType
	Search          string
	IncludeInactive bool
}

type ConversationRepo interface {
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetByParticipantKey(ctx context.Context, key string) (*model.Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter, limit int) ([]*model.Conversation, error)
	GetTotalUnreadCount(ctx context.Context, branchID uint64) (int64, error)

	UpsertOnMessage(ctx context.Context, p *model.Participant, msg *model.Message, viewing bool) (*model.Conversation, error)
	AppendToConversation(ctx context.Context, convID uint64, msg *model.Message, viewing bool) (*model.Conversation, error)

	MarkOpened(ctx context.Context, convID uint64, at time.Time) (*model.Conversation, bool, error)
	MarkOpenedFrom(ctx context.Context, snapshot *model.Conversation, at time.Time) (*model.Conversation, bool, error)

	SetActive(ctx context.Context, convID uint64, active bool) (*model.Conversation, error)
	Recompute(ctx context.Context, convID uint64) (*model.Conversation, error)
	ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]uint64, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetByParticipantKey 根据对端唯一键获取会话
func (s *conversationRepoImpl) GetByParticipantKey(ctx context.Context, key string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("participant_key = ?", key).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations 会话列表：最近活跃在前，从未有消息的排最后
func (s *conversationRepoImpl) ListConversations(ctx context.Context, filter ConversationFilter, limit int) ([]*model.Conversation, error) {
	q := s.db.WithContext(ctx).Model(&model.Conversation{}).Where("branch_id = ?", filter.BranchID)
	if !filter.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if filter.ParticipantType != "" {
		q = q.Where("participant_type = ?", filter.ParticipantType)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		q = q.Where("LOWER(participant_name) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(term))+"%")
	}

	var list []*model.Conversation
	err := q.Order("last_message_at IS NULL, last_message_at DESC, id DESC").
		Limit(ClampLimit(limit)).
		Find(&list).Error
	return list, err
}

// GetTotalUnreadCount 分校维度的未读总数
func (s *conversationRepoImpl) GetTotalUnreadCount(ctx context.Context, branchID uint64) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("branch_id = ? AND is_active = ?", branchID, true).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}

// UpsertOnMessage 按对端唯一键懒创建会话，并在同一事务内追加消息
func (s *conversationRepoImpl) UpsertOnMessage(ctx context.Context, p *model.Participant, msg *model.Message, viewing bool) (*model.Conversation, error) {
	key := p.Key.String()
	var conv *model.Conversation
	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		created := &model.Conversation{
			ParticipantKey:   key,
			ParticipantType:  p.Key.Type,
			ParticipantID:    p.Key.ID,
			ParticipantName:  p.Name,
			ParticipantPhone: p.Phone,
			BranchID:         p.Key.BranchID,
			IsActive:         true,
			Metadata:         p.Metadata,
		}
		// 并发首条消息时唯一键冲突直接忽略，随后统一按键读取
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(created).Error; err != nil {
			return err
		}

		var existing model.Conversation
		if err := tx.Where("participant_key = ?", key).First(&existing).Error; err != nil {
			return err
		}
		if err := refreshParticipant(tx, &existing, p); err != nil {
			return err
		}

		var err error
		conv, err = appendTx(tx, existing.ID, msg, viewing)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendToConversation 向已存在且启用的会话追加消息
func (s *conversationRepoImpl) AppendToConversation(ctx context.Context, convID uint64, msg *model.Message, viewing bool) (*model.Conversation, error) {
	var conv *model.Conversation
	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		conv, err = appendTx(tx, convID, msg, viewing)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// appendTx 核心定序逻辑：先原子自增序号拿到行锁，再写缓存字段与消息明细
func appendTx(tx *gorm.DB, convID uint64, msg *model.Message, viewing bool) (*model.Conversation, error) {
	var unreadIncr uint32
	if msg.IsIncoming() && !viewing {
		unreadIncr = 1
	}

	res := tx.Model(&model.Conversation{}).
		Where("id = ? AND is_active = ?", convID, true).
		Updates(map[string]interface{}{
			"max_msg_seq":    gorm.Expr("max_msg_seq + 1"),
			"total_messages": gorm.Expr("total_messages + 1"),
			"unread_count":   gorm.Expr("unread_count + ?", unreadIncr),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var probe model.Conversation
		if err := tx.Select("id", "is_active").First(&probe, convID).Error; err != nil {
			return nil, err
		}
		return nil, ErrConversationInactive
	}

	var conv model.Conversation
	if err := tx.First(&conv, convID).Error; err != nil {
		return nil, err
	}

	// 持有行锁后取时间，保证 created_at 与 seq 同序
	now := time.Now()
	msg.ConversationID = convID
	msg.Seq = conv.MaxMsgSeq
	msg.CreatedAt = now
	if msg.MsgType == "" {
		msg.MsgType = model.MsgTypeText
	}
	if msg.IsIncoming() {
		msg.Status = nil
		if viewing {
			msg.ReadAt = &now
		}
	} else {
		sent := model.StatusSent
		msg.Status = &sent
		msg.ReadAt = nil
	}
	if err := tx.Create(msg).Error; err != nil {
		return nil, err
	}

	direction := msg.Direction
	err := tx.Model(&model.Conversation{}).Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_message_at":      now,
			"last_message_content": msg.Content,
			"last_message_from":    direction,
		}).Error
	if err != nil {
		return nil, err
	}

	conv.LastMessageAt = &now
	conv.LastMessageContent = msg.Content
	conv.LastMessageFrom = &direction
	return &conv, nil
}

// refreshParticipant 对端资料只用非空值覆盖
func refreshParticipant(tx *gorm.DB, conv *model.Conversation, p *model.Participant) error {
	updates := map[string]interface{}{}
	if p.Name != "" && p.Name != conv.ParticipantName {
		updates["participant_name"] = p.Name
		conv.ParticipantName = p.Name
	}
	if p.Phone != "" && p.Phone != conv.ParticipantPhone {
		updates["participant_phone"] = p.Phone
		conv.ParticipantPhone = p.Phone
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error
}

// MarkOpened 打开会话：读取快照后按快照条件清零
func (s *conversationRepoImpl) MarkOpened(ctx context.Context, convID uint64, at time.Time) (*model.Conversation, bool, error) {
	snapshot, err := s.GetConversation(ctx, convID)
	if err != nil {
		return nil, false, err
	}
	return s.MarkOpenedFrom(ctx, snapshot, at)
}

// MarkOpenedFrom 在一个事务内完成消息已读标记与未读数重算。
// 已读只标记到快照的 max_msg_seq，快照之后到达的入站消息仍计入未读；
// 会话行加锁后按剩余未读入站消息重算 unread_count，并发打开互不覆盖。
func (s *conversationRepoImpl) MarkOpenedFrom(ctx context.Context, snapshot *model.Conversation, at time.Time) (*model.Conversation, bool, error) {
	if !snapshot.IsActive {
		return nil, false, ErrConversationInactive
	}

	changed := false
	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		var current model.Conversation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, snapshot.ID).Error; err != nil {
			return err
		}

		stamped, err := markReadTx(tx, snapshot.ID, snapshot.MaxMsgSeq, at)
		if err != nil {
			return err
		}

		var unread int64
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND direction = ? AND read_at IS NULL", snapshot.ID, model.DirectionIncoming).
			Count(&unread).Error; err != nil {
			return err
		}

		readSeq := max(current.ReadMsgSeq, snapshot.MaxMsgSeq)
		if stamped == 0 && uint32(unread) == current.UnreadCount && readSeq == current.ReadMsgSeq {
			return nil
		}
		changed = stamped > 0 || uint32(unread) != current.UnreadCount
		return tx.Model(&model.Conversation{}).
			Where("id = ?", snapshot.ID).
			Updates(map[string]interface{}{
				"unread_count": unread,
				"read_msg_seq": readSeq,
			}).Error
	})
	if err != nil {
		return nil, false, err
	}

	conv, err := s.GetConversation(ctx, snapshot.ID)
	if err != nil {
		return nil, false, err
	}
	return conv, changed, nil
}

// SetActive 停用 / 重新启用会话 (软状态，不删除)
func (s *conversationRepoImpl) SetActive(ctx context.Context, convID uint64, active bool) (*model.Conversation, error) {
	var conv model.Conversation
	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.First(&conv, convID).Error; err != nil {
			return err
		}
		if conv.IsActive == active {
			return nil
		}
		if err := tx.Model(&model.Conversation{}).Where("id = ?", convID).Update("is_active", active).Error; err != nil {
			return err
		}
		conv.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Recompute 校准：以消息明细为准重算缓存字段
func (s *conversationRepoImpl) Recompute(ctx context.Context, convID uint64) (*model.Conversation, error) {
	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.First(&conv, convID).Error; err != nil {
			return err
		}

		var total, unread int64
		if err := tx.Model(&model.Message{}).Where("conversation_id = ?", convID).Count(&total).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND direction = ? AND read_at IS NULL", convID, model.DirectionIncoming).
			Count(&unread).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"total_messages": total,
			"unread_count":   unread,
		}

		var last model.Message
		err := tx.Where("conversation_id = ?", convID).Order("seq DESC").First(&last).Error
		switch {
		case err == nil:
			updates["last_message_at"] = last.CreatedAt
			updates["last_message_content"] = last.Content
			updates["last_message_from"] = last.Direction
			if last.Seq > conv.MaxMsgSeq {
				updates["max_msg_seq"] = last.Seq
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			updates["last_message_at"] = nil
			updates["last_message_content"] = ""
			updates["last_message_from"] = nil
		default:
			return err
		}

		return tx.Model(&model.Conversation{}).Where("id = ?", convID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, convID)
}

// ListUpdatedSince 最近有变动的会话 ID
func (s *conversationRepoImpl) ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("updated_at >= ?", since).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// escapeLike 转义 LIKE 通配符，配合 ESCAPE '!'
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
