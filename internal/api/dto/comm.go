package dto

import (
	"Campus/internal/model"
	"time"
)

// ConversationQuery 会话列表查询参数
type ConversationQuery struct {
	BranchID        uint64 `form:"branch_id" binding:"required"`
	ParticipantType string `form:"type" validate:"omitempty,oneof=STUDENT TEACHER EMPLOYEE PARENT UNKNOWN student teacher employee parent unknown"`
	Search          string `form:"q" validate:"max=64"`
	Limit           int    `form:"limit"`
	IncludeInactive bool   `form:"include_inactive"`
}

// MessageQuery 历史消息分页参数
type MessageQuery struct {
	BranchID       uint64 `form:"branch_id" binding:"required"`
	ConversationID uint64 `form:"-"`
	BeforeSeq      uint64 `form:"before_seq"`
	Limit          int    `form:"limit"`
	Viewing        bool   `form:"viewing"` // 当前线程正在展示
}

// SyncQuery 增量同步参数
type SyncQuery struct {
	BranchID       uint64 `form:"branch_id" binding:"required"`
	ConversationID uint64 `form:"-"`
	AfterSeq       uint64 `form:"after_seq"`
	Limit          int    `form:"limit"`
	Viewing        bool   `form:"viewing"`
}

// BranchReq 仅携带分校的请求体
type BranchReq struct {
	BranchID uint64 `json:"branch_id" form:"branch_id" binding:"required"`
}

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	BranchID  uint64            `json:"branch_id" binding:"required"`
	Content   string            `json:"content"`
	MsgType   model.MessageType `json:"msg_type" validate:"omitempty,oneof=TEXT IMAGE DOCUMENT AUDIO VIDEO LOCATION TEMPLATE"`
	MediaURL  *string           `json:"media_url,omitempty" validate:"omitempty,url"`
	MediaType *string           `json:"media_type,omitempty" validate:"omitempty,max=64"`
}

// SetActiveReq 停用 / 启用会话
type SetActiveReq struct {
	BranchID uint64 `json:"branch_id" binding:"required"`
	Active   *bool  `json:"active" binding:"required"`
}

// InboundMessageReq 入站 webhook / Kafka 消息
type InboundMessageReq struct {
	BranchID        uint64            `json:"branch_id" validate:"required"`
	ParticipantType string            `json:"participant_type"`
	ParticipantID   uint64            `json:"participant_id"`
	ParticipantName string            `json:"participant_name" validate:"max=128"`
	Phone           string            `json:"phone" validate:"max=32"`
	Content         string            `json:"content"`
	MsgType         model.MessageType `json:"msg_type"`
	MediaURL        *string           `json:"media_url,omitempty"`
	MediaType       *string           `json:"media_type,omitempty"`
	ProviderMsgID   string            `json:"provider_msg_id" validate:"max=128"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// DeliveryReceiptReq 外部通道的投递回执
type DeliveryReceiptReq struct {
	ProviderMsgID string               `json:"provider_msg_id" validate:"required,max=128"`
	Status        model.DeliveryStatus `json:"status" validate:"required,oneof=SENT DELIVERED READ"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             uint64                `json:"id"`
	ConversationID uint64                `json:"conversation_id"`
	Seq            uint64                `json:"seq"`
	Direction      model.Direction       `json:"direction"`
	Content        string                `json:"content"`
	MsgType        model.MessageType     `json:"msg_type"`
	Status         *model.DeliveryStatus `json:"status,omitempty"`
	ReadAt         *time.Time            `json:"readAt,omitempty"`
	SenderID       *uint64               `json:"sender_id,omitempty"`
	MediaURL       *string               `json:"media_url,omitempty"`
	MediaType      *string               `json:"media_type,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// MessagePageDTO 历史分页结果；NextBeforeSeq 为 0 表示已到最早
type MessagePageDTO struct {
	Messages      []*MessageDTO `json:"messages"`
	NextBeforeSeq uint64        `json:"next_before_seq"`
}

// ConversationDTO 会话列表项响应
type ConversationDTO struct {
	ID                 uint64                `json:"conversation_id"`
	ParticipantType    model.ParticipantType `json:"participant_type"`
	ParticipantID      uint64                `json:"participant_id"`
	ParticipantName    string                `json:"participant_name"`
	ParticipantPhone   string                `json:"participant_phone"`
	BranchID           uint64                `json:"branch_id"`
	IsActive           bool                  `json:"is_active"`
	Metadata           map[string]any        `json:"metadata,omitempty"`
	LastMessageAt      *time.Time            `json:"lastMessageAt"`
	LastMessageContent string                `json:"last_message_content"`
	LastMessageFrom    *model.Direction      `json:"last_message_from"`
	UnreadCount        uint32                `json:"unreadCount"`
	TotalMessages      uint64                `json:"total_messages"`
	MaxMsgSeq          uint64                `json:"max_msg_seq"`
}

// SendResultDTO 发送结果；Warning 非空代表已保存但投递未排队
type SendResultDTO struct {
	Message *MessageDTO `json:"message"`
	Warning string      `json:"warning,omitempty"`
}

// UnreadDTO 未读总数
type UnreadDTO struct {
	UnreadCount int64 `json:"unread_count"`
}

// SearchHitDTO 全文检索命中
type SearchHitDTO struct {
	MessageID       uint64          `json:"message_id"`
	ConversationID  uint64          `json:"conversation_id"`
	ParticipantName string          `json:"participant_name"`
	Direction       model.Direction `json:"direction"`
	Content         string          `json:"content"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CommEventDTO 推送到分校频道的变更事件
type CommEventDTO struct {
	Type           string           `json:"type"`
	BranchID       uint64           `json:"branch_id"`
	ConversationID uint64           `json:"conversation_id"`
	Conversation   *ConversationDTO `json:"conversation,omitempty"`
	Message        *MessageDTO      `json:"message,omitempty"`
}

const (
	EventMessageCreated   = "message.created"
	EventMessageStatus    = "message.status"
	EventDeliveryFailed   = "message.delivery_failed"
	EventConversationRead = "conversation.read"
	EventConversationMeta = "conversation.updated"
)
