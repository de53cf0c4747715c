package model

import "time"

// Direction 消息方向，创建后不可变
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// MessageType 消息类型
type MessageType string

const (
	MsgTypeText     MessageType = "TEXT"
	MsgTypeImage    MessageType = "IMAGE"
	MsgTypeDocument MessageType = "DOCUMENT"
	MsgTypeAudio    MessageType = "AUDIO"
	MsgTypeVideo    MessageType = "VIDEO"
	MsgTypeLocation MessageType = "LOCATION"
	MsgTypeTemplate MessageType = "TEMPLATE"
)

// DeliveryStatus 出站消息投递状态，只能单调前进
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
)

// Rank 状态先后次序，未知状态为 0
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Before 返回排在 s 之前的所有状态
func (s DeliveryStatus) Before() []DeliveryStatus {
	var res []DeliveryStatus
	for _, st := range []DeliveryStatus{StatusSent, StatusDelivered, StatusRead} {
		if st.Rank() < s.Rank() {
			res = append(res, st)
		}
	}
	return res
}

// Message 单条消息明细，只增不删
type Message struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64          `gorm:"not null;uniqueIndex:idx_conv_seq,priority:1" json:"conversationId"`
	Seq            uint64          `gorm:"not null;uniqueIndex:idx_conv_seq,priority:2" json:"seq"` // 会话内创建顺序
	Direction      Direction       `gorm:"type:varchar(16);not null" json:"direction"`
	Content        string          `gorm:"type:text;not null" json:"content"`
	MsgType        MessageType     `gorm:"type:varchar(16);not null;default:'TEXT'" json:"msgType"`
	Status         *DeliveryStatus `gorm:"type:varchar(16)" json:"status"` // 仅出站消息有效
	ReadAt         *time.Time      `json:"readAt"`                         // 只写一次
	SenderID       *uint64         `json:"senderId"`                       // 机构侧发送人
	MediaURL       *string         `gorm:"type:varchar(512)" json:"mediaUrl"`
	MediaType      *string         `gorm:"type:varchar(64)" json:"mediaType"`
	ProviderMsgID  *string         `gorm:"type:varchar(128);uniqueIndex" json:"providerMsgId"`
	CreatedAt      time.Time       `gorm:"not null" json:"createdAt"`
}

func (Message) TableName() string { return "messages" }

// IsIncoming 是否为入站消息
func (m *Message) IsIncoming() bool {
	return m.Direction == DirectionIncoming
}
