package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const NoticeCollection = "comm_notice"

const (
	NoticeDeliveryFailed int8 = 1 // 消息已保存但外部通道投递失败
)

// NoticeModel 通讯模块站内提醒
type NoticeModel struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReceiverID     uint64             `bson:"receiver_id" json:"receiverId"`         // 接收提醒的教职工
	BranchID       uint64             `bson:"branch_id" json:"branchId"`             // 所属分校
	Type           int8               `bson:"type" json:"type"`                      // 提醒类型: 1-投递失败
	ConversationID uint64             `bson:"conversation_id" json:"conversationId"` // 关联会话
	MessageID      uint64             `bson:"message_id" json:"messageId"`           // 关联消息
	Content        string             `bson:"content" json:"content"`                // 消息内容预览
	Reason         string             `bson:"reason" json:"reason"`                  // 失败原因
	Attempts       int                `bson:"attempts" json:"attempts"`
	IsRead         bool               `bson:"is_read" json:"isRead"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}
