package es

import "time"

// MessageES 写入 ES 的消息检索文档
type MessageES struct {
	ID              uint64    `json:"id"`
	ConversationID  uint64    `json:"conversation_id"`
	BranchID        uint64    `json:"branch_id"`
	Seq             uint64    `json:"seq"`
	Direction       string    `json:"direction"`
	MsgType         string    `json:"msg_type"`
	Status          string    `json:"status,omitempty"`
	Content         string    `json:"content"`
	ParticipantType string    `json:"participant_type"`
	ParticipantName string    `json:"participant_name"`
	CreatedAt       time.Time `json:"created_at"`
}
