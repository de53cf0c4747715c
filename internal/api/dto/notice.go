package dto

// NoticeDTO 站内提醒返回对象
type NoticeDTO struct {
	ID             string `json:"id"`
	Type           int8   `json:"type"` // 1-投递失败
	BranchID       uint64 `json:"branch_id"`
	ConversationID uint64 `json:"conversation_id"`
	MessageID      uint64 `json:"message_id"`
	Content        string `json:"content"` // 消息预览
	Reason         string `json:"reason"`
	Attempts       int    `json:"attempts"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      string `json:"created_at"`
}

// NoticeUnreadDTO 未读数返回
type NoticeUnreadDTO struct {
	UnreadCount int64 `json:"unread_count"`
}

// NoticeReadReq 标记单条已读
type NoticeReadReq struct {
	NoticeID string `json:"noticeId" binding:"required"`
}
