package model

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ParticipantType 会话对端身份
type ParticipantType string

const (
	ParticipantStudent  ParticipantType = "STUDENT"
	ParticipantTeacher  ParticipantType = "TEACHER"
	ParticipantEmployee ParticipantType = "EMPLOYEE"
	ParticipantParent   ParticipantType = "PARENT"
	ParticipantUnknown  ParticipantType = "UNKNOWN"
)

// ParseParticipantType 不区分大小写解析，无法识别时归为 UNKNOWN
func ParseParticipantType(s string) ParticipantType {
	switch ParticipantType(strings.ToUpper(strings.TrimSpace(s))) {
	case ParticipantStudent:
		return ParticipantStudent
	case ParticipantTeacher:
		return ParticipantTeacher
	case ParticipantEmployee:
		return ParticipantEmployee
	case ParticipantParent:
		return ParticipantParent
	default:
		return ParticipantUnknown
	}
}

// Valid 是否为已定义的类型
func (p ParticipantType) Valid() bool {
	return ParseParticipantType(string(p)) == p
}

// Conversation 会话聚合：每个 (对端, 分校) 一行，缓存最后一条消息与未读数
type Conversation struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ParticipantKey   string          `gorm:"uniqueIndex;type:varchar(96);not null" json:"participantKey"`
	ParticipantType  ParticipantType `gorm:"type:varchar(16);not null;default:'UNKNOWN';index" json:"participantType"`
	ParticipantID    uint64          `gorm:"not null;default:0" json:"participantId"`
	ParticipantName  string          `gorm:"type:varchar(128);not null;default:''" json:"participantName"`
	ParticipantPhone string          `gorm:"type:varchar(32);not null;default:''" json:"participantPhone"`
	BranchID         uint64          `gorm:"not null;index:idx_branch_last,priority:1" json:"branchId"`
	IsActive         bool            `gorm:"not null;default:true" json:"isActive"`
	Metadata         datatypes.JSON  `json:"metadata"`

	MaxMsgSeq  uint64 `gorm:"not null;default:0" json:"maxMsgSeq"`  // 已分配的最大消息序号
	ReadMsgSeq uint64 `gorm:"not null;default:0" json:"readMsgSeq"` // 最近一次打开会话时覆盖到的序号

	LastMessageAt      *time.Time `gorm:"index:idx_branch_last,priority:2" json:"lastMessageAt"`
	LastMessageContent string     `gorm:"type:text" json:"lastMessageContent"`
	LastMessageFrom    *Direction `gorm:"type:varchar(16)" json:"lastMessageFrom"`
	UnreadCount        uint32     `gorm:"not null;default:0" json:"unreadCount"`
	TotalMessages      uint64     `gorm:"not null;default:0" json:"totalMessages"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// ParticipantKey 懒创建会话时使用的唯一键
type ParticipantKey struct {
	BranchID uint64
	Type     ParticipantType
	ID       uint64
	Phone    string
}

// String 已知身份按 ID 定位，未知身份退化为按手机号定位
func (k ParticipantKey) String() string {
	if k.Type != ParticipantUnknown && k.ID > 0 {
		return fmt.Sprintf("%d:%s:%d", k.BranchID, k.Type, k.ID)
	}
	return fmt.Sprintf("%d:%s:%s", k.BranchID, ParticipantUnknown, k.Phone)
}

// Validate 检查必填字段
func (k ParticipantKey) Validate() error {
	if k.BranchID == 0 {
		return fmt.Errorf("branch id is required")
	}
	if !k.Type.Valid() {
		return fmt.Errorf("invalid participant type %q", k.Type)
	}
	if (k.Type == ParticipantUnknown || k.ID == 0) && k.Phone == "" {
		return fmt.Errorf("participant id or phone is required")
	}
	return nil
}

// Participant 首次创建会话时写入的对端资料
type Participant struct {
	Key      ParticipantKey
	Name     string
	Phone    string
	Metadata datatypes.JSON
}
