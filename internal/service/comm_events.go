package service

import (
	"Campus/internal/api/dto"
	"Campus/internal/model"
	"Campus/internal/pkg/consts"
	"Campus/internal/pkg/redis"
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
)

// BranchChannel 分校变更推送频道
func BranchChannel(branchID uint64) string {
	return consts.CommBranchChannel + strconv.FormatUint(branchID, 10)
}

// publishEvent 推送失败只记录日志，不影响主流程
func publishEvent(ctx context.Context, evt *dto.CommEventDTO) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.ErrorContext(ctx, "Failed to marshal comm event", "type", evt.Type, "err", err)
		return
	}
	if err = redis.Publish(ctx, BranchChannel(evt.BranchID), data); err != nil {
		log.WarnContext(ctx, "Failed to publish comm event", "type", evt.Type, "err", err)
	}
}

func viewingKey(convID uint64) string {
	return consts.CommViewingKey + strconv.FormatUint(convID, 10)
}

// openDebounceKey 同一序号下的重复打开手势合并为一次
func openDebounceKey(convID, maxSeq uint64) string {
	return fmt.Sprintf("%s%d:%d", consts.CommOpenDebounceKey, convID, maxSeq)
}

// markViewing 刷新会话正在展示的标记
func markViewing(ctx context.Context, convID uint64, ttl time.Duration) {
	if err := redis.Touch(ctx, viewingKey(convID), ttl); err != nil {
		log.WarnContext(ctx, "Failed to refresh viewing presence", "conversationID", convID, "err", err)
	}
}

// isViewing Redis 异常时按未查看处理，宁可多计未读
func isViewing(ctx context.Context, convID uint64) bool {
	ok, err := redis.Exists(ctx, viewingKey(convID))
	if err != nil {
		log.WarnContext(ctx, "Failed to read viewing presence", "conversationID", convID, "err", err)
		return false
	}
	return ok
}

func toMessageDTO(m *model.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	return d
}

func toMessageDTOs(list []*model.Message) []*dto.MessageDTO {
	res := make([]*dto.MessageDTO, 0, len(list))
	for _, m := range list {
		res = append(res, toMessageDTO(m))
	}
	return res
}

func toConversationDTO(c *model.Conversation) *dto.ConversationDTO {
	d := &dto.ConversationDTO{
		ID:                 c.ID,
		ParticipantType:    c.ParticipantType,
		ParticipantID:      c.ParticipantID,
		ParticipantName:    c.ParticipantName,
		ParticipantPhone:   c.ParticipantPhone,
		BranchID:           c.BranchID,
		IsActive:           c.IsActive,
		LastMessageAt:      c.LastMessageAt,
		LastMessageContent: c.LastMessageContent,
		LastMessageFrom:    c.LastMessageFrom,
		UnreadCount:        c.UnreadCount,
		TotalMessages:      c.TotalMessages,
		MaxMsgSeq:          c.MaxMsgSeq,
	}
	if len(c.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(c.Metadata, &meta); err == nil {
			d.Metadata = meta
		}
	}
	return d
}

func toConversationDTOs(list []*model.Conversation) []*dto.ConversationDTO {
	res := make([]*dto.ConversationDTO, 0, len(list))
	for _, c := range list {
		res = append(res, toConversationDTO(c))
	}
	return res
}
