package service

import (
	"Campus/internal/api/config"
	"Campus/internal/api/dto"
	"Campus/internal/model"
	"Campus/internal/pkg/consts"
	"Campus/internal/pkg/es"
	"Campus/internal/pkg/logger"
	"Campus/internal/pkg/redis"
	"Campus/internal/pkg/util"
	"Campus/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

const (
	deliveryQueueFullWarning = "消息已保存，但投递队列繁忙，暂未送达"
	indexTimeout             = 3 * time.Second
)

// CommService 通讯模块：会话列表、消息线程、已读状态与发送管线
type CommService interface {
	ListConversations(ctx context.Context, q *dto.ConversationQuery) ([]*dto.ConversationDTO, error)
	GetConversation(ctx context.Context, branchID, convID uint64) (*dto.ConversationDTO, error)
	GetTotalUnread(ctx context.Context, branchID uint64) (*dto.UnreadDTO, error)
	ListMessages(ctx context.Context, q *dto.MessageQuery) (*dto.MessagePageDTO, error)
	SyncMessages(ctx context.Context, q *dto.SyncQuery) ([]*dto.MessageDTO, error)
	OpenConversation(ctx context.Context, branchID, convID uint64) (*dto.ConversationDTO, error)
	SendMessage(ctx context.Context, senderID, convID uint64, req *dto.SendMessageReq) (*dto.SendResultDTO, error)
	ReceiveIncoming(ctx context.Context, req *dto.InboundMessageReq) (*dto.MessageDTO, error)
	ApplyReceipt(ctx context.Context, req *dto.DeliveryReceiptReq) error
	SetActive(ctx context.Context, convID uint64, req *dto.SetActiveReq) (*dto.ConversationDTO, error)
	SearchMessages(ctx context.Context, branchID uint64, keyword string, size int) ([]*dto.SearchHitDTO, error)
	RepairRecent(ctx context.Context, since time.Time, limit int) (int, error)
	Close()
}

type commServiceImpl struct {
	convRepo   repository.ConversationRepo
	msgRepo    repository.MessageRepo
	searchRepo es.MessageRepo
	dispatcher *DeliveryDispatcher
	notices    NoticeService
	viewingTTL time.Duration
}

// NewCommService searchRepo 可为 nil，此时不建立检索索引
func NewCommService(
	convRepo repository.ConversationRepo,
	msgRepo repository.MessageRepo,
	searchRepo es.MessageRepo,
	dispatcher *DeliveryDispatcher,
	notices NoticeService,
	cfg config.CommConfig,
) CommService {
	ttl := time.Duration(cfg.ViewingTTL) * time.Second
	if ttl <= 0 {
		ttl = consts.DefaultViewingTTL
	}
	s := &commServiceImpl{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		searchRepo: searchRepo,
		dispatcher: dispatcher,
		notices:    notices,
		viewingTTL: ttl,
	}
	dispatcher.OnFailure(s.handleDeliveryFailure)
	return s
}

// ListConversations 会话列表
func (s *commServiceImpl) ListConversations(ctx context.Context, q *dto.ConversationQuery) ([]*dto.ConversationDTO, error) {
	if q.BranchID == 0 {
		return nil, ErrBranchRequired
	}
	if err := util.ValidateDTO(q); err != nil {
		return nil, paramError(err)
	}

	filter := repository.ConversationFilter{
		BranchID:        q.BranchID,
		Search:          q.Search,
		IncludeInactive: q.IncludeInactive,
	}
	if q.ParticipantType != "" {
		filter.ParticipantType = model.ParseParticipantType(q.ParticipantType)
	}

	list, err := s.convRepo.ListConversations(ctx, filter, q.Limit)
	if err != nil {
		return nil, err
	}
	return toConversationDTOs(list), nil
}

func (s *commServiceImpl) GetConversation(ctx context.Context, branchID, convID uint64) (*dto.ConversationDTO, error) {
	conv, err := s.loadConversation(ctx, branchID, convID)
	if err != nil {
		return nil, err
	}
	return toConversationDTO(conv), nil
}

// GetTotalUnread 分校维度的未读角标
func (s *commServiceImpl) GetTotalUnread(ctx context.Context, branchID uint64) (*dto.UnreadDTO, error) {
	if branchID == 0 {
		return nil, ErrBranchRequired
	}
	total, err := s.convRepo.GetTotalUnreadCount(ctx, branchID)
	if err != nil {
		return nil, err
	}
	return &dto.UnreadDTO{UnreadCount: total}, nil
}

// ListMessages 历史分页，viewing=true 时刷新 "正在查看" 标记
func (s *commServiceImpl) ListMessages(ctx context.Context, q *dto.MessageQuery) (*dto.MessagePageDTO, error) {
	if err := util.ValidateDTO(q); err != nil {
		return nil, paramError(err)
	}
	conv, err := s.loadConversation(ctx, q.BranchID, q.ConversationID)
	if err != nil {
		return nil, err
	}
	if q.Viewing && conv.IsActive {
		markViewing(ctx, conv.ID, s.viewingTTL)
	}

	limit := repository.ClampLimit(q.Limit)
	list, err := s.msgRepo.ListByConversation(ctx, conv.ID, q.BeforeSeq, limit)
	if err != nil {
		return nil, err
	}

	page := &dto.MessagePageDTO{Messages: toMessageDTOs(list)}
	if len(list) == limit && list[0].Seq > 1 {
		page.NextBeforeSeq = list[0].Seq
	}
	return page, nil
}

// SyncMessages 增量拉取 afterSeq 之后的新消息
func (s *commServiceImpl) SyncMessages(ctx context.Context, q *dto.SyncQuery) ([]*dto.MessageDTO, error) {
	if err := util.ValidateDTO(q); err != nil {
		return nil, paramError(err)
	}
	conv, err := s.loadConversation(ctx, q.BranchID, q.ConversationID)
	if err != nil {
		return nil, err
	}
	if q.Viewing && conv.IsActive {
		markViewing(ctx, conv.ID, s.viewingTTL)
	}
	if q.AfterSeq >= conv.MaxMsgSeq {
		return []*dto.MessageDTO{}, nil
	}

	list, err := s.msgRepo.SyncAfter(ctx, conv.ID, q.AfterSeq, q.Limit)
	if err != nil {
		return nil, err
	}
	return toMessageDTOs(list), nil
}

// OpenConversation 打开会话：已读时间戳与未读清零在同一事务内完成
func (s *commServiceImpl) OpenConversation(ctx context.Context, branchID, convID uint64) (*dto.ConversationDTO, error) {
	conv, err := s.loadConversation(ctx, branchID, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, ErrConversationInactive
	}

	// 同一序号快照上的重复打开只落库一次
	debounceKey := ""
	if conv.UnreadCount > 0 || conv.ReadMsgSeq < conv.MaxMsgSeq {
		key := openDebounceKey(conv.ID, conv.MaxMsgSeq)
		acquired, lockErr := redis.SetOnce(ctx, key, consts.OpenDebounceTTL)
		if lockErr != nil {
			log.WarnContext(ctx, "Open debounce unavailable", "conversationID", conv.ID, "err", lockErr)
		} else if !acquired {
			return toConversationDTO(conv), nil
		} else {
			debounceKey = key
		}
	}

	updated, changed, err := s.convRepo.MarkOpenedFrom(ctx, conv, time.Now())
	if err != nil {
		// 落库失败时释放去抖键，允许立即重试
		if debounceKey != "" {
			if delErr := redis.Del(context.WithoutCancel(ctx), debounceKey); delErr != nil {
				log.WarnContext(ctx, "Release open debounce failed", "conversationID", conv.ID, "err", delErr)
			}
		}
		return nil, s.translate(err)
	}

	res := toConversationDTO(updated)
	if changed {
		publishEvent(ctx, &dto.CommEventDTO{
			Type:           dto.EventConversationRead,
			BranchID:       updated.BranchID,
			ConversationID: updated.ID,
			Conversation:   res,
		})
	}
	return res, nil
}

// SendMessage 发送管线：先落库再异步投递，投递失败不回滚本地消息
func (s *commServiceImpl) SendMessage(ctx context.Context, senderID, convID uint64, req *dto.SendMessageReq) (*dto.SendResultDTO, error) {
	if req.BranchID == 0 {
		return nil, ErrBranchRequired
	}
	if err := util.ValidateDTO(req); err != nil {
		return nil, paramError(err)
	}
	msgType := req.MsgType
	if msgType == "" {
		msgType = model.MsgTypeText
	}
	if util.IsBlank(req.Content) && (msgType == model.MsgTypeText || req.MediaURL == nil) {
		return nil, ErrValidation
	}

	conv, err := s.loadConversation(ctx, req.BranchID, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, ErrConversationInactive
	}

	msg := &model.Message{
		Direction: model.DirectionOutgoing,
		Content:   req.Content,
		MsgType:   msgType,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	}
	if senderID > 0 {
		msg.SenderID = &senderID
	}

	updated, err := s.convRepo.AppendToConversation(ctx, conv.ID, msg, false)
	if err != nil {
		return nil, s.translate(err)
	}

	msgDTO := toMessageDTO(msg)
	publishEvent(ctx, &dto.CommEventDTO{
		Type:           dto.EventMessageCreated,
		BranchID:       updated.BranchID,
		ConversationID: updated.ID,
		Conversation:   toConversationDTO(updated),
		Message:        msgDTO,
	})
	s.indexAsync(updated, msg)

	res := &dto.SendResultDTO{Message: msgDTO}
	task := &DeliveryTask{Conversation: updated, Message: msg, TraceID: logger.TraceID(ctx)}
	if !s.dispatcher.Enqueue(task) {
		log.WarnContext(ctx, "Delivery queue full, message saved only", "messageID", msg.ID)
		res.Warning = deliveryQueueFullWarning
	}
	return res, nil
}

// ReceiveIncoming 入站消息：按通道消息 ID 去重，按对端键懒创建会话
func (s *commServiceImpl) ReceiveIncoming(ctx context.Context, req *dto.InboundMessageReq) (*dto.MessageDTO, error) {
	if req.BranchID == 0 {
		return nil, ErrBranchRequired
	}
	if err := util.ValidateDTO(req); err != nil {
		return nil, paramError(err)
	}
	if util.IsBlank(req.Content) && req.MediaURL == nil {
		return nil, ErrValidation
	}

	if req.ProviderMsgID != "" {
		existing, err := s.msgRepo.GetByProviderMsgID(ctx, req.ProviderMsgID)
		if err == nil {
			return toMessageDTO(existing), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	participant := &model.Participant{
		Key: model.ParticipantKey{
			BranchID: req.BranchID,
			Type:     model.ParseParticipantType(req.ParticipantType),
			ID:       req.ParticipantID,
			Phone:    strings.TrimSpace(req.Phone),
		},
		Name:  strings.TrimSpace(req.ParticipantName),
		Phone: strings.TrimSpace(req.Phone),
	}
	if err := participant.Key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, ErrParamInvalid
		}
		participant.Metadata = raw
	}

	viewing := false
	if existing, err := s.convRepo.GetByParticipantKey(ctx, participant.Key.String()); err == nil {
		viewing = isViewing(ctx, existing.ID)
	}

	msgType := req.MsgType
	if msgType == "" {
		msgType = model.MsgTypeText
	}
	msg := &model.Message{
		Direction: model.DirectionIncoming,
		Content:   req.Content,
		MsgType:   msgType,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	}
	if req.ProviderMsgID != "" {
		providerID := req.ProviderMsgID
		msg.ProviderMsgID = &providerID
	}

	conv, err := s.convRepo.UpsertOnMessage(ctx, participant, msg, viewing)
	if err != nil {
		// 并发重复投递撞上唯一键时返回已入库的那条
		if msg.ProviderMsgID != nil {
			if existing, findErr := s.msgRepo.GetByProviderMsgID(ctx, *msg.ProviderMsgID); findErr == nil {
				return toMessageDTO(existing), nil
			}
		}
		return nil, s.translate(err)
	}

	msgDTO := toMessageDTO(msg)
	publishEvent(ctx, &dto.CommEventDTO{
		Type:           dto.EventMessageCreated,
		BranchID:       conv.BranchID,
		ConversationID: conv.ID,
		Conversation:   toConversationDTO(conv),
		Message:        msgDTO,
	})
	s.indexAsync(conv, msg)
	return msgDTO, nil
}

// ApplyReceipt 投递回执推进出站状态，重复或倒退的回执静默忽略
func (s *commServiceImpl) ApplyReceipt(ctx context.Context, req *dto.DeliveryReceiptReq) error {
	if err := util.ValidateDTO(req); err != nil {
		return paramError(err)
	}
	msg, changed, err := s.msgRepo.AdvanceStatus(ctx, req.ProviderMsgID, req.Status)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if !changed {
		return nil
	}

	conv, err := s.convRepo.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return s.translate(err)
	}
	publishEvent(ctx, &dto.CommEventDTO{
		Type:           dto.EventMessageStatus,
		BranchID:       conv.BranchID,
		ConversationID: conv.ID,
		Message:        toMessageDTO(msg),
	})
	s.indexAsync(conv, msg)
	return nil
}

// SetActive 停用 / 重新启用会话
func (s *commServiceImpl) SetActive(ctx context.Context, convID uint64, req *dto.SetActiveReq) (*dto.ConversationDTO, error) {
	if req.Active == nil {
		return nil, ErrParamInvalid
	}
	conv, err := s.loadConversation(ctx, req.BranchID, convID)
	if err != nil {
		return nil, err
	}

	updated, err := s.convRepo.SetActive(ctx, conv.ID, *req.Active)
	if err != nil {
		return nil, s.translate(err)
	}

	res := toConversationDTO(updated)
	if conv.IsActive != updated.IsActive {
		publishEvent(ctx, &dto.CommEventDTO{
			Type:           dto.EventConversationMeta,
			BranchID:       updated.BranchID,
			ConversationID: updated.ID,
			Conversation:   res,
		})
	}
	return res, nil
}

// SearchMessages 分校内消息全文检索
func (s *commServiceImpl) SearchMessages(ctx context.Context, branchID uint64, keyword string, size int) ([]*dto.SearchHitDTO, error) {
	if branchID == 0 {
		return nil, ErrBranchRequired
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrParamInvalid
	}
	if s.searchRepo == nil {
		return nil, ErrSearchUnavailable
	}

	docs, err := s.searchRepo.Search(ctx, branchID, 0, keyword, size)
	if err != nil {
		log.ErrorContext(ctx, "Message search failed", "err", err)
		return nil, ErrSearchUnavailable
	}

	res := make([]*dto.SearchHitDTO, 0, len(docs))
	for _, d := range docs {
		res = append(res, &dto.SearchHitDTO{
			MessageID:       d.ID,
			ConversationID:  d.ConversationID,
			ParticipantName: d.ParticipantName,
			Direction:       model.Direction(d.Direction),
			Content:         d.Content,
			CreatedAt:       d.CreatedAt,
		})
	}
	return res, nil
}

// RepairRecent 以消息明细为准校准最近变动会话的缓存字段，返回处理数量
func (s *commServiceImpl) RepairRecent(ctx context.Context, since time.Time, limit int) (int, error) {
	ids, err := s.convRepo.ListUpdatedSince(ctx, since, limit)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		if _, err = s.convRepo.Recompute(ctx, id); err != nil {
			log.ErrorContext(ctx, "Conversation repair failed", "conversationID", id, "err", err)
			continue
		}
		repaired++
	}
	return repaired, nil
}

func (s *commServiceImpl) Close() {
	s.dispatcher.Close()
}

// loadConversation 跨分校访问视同不存在
func (s *commServiceImpl) loadConversation(ctx context.Context, branchID, convID uint64) (*model.Conversation, error) {
	if branchID == 0 {
		return nil, ErrBranchRequired
	}
	if convID == 0 {
		return nil, ErrConversationNotFound
	}
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, s.translate(err)
	}
	if conv.BranchID != branchID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// translate 仓储层错误转为业务错误
func (s *commServiceImpl) translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrConversationNotFound
	case errors.Is(err, repository.ErrConversationInactive):
		return ErrConversationInactive
	default:
		return err
	}
}

// handleDeliveryFailure 最终投递失败：写提醒并推送事件，消息保持 SENT
func (s *commServiceImpl) handleDeliveryFailure(ctx context.Context, task *DeliveryTask, derr *DeliveryError) {
	if s.notices != nil {
		if err := s.notices.NotifyDeliveryFailed(ctx, task.Conversation, task.Message, derr); err != nil {
			log.ErrorContext(ctx, "Failed to write delivery notice", "messageID", task.Message.ID, "err", err)
		}
	}
	publishEvent(ctx, &dto.CommEventDTO{
		Type:           dto.EventDeliveryFailed,
		BranchID:       task.Conversation.BranchID,
		ConversationID: task.Conversation.ID,
		Message:        toMessageDTO(task.Message),
	})
}

// indexAsync 检索索引尽力而为
func (s *commServiceImpl) indexAsync(conv *model.Conversation, msg *model.Message) {
	if s.searchRepo == nil {
		return
	}
	doc := &es.MessageES{
		ID:              msg.ID,
		ConversationID:  conv.ID,
		BranchID:        conv.BranchID,
		Seq:             msg.Seq,
		Direction:       string(msg.Direction),
		MsgType:         string(msg.MsgType),
		Content:         msg.Content,
		ParticipantType: string(conv.ParticipantType),
		ParticipantName: conv.ParticipantName,
		CreatedAt:       msg.CreatedAt,
	}
	version := int64(1)
	if msg.Status != nil {
		doc.Status = string(*msg.Status)
		version = int64(msg.Status.Rank())
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := s.searchRepo.IndexMessage(ctx, doc, version); err != nil {
			log.Warn("Failed to index message", "messageID", doc.ID, "err", err)
		}
	}()
}
