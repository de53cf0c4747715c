package service

import (
	"Campus/internal/api/dto"
	"Campus/internal/model"
	"Campus/internal/pkg/mongo"
	"Campus/internal/pkg/util"
	"context"
	"errors"
	"time"

	"github.com/jinzhu/copier"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

const noticePreviewLen = 60

type NoticeService interface {
	NotifyDeliveryFailed(ctx context.Context, conv *model.Conversation, msg *model.Message, derr *DeliveryError) error
	GetNoticeList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NoticeDTO, error)
	GetUnreadCount(ctx context.Context, userID uint64) (*dto.NoticeUnreadDTO, error)
	MarkRead(ctx context.Context, userID uint64, noticeID string) error
	MarkAllRead(ctx context.Context, userID uint64) error
}

type noticeServiceImpl struct {
	noticeRepo mongo.NoticeRepo
}

func NewNoticeService(noticeRepo mongo.NoticeRepo) NoticeService {
	return &noticeServiceImpl{
		noticeRepo: noticeRepo,
	}
}

// NotifyDeliveryFailed 给发送人写一条 "消息已保存但未送达" 提醒
func (s *noticeServiceImpl) NotifyDeliveryFailed(ctx context.Context, conv *model.Conversation, msg *model.Message, derr *DeliveryError) error {
	var receiverID uint64
	if msg.SenderID != nil {
		receiverID = *msg.SenderID
	}

	notice := &mongo.NoticeModel{
		ReceiverID:     receiverID,
		BranchID:       conv.BranchID,
		Type:           mongo.NoticeDeliveryFailed,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Content:        util.Preview(msg.Content, noticePreviewLen),
		Reason:         derr.Err.Error(),
		Attempts:       derr.Attempts,
		CreatedAt:      time.Now(),
	}
	return s.noticeRepo.CreateNotice(ctx, notice)
}

// GetNoticeList 分页获取提醒
func (s *noticeServiceImpl) GetNoticeList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NoticeDTO, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 10
	}
	limit := int64(pageSize)
	offset := int64((page - 1) * pageSize)

	list, err := s.noticeRepo.GetNoticeList(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.NoticeDTO, 0, len(list))
	for _, m := range list {
		d := &dto.NoticeDTO{}
		_ = copier.Copy(d, m)
		d.ID = m.ID.Hex()
		d.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339)
		res = append(res, d)
	}
	return res, nil
}

// GetUnreadCount 获取未读数
func (s *noticeServiceImpl) GetUnreadCount(ctx context.Context, userID uint64) (*dto.NoticeUnreadDTO, error) {
	count, err := s.noticeRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.NoticeUnreadDTO{UnreadCount: count}, nil
}

// MarkRead 标记单条已读
func (s *noticeServiceImpl) MarkRead(ctx context.Context, userID uint64, noticeID string) error {
	objectID, err := primitive.ObjectIDFromHex(noticeID)
	if err != nil {
		return ErrParamInvalid
	}

	notice, err := s.noticeRepo.GetByID(ctx, objectID)
	if err != nil {
		if errors.Is(err, mongoDB.ErrNoDocuments) {
			return ErrNoticeNotFound
		}
		return err
	}

	if notice.ReceiverID != userID {
		return ErrNoticeNotFound
	}
	if notice.IsRead {
		return nil
	}

	return s.noticeRepo.MarkAsRead(ctx, userID, objectID)
}

// MarkAllRead 一键已读
func (s *noticeServiceImpl) MarkAllRead(ctx context.Context, userID uint64) error {
	return s.noticeRepo.MarkAllAsRead(ctx, userID)
}
