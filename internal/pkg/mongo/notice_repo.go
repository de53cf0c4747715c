package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NoticeRepo interface {
	CreateNotice(ctx context.Context, notice *NoticeModel) error
	GetNoticeList(ctx context.Context, receiverID uint64, limit, offset int64) ([]*NoticeModel, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*NoticeModel, error)
	MarkAsRead(ctx context.Context, receiverID uint64, id primitive.ObjectID) error
	MarkAllAsRead(ctx context.Context, receiverID uint64) error
	GetUnreadCount(ctx context.Context, receiverID uint64) (int64, error)
}

type noticeRepoImpl struct {
	col *mongo.Collection
}

func NewNoticeRepo(db *mongo.Database) NoticeRepo {
	return &noticeRepoImpl{
		col: db.Collection(NoticeCollection),
	}
}

// CreateNotice 插入新提醒，ID 由驱动回填
func (s *noticeRepoImpl) CreateNotice(ctx context.Context, notice *NoticeModel) error {
	res, err := s.col.InsertOne(ctx, notice)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		notice.ID = oid
	}
	return nil
}

// GetNoticeList 分页获取提醒 (按时间倒序)
func (s *noticeRepoImpl) GetNoticeList(ctx context.Context, receiverID uint64, limit, offset int64) ([]*NoticeModel, error) {
	filter := bson.M{"receiver_id": receiverID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	list := make([]*NoticeModel, 0)
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetByID 根据 ID 获取提醒
func (s *noticeRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*NoticeModel, error) {
	var notice NoticeModel
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&notice)
	if err != nil {
		return nil, err
	}
	return &notice, nil
}

// MarkAsRead 标记单条提醒为已读
func (s *noticeRepoImpl) MarkAsRead(ctx context.Context, receiverID uint64, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "receiver_id": receiverID}
	update := bson.M{"$set": bson.M{"is_read": true}}
	result, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkAllAsRead 一键已读
func (s *noticeRepoImpl) MarkAllAsRead(ctx context.Context, receiverID uint64) error {
	filter := bson.M{"receiver_id": receiverID, "is_read": false}
	update := bson.M{"$set": bson.M{"is_read": true}}
	_, err := s.col.UpdateMany(ctx, filter, update)
	return err
}

// GetUnreadCount 未读提醒数
func (s *noticeRepoImpl) GetUnreadCount(ctx context.Context, receiverID uint64) (int64, error) {
	filter := bson.M{"receiver_id": receiverID, "is_read": false}
	return s.col.CountDocuments(ctx, filter)
}
