package service

import (
	"Campus/internal/model"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNoticeLifecycle(t *testing.T) {
	repo := &fakeNoticeRepo{}
	svc := NewNoticeService(repo)
	ctx := context.Background()

	sender := uint64(5)
	conv := &model.Conversation{ID: 3, BranchID: 1}
	for i := 0; i < 3; i++ {
		msg := &model.Message{ID: uint64(10 + i), SenderID: &sender, Content: strings.Repeat("长", 100)}
		derr := &DeliveryError{MessageID: msg.ID, Attempts: 3, Err: errors.New("timeout")}
		require.NoError(t, svc.NotifyDeliveryFailed(ctx, conv, msg, derr))
	}

	list, err := svc.GetNoticeList(ctx, sender, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "timeout", list[0].Reason)
	assert.LessOrEqual(t, len([]rune(list[0].Content)), noticePreviewLen+1)

	unread, err := svc.GetUnreadCount(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread.UnreadCount)

	require.NoError(t, svc.MarkRead(ctx, sender, list[0].ID))
	assert.ErrorIs(t, svc.MarkRead(ctx, 99, list[1].ID), ErrNoticeNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, sender, primitive.NewObjectID().Hex()), ErrNoticeNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, sender, "not-an-id"), ErrParamInvalid)

	unread, err = svc.GetUnreadCount(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread.UnreadCount)

	require.NoError(t, svc.MarkAllRead(ctx, sender))
	unread, err = svc.GetUnreadCount(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread.UnreadCount)
}
