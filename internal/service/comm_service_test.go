package service

import (
	"Campus/internal/api/dto"
	"Campus/internal/model"
	"Campus/internal/pkg/whatsapp"
	"Campus/internal/repository"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const branch = uint64(1)

func inbound(content, providerID string) *dto.InboundMessageReq {
	return &dto.InboundMessageReq{
		BranchID:        branch,
		ParticipantType: "parent",
		ParticipantID:   42,
		ParticipantName: "Mrs. Rao",
		Phone:           "+91 98450 00000",
		Content:         content,
		ProviderMsgID:   providerID,
	}
}

func TestSendListOpenFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("is the bus late?", "wamid.in.1"))
	require.NoError(t, err)
	convID := in.ConversationID

	list, err := env.svc.ListConversations(ctx, &dto.ConversationQuery{BranchID: branch})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ParticipantParent, list[0].ParticipantType)
	assert.Equal(t, uint32(1), list[0].UnreadCount)

	res, err := env.svc.SendMessage(ctx, 77, convID, &dto.SendMessageReq{BranchID: branch, Content: "10 minutes"})
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	require.NotNil(t, res.Message.Status)
	assert.Equal(t, model.StatusSent, *res.Message.Status)
	assert.Equal(t, uint64(2), res.Message.Seq)

	list, err = env.svc.ListConversations(ctx, &dto.ConversationQuery{BranchID: branch})
	require.NoError(t, err)
	assert.Equal(t, "10 minutes", list[0].LastMessageContent)
	require.NotNil(t, list[0].LastMessageFrom)
	assert.Equal(t, model.DirectionOutgoing, *list[0].LastMessageFrom)
	assert.Equal(t, uint32(1), list[0].UnreadCount)

	opened, err := env.svc.OpenConversation(ctx, branch, convID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), opened.UnreadCount)

	page, err := env.svc.ListMessages(ctx, &dto.MessageQuery{BranchID: branch, ConversationID: convID})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, uint64(0), page.NextBeforeSeq)
	assert.Equal(t, model.DirectionIncoming, page.Messages[0].Direction)
	assert.NotNil(t, page.Messages[0].ReadAt)

	// 投递成功后写回通道消息 ID
	assert.Eventually(t, func() bool {
		m, err := env.msgRepo.GetMessage(ctx, res.Message.ID)
		return err == nil && m.ProviderMsgID != nil
	}, 2*time.Second, 10*time.Millisecond)

	total, err := env.svc.GetTotalUnread(ctx, branch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total.UnreadCount)

	assert.Eventually(t, func() bool { return env.search.size() == 2 }, time.Second, 10*time.Millisecond)
}

func TestSendRejectsBlankContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hello", ""))
	require.NoError(t, err)

	for _, content := range []string{"", "   ", "\n\t "} {
		_, err = env.svc.SendMessage(ctx, 1, in.ConversationID, &dto.SendMessageReq{BranchID: branch, Content: content})
		assert.ErrorIs(t, err, ErrValidation)
	}

	conv, err := env.svc.GetConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), conv.TotalMessages)
	assert.Equal(t, "hello", conv.LastMessageContent)
	assert.Equal(t, 0, env.sender.callCount())

	// 媒体消息允许空文本
	url := "https://cdn.example.com/timetable.pdf"
	_, err = env.svc.SendMessage(ctx, 1, in.ConversationID, &dto.SendMessageReq{
		BranchID: branch, MsgType: model.MsgTypeDocument, MediaURL: &url,
	})
	assert.NoError(t, err)
}

func TestViewingSuppressesUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("first", "wamid.a"))
	require.NoError(t, err)

	_, err = env.svc.ListMessages(ctx, &dto.MessageQuery{BranchID: branch, ConversationID: in.ConversationID, Viewing: true})
	require.NoError(t, err)
	require.True(t, env.mr.Exists(viewingKey(in.ConversationID)))
	assert.Equal(t, 15*time.Second, env.mr.TTL(viewingKey(in.ConversationID)))

	second, err := env.svc.ReceiveIncoming(ctx, inbound("second", "wamid.b"))
	require.NoError(t, err)
	assert.NotNil(t, second.ReadAt)

	conv, err := env.svc.GetConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), conv.UnreadCount)

	// 标记过期后恢复计数
	env.mr.FastForward(16 * time.Second)
	_, err = env.svc.ReceiveIncoming(ctx, inbound("third", "wamid.c"))
	require.NoError(t, err)
	conv, err = env.svc.GetConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), conv.UnreadCount)
}

func TestBranchMismatchIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)

	_, err = env.svc.GetConversation(ctx, 2, in.ConversationID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = env.svc.SendMessage(ctx, 1, in.ConversationID, &dto.SendMessageReq{BranchID: 2, Content: "x"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = env.svc.OpenConversation(ctx, 2, in.ConversationID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = env.svc.GetConversation(ctx, branch, 9999)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = env.svc.GetConversation(ctx, 0, in.ConversationID)
	assert.ErrorIs(t, err, ErrBranchRequired)
}

func TestDeliveryFailureKeepsMessageAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sender.errs = []error{&whatsapp.APIError{Status: 400, Code: 131026, Message: "not on whatsapp"}}

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)
	res, err := env.svc.SendMessage(ctx, 77, in.ConversationID, &dto.SendMessageReq{BranchID: branch, Content: "reply"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return env.notices.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, env.sender.callCount(), "4xx is not retried")

	env.notices.mu.Lock()
	n := env.notices.notices[0]
	env.notices.mu.Unlock()
	assert.Equal(t, uint64(77), n.ReceiverID)
	assert.Equal(t, res.Message.ID, n.MessageID)
	assert.Equal(t, 1, n.Attempts)

	m, err := env.msgRepo.GetMessage(ctx, res.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, *m.Status)
	assert.Nil(t, m.ProviderMsgID)

	unread, err := NewNoticeService(env.notices).GetUnreadCount(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread.UnreadCount)
}

func TestDeliveryRetriesTemporaryErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sender.errs = []error{
		&whatsapp.APIError{Status: 503},
		&whatsapp.APIError{Status: 429},
	}

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)
	res, err := env.svc.SendMessage(ctx, 77, in.ConversationID, &dto.SendMessageReq{BranchID: branch, Content: "reply"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := env.msgRepo.GetMessage(ctx, res.Message.ID)
		return err == nil && m.ProviderMsgID != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, env.sender.callCount())
	assert.Equal(t, 0, env.notices.count())
}

func TestSendWarnsWhenQueueUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)
	env.dispatcher.Close()

	res, err := env.svc.SendMessage(ctx, 77, in.ConversationID, &dto.SendMessageReq{BranchID: branch, Content: "reply"})
	require.NoError(t, err)
	assert.Equal(t, deliveryQueueFullWarning, res.Warning)

	conv, err := env.svc.GetConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), conv.TotalMessages)
}

func TestReceiveIncomingDedupesProviderID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := inbound("hello", "wamid.dup")
	req.Metadata = map[string]any{"class": "7B"}
	first, err := env.svc.ReceiveIncoming(ctx, req)
	require.NoError(t, err)
	second, err := env.svc.ReceiveIncoming(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	conv, err := env.svc.GetConversation(ctx, branch, first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), conv.TotalMessages)
	assert.Equal(t, "7B", conv.Metadata["class"])

	_, err = env.svc.ReceiveIncoming(ctx, &dto.InboundMessageReq{BranchID: branch, Content: "who am i"})
	assert.ErrorIs(t, err, ErrParamInvalid)
	_, err = env.svc.ReceiveIncoming(ctx, &dto.InboundMessageReq{Content: "x", Phone: "1"})
	assert.ErrorIs(t, err, ErrBranchRequired)
}

func TestApplyReceiptAdvancesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)
	res, err := env.svc.SendMessage(ctx, 77, in.ConversationID, &dto.SendMessageReq{BranchID: branch, Content: "reply"})
	require.NoError(t, err)

	var providerID string
	require.Eventually(t, func() bool {
		m, err := env.msgRepo.GetMessage(ctx, res.Message.ID)
		if err != nil || m.ProviderMsgID == nil {
			return false
		}
		providerID = *m.ProviderMsgID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.svc.ApplyReceipt(ctx, &dto.DeliveryReceiptReq{ProviderMsgID: providerID, Status: model.StatusRead}))
	require.NoError(t, env.svc.ApplyReceipt(ctx, &dto.DeliveryReceiptReq{ProviderMsgID: providerID, Status: model.StatusDelivered}))

	m, err := env.msgRepo.GetMessage(ctx, res.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, *m.Status)

	err = env.svc.ApplyReceipt(ctx, &dto.DeliveryReceiptReq{ProviderMsgID: "wamid.none", Status: model.StatusRead})
	assert.ErrorIs(t, err, ErrMessageNotFound)
	err = env.svc.ApplyReceipt(ctx, &dto.DeliveryReceiptReq{ProviderMsgID: providerID, Status: "FAILED"})
	assert.ErrorIs(t, err, ErrParamInvalid)
}

func TestInactiveConversationIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)

	inactive := false
	conv, err := env.svc.SetActive(ctx, in.ConversationID, &dto.SetActiveReq{BranchID: branch, Active: &inactive})
	require.NoError(t, err)
	assert.False(t, conv.IsActive)

	_, err = env.svc.SendMessage(ctx, 1, in.ConversationID, &dto.SendMessageReq{BranchID: branch, Content: "x"})
	assert.ErrorIs(t, err, ErrConversationInactive)
	_, err = env.svc.OpenConversation(ctx, branch, in.ConversationID)
	assert.ErrorIs(t, err, ErrConversationInactive)

	page, err := env.svc.ListMessages(ctx, &dto.MessageQuery{BranchID: branch, ConversationID: in.ConversationID, Viewing: true})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.False(t, env.mr.Exists(viewingKey(in.ConversationID)))

	list, err := env.svc.ListConversations(ctx, &dto.ConversationQuery{BranchID: branch})
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = env.svc.ListConversations(ctx, &dto.ConversationQuery{BranchID: branch, IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOpenDebounceSkipsDuplicateGesture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)

	// 同一快照的打开手势已在处理中
	require.NoError(t, env.mr.Set(openDebounceKey(in.ConversationID, 1), "1"))
	conv, err := env.svc.OpenConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), conv.UnreadCount)

	env.mr.Del(openDebounceKey(in.ConversationID, 1))
	conv, err = env.svc.OpenConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), conv.UnreadCount)

	// 已读状态下不再占用去抖键
	_, err = env.svc.OpenConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
}

type failingOpenRepo struct {
	repository.ConversationRepo
	fail bool
}

func (r *failingOpenRepo) MarkOpenedFrom(ctx context.Context, snapshot *model.Conversation, at time.Time) (*model.Conversation, bool, error) {
	if r.fail {
		return nil, false, errors.New("lock wait timeout")
	}
	return r.ConversationRepo.MarkOpenedFrom(ctx, snapshot, at)
}

func TestOpenRetryAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)

	repo := &failingOpenRepo{ConversationRepo: env.convRepo, fail: true}
	svc := NewCommService(repo, env.msgRepo, env.search, env.dispatcher, NewNoticeService(env.notices), configForTest())

	_, err = svc.OpenConversation(ctx, branch, in.ConversationID)
	require.Error(t, err)
	assert.False(t, env.mr.Exists(openDebounceKey(in.ConversationID, 1)))

	repo.fail = false
	conv, err := svc.OpenConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), conv.UnreadCount)
}

func TestHistoryPagingAndSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var convID uint64
	for i := 0; i < 5; i++ {
		m, err := env.svc.ReceiveIncoming(ctx, inbound("m", ""))
		require.NoError(t, err)
		convID = m.ConversationID
	}

	page, err := env.svc.ListMessages(ctx, &dto.MessageQuery{BranchID: branch, ConversationID: convID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, uint64(4), page.Messages[0].Seq)
	assert.Equal(t, uint64(4), page.NextBeforeSeq)

	page, err = env.svc.ListMessages(ctx, &dto.MessageQuery{BranchID: branch, ConversationID: convID, Limit: 2, BeforeSeq: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, uint64(0), page.NextBeforeSeq)

	synced, err := env.svc.SyncMessages(ctx, &dto.SyncQuery{BranchID: branch, ConversationID: convID, AfterSeq: 3})
	require.NoError(t, err)
	assert.Len(t, synced, 2)

	synced, err = env.svc.SyncMessages(ctx, &dto.SyncQuery{BranchID: branch, ConversationID: convID, AfterSeq: 5})
	require.NoError(t, err)
	assert.NotNil(t, synced)
	assert.Empty(t, synced)
}

func TestEventsPublishedToBranchChannel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sub := env.mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(BranchChannel(branch))

	_, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		var evt dto.CommEventDTO
		require.NoError(t, json.Unmarshal([]byte(msg.Message), &evt))
		assert.Equal(t, dto.EventMessageCreated, evt.Type)
		assert.Equal(t, branch, evt.BranchID)
		require.NotNil(t, evt.Message)
		assert.Equal(t, "hi", evt.Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestSearchMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("exam schedule", ""))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.search.size() == 1 }, time.Second, 10*time.Millisecond)

	hits, err := env.svc.SearchMessages(ctx, branch, "  exam schedule ", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, in.ID, hits[0].MessageID)
	assert.Equal(t, "Mrs. Rao", hits[0].ParticipantName)

	_, err = env.svc.SearchMessages(ctx, branch, "  ", 10)
	assert.ErrorIs(t, err, ErrParamInvalid)

	dispatcher := NewDeliveryDispatcher(env.sender, env.msgRepo, configForTest())
	noSearch := NewCommService(env.convRepo, env.msgRepo, nil, dispatcher, nil, configForTest())
	defer noSearch.Close()
	_, err = noSearch.SearchMessages(ctx, branch, "exam", 10)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestRepairRecent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.svc.ReceiveIncoming(ctx, inbound("hi", ""))
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.Conversation{}).Where("id = ?", in.ConversationID).
		Update("unread_count", 9).Error)

	n, err := env.svc.RepairRecent(ctx, time.Now().Add(-time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	conv, err := env.svc.GetConversation(ctx, branch, in.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), conv.UnreadCount)
}
