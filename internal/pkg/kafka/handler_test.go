package kafka

import (
	"Campus/internal/api/dto"
	"Campus/internal/service"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommService struct {
	service.CommService

	mu          sync.Mutex
	inbound     []*dto.InboundMessageReq
	inboundErr  error
	receiptErrs []error
	receipts    int
}

func (s *stubCommService) ReceiveIncoming(_ context.Context, req *dto.InboundMessageReq) (*dto.MessageDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = append(s.inbound, req)
	return &dto.MessageDTO{}, s.inboundErr
}

func (s *stubCommService) ApplyReceipt(_ context.Context, _ *dto.DeliveryReceiptReq) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts++
	if len(s.receiptErrs) == 0 {
		return nil
	}
	err := s.receiptErrs[0]
	s.receiptErrs = s.receiptErrs[1:]
	return err
}

type fakeSession struct {
	ctx    context.Context
	marked atomic.Int64
}

func (f *fakeSession) Claims() map[string][]int32                        { return nil }
func (f *fakeSession) MemberID() string                                  { return "test" }
func (f *fakeSession) GenerationID() int32                               { return 1 }
func (f *fakeSession) MarkOffset(string, int32, int64, string)           {}
func (f *fakeSession) Commit()                                           {}
func (f *fakeSession) ResetOffset(string, int32, int64, string)          {}
func (f *fakeSession) Context() context.Context                          { return f.ctx }
func (f *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) { f.marked.Store(msg.Offset) }

func kafkaMsg(offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "comm", Offset: offset, Value: []byte(value)}
}

func TestInboundLogic(t *testing.T) {
	svc := &stubCommService{}
	h := NewInboundHandler(svc)
	ctx := context.Background()

	err := h.logic(ctx, kafkaMsg(1, `{"branch_id":1,"phone":"+1555","content":"hi","provider_msg_id":"wamid.9"}`))
	require.NoError(t, err)
	require.Len(t, svc.inbound, 1)
	assert.Equal(t, "wamid.9", svc.inbound[0].ProviderMsgID)

	err = h.logic(ctx, kafkaMsg(2, `{not json`))
	assert.True(t, errors.Is(err, errPoison))
	err = h.logic(ctx, kafkaMsg(3, ``))
	assert.True(t, errors.Is(err, errPoison))

	svc.inboundErr = service.ErrValidation
	err = h.logic(ctx, kafkaMsg(4, `{"branch_id":1,"content":" "}`))
	assert.True(t, errors.Is(err, errPoison))

	svc.inboundErr = errors.New("db down")
	err = h.logic(ctx, kafkaMsg(5, `{"branch_id":1,"content":"x"}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errPoison))
}

func TestReceiptLogicRetriesNotFound(t *testing.T) {
	svc := &stubCommService{receiptErrs: []error{service.ErrMessageNotFound, nil}}
	h := NewReceiptHandler(svc)
	h.retryDelay = time.Millisecond

	err := h.logic(context.Background(), kafkaMsg(1, `{"provider_msg_id":"wamid.1","status":"DELIVERED"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, svc.receipts)

	svc.receiptErrs = []error{service.ErrMessageNotFound, service.ErrMessageNotFound, service.ErrMessageNotFound}
	svc.receipts = 0
	err = h.logic(context.Background(), kafkaMsg(2, `{"provider_msg_id":"wamid.2","status":"READ"}`))
	assert.True(t, errors.Is(err, errPoison))
	assert.Equal(t, receiptNotFoundRetries, svc.receipts)
}

func TestProcessBatchSkipsPoisonAndMarksLast(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}
	var calls atomic.Int32
	logic := func(_ context.Context, msg *sarama.ConsumerMessage) error {
		n := calls.Add(1)
		if msg.Offset == 2 {
			return errors.Wrap(errPoison, "bad payload")
		}
		// 第一次失败的临时错误会被重试
		if msg.Offset == 3 && n <= 3 {
			return errors.New("temporary")
		}
		return nil
	}

	processBatch(session, []*sarama.ConsumerMessage{kafkaMsg(1, "a"), kafkaMsg(2, "b"), kafkaMsg(3, "c")}, logic)
	assert.Equal(t, int64(3), session.marked.Load())
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestProcessBatchKeepsOrderPerKey(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}
	keyed := func(offset int64, key string) *sarama.ConsumerMessage {
		m := kafkaMsg(offset, "v")
		m.Key = []byte(key)
		return m
	}

	var mu sync.Mutex
	seen := map[string][]int64{}
	logic := func(_ context.Context, msg *sarama.ConsumerMessage) error {
		// 让靠前的消息更慢，若并发处理同一 key 会被后来者超过
		time.Sleep(time.Duration(10-msg.Offset) * time.Millisecond)
		mu.Lock()
		seen[string(msg.Key)] = append(seen[string(msg.Key)], msg.Offset)
		mu.Unlock()
		return nil
	}

	processBatch(session, []*sarama.ConsumerMessage{
		keyed(1, "+100"), keyed(2, "+200"), keyed(3, "+100"), keyed(4, "+100"), keyed(5, "+200"),
	}, logic)

	assert.Equal(t, []int64{1, 3, 4}, seen["+100"])
	assert.Equal(t, []int64{2, 5}, seen["+200"])
	assert.Equal(t, int64(5), session.marked.Load())
}

func TestProcessBatchNoMarkWhenSessionEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	session.marked.Store(-1)

	logic := func(_ context.Context, _ *sarama.ConsumerMessage) error {
		cancel()
		return errors.New("broker down")
	}
	processBatch(session, []*sarama.ConsumerMessage{kafkaMsg(7, "x")}, logic)
	assert.Equal(t, int64(-1), session.marked.Load())
}
