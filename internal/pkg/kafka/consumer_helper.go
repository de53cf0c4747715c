package kafka

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second

	retryInitial = 100 * time.Millisecond
	retryMax     = 5 * time.Second
)

// errPoison 重试也无法成功的消息，记录后跳过
var errPoison = errors.New("poison message")

type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// pullMessageBatch 攒批处理，满 batchSize 或等待 batchTimeout 后提交一批
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	flush := func() {
		if len(batch) > 0 {
			processBatch(session, batch, logic)
			batch = make([]*sarama.ConsumerMessage, 0, batchSize)
		}
	}

	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				flush()
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			flush()
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 不同 key 之间并发，同一 key (同一联系人) 内按 offset 顺序处理
// 会话序号在写入时分配，同一联系人的消息乱序处理会打乱线程顺序
// 整批处理完才标记位点；会话中途结束时不标记，由下一次分配重新消费
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	if len(messages) == 0 {
		return
	}
	ctx := session.Context()

	var wg sync.WaitGroup
	for _, group := range groupByKey(messages) {
		wg.Add(1)
		go func(group []*sarama.ConsumerMessage) {
			defer wg.Done()
			for _, m := range group {
				if !handleWithRetry(ctx, m, logic) {
					return
				}
			}
		}(group)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	session.MarkMessage(messages[len(messages)-1], "")
}

// handleWithRetry 临时错误指数退避重试；返回 false 表示会话已结束
func handleWithRetry(ctx context.Context, m *sarama.ConsumerMessage, logic LogicFunc) bool {
	delay := retryInitial
	for {
		err := logic(ctx, m)
		if err == nil {
			return true
		}
		if errors.Is(err, errPoison) {
			log.WarnContext(ctx, "skip poison message", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "err", err)
			return true
		}

		log.ErrorContext(ctx, "process message error, retrying", "topic", m.Topic, "offset", m.Offset, "retry_in", delay, "err", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, retryMax)
	}
}

// groupByKey 保持各组内的原始顺序；无 key 的消息各自成组
func groupByKey(messages []*sarama.ConsumerMessage) [][]*sarama.ConsumerMessage {
	groups := make([][]*sarama.ConsumerMessage, 0, len(messages))
	index := make(map[string]int)
	for _, m := range messages {
		if len(m.Key) == 0 {
			groups = append(groups, []*sarama.ConsumerMessage{m})
			continue
		}
		k := string(m.Key)
		if i, ok := index[k]; ok {
			groups[i] = append(groups[i], m)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, []*sarama.ConsumerMessage{m})
	}
	return groups
}

// decodeMessage 反序列化消息体，失败属于不可重试的毒消息
func decodeMessage[T any](msg *sarama.ConsumerMessage) (*T, error) {
	if len(msg.Value) == 0 {
		return nil, errors.Wrapf(errPoison, "empty message at %s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	var v T
	if err := json.Unmarshal(msg.Value, &v); err != nil {
		return nil, errors.Wrapf(errPoison, "decode %s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return &v, nil
}
