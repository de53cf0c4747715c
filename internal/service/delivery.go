package service

import (
	"Campus/internal/api/config"
	"Campus/internal/model"
	"Campus/internal/pkg/logger"
	"Campus/internal/pkg/whatsapp"
	"Campus/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"
)

const (
	defaultDeliveryWorkers = 4
	defaultDeliveryQueue   = 1024
	defaultDeliveryRetries = 3
	deliveryCallTimeout    = 10 * time.Second
)

// DeliveryTask 一条已落库、等待外部投递的出站消息
type DeliveryTask struct {
	Conversation *model.Conversation
	Message      *model.Message
	TraceID      string
}

// DeliveryFailureHandler 最终投递失败时的回调
type DeliveryFailureHandler func(ctx context.Context, task *DeliveryTask, derr *DeliveryError)

// DeliveryDispatcher 出站投递工作池：有界队列 + 固定 worker + 指数退避重试
type DeliveryDispatcher struct {
	sender    whatsapp.Sender
	msgRepo   repository.MessageRepo
	queue     chan *DeliveryTask
	retries   int
	backoff   time.Duration
	onFailure DeliveryFailureHandler

	wg       sync.WaitGroup
	stopChan chan struct{}
	once     sync.Once
}

func NewDeliveryDispatcher(sender whatsapp.Sender, msgRepo repository.MessageRepo, cfg config.CommConfig) *DeliveryDispatcher {
	workers := cfg.DeliveryWorkers
	if workers <= 0 {
		workers = defaultDeliveryWorkers
	}
	queueSize := cfg.DeliveryQueueSize
	if queueSize <= 0 {
		queueSize = defaultDeliveryQueue
	}
	retries := cfg.DeliveryRetries
	if retries <= 0 {
		retries = defaultDeliveryRetries
	}

	d := &DeliveryDispatcher{
		sender:   sender,
		msgRepo:  msgRepo,
		queue:    make(chan *DeliveryTask, queueSize),
		retries:  retries,
		backoff:  time.Second,
		stopChan: make(chan struct{}),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.deliveryWorker()
	}
	return d
}

// OnFailure 注册最终失败回调，需在首次 Enqueue 之前调用
func (d *DeliveryDispatcher) OnFailure(h DeliveryFailureHandler) {
	d.onFailure = h
}

// Enqueue 非阻塞入队，队列已满或已关闭时返回 false
func (d *DeliveryDispatcher) Enqueue(task *DeliveryTask) bool {
	select {
	case <-d.stopChan:
		return false
	default:
	}
	select {
	case d.queue <- task:
		return true
	default:
		return false
	}
}

// Close 停止接收并等待 worker 退出，未处理的任务仅记录日志
func (d *DeliveryDispatcher) Close() {
	d.once.Do(func() {
		close(d.stopChan)
		d.wg.Wait()
		if n := len(d.queue); n > 0 {
			log.Warn("Delivery queue dropped on shutdown", "pending", n)
		}
		log.Info("DeliveryDispatcher shut down gracefully")
	})
}

func (d *DeliveryDispatcher) deliveryWorker() {
	defer d.wg.Done()
	for {
		select {
		case task := <-d.queue:
			d.deliver(task)
		case <-d.stopChan:
			return
		}
	}
}

func (d *DeliveryDispatcher) deliver(task *DeliveryTask) {
	ctx := logger.WithTraceID(context.Background(), task.TraceID)
	msg := task.Message

	out := &whatsapp.OutboundMessage{
		To:   task.Conversation.ParticipantPhone,
		Type: string(msg.MsgType),
		Body: msg.Content,
	}
	if msg.MediaURL != nil {
		out.MediaURL = *msg.MediaURL
	}
	if msg.MediaType != nil {
		out.MediaType = *msg.MediaType
	}

	var lastErr error
	attempts := 0
	backoff := d.backoff
	for attempts < d.retries {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, deliveryCallTimeout)
		providerID, err := d.sender.Send(callCtx, out)
		cancel()
		if err == nil {
			if err = d.msgRepo.SetProviderMsgID(ctx, msg.ID, providerID); err != nil {
				log.ErrorContext(ctx, "Failed to store provider message id", "messageID", msg.ID, "err", err)
			}
			log.InfoContext(ctx, "Message delivered", "messageID", msg.ID, "providerMsgID", providerID, "attempts", attempts)
			return
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		if attempts < d.retries {
			select {
			case <-time.After(backoff):
			case <-d.stopChan:
				attempts = d.retries
			}
			backoff *= 2
		}
	}

	derr := &DeliveryError{MessageID: msg.ID, Attempts: attempts, Err: lastErr}
	log.ErrorContext(ctx, "Message saved but not delivered",
		"messageID", msg.ID,
		"conversationID", msg.ConversationID,
		"attempts", attempts,
		"err", derr,
	)
	if d.onFailure != nil {
		d.onFailure(ctx, task, derr)
	}
}

// retryable 通道明确拒绝 (4xx) 与未配置不重试
func retryable(err error) bool {
	if errors.Is(err, whatsapp.ErrNotConfigured) {
		return false
	}
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
