package kafka

import (
	"Campus/internal/api/dto"
	"Campus/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

const receiptNotFoundRetries = 3

// ReceiptHandler 消费投递回执
type ReceiptHandler struct {
	commService service.CommService
	retryDelay  time.Duration
}

func NewReceiptHandler(commService service.CommService) *ReceiptHandler {
	return &ReceiptHandler{commService: commService, retryDelay: 500 * time.Millisecond}
}

func (s *ReceiptHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("receipt consumer setup")
	return nil
}

func (s *ReceiptHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("receipt consumer cleanup")
	return nil
}

func (s *ReceiptHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	if err := pullMessageBatch(session, claim, s.logic); err != nil {
		log.Error("process receipt batch error", "err", err)
		return err
	}
	return nil
}

// logic 回执可能早于通道消息 ID 落库到达，找不到时短暂重试
func (s *ReceiptHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	req, err := decodeMessage[dto.DeliveryReceiptReq](msg)
	if err != nil {
		return err
	}

	for i := 0; i < receiptNotFoundRetries; i++ {
		err = s.commService.ApplyReceipt(ctx, req)
		if !errors.Is(err, service.ErrMessageNotFound) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrMessageNotFound), isPermanent(err):
		return errors.Wrapf(errPoison, "receipt %s rejected: %v", req.ProviderMsgID, err)
	default:
		return errors.Wrap(err, "apply receipt")
	}
}
