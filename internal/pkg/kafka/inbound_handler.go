package kafka

import (
	"Campus/internal/api/dto"
	"Campus/internal/service"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// InboundHandler 消费通道网关转发的入站消息
type InboundHandler struct {
	commService service.CommService
}

func NewInboundHandler(commService service.CommService) *InboundHandler {
	return &InboundHandler{commService: commService}
}

func (s *InboundHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("inbound consumer setup")
	return nil
}

func (s *InboundHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("inbound consumer cleanup")
	return nil
}

func (s *InboundHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	if err := pullMessageBatch(session, claim, s.logic); err != nil {
		log.Error("process inbound batch error", "err", err)
		return err
	}
	return nil
}

func (s *InboundHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	req, err := decodeMessage[dto.InboundMessageReq](msg)
	if err != nil {
		return err
	}

	_, err = s.commService.ReceiveIncoming(ctx, req)
	if err == nil {
		return nil
	}
	if isPermanent(err) {
		return errors.Wrapf(errPoison, "inbound rejected: %v", err)
	}
	return errors.Wrap(err, "receive incoming")
}

// isPermanent 参数类错误重试无意义
func isPermanent(err error) bool {
	return errors.Is(err, service.ErrParamInvalid) ||
		errors.Is(err, service.ErrValidation) ||
		errors.Is(err, service.ErrBranchRequired) ||
		errors.Is(err, service.ErrConversationInactive) ||
		errors.Is(err, service.ErrConversationNotFound)
}
