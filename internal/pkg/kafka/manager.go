package kafka

import (
	"Campus/internal/api/config"
	"Campus/internal/service"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	inboundConsumer sarama.ConsumerGroup
	inboundHandler  sarama.ConsumerGroupHandler

	receiptConsumer sarama.ConsumerGroup
	receiptHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, commService service.CommService) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	inboundConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaInboundConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	receiptConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaReceiptConsumer.GroupID, saramaCfg)
	if err != nil {
		_ = inboundConsumer.Close()
		return nil, err
	}

	return &ConsumerManager{
		inboundConsumer: inboundConsumer,
		inboundHandler:  NewInboundHandler(commService),
		receiptConsumer: receiptConsumer,
		receiptHandler:  NewReceiptHandler(commService),
	}, nil
}

// Start 启动所有消费者，阻塞直到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go m.consumeLoop(ctx, "Inbound", cfg.KafkaInboundConsumer.Topic, m.inboundConsumer, m.inboundHandler)
	go m.consumeLoop(ctx, "Receipt", cfg.KafkaReceiptConsumer.Topic, m.receiptConsumer, m.receiptHandler)

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.inboundConsumer.Close(); err != nil {
		log.Error("Failed to close inbound consumer", "err", err)
	}
	if err := m.receiptConsumer.Close(); err != nil {
		log.Error("Failed to close receipt consumer", "err", err)
	}
	return nil
}

func (m *ConsumerManager) consumeLoop(ctx context.Context, name, topic string, group sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler) {
	log.Info(name+" consumer started", "topic", topic)
	go func() {
		for err := range group.Errors() {
			log.Error(name+" consumer error", "err", err)
		}
	}()
	for {
		if err := group.Consume(ctx, []string{topic}, handler); err != nil {
			log.Error("Error from consumer", "consumer", name, "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
