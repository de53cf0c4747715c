package kafka

import (
	"Campus/internal/api/config"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

const defaultClientID = "campus-comm"

// newSaramaConfig 入站与回执两个消费者组共用
// 入站按 provider_msg_id 去重，新消费组默认从最早位点开始，避免丢掉积压的家长消息
func newSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = defaultClientID
	if kafkaCfg.ClientID != "" {
		c.ClientID = kafkaCfg.ClientID
	}

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	cc := kafkaCfg.Consumer
	c.Consumer.Return.Errors = true
	c.Consumer.Offsets.Initial = initialOffset(cc.InitialOffset)
	c.Consumer.Offsets.AutoCommit.Enable = false

	setSeconds(&c.Consumer.Group.Session.Timeout, cc.SessionTimeout)
	setSeconds(&c.Consumer.Group.Heartbeat.Interval, cc.HeartbeatInterval)
	setSeconds(&c.Consumer.Group.Rebalance.Timeout, cc.RebalanceTimeout)
	setSeconds(&c.Consumer.MaxProcessingTime, cc.MaxProcessingTime)

	return c
}

func initialOffset(s string) int64 {
	if strings.EqualFold(s, "newest") {
		return sarama.OffsetNewest
	}
	return sarama.OffsetOldest
}

// setSeconds 未配置时保留 sarama 默认值
func setSeconds(dst *time.Duration, seconds int) {
	if seconds > 0 {
		*dst = time.Duration(seconds) * time.Second
	}
}
