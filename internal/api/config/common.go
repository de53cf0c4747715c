package config

// Config 配置主体
type Config struct {
	Server               ServerConfig         `mapstructure:"server"`
	DB                   DBConfig             `mapstructure:"database"`
	Redis                RedisConfig          `mapstructure:"redis"`
	Mongo                MongoConfig          `mapstructure:"mongo"`
	Elastic              ElasticConfig        `mapstructure:"elastic"`
	Logstash             LogstashConfig       `mapstructure:"logstash"`
	JWT                  JWTConfig            `mapstructure:"jwt"`
	WhatsApp             WhatsAppConfig       `mapstructure:"whatsapp"`
	Comm                 CommConfig           `mapstructure:"comm"`
	Kafka                KafkaConfig          `mapstructure:"kafka"`
	KafkaInboundConsumer KafkaInboundConsumer `mapstructure:"kafka_inbound_consumer"`
	KafkaReceiptConsumer KafkaReceiptConsumer `mapstructure:"kafka_receipt_consumer"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"` // 为空时回显任意 Origin
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	SlowSQLMs   int    `mapstructure:"slow_sql_ms"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL           string `mapstructure:"url"`
	Database      string `mapstructure:"database"`
	NoticeTTLDays int    `mapstructure:"notice_ttl_days"` // 0 表示提醒永久保留
}

// ElasticConfig Elastic配置
type ElasticConfig struct {
	Address  string         `mapstructure:"address"`
	Username string         `mapstructure:"username"`
	Password string         `mapstructure:"password"`
	Indices  ElasticIndices `mapstructure:"indices"`
}

// ElasticIndices Elastic索引
type ElasticIndices struct {
	MessageIndex string `mapstructure:"message_index"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
	Level   string `mapstructure:"level"` // debug | info | warn | error
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// WhatsAppConfig 外部投递通道配置
type WhatsAppConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	AccessToken   string `mapstructure:"access_token"`
	Timeout       int    `mapstructure:"timeout"` // 秒
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// CommConfig 通讯模块参数
type CommConfig struct {
	ListPollInterval   int    `mapstructure:"list_poll_interval"`   // 秒，会话列表轮询
	ThreadPollInterval int    `mapstructure:"thread_poll_interval"` // 秒，消息线程轮询
	ViewingTTL         int    `mapstructure:"viewing_ttl"`          // 秒，正在查看标记的存活时间
	DeliveryWorkers    int    `mapstructure:"delivery_workers"`
	DeliveryQueueSize  int    `mapstructure:"delivery_queue_size"`
	DeliveryRetries    int    `mapstructure:"delivery_retries"`
	RepairSpec         string `mapstructure:"repair_spec"`   // cron 表达式
	RepairWindow       int    `mapstructure:"repair_window"` // 分钟
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	ClientID string         `mapstructure:"client_id"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int    `mapstructure:"session_timeout"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int    `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int    `mapstructure:"max_processing_time"`
	InitialOffset     string `mapstructure:"initial_offset"` // oldest | newest
}

type KafkaInboundConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

type KafkaReceiptConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}
