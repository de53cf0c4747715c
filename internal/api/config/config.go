package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "CAMPUS"

// ErrConfigNotFound 配置文件缺失；此时 Cfg 仍按默认值与环境变量填充
var ErrConfigNotFound = errors.New("config file not found")

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 读取 ./configs/config.yaml，CAMPUS_CONFIG 可指定其他文件
// 环境变量 CAMPUS_<SECTION>_<KEY> 覆盖文件中的同名配置，如 CAMPUS_REDIS_ADDR
func LoadConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
	}

	var readErr error
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
		readErr = fmt.Errorf("%w: %v", ErrConfigNotFound, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	Cfg = &cfg

	return readErr
}

// setDefaults 未配置时的取值
func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("comm.list_poll_interval", 30)
	viper.SetDefault("comm.thread_poll_interval", 5)
	viper.SetDefault("comm.viewing_ttl", 15)
	viper.SetDefault("comm.delivery_workers", 4)
	viper.SetDefault("comm.delivery_queue_size", 1024)
	viper.SetDefault("comm.delivery_retries", 3)
	viper.SetDefault("comm.repair_spec", "@every 10m")
	viper.SetDefault("comm.repair_window", 30)
	viper.SetDefault("whatsapp.timeout", 10)
	viper.SetDefault("elastic.indices.message_index", "comm_messages")
	viper.SetDefault("logstash.level", "info")
	viper.SetDefault("kafka.consumer.initial_offset", "oldest")
}
