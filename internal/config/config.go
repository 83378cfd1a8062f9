package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentResult string `mapstructure:"payment_result"`
	BalanceEvent  string `mapstructure:"balance_event"`
}

// BusinessConfig 业务参数
//
// 并发控制相关的参数集中在这里：
//   - 分布式锁：最多等待 lock_wait_seconds 秒；持有 lock_lease_seconds 秒后
//     自动过期，防止持有者崩溃导致死锁
//   - 乐观锁：冲突时最多重试 max_retry_count 次，每次间隔 retry_backoff_ms
//   - 限流：同一个 key 两次请求的最小间隔 rate_limit_interval_ms
type BusinessConfig struct {
	MinChargeAmount     int64 `mapstructure:"min_charge_amount"`
	RateLimitIntervalMs int   `mapstructure:"rate_limit_interval_ms"`
	LockWaitSeconds     int   `mapstructure:"lock_wait_seconds"`
	LockLeaseSeconds    int   `mapstructure:"lock_lease_seconds"`
	MaxRetryCount       int   `mapstructure:"max_retry_count"`
	RetryBackoffMs      int   `mapstructure:"retry_backoff_ms"`
	RelayWorkers        int   `mapstructure:"relay_workers"`
	RelayQueueSize      int   `mapstructure:"relay_queue_size"`
	OutboxMaxRetryCount int   `mapstructure:"outbox_max_retry_count"`
}

func (b *BusinessConfig) LockWait() time.Duration {
	return time.Duration(b.LockWaitSeconds) * time.Second
}

func (b *BusinessConfig) LockLease() time.Duration {
	return time.Duration(b.LockLeaseSeconds) * time.Second
}

func (b *BusinessConfig) RetryBackoff() time.Duration {
	return time.Duration(b.RetryBackoffMs) * time.Millisecond
}

func (b *BusinessConfig) RateLimitInterval() time.Duration {
	return time.Duration(b.RateLimitIntervalMs) * time.Millisecond
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
