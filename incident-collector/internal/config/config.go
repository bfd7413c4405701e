package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Renarion/hackathon-indrive-25/common/config"
)

// 事件输出方式
const (
	SinkRedis = "redis"
	SinkKafka = "kafka"
	SinkNone  = "none"
)

// Config 事故采集服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	Kafka    config.KafkaConfig

	HTTP struct {
		Addr            string
		MaxUploadBytes  int64
		ShutdownTimeout time.Duration
	}

	Storage struct {
		Dir string // 证据文件根目录，每个事故一个子目录
	}

	Events struct {
		Sink   string // redis | kafka | none
		Stream string // Redis Stream 名称
		MaxLen int64  // Stream 近似最大长度
	}

	Notify struct {
		BaseURL  string // 聊天机器人 API 地址
		BotToken string // 为空时不发送通知
		ChatID   string
		Timeout  time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "incidents",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Kafka = config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "incidents"}
	cfg.Kafka.LoadFromEnv("KAFKA")

	cfg.HTTP.Addr = config.GetEnv("HTTP_ADDR", ":5000")
	cfg.HTTP.MaxUploadBytes = int64(config.GetEnvInt("MAX_UPLOAD_BYTES", 64<<20))
	cfg.HTTP.ShutdownTimeout = config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg.Storage.Dir = config.GetEnv("STORAGE_DIR", "./data/incidents")

	cfg.Events.Sink = strings.ToLower(config.GetEnv("EVENT_SINK", SinkRedis))
	cfg.Events.Stream = config.GetEnv("EVENT_STREAM", "incidents:stream")
	cfg.Events.MaxLen = int64(config.GetEnvInt("EVENT_STREAM_MAXLEN", 10000))

	cfg.Notify.BaseURL = config.GetEnv("NOTIFY_BASE_URL", "https://api.telegram.org")
	cfg.Notify.BotToken = config.GetEnv("NOTIFY_BOT_TOKEN", "")
	cfg.Notify.ChatID = config.GetEnv("NOTIFY_CHAT_ID", "")
	cfg.Notify.Timeout = config.GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)

	cfg.Log.Level = config.GetEnv("LOG_LEVEL", "info")
	cfg.Log.Format = config.GetEnv("LOG_FORMAT", "json")

	switch cfg.Events.Sink {
	case SinkRedis, SinkKafka, SinkNone:
	default:
		return nil, fmt.Errorf("invalid EVENT_SINK %q: want redis, kafka or none", cfg.Events.Sink)
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.Notify.BotToken != "" && cfg.Notify.ChatID == "" {
		return nil, fmt.Errorf("NOTIFY_CHAT_ID is required when NOTIFY_BOT_TOKEN is set")
	}

	return cfg, nil
}
