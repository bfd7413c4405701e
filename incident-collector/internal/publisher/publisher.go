// Package publisher 将新入库的事故发布到下游事件通道
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Renarion/hackathon-indrive-25/common/redis"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher 事故事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, event models.IncidentEvent) error
	Close() error
}

// RedisStreamPublisher 发布到 Redis Stream
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewRedisStreamPublisher 创建 Redis Stream 发布器
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Publish 写入一条 incident.received 消息
func (p *RedisStreamPublisher) Publish(ctx context.Context, event models.IncidentEvent) error {
	id, err := redis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, models.EventIncidentReceived, event)
	if err != nil {
		return fmt.Errorf("failed to publish incident to stream %s: %w", p.stream, err)
	}
	p.logger.Debug("Incident published to stream",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("incident_id", event.IncidentID),
	)
	return nil
}

// Close Redis 客户端由调用方关闭
func (p *RedisStreamPublisher) Close() error {
	return nil
}

// MessageWriter kafka.Writer 的最小接口，便于测试替换
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 发布到 Kafka 主题，消息 key 为事故 ID
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewKafkaWriter 按 broker 列表和主题创建 kafka.Writer
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(writer MessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish 写入一条事件消息
func (p *KafkaPublisher) Publish(ctx context.Context, event models.IncidentEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal incident event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.IncidentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(models.EventIncidentReceived)},
		},
		Time: time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write incident to kafka: %w", err)
	}
	p.logger.Debug("Incident published to kafka", zap.String("incident_id", event.IncidentID))
	return nil
}

// Close 关闭底层 writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

// Publish 空操作
func (NopPublisher) Publish(context.Context, models.IncidentEvent) error { return nil }

// Close 空操作
func (NopPublisher) Close() error { return nil }
