// Package source adapts the accelerometer feed published over MQTT into a
// sample channel.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"go.uber.org/zap"
)

// MQTTSampleSource 订阅加速度主题，消息格式 {"x":..,"y":..,"z":..}
type MQTTSampleSource struct {
	client *mqttcommon.Client
	topic  string
	buffer int
	logger *zap.Logger

	dropped atomic.Int64
}

// NewMQTTSampleSource 创建样本源
func NewMQTTSampleSource(client *mqttcommon.Client, topic string, buffer int, logger *zap.Logger) *MQTTSampleSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &MQTTSampleSource{
		client: client,
		topic:  topic,
		buffer: buffer,
		logger: logger,
	}
}

// Dropped 累计丢弃的样本数
func (s *MQTTSampleSource) Dropped() int64 {
	return s.dropped.Load()
}

// Subscribe 开始接收样本，ctx 结束时取消订阅并关闭通道
// 通道满时丢弃新样本
func (s *MQTTSampleSource) Subscribe(ctx context.Context) (<-chan models.Sample, error) {
	q := newSampleQueue(s.buffer, s.topic, &s.dropped, s.logger)

	handler := func(topic string, payload []byte) error {
		var sample models.Sample
		if err := json.Unmarshal(payload, &sample); err != nil {
			return fmt.Errorf("failed to unmarshal sample: %w", err)
		}
		q.offer(sample)
		return nil
	}

	if err := s.client.Subscribe(s.topic, s.client.QoS(), handler); err != nil {
		return nil, models.NewError(models.KindDeviceUnavailable, "subscribe accelerometer", err)
	}
	s.logger.Info("Accelerometer subscribed", zap.String("topic", s.topic))

	go func() {
		<-ctx.Done()
		if err := s.client.Unsubscribe(s.topic); err != nil {
			s.logger.Warn("Failed to unsubscribe accelerometer", zap.Error(err))
		}
		q.close()
		s.logger.Info("Accelerometer unsubscribed", zap.String("topic", s.topic), zap.Int64("dropped", s.Dropped()))
	}()

	return q.out, nil
}

// sampleQueue 非阻塞投递，每次积压只记录开始与恢复两条日志
type sampleQueue struct {
	mu      sync.Mutex
	out     chan models.Sample
	closed  bool
	pending int // 本次积压已丢弃数
	dropped *atomic.Int64
	topic   string
	logger  *zap.Logger
}

func newSampleQueue(buffer int, topic string, dropped *atomic.Int64, logger *zap.Logger) *sampleQueue {
	return &sampleQueue{
		out:     make(chan models.Sample, buffer),
		dropped: dropped,
		topic:   topic,
		logger:  logger,
	}
}

func (q *sampleQueue) offer(sample models.Sample) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.out <- sample:
		if q.pending > 0 {
			q.logger.Info("Sample delivery resumed",
				zap.String("topic", q.topic),
				zap.Int("dropped", q.pending),
			)
			q.pending = 0
		}
	default:
		if q.pending == 0 {
			q.logger.Warn("Sample buffer full, dropping samples", zap.String("topic", q.topic))
		}
		q.pending++
		q.dropped.Add(1)
	}
}

func (q *sampleQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.out)
}
