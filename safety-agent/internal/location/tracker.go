// Package location provides position fixes for incident reports.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"go.uber.org/zap"
)

// fixMessage 定位消息，timestamp 为 Unix 秒，缺省时取接收时间
type fixMessage struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp float64  `json:"timestamp"`
}

// MQTTTracker 订阅定位主题并缓存最新位置
type MQTTTracker struct {
	client  *mqttcommon.Client
	topic   string
	maxAge  time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	started bool
	last    *models.Location
	updated chan struct{} // 每次收到新位置时关闭并替换
}

// NewMQTTTracker 创建定位跟踪器
// maxAge 内的缓存位置直接返回，否则最多等待 timeout
func NewMQTTTracker(client *mqttcommon.Client, topic string, maxAge, timeout time.Duration, logger *zap.Logger) *MQTTTracker {
	return &MQTTTracker{
		client:  client,
		topic:   topic,
		maxAge:  maxAge,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
		updated: make(chan struct{}),
	}
}

// StartUpdates 开始接收定位
func (t *MQTTTracker) StartUpdates(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	if err := t.client.Subscribe(t.topic, t.client.QoS(), t.handleFix); err != nil {
		return models.NewError(models.KindDeviceUnavailable, "start location updates", err)
	}
	t.started = true
	t.logger.Info("Location updates started", zap.String("topic", t.topic))
	return nil
}

// StopUpdates 停止接收定位，缓存位置保留
func (t *MQTTTracker) StopUpdates() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	t.started = false
	if err := t.client.Unsubscribe(t.topic); err != nil {
		return fmt.Errorf("failed to stop location updates: %w", err)
	}
	t.logger.Info("Location updates stopped", zap.String("topic", t.topic))
	return nil
}

// CurrentLocation 返回足够新的位置
// 未启动返回 ErrDeviceUnavailable，等待超时返回 ErrTimeout
func (t *MQTTTracker) CurrentLocation(ctx context.Context) (models.Location, error) {
	var deadline <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		t.mu.Lock()
		if !t.started {
			t.mu.Unlock()
			return models.Location{}, models.NewError(models.KindDeviceUnavailable, "current location", errors.New("location updates not started"))
		}
		if t.last != nil && t.now().Sub(t.last.Timestamp) <= t.maxAge {
			loc := *t.last
			t.mu.Unlock()
			return loc, nil
		}
		updated := t.updated
		t.mu.Unlock()

		select {
		case <-updated:
		case <-deadline:
			return models.Location{}, models.NewError(models.KindTimeout, "current location", fmt.Errorf("no fix within %s", t.timeout))
		case <-ctx.Done():
			return models.Location{}, ctx.Err()
		}
	}
}

func (t *MQTTTracker) handleFix(topic string, payload []byte) error {
	var msg fixMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal location: %w", err)
	}
	if msg.Latitude == nil || msg.Longitude == nil {
		return fmt.Errorf("location missing coordinates")
	}
	if *msg.Latitude < -90 || *msg.Latitude > 90 || *msg.Longitude < -180 || *msg.Longitude > 180 {
		return fmt.Errorf("location out of range: %f,%f", *msg.Latitude, *msg.Longitude)
	}

	ts := t.now()
	if msg.Timestamp > 0 {
		ts = time.Unix(0, int64(msg.Timestamp*float64(time.Second)))
	}
	loc := models.Location{Latitude: *msg.Latitude, Longitude: *msg.Longitude, Timestamp: ts}

	t.mu.Lock()
	t.last = &loc
	close(t.updated)
	t.updated = make(chan struct{})
	t.mu.Unlock()

	t.logger.Debug("Location fix received",
		zap.String("topic", topic),
		zap.Float64("latitude", loc.Latitude),
		zap.Float64("longitude", loc.Longitude),
	)
	return nil
}
