package consumer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/monitor"

	"go.uber.org/zap"
)

// Publisher MQTT 发布能力
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

type stateMessage struct {
	SessionID string        `json:"session_id"`
	State     monitor.State `json:"state"`
	Timestamp int64         `json:"timestamp"`
}

type outcomeMessage struct {
	SessionID string `json:"session_id"`
	monitor.IncidentOutcome
	CollectError string `json:"collect_error,omitempty"`
	UploadError  string `json:"upload_error,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
}

// StatusPublisher 将会话状态与事故结果发布到状态主题
// 状态消息为 retained，仅在变化时发布；事故结果发布到 <topic>/incidents
type StatusPublisher struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger

	mu      sync.Mutex
	last    monitor.State
	hasLast bool
}

// NewStatusPublisher 创建状态发布器
func NewStatusPublisher(publisher Publisher, topic string, logger *zap.Logger) *StatusPublisher {
	return &StatusPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// Run 消费会话的状态与结果直到两者都关闭
// 必须排空，否则会话 goroutine 会阻塞在发送上
func (p *StatusPublisher) Run(session *monitor.Session) {
	states, outcomes := session.States(), session.Outcomes()
	for states != nil || outcomes != nil {
		select {
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if err := p.PublishState(session.ID(), st); err != nil {
				p.logger.Warn("Failed to publish state", zap.Error(err))
			}
		case o, ok := <-outcomes:
			if !ok {
				outcomes = nil
				continue
			}
			if err := p.PublishOutcome(session.ID(), o); err != nil {
				p.logger.Warn("Failed to publish outcome", zap.Error(err))
			}
		}
	}

	if err := session.Wait(); err != nil {
		p.logger.Warn("Session ended with error", zap.Error(err))
	}
	if err := p.PublishState(session.ID(), monitor.StateStopped); err != nil {
		p.logger.Warn("Failed to publish state", zap.Error(err))
	}
}

// PublishState 状态变化时发布
func (p *StatusPublisher) PublishState(sessionID string, st monitor.State) error {
	p.mu.Lock()
	if p.hasLast && p.last == st {
		p.mu.Unlock()
		return nil
	}
	p.last, p.hasLast = st, true
	p.mu.Unlock()

	payload, err := json.Marshal(stateMessage{
		SessionID: sessionID,
		State:     st,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := p.publisher.Publish(p.topic, 1, true, payload); err != nil {
		return err
	}
	p.logger.Debug("State published", zap.Stringer("state", st))
	return nil
}

// PublishOutcome 发布事故处理结果
func (p *StatusPublisher) PublishOutcome(sessionID string, o monitor.IncidentOutcome) error {
	msg := outcomeMessage{SessionID: sessionID, IncidentOutcome: o}
	if o.CollectErr != nil {
		msg.CollectError = o.CollectErr.Error()
		msg.ErrorKind = string(models.KindOf(o.CollectErr))
	}
	if o.UploadErr != nil {
		msg.UploadError = o.UploadErr.Error()
		msg.ErrorKind = string(models.KindOf(o.UploadErr))
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return p.publisher.Publish(p.topic+"/incidents", 1, false, payload)
}
