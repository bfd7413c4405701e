// Package consumer connects the monitoring session to the MQTT control and
// status topics.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"

	"go.uber.org/zap"
)

// Command 控制指令
type Command string

const (
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandConfirm Command = "confirm"
	CommandDismiss Command = "dismiss"
)

// Controller 指令的执行方
type Controller interface {
	StartMonitoring(ctx context.Context, endpointHost string) error
	StopMonitoring() error
	ConfirmIncident() bool
	DismissIncident() bool
}

// Subscriber MQTT 订阅能力
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// commandMessage JSON 形式的指令，也接受纯文本指令名
type commandMessage struct {
	Command      Command `json:"command"`
	EndpointHost string  `json:"endpoint_host,omitempty"`
}

// CommandConsumer 控制主题消费者
type CommandConsumer struct {
	subscriber Subscriber
	topic      string
	controller Controller
	// defaultHost start 指令未携带主机时使用
	defaultHost string
	ctx         context.Context
	queue       chan commandMessage
	done        chan struct{}
	mu          sync.Mutex
	closed      bool
	logger      *zap.Logger
}

// NewCommandConsumer 创建控制主题消费者
func NewCommandConsumer(subscriber Subscriber, topic string, controller Controller, defaultHost string, logger *zap.Logger) *CommandConsumer {
	return &CommandConsumer{
		subscriber:  subscriber,
		topic:       topic,
		controller:  controller,
		defaultHost: defaultHost,
		ctx:         context.Background(),
		queue:       make(chan commandMessage, 16),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start 订阅控制主题，ctx 用于 start 指令启动的会话
// 指令在独立 goroutine 中按顺序执行，消息回调不阻塞
func (c *CommandConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	go c.worker()

	if err := c.subscriber.Subscribe(c.topic, 1, c.enqueue); err != nil {
		return fmt.Errorf("failed to subscribe to command topic: %w", err)
	}
	c.logger.Info("Command consumer started", zap.String("topic", c.topic))
	return nil
}

// Stop 取消订阅并等待进行中的指令完成
func (c *CommandConsumer) Stop(ctx context.Context) error {
	if err := c.subscriber.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.logger.Info("Command consumer stopped")
	return nil
}

func (c *CommandConsumer) worker() {
	defer close(c.done)
	for msg := range c.queue {
		if err := c.dispatch(msg); err != nil {
			c.logger.Warn("Command failed",
				zap.String("command", string(msg.Command)),
				zap.Error(err),
			)
		}
	}
}

func (c *CommandConsumer) enqueue(topic string, payload []byte) error {
	msg, err := parseCommand(payload)
	if err != nil {
		return err
	}
	c.logger.Info("Command received",
		zap.String("topic", topic),
		zap.String("command", string(msg.Command)),
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	select {
	case c.queue <- msg:
		return nil
	default:
		return fmt.Errorf("command queue full, dropping %q", msg.Command)
	}
}

func (c *CommandConsumer) dispatch(msg commandMessage) error {
	switch msg.Command {
	case CommandStart:
		host := msg.EndpointHost
		if host == "" {
			host = c.defaultHost
		}
		return c.controller.StartMonitoring(c.ctx, host)
	case CommandStop:
		return c.controller.StopMonitoring()
	case CommandConfirm:
		if !c.controller.ConfirmIncident() {
			c.logger.Info("Confirm ignored, no pending incident")
		}
	case CommandDismiss:
		if !c.controller.DismissIncident() {
			c.logger.Info("Dismiss ignored, no pending incident")
		}
	default:
		return fmt.Errorf("unknown command: %q", msg.Command)
	}
	return nil
}

func parseCommand(payload []byte) (commandMessage, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var msg commandMessage
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return commandMessage{}, fmt.Errorf("failed to unmarshal command: %w", err)
		}
		msg.Command = Command(strings.ToLower(string(msg.Command)))
		return msg, nil
	}
	return commandMessage{Command: Command(strings.ToLower(text))}, nil
}
