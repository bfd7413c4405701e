package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeController struct {
	startedWith string
	stops       int
	confirms    int
	dismisses   int
	pending     bool
}

func (c *fakeController) StartMonitoring(_ context.Context, host string) error {
	c.startedWith = host
	return nil
}

func (c *fakeController) StopMonitoring() error {
	c.stops++
	return nil
}

func (c *fakeController) ConfirmIncident() bool {
	c.confirms++
	return c.pending
}

func (c *fakeController) DismissIncident() bool {
	c.dismisses++
	return c.pending
}

type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]mqttcommon.MessageHandler
	published []publishedMessage
}

type publishedMessage struct {
	topic    string
	retained bool
	payload  []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqttcommon.MessageHandler)}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, h mqttcommon.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.handlers, t)
	}
	return nil
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMessage{topic, retained, payload})
	return nil
}

func (b *fakeBroker) deliver(topic string, payload string) error {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	return h(topic, []byte(payload))
}

func (b *fakeBroker) messages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedMessage(nil), b.published...)
}

func TestCommandConsumer_Dispatch(t *testing.T) {
	broker := newFakeBroker()
	ctrl := &fakeController{}
	c := NewCommandConsumer(broker, "safety/dev-1/command", ctrl, "10.0.0.2", zap.NewNop())
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, broker.deliver("safety/dev-1/command", " confirm\n"))
	require.NoError(t, broker.deliver("safety/dev-1/command", "dismiss"))
	require.NoError(t, broker.deliver("safety/dev-1/command", "stop"))
	require.NoError(t, broker.deliver("safety/dev-1/command", `{"command":"START","endpoint_host":"collector.lan"}`))
	// 未知指令在 worker 中记录错误
	require.NoError(t, broker.deliver("safety/dev-1/command", "reboot"))
	assert.Error(t, broker.deliver("safety/dev-1/command", "{broken"))

	// Stop 等待队列中的指令执行完毕
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, 1, ctrl.confirms)
	assert.Equal(t, 1, ctrl.dismisses)
	assert.Equal(t, 1, ctrl.stops)
	assert.Equal(t, "collector.lan", ctrl.startedWith)
	assert.Empty(t, broker.handlers)
}

func TestCommandConsumer_StartUsesDefaultHost(t *testing.T) {
	ctrl := &fakeController{}
	c := NewCommandConsumer(newFakeBroker(), "cmd", ctrl, "10.0.0.2", zap.NewNop())

	msg, err := parseCommand([]byte("start"))
	require.NoError(t, err)
	require.NoError(t, c.dispatch(msg))
	assert.Equal(t, "10.0.0.2", ctrl.startedWith)

	assert.Error(t, c.dispatch(commandMessage{Command: "reboot"}))
}

func TestStatusPublisher_DeduplicatesStates(t *testing.T) {
	broker := newFakeBroker()
	p := NewStatusPublisher(broker, "safety/dev-1/status", zap.NewNop())

	for _, st := range []monitor.State{
		monitor.StatePreparing, monitor.StateMonitoring, monitor.StateMonitoring,
		monitor.StateMonitoring, monitor.StateIncident, monitor.StatePreparing,
	} {
		require.NoError(t, p.PublishState("s1", st))
	}

	msgs := broker.messages()
	require.Len(t, msgs, 4)
	var got []string
	for _, m := range msgs {
		assert.True(t, m.retained)
		var sm struct {
			SessionID string `json:"session_id"`
			State     string `json:"state"`
		}
		require.NoError(t, json.Unmarshal(m.payload, &sm))
		assert.Equal(t, "s1", sm.SessionID)
		got = append(got, sm.State)
	}
	assert.Equal(t, []string{"preparing", "monitoring", "incident", "preparing"}, got)
}

func TestStatusPublisher_Outcome(t *testing.T) {
	broker := newFakeBroker()
	p := NewStatusPublisher(broker, "safety/dev-1/status", zap.NewNop())

	err := p.PublishOutcome("s1", monitor.IncidentOutcome{
		ID:         "inc-1",
		DetectedAt: time.Unix(1717000000, 0),
		Decision:   monitor.DecisionConfirmed,
		Collected:  true,
		PhotoCount: 5,
		UploadErr:  models.NewServerError("upload report", 502),
	})
	require.NoError(t, err)

	msgs := broker.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "safety/dev-1/status/incidents", msgs[0].topic)
	assert.False(t, msgs[0].retained)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &body))
	assert.Equal(t, "inc-1", body["incident_id"])
	assert.Equal(t, "confirmed", body["decision"])
	assert.Equal(t, float64(5), body["photo_count"])
	assert.Equal(t, "server", body["error_kind"])
	assert.Contains(t, body["upload_error"], "502")
}

type nopSensor struct{}

func (nopSensor) Subscribe(ctx context.Context) (<-chan models.Sample, error) {
	ch := make(chan models.Sample)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

type nopLocation struct{}

func (nopLocation) StartUpdates(context.Context) error { return nil }
func (nopLocation) StopUpdates() error                 { return nil }
func (nopLocation) CurrentLocation(context.Context) (models.Location, error) {
	return models.Location{}, nil
}

type nopCamera struct{}

func (nopCamera) Open(context.Context) error                   { return nil }
func (nopCamera) CapturePhoto(context.Context) ([]byte, error) { return []byte{1}, nil }
func (nopCamera) Close() error                                 { return nil }

type deniedRecorder struct{}

func (deniedRecorder) RequestPermission(context.Context) error {
	return models.NewError(models.KindPermission, "microphone", errors.New("denied"))
}
func (deniedRecorder) StartRecording(context.Context) error { return nil }
func (deniedRecorder) StopRecording() error                 { return nil }
func (deniedRecorder) RecordedAudio() ([]byte, error)       { return nil, nil }
func (deniedRecorder) Close() error                         { return nil }

func TestStatusPublisher_RunDrainsSession(t *testing.T) {
	o := monitor.NewOrchestrator(monitor.DefaultOptions(), monitor.Dependencies{
		Sensor:    nopSensor{},
		Location:  nopLocation{},
		Camera:    nopCamera{},
		Recorder:  deniedRecorder{},
		NewSender: func(string) monitor.ReportSender { return nil },
	}, zap.NewNop())
	s, err := o.StartSession(context.Background(), "localhost")
	require.NoError(t, err)

	broker := newFakeBroker()
	p := NewStatusPublisher(broker, "safety/dev-1/status", zap.NewNop())

	done := make(chan struct{})
	go func() {
		p.Run(s)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not finish")
	}

	msgs := broker.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, string(msgs[0].payload), `"preparing"`)
	assert.Contains(t, string(msgs[1].payload), `"stopped"`)
}
