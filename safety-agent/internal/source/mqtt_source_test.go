package source

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Renarion/hackathon-indrive-25/common/config"
	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"
	"github.com/Renarion/hackathon-indrive-25/common/mqtt/mqtttest"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func connect(t *testing.T, broker, id string) *mqttcommon.Client {
	t.Helper()
	c, err := mqttcommon.NewClient(&config.MQTTConfig{Broker: broker, ClientID: id, QoS: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func TestMQTTSampleSource_DeliversInOrder(t *testing.T) {
	broker := mqtttest.StartBroker(t)
	sub := connect(t, broker, "agent")
	pub := connect(t, broker, "phone")

	const topic = "safety/dev-1/accel"
	src := NewMQTTSampleSource(sub, topic, 32, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	samples, err := src.Subscribe(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		payload := fmt.Sprintf(`{"x":%d,"y":0,"z":9.8}`, i)
		require.NoError(t, pub.Publish(topic, 1, false, []byte(payload)))
	}
	// 非法消息被跳过
	require.NoError(t, pub.Publish(topic, 1, false, []byte("not json")))
	require.NoError(t, pub.Publish(topic, 1, false, []byte(`{"x":10,"y":0,"z":9.8}`)))

	for i := 0; i <= 10; i++ {
		select {
		case s := <-samples:
			assert.Equal(t, models.Sample{X: float64(i), Y: 0, Z: 9.8}, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("sample %d not delivered", i)
		}
	}
}

func TestMQTTSampleSource_ClosesOnCancel(t *testing.T) {
	broker := mqtttest.StartBroker(t)
	sub := connect(t, broker, "agent")

	src := NewMQTTSampleSource(sub, "safety/dev-2/accel", 4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	samples, err := src.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-samples:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestSampleQueue_LogsOncePerBacklog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var dropped atomic.Int64
	q := newSampleQueue(1, "safety/dev-3/accel", &dropped, zap.New(core))

	// 第一次积压
	for i := 0; i < 50; i++ {
		q.offer(models.Sample{X: float64(i)})
	}
	assert.Equal(t, int64(49), dropped.Load())
	assert.Equal(t, 1, logs.FilterMessage("Sample buffer full, dropping samples").Len())

	assert.Equal(t, models.Sample{X: 0}, <-q.out)
	q.offer(models.Sample{X: 100})
	resumed := logs.FilterMessage("Sample delivery resumed").All()
	require.Len(t, resumed, 1)
	assert.Equal(t, int64(49), resumed[0].ContextMap()["dropped"])

	// 第二次积压重新计数
	q.offer(models.Sample{X: 101})
	q.offer(models.Sample{X: 102})
	assert.Equal(t, int64(51), dropped.Load())
	assert.Equal(t, 2, logs.FilterMessage("Sample buffer full, dropping samples").Len())

	q.close()
	q.offer(models.Sample{X: 103})
	assert.Equal(t, int64(51), dropped.Load())
	q.close()
}

func TestMQTTSampleSource_CountsDroppedSamples(t *testing.T) {
	broker := mqtttest.StartBroker(t)
	sub := connect(t, broker, "agent")
	pub := connect(t, broker, "phone")

	const topic = "safety/dev-4/accel"
	src := NewMQTTSampleSource(sub, topic, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	samples, err := src.Subscribe(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		payload := fmt.Sprintf(`{"x":%d,"y":0,"z":9.8}`, i)
		require.NoError(t, pub.Publish(topic, 1, false, []byte(payload)))
	}
	assert.Eventually(t, func() bool { return src.Dropped() == 4 }, 5*time.Second, 10*time.Millisecond)

	select {
	case s := <-samples:
		assert.Equal(t, models.Sample{X: 0, Y: 0, Z: 9.8}, s)
	case <-time.After(5 * time.Second):
		t.Fatal("sample not delivered")
	}
}
