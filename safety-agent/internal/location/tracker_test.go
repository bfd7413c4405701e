package location

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/Renarion/hackathon-indrive-25/common/config"
	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"
	"github.com/Renarion/hackathon-indrive-25/common/mqtt/mqtttest"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const topic = "safety/dev-1/location"

func setup(t *testing.T, maxAge, timeout time.Duration) (*MQTTTracker, *mqttcommon.Client) {
	t.Helper()
	broker := mqtttest.StartBroker(t)

	sub, err := mqttcommon.NewClient(&config.MQTTConfig{Broker: broker, ClientID: "agent", QoS: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(sub.Disconnect)

	pub, err := mqttcommon.NewClient(&config.MQTTConfig{Broker: broker, ClientID: "phone", QoS: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pub.Disconnect)

	return NewMQTTTracker(sub, topic, maxAge, timeout, zap.NewNop()), pub
}

func TestMQTTTracker_NotStarted(t *testing.T) {
	tracker, _ := setup(t, time.Minute, time.Second)

	_, err := tracker.CurrentLocation(context.Background())
	assert.True(t, errors.Is(err, models.ErrDeviceUnavailable))
}

func TestMQTTTracker_WaitsForFix(t *testing.T) {
	tracker, pub := setup(t, time.Minute, 5*time.Second)
	require.NoError(t, tracker.StartUpdates(context.Background()))
	defer tracker.StopUpdates()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = pub.Publish(topic, 1, false, []byte(`{"latitude":43.2389,"longitude":76.8897}`))
	}()

	loc, err := tracker.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 43.2389, loc.Latitude)
	assert.Equal(t, 76.8897, loc.Longitude)
	assert.WithinDuration(t, time.Now(), loc.Timestamp, 5*time.Second)

	// 缓存位置直接返回
	loc2, err := tracker.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, loc, loc2)
}

func TestMQTTTracker_StaleFixTimesOut(t *testing.T) {
	tracker, pub := setup(t, time.Minute, 200*time.Millisecond)
	require.NoError(t, tracker.StartUpdates(context.Background()))
	defer tracker.StopUpdates()

	stale := float64(time.Now().Add(-time.Hour).Unix())
	payload := []byte(`{"latitude":1.5,"longitude":2.5,"timestamp":` + strconv.FormatFloat(stale, 'f', -1, 64) + `}`)
	require.NoError(t, pub.Publish(topic, 1, false, payload))

	require.Eventually(t, func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		return tracker.last != nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err := tracker.CurrentLocation(context.Background())
	assert.True(t, errors.Is(err, models.ErrTimeout))
}

func TestMQTTTracker_RejectsInvalidFix(t *testing.T) {
	tracker, _ := setup(t, time.Minute, time.Second)

	assert.Error(t, tracker.handleFix(topic, []byte(`{"latitude":91,"longitude":0}`)))
	assert.Error(t, tracker.handleFix(topic, []byte(`{"longitude":10}`)))
	assert.Error(t, tracker.handleFix(topic, []byte(`garbage`)))
	assert.NoError(t, tracker.handleFix(topic, []byte(`{"latitude":0,"longitude":0}`)))
}

func TestStatic(t *testing.T) {
	s := NewStatic(51.1, 71.4)
	require.NoError(t, s.StartUpdates(context.Background()))

	loc, err := s.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 51.1, loc.Latitude)
	assert.Equal(t, 71.4, loc.Longitude)
	assert.NoError(t, s.StopUpdates())
}
