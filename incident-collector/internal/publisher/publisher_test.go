package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent() models.IncidentEvent {
	return models.IncidentEvent{
		IncidentID: "0f8c2b4e-6c1d-4c55-9b43-2f1a5f0e9d11",
		Latitude:   43.25,
		Longitude:  76.95,
		PhotoCount: 5,
		AudioBytes: 2048,
		MapsLink:   models.MapsLink(43.25, 76.95),
	}
}

func TestRedisStreamPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewRedisStreamPublisher(client, "incidents:stream", 100, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), testEvent()))

	msgs, err := client.XRange(context.Background(), "incidents:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.EventIncidentReceived, msgs[0].Values["type"])

	var got models.IncidentEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, testEvent().IncidentID, got.IncidentID)
	assert.Equal(t, 5, got.PhotoCount)
}

func TestRedisStreamPublisher_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	p := NewRedisStreamPublisher(client, "incidents:stream", 0, zap.NewNop())
	assert.Error(t, p.Publish(context.Background(), testEvent()))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, testEvent().IncidentID, string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, models.EventIncidentReceived, string(msg.Headers[0].Value))

	var got models.IncidentEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, testEvent().MapsLink, got.MapsLink)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisher(&fakeWriter{err: errors.New("leader not available")}, zap.NewNop())
	assert.ErrorContains(t, p.Publish(context.Background(), testEvent()), "leader not available")
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"a:9092", "b:9092"}, "incidents")
	defer w.Close()
	assert.Equal(t, "incidents", w.Topic)
	assert.Equal(t, "a:9092,b:9092", w.Addr.String())
	assert.Equal(t, "tcp,tcp", w.Addr.Network())
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
}

func TestNopPublisher(t *testing.T) {
	var p EventPublisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.NoError(t, p.Close())
}
