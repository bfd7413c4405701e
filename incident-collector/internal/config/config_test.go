package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, int64(64<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, SinkRedis, cfg.Events.Sink)
	assert.Equal(t, "incidents", cfg.Database.Database)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Notify.BotToken)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("EVENT_SINK", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_TOPIC", "safety.incidents")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("NOTIFY_BOT_TOKEN", "123:abc")
	t.Setenv("NOTIFY_CHAT_ID", "@incidents")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SinkKafka, cfg.Events.Sink)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "safety.incidents", cfg.Kafka.Topic)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "@incidents", cfg.Notify.ChatID)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("EVENT_SINK", "nats")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_TokenWithoutChat(t *testing.T) {
	t.Setenv("NOTIFY_BOT_TOKEN", "123:abc")
	_, err := Load()
	assert.ErrorContains(t, err, "NOTIFY_CHAT_ID")
}
