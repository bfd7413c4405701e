package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_FLOAT", "5.5")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "300ms")

	assert.Equal(t, "value", GetEnv("TEST_STR", "default"))
	assert.Equal(t, "default", GetEnv("TEST_MISSING", "default"))
	assert.Equal(t, 42, GetEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("TEST_BAD_INT", 1))
	assert.Equal(t, 5.5, GetEnvFloat("TEST_FLOAT", 1))
	assert.True(t, GetEnvBool("TEST_BOOL", false))
	assert.Equal(t, 300*time.Millisecond, GetEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("TEST_MISSING", time.Second))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitList(""))
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("MQTT_KEEP_ALIVE", "45s")

	cfg := MQTTConfig{Broker: "tcp://localhost:1883", QoS: 1}
	cfg.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(2), cfg.QoS)
	assert.Equal(t, 45*time.Second, cfg.KeepAlive)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "incidents", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=incidents sslmode=disable", cfg.GetDSN())
}
