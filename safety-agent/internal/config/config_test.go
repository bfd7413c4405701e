package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "agent-1", cfg.Agent.DeviceID)
	assert.Equal(t, "safety/agent-1/accel", cfg.Topics.Sensor)
	assert.Equal(t, "safety/agent-1/status", cfg.Topics.Status)
	assert.Equal(t, 100, cfg.Detector.WindowSize)
	assert.Equal(t, 5.0, cfg.Detector.SensitivityMargin)
	assert.Equal(t, 5, cfg.Evidence.PhotoCount)
	assert.Equal(t, 300*time.Millisecond, cfg.Evidence.ShotInterval)
	assert.Equal(t, 5*time.Second, cfg.Evidence.RecordDuration)
	assert.False(t, cfg.Evidence.UploadOnCaptureFailure)
	assert.Equal(t, "http", cfg.Upload.Scheme)
	assert.Equal(t, 5000, cfg.Upload.Port)
	assert.Equal(t, "/api/v1/incidents", cfg.Upload.Path)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Nil(t, cfg.Recorder.Args)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DEVICE_ID", "taxi-42")
	t.Setenv("DETECTOR_WINDOW_SIZE", "50")
	t.Setenv("DETECTOR_SENSITIVITY_MARGIN", "3.5")
	t.Setenv("PHOTO_INTERVAL", "100ms")
	t.Setenv("UPLOAD_ON_CAPTURE_FAILURE", "true")
	t.Setenv("RECORDER_ARGS", "-q -t wav {file}")
	t.Setenv("LOCATION_SOURCE", "STATIC")
	t.Setenv("MQTT_QOS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "safety/taxi-42/accel", cfg.Topics.Sensor)
	assert.Equal(t, "safety-agent-taxi-42", cfg.MQTT.ClientID)
	assert.Equal(t, 50, cfg.Detector.WindowSize)
	assert.Equal(t, 3.5, cfg.Detector.SensitivityMargin)
	assert.Equal(t, 100*time.Millisecond, cfg.Evidence.ShotInterval)
	assert.True(t, cfg.Evidence.UploadOnCaptureFailure)
	assert.Equal(t, []string{"-q", "-t", "wav", "{file}"}, cfg.Recorder.Args)
	assert.Equal(t, "static", cfg.Location.Source)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DETECTOR_WINDOW_SIZE", "1")
	t.Setenv("LOCATION_SOURCE", "gps")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DETECTOR_WINDOW_SIZE")
	assert.Contains(t, err.Error(), "LOCATION_SOURCE")
}
