package service

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	commonconfig "github.com/Renarion/hackathon-indrive-25/common/config"
	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"
	"github.com/Renarion/hackathon-indrive-25/common/mqtt/mqtttest"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/config"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type upload struct {
	photos int
	audio  string
	lat    string
}

func testConfig(t *testing.T, broker string, collector *url.URL, snapshotURL string) *config.Config {
	t.Helper()
	t.Setenv("DEVICE_ID", "test-car")
	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.MQTT.Broker = broker
	cfg.Sensor.Buffer = 512
	cfg.Evidence.ShotInterval = time.Millisecond
	cfg.Evidence.RecordDuration = 100 * time.Millisecond
	cfg.Evidence.ConfirmGrace = 0
	cfg.Camera.SnapshotURL = snapshotURL
	cfg.Camera.Timeout = time.Second
	cfg.Recorder.Command = "sh"
	cfg.Recorder.Args = []string{"-c", `printf 'RIFFwav' > "$1"; exec sleep 5`, "sh", "{file}"}
	cfg.Recorder.Dir = t.TempDir()
	cfg.Location.Source = "static"
	cfg.Location.StaticLatitude = 43.25
	cfg.Location.StaticLongitude = 76.95

	host, port, err := net.SplitHostPort(collector.Host)
	require.NoError(t, err)
	cfg.Agent.EndpointHost = host
	cfg.Upload.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	return cfg
}

func TestAgentService_EndToEnd(t *testing.T) {
	broker := mqtttest.StartBroker(t)

	uploads := make(chan upload, 4)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/incidents" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		audio := ""
		if fhs := r.MultipartForm.File["audio"]; len(fhs) == 1 {
			f, err := fhs[0].Open()
			if err == nil {
				b, _ := io.ReadAll(f)
				f.Close()
				audio = string(b)
			}
		}
		uploads <- upload{
			photos: len(r.MultipartForm.File["photos"]),
			audio:  audio,
			lat:    r.FormValue("latitude"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	camera := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
	}))
	defer camera.Close()

	collectorURL, err := url.Parse(collector.URL)
	require.NoError(t, err)
	cfg := testConfig(t, broker, collectorURL, camera.URL)

	svc, err := NewAgentService(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	require.Eventually(t, func() bool {
		s := svc.orchestrator.Active()
		return s != nil && s.State() == monitor.StateMonitoring
	}, 5*time.Second, 10*time.Millisecond)

	phone, err := mqttcommon.NewClient(&commonconfig.MQTTConfig{Broker: broker, ClientID: "phone"}, zap.NewNop())
	require.NoError(t, err)
	defer phone.Disconnect()

	for i := 0; i < 100; i++ {
		require.NoError(t, phone.Publish(cfg.Topics.Sensor, 1, false, []byte(`{"x":9.8,"y":0,"z":0}`)))
	}
	require.NoError(t, phone.Publish(cfg.Topics.Sensor, 1, false, []byte(`{"x":30,"y":0,"z":0}`)))

	select {
	case u := <-uploads:
		assert.Equal(t, 5, u.photos)
		assert.Equal(t, "RIFFwav", u.audio)
		assert.Equal(t, "43.25", u.lat)
	case <-time.After(10 * time.Second):
		t.Fatal("no upload received")
	}

	// 通过控制主题停止监测
	require.NoError(t, phone.Publish(cfg.Topics.Command, 1, false, []byte("stop")))
	require.Eventually(t, func() bool {
		return svc.orchestrator.Active() == nil
	}, 5*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, svc.Stop(stopCtx))
	assert.Empty(t, uploads, "exactly one upload")
}

func TestAgentService_ConfirmWithoutSession(t *testing.T) {
	broker := mqtttest.StartBroker(t)
	cfg := testConfig(t, broker, &url.URL{Host: "127.0.0.1:5000"}, "http://127.0.0.1:1/snapshot.jpg")
	cfg.Agent.AutoStart = false

	svc, err := NewAgentService(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	assert.False(t, svc.ConfirmIncident())
	assert.False(t, svc.DismissIncident())
	assert.NoError(t, svc.StopMonitoring())
	require.NoError(t, svc.Stop(context.Background()))
}

func TestAgentService_UnreachableBroker(t *testing.T) {
	cfg := testConfig(t, "tcp://127.0.0.1:1", &url.URL{Host: "127.0.0.1:5000"}, "")
	cfg.MQTT.ConnectTimeout = 300 * time.Millisecond

	_, err := NewAgentService(cfg, zap.NewNop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to MQTT")
}
