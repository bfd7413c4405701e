package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Renarion/hackathon-indrive-25/common/config"
)

// Config 安全监测代理配置
type Config struct {
	MQTT config.MQTTConfig

	Agent struct {
		DeviceID     string
		AutoStart    bool   // 启动后立即开始监测
		EndpointHost string // 上传服务器主机
	}

	Topics struct {
		Sensor   string // 加速度主题，如 "safety/<device>/accel"
		Location string // 定位主题
		Command  string // 控制主题
		Status   string // 状态主题
	}

	Sensor struct {
		Buffer int
	}

	Detector struct {
		WindowSize        int
		SensitivityMargin float64
	}

	Evidence struct {
		PhotoCount             int
		ShotInterval           time.Duration
		RecordDuration         time.Duration
		ConfirmGrace           time.Duration
		UploadOnCaptureFailure bool
	}

	Camera struct {
		SnapshotURL string
		Timeout     time.Duration
	}

	Recorder struct {
		Command string
		Args    []string // 输出文件用 {file} 占位
		Dir     string
	}

	Location struct {
		Source          string // mqtt | static
		MaxAge          time.Duration
		Timeout         time.Duration
		StaticLatitude  float64
		StaticLongitude float64
	}

	Upload struct {
		Scheme  string
		Port    int
		Path    string
		Timeout time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Agent.DeviceID = config.GetEnv("DEVICE_ID", "agent-1")
	cfg.Agent.AutoStart = config.GetEnvBool("AUTO_START", true)
	cfg.Agent.EndpointHost = config.GetEnv("UPLOAD_HOST", "localhost")

	cfg.MQTT = config.MQTTConfig{
		Broker:         "tcp://localhost:1883",
		ClientID:       "safety-agent-" + cfg.Agent.DeviceID,
		QoS:            1,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	prefix := "safety/" + cfg.Agent.DeviceID
	cfg.Topics.Sensor = config.GetEnv("SENSOR_TOPIC", prefix+"/accel")
	cfg.Topics.Location = config.GetEnv("LOCATION_TOPIC", prefix+"/location")
	cfg.Topics.Command = config.GetEnv("COMMAND_TOPIC", prefix+"/command")
	cfg.Topics.Status = config.GetEnv("STATUS_TOPIC", prefix+"/status")

	cfg.Sensor.Buffer = config.GetEnvInt("SENSOR_BUFFER", 64)

	cfg.Detector.WindowSize = config.GetEnvInt("DETECTOR_WINDOW_SIZE", 100)
	cfg.Detector.SensitivityMargin = config.GetEnvFloat("DETECTOR_SENSITIVITY_MARGIN", 5.0)

	cfg.Evidence.PhotoCount = config.GetEnvInt("PHOTO_COUNT", 5)
	cfg.Evidence.ShotInterval = config.GetEnvDuration("PHOTO_INTERVAL", 300*time.Millisecond)
	cfg.Evidence.RecordDuration = config.GetEnvDuration("RECORD_DURATION", 5*time.Second)
	cfg.Evidence.ConfirmGrace = config.GetEnvDuration("CONFIRM_GRACE", 10*time.Second)
	cfg.Evidence.UploadOnCaptureFailure = config.GetEnvBool("UPLOAD_ON_CAPTURE_FAILURE", false)

	cfg.Camera.SnapshotURL = config.GetEnv("CAMERA_SNAPSHOT_URL", "http://localhost:8080/snapshot.jpg")
	cfg.Camera.Timeout = config.GetEnvDuration("CAMERA_TIMEOUT", 3*time.Second)

	cfg.Recorder.Command = config.GetEnv("RECORDER_COMMAND", "arecord")
	if args := config.GetEnv("RECORDER_ARGS", ""); args != "" {
		cfg.Recorder.Args = strings.Fields(args)
	}
	cfg.Recorder.Dir = config.GetEnv("RECORDER_DIR", "")

	cfg.Location.Source = strings.ToLower(config.GetEnv("LOCATION_SOURCE", "mqtt"))
	cfg.Location.MaxAge = config.GetEnvDuration("LOCATION_MAX_AGE", 30*time.Second)
	cfg.Location.Timeout = config.GetEnvDuration("LOCATION_TIMEOUT", 10*time.Second)
	cfg.Location.StaticLatitude = config.GetEnvFloat("STATIC_LATITUDE", 0)
	cfg.Location.StaticLongitude = config.GetEnvFloat("STATIC_LONGITUDE", 0)

	cfg.Upload.Scheme = config.GetEnv("UPLOAD_SCHEME", "http")
	cfg.Upload.Port = config.GetEnvInt("UPLOAD_PORT", 5000)
	cfg.Upload.Path = config.GetEnv("UPLOAD_PATH", "/api/v1/incidents")
	cfg.Upload.Timeout = config.GetEnvDuration("UPLOAD_TIMEOUT", 30*time.Second)

	cfg.Log.Level = config.GetEnv("LOG_LEVEL", "info")
	cfg.Log.Format = config.GetEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.Detector.WindowSize < 2 {
		errs = append(errs, fmt.Errorf("DETECTOR_WINDOW_SIZE must be at least 2, got %d", c.Detector.WindowSize))
	}
	if c.Detector.SensitivityMargin < 0 {
		errs = append(errs, fmt.Errorf("DETECTOR_SENSITIVITY_MARGIN must not be negative"))
	}
	if c.Evidence.PhotoCount < 0 {
		errs = append(errs, fmt.Errorf("PHOTO_COUNT must not be negative"))
	}
	if c.Evidence.RecordDuration <= 0 {
		errs = append(errs, fmt.Errorf("RECORD_DURATION must be positive"))
	}
	if c.Location.Source != "mqtt" && c.Location.Source != "static" {
		errs = append(errs, fmt.Errorf("LOCATION_SOURCE must be mqtt or static, got %q", c.Location.Source))
	}
	if c.Upload.Port <= 0 || c.Upload.Port > 65535 {
		errs = append(errs, fmt.Errorf("UPLOAD_PORT out of range: %d", c.Upload.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
