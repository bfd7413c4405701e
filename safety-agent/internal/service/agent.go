package service

import (
	"context"
	"fmt"
	"sync"

	mqttcommon "github.com/Renarion/hackathon-indrive-25/common/mqtt"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/capture"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/config"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/consumer"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/evidence"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/location"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/monitor"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/source"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/uploader"

	"go.uber.org/zap"
)

// AgentService 安全监测代理服务
type AgentService struct {
	config       *config.Config
	logger       *zap.Logger
	mqttClient   *mqttcommon.Client
	orchestrator *monitor.Orchestrator
	commands     *consumer.CommandConsumer
	status       *consumer.StatusPublisher

	mu          sync.Mutex
	publishDone chan struct{}
}

// NewAgentService 创建代理服务
func NewAgentService(cfg *config.Config, logger *zap.Logger) (*AgentService, error) {
	// 初始化MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	var loc monitor.LocationProvider
	switch cfg.Location.Source {
	case "static":
		loc = location.NewStatic(cfg.Location.StaticLatitude, cfg.Location.StaticLongitude)
	default:
		loc = location.NewMQTTTracker(mqttClient, cfg.Topics.Location, cfg.Location.MaxAge, cfg.Location.Timeout, logger.Named("location"))
	}

	deps := monitor.Dependencies{
		Sensor:   source.NewMQTTSampleSource(mqttClient, cfg.Topics.Sensor, cfg.Sensor.Buffer, logger.Named("sensor")),
		Location: loc,
		Camera:   capture.NewSnapshotCamera(cfg.Camera.SnapshotURL, cfg.Camera.Timeout, logger.Named("camera")),
		Recorder: capture.NewCommandRecorder(cfg.Recorder.Command, cfg.Recorder.Args, cfg.Recorder.Dir, logger.Named("recorder")),
		NewSender: func(host string) monitor.ReportSender {
			endpoint := uploader.EndpointURL(cfg.Upload.Scheme, host, cfg.Upload.Port, cfg.Upload.Path)
			return uploader.New(endpoint, cfg.Upload.Timeout, logger.Named("uploader"))
		},
	}

	opts := monitor.DefaultOptions()
	opts.WindowSize = cfg.Detector.WindowSize
	opts.SensitivityMargin = cfg.Detector.SensitivityMargin
	opts.Evidence = evidence.Config{
		PhotoCount:     cfg.Evidence.PhotoCount,
		ShotInterval:   cfg.Evidence.ShotInterval,
		RecordDuration: cfg.Evidence.RecordDuration,
	}
	opts.ConfirmGrace = cfg.Evidence.ConfirmGrace
	opts.UploadOnCaptureFailure = cfg.Evidence.UploadOnCaptureFailure

	s := &AgentService{
		config:       cfg,
		logger:       logger,
		mqttClient:   mqttClient,
		orchestrator: monitor.NewOrchestrator(opts, deps, logger.Named("monitor")),
		status:       consumer.NewStatusPublisher(mqttClient, cfg.Topics.Status, logger.Named("status")),
	}
	s.commands = consumer.NewCommandConsumer(mqttClient, cfg.Topics.Command, s, cfg.Agent.EndpointHost, logger.Named("commands"))
	return s, nil
}

// Start 启动服务
func (s *AgentService) Start(ctx context.Context) error {
	s.logger.Info("Starting safety agent components")

	if err := s.commands.Start(ctx); err != nil {
		return fmt.Errorf("failed to start command consumer: %w", err)
	}

	if s.config.Agent.AutoStart {
		if err := s.StartMonitoring(ctx, s.config.Agent.EndpointHost); err != nil {
			return fmt.Errorf("failed to start monitoring: %w", err)
		}
	}

	s.logger.Info("Safety agent started successfully")
	return nil
}

// Stop 停止服务
func (s *AgentService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping safety agent")

	if s.commands != nil {
		if err := s.commands.Stop(ctx); err != nil {
			s.logger.Error("Error stopping command consumer", zap.Error(err))
		}
	}

	if err := s.StopMonitoring(); err != nil {
		s.logger.Error("Error stopping monitoring", zap.Error(err))
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	s.logger.Info("Safety agent stopped")
	return nil
}

// StartMonitoring 启动监测会话并发布其状态
func (s *AgentService) StartMonitoring(ctx context.Context, endpointHost string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.orchestrator.StartSession(ctx, endpointHost)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	s.publishDone = done
	go func() {
		defer close(done)
		s.status.Run(session)
	}()
	return nil
}

// StopMonitoring 停止当前会话，没有会话时直接返回
func (s *AgentService) StopMonitoring() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session := s.orchestrator.Active(); session != nil {
		session.Stop()
	}
	if s.publishDone != nil {
		<-s.publishDone
		s.publishDone = nil
	}
	return nil
}

// ConfirmIncident 确认当前事故
func (s *AgentService) ConfirmIncident() bool {
	if session := s.orchestrator.Active(); session != nil {
		return session.ConfirmIncident()
	}
	return false
}

// DismissIncident 取消当前事故
func (s *AgentService) DismissIncident() bool {
	if session := s.orchestrator.Active(); session != nil {
		return session.DismissIncident()
	}
	return false
}
