// Package monitor drives a monitoring session: sensor samples flow through
// the anomaly detector and the state machine, and each incident triggers
// evidence collection, a confirmation window and the report upload.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/detector"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/evidence"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionActive 已有会话在运行
var ErrSessionActive = errors.New("monitoring session already active")

// Options 会话参数
type Options struct {
	WindowSize        int
	SensitivityMargin float64
	Evidence          evidence.Config
	// ConfirmGrace 从检测到事故起等待确认/取消的时间，超时按确认处理；<= 0 时不等待
	ConfirmGrace time.Duration
	// UploadOnCaptureFailure 采集失败时仍上传（照片/录音为空）
	UploadOnCaptureFailure bool
	StateBuffer            int
	OutcomeBuffer          int
	Now                    func() time.Time
}

// DefaultOptions 默认会话参数
func DefaultOptions() Options {
	return Options{
		WindowSize:        detector.DefaultWindowSize,
		SensitivityMargin: detector.DefaultSensitivityMargin,
		Evidence:          evidence.DefaultConfig(),
		ConfirmGrace:      10 * time.Second,
		StateBuffer:       16,
		OutcomeBuffer:     8,
		Now:               time.Now,
	}
}

// Dependencies 会话依赖的外部能力
type Dependencies struct {
	Sensor   SampleSource
	Location LocationProvider
	Camera   Camera
	Recorder AudioRecorder
	// NewSender 按上传主机创建 ReportSender
	NewSender func(endpointHost string) ReportSender
}

func (d Dependencies) validate() error {
	switch {
	case d.Sensor == nil:
		return errors.New("sample source is required")
	case d.Location == nil:
		return errors.New("location provider is required")
	case d.Camera == nil:
		return errors.New("camera is required")
	case d.Recorder == nil:
		return errors.New("audio recorder is required")
	case d.NewSender == nil:
		return errors.New("report sender factory is required")
	}
	return nil
}

// IncidentOutcome 一次事故处理的结果
type IncidentOutcome struct {
	ID         string           `json:"incident_id"`
	DetectedAt time.Time        `json:"detected_at"`
	Verdict    detector.Verdict `json:"verdict"`
	Decision   Decision         `json:"decision"`
	Collected  bool             `json:"collected"`
	PhotoCount int              `json:"photo_count"`
	AudioBytes int              `json:"audio_bytes"`
	Uploaded   bool             `json:"uploaded"`
	CollectErr error            `json:"-"`
	UploadErr  error            `json:"-"`
	// Report 已构建但未必上传成功的报告，可用于 Session.Upload 重传
	Report *models.IncidentReport `json:"-"`
}

// Orchestrator 会话管理，同一时刻最多一个活动会话
type Orchestrator struct {
	opts   Options
	deps   Dependencies
	logger *zap.Logger

	mu     sync.Mutex
	active *Session
}

// NewOrchestrator 创建会话管理器
func NewOrchestrator(opts Options, deps Dependencies, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		opts:   opts,
		deps:   deps,
		logger: logger,
	}
}

// StartSession 启动监测会话
// ctx 结束等同于 Stop
func (o *Orchestrator) StartSession(ctx context.Context, endpointHost string) (*Session, error) {
	if err := o.deps.validate(); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return nil, ErrSessionActive
	}

	sctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	s := &Session{
		id:        id,
		opts:      o.opts,
		deps:      o.deps,
		orch:      o,
		logger:    o.logger.With(zap.String("session_id", id)),
		detector:  detector.New(o.opts.WindowSize, o.opts.SensitivityMargin),
		machine:   NewStateMachine(),
		collector: evidence.NewCollector(o.opts.Evidence, o.deps.Camera, o.deps.Recorder, o.logger),
		sender:    o.deps.NewSender(endpointHost),
		states:    make(chan State, o.opts.StateBuffer),
		outcomes:  make(chan IncidentOutcome, o.opts.OutcomeBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	o.active = s

	s.logger.Info("Monitoring session started",
		zap.String("endpoint_host", endpointHost),
		zap.Int("window_size", s.detector.WindowSize()),
		zap.Float64("sensitivity_margin", o.opts.SensitivityMargin),
	)
	go s.run(sctx)
	return s, nil
}

// Active 返回当前活动会话，没有时返回 nil
func (o *Orchestrator) Active() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) release(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == s {
		o.active = nil
	}
}

// Session 一次监测会话
// 检测窗口与状态机只由会话 goroutine 访问
type Session struct {
	id     string
	opts   Options
	deps   Dependencies
	orch   *Orchestrator
	logger *zap.Logger

	detector  *detector.AnomalyDetector
	machine   *StateMachine
	collector *evidence.Collector
	sender    ReportSender

	states   chan State
	outcomes chan IncidentOutcome
	cancel   context.CancelFunc
	done     chan struct{}
	err      error

	gateMu sync.Mutex
	gate   *gate

	// 已获取的资源，由 teardown 释放
	initialized     bool
	sensorCancel    context.CancelFunc
	samples         <-chan models.Sample
	locationStarted bool
	recorderReady   bool
	cameraOpened    bool
}

// ID 会话 ID
func (s *Session) ID() string { return s.id }

// States 状态序列，会话结束时关闭
func (s *Session) States() <-chan State { return s.states }

// Outcomes 事故处理结果，会话结束时关闭
func (s *Session) Outcomes() <-chan IncidentOutcome { return s.outcomes }

// State 当前状态
func (s *Session) State() State { return s.machine.State() }

// Done 会话结束后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop 停止会话并等待资源释放
// 确认窗口内停止视为乘客取消：已开始的采集会完成，但报告不会上传
// 已确认或已超时的事故继续完成上传
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// Wait 等待会话结束并返回终止原因
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Err 会话结束后返回终止原因，正常停止或尚未结束时为 nil
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// ConfirmIncident 确认当前事故，立即上传
// 没有待确认事故时返回 false
func (s *Session) ConfirmIncident() bool {
	return s.decide(DecisionConfirmed)
}

// DismissIncident 取消当前事故，不上传
func (s *Session) DismissIncident() bool {
	return s.decide(DecisionDismissed)
}

// Upload 重传报告，不做自动重试
func (s *Session) Upload(ctx context.Context, report models.IncidentReport) error {
	return s.sender.Upload(ctx, report)
}

func (s *Session) decide(d Decision) bool {
	s.gateMu.Lock()
	g := s.gate
	s.gateMu.Unlock()
	if g == nil {
		s.logger.Debug("No pending incident", zap.Stringer("decision", d))
		return false
	}
	ok := g.resolve(d)
	if ok {
		s.logger.Info("Incident decision received", zap.Stringer("decision", d))
	}
	return ok
}

func (s *Session) setGate(g *gate) {
	s.gateMu.Lock()
	s.gate = g
	s.gateMu.Unlock()
}

func (s *Session) run(ctx context.Context) {
	defer func() {
		s.teardown()
		close(s.states)
		close(s.outcomes)
		s.orch.release(s)
		if s.err != nil {
			s.logger.Error("Monitoring session terminated", zap.Error(s.err))
		} else {
			s.logger.Info("Monitoring session stopped")
		}
		close(s.done)
	}()

	s.machine.On(StatePreparing, EventReady, func(Transition) error {
		return s.initialize(ctx)
	})
	s.machine.On(StateIncident, EventCollected, func(Transition) error {
		s.detector.Reset()
		return nil
	})

	s.err = s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	if !s.emit(ctx, StatePreparing) {
		s.stopMachine()
		return nil
	}
	if _, err := s.machine.Fire(EventReady); err != nil {
		return err
	}

	magnitudes := detector.Magnitudes(ctx, s.samples)
	for {
		var m float64
		select {
		case <-ctx.Done():
			s.stopMachine()
			return nil
		case v, ok := <-magnitudes:
			if !ok {
				if ctx.Err() != nil {
					s.stopMachine()
					return nil
				}
				return models.NewError(models.KindDeviceUnavailable, "read samples", errors.New("sample stream closed"))
			}
			m = v
		}
		if ctx.Err() != nil {
			s.stopMachine()
			return nil
		}

		// 事故处理结束后回到 Preparing，下一个样本重新进入 Monitoring
		if s.machine.State() == StatePreparing {
			if _, err := s.machine.Fire(EventReady); err != nil {
				return err
			}
		}

		verdict := s.detector.Observe(m)
		if !verdict.IsAnomalous {
			if !s.emit(ctx, StateMonitoring) {
				s.stopMachine()
				return nil
			}
			continue
		}

		s.handleIncident(ctx, verdict)
		if !s.emit(ctx, StatePreparing) {
			s.stopMachine()
			return nil
		}
	}
}

// initialize 获取位置、录音、相机与传感器，只执行一次
func (s *Session) initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	if err := s.deps.Location.StartUpdates(ctx); err != nil {
		return initError("start location updates", err)
	}
	s.locationStarted = true

	if err := s.deps.Recorder.RequestPermission(ctx); err != nil {
		return initError("request microphone permission", err)
	}
	s.recorderReady = true

	if err := s.deps.Camera.Open(ctx); err != nil {
		return initError("open camera", err)
	}
	s.cameraOpened = true

	sensorCtx, cancel := context.WithCancel(ctx)
	samples, err := s.deps.Sensor.Subscribe(sensorCtx)
	if err != nil {
		cancel()
		return initError("subscribe to accelerometer", err)
	}
	s.sensorCancel = cancel
	s.samples = samples

	s.initialized = true
	s.logger.Info("Monitoring session initialized")
	return nil
}

// initError 权限错误保持原分类，其余归为初始化错误
func initError(op string, err error) error {
	if errors.Is(err, models.ErrPermission) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return models.NewError(models.KindInitialization, op, err)
}

func (s *Session) teardown() {
	if s.sensorCancel != nil {
		s.sensorCancel()
	}
	if s.locationStarted {
		if err := s.deps.Location.StopUpdates(); err != nil {
			s.logger.Warn("Failed to stop location updates", zap.Error(err))
		}
	}
	if s.cameraOpened {
		if err := s.deps.Camera.Close(); err != nil {
			s.logger.Warn("Failed to close camera", zap.Error(err))
		}
	}
	if s.recorderReady {
		if err := s.deps.Recorder.Close(); err != nil {
			s.logger.Warn("Failed to close audio recorder", zap.Error(err))
		}
	}
}

func (s *Session) stopMachine() {
	if _, err := s.machine.Fire(EventStop); err != nil {
		s.logger.Debug("Stop ignored", zap.Error(err))
	}
}

// emit 按需发送状态，ctx 结束后不再发送
func (s *Session) emit(ctx context.Context, st State) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.states <- st:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) handleIncident(ctx context.Context, verdict detector.Verdict) {
	if _, err := s.machine.Fire(EventAnomaly); err != nil {
		s.logger.Error("Unexpected state transition", zap.Error(err))
		return
	}

	outcome := IncidentOutcome{
		ID:         uuid.NewString(),
		DetectedAt: s.opts.Now(),
		Verdict:    verdict,
	}
	logger := s.logger.With(zap.String("incident_id", outcome.ID))
	logger.Warn("Incident detected",
		zap.Float64("magnitude", verdict.Magnitude),
		zap.Float64("threshold", verdict.Threshold),
		zap.Float64("mean", verdict.Mean),
		zap.Float64("std_dev", verdict.StdDev),
	)

	// 先开放确认窗口再发出 Incident，订阅者收到后即可确认或取消
	g := newGate(s.opts.ConfirmGrace)
	s.setGate(g)
	defer s.setGate(nil)
	stopWatch := context.AfterFunc(ctx, func() { g.resolve(DecisionDismissed) })
	defer stopWatch()

	if !s.emit(ctx, StateIncident) {
		g.resolve(DecisionDismissed)
	}

	// 停止会话不打断进行中的采集与上传
	s.resolveIncident(context.WithoutCancel(ctx), g, &outcome, logger)
	s.publishOutcome(outcome, logger)

	if _, err := s.machine.Fire(EventCollected); err != nil {
		logger.Error("Unexpected state transition", zap.Error(err))
	}
}

func (s *Session) resolveIncident(ctx context.Context, g *gate, outcome *IncidentOutcome, logger *zap.Logger) {
	if d, ok := g.peek(); ok && !d.Proceeds() {
		outcome.Decision = d
		logger.Info("Incident dismissed before collection")
		return
	}

	ev, collectErr := s.collector.Collect(ctx)
	if collectErr != nil {
		outcome.CollectErr = collectErr
		logger.Warn("Evidence collection failed", zap.Error(collectErr))
	} else {
		outcome.Collected = true
		outcome.PhotoCount = len(ev.Photos)
		outcome.AudioBytes = len(ev.Audio)
	}

	outcome.Decision = g.wait()
	if !outcome.Decision.Proceeds() {
		logger.Info("Incident dismissed", zap.Stringer("decision", outcome.Decision))
		return
	}
	if collectErr != nil && !s.opts.UploadOnCaptureFailure {
		return
	}

	loc, err := s.deps.Location.CurrentLocation(ctx)
	if err != nil {
		outcome.UploadErr = fmt.Errorf("failed to get current location: %w", err)
		logger.Error("Report not sent", zap.Error(outcome.UploadErr))
		return
	}

	report := models.NewIncidentReport(outcome.ID, unixSeconds(outcome.DetectedAt), loc, ev)
	outcome.Report = &report
	if err := s.sender.Upload(ctx, report); err != nil {
		outcome.UploadErr = err
		logger.Error("Report upload failed",
			zap.String("error_kind", string(models.KindOf(err))),
			zap.Error(err),
		)
		return
	}
	outcome.Uploaded = true
}

// publishOutcome 不阻塞会话，缓冲满时丢弃
func (s *Session) publishOutcome(outcome IncidentOutcome, logger *zap.Logger) {
	select {
	case s.outcomes <- outcome:
	default:
		logger.Warn("Outcome dropped, no reader")
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
