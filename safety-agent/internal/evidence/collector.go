// Package evidence runs the concurrent photo burst and audio recording that
// back an incident report.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Camera 拍照能力
// CapturePhoto 返回 nil 表示没有可用图像
type Camera interface {
	Open(ctx context.Context) error
	CapturePhoto(ctx context.Context) ([]byte, error)
	Close() error
}

// AudioRecorder 录音能力
type AudioRecorder interface {
	RequestPermission(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording() error
	RecordedAudio() ([]byte, error)
	Close() error
}

// Config 采集参数
type Config struct {
	PhotoCount     int           // 连拍张数，默认 5
	ShotInterval   time.Duration // 每张之后的间隔，默认 300ms
	RecordDuration time.Duration // 录音时长，默认 5s
}

// DefaultConfig 默认采集参数
func DefaultConfig() Config {
	return Config{
		PhotoCount:     5,
		ShotInterval:   300 * time.Millisecond,
		RecordDuration: 5 * time.Second,
	}
}

// Collector 证据采集器
type Collector struct {
	config   Config
	camera   Camera
	recorder AudioRecorder
	logger   *zap.Logger
}

// NewCollector 创建证据采集器
func NewCollector(cfg Config, camera Camera, recorder AudioRecorder, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		config:   cfg,
		camera:   camera,
		recorder: recorder,
		logger:   logger,
	}
}

// Collect 并发执行拍照与录音两个分支并等待两者完成
// 任一分支失败则整体失败，另一分支通过 ctx 提前结束，不返回部分证据
func (c *Collector) Collect(ctx context.Context) (models.Evidence, error) {
	start := time.Now()
	results := make(chan models.BranchResult, 2)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		photos, err := c.takePhotos(gctx)
		if err != nil {
			return fmt.Errorf("photo branch: %w", err)
		}
		results <- models.BranchResult{Kind: models.BranchPhotos, Photos: photos}
		return nil
	})
	g.Go(func() error {
		audio, err := c.recordAudio(gctx)
		if err != nil {
			return fmt.Errorf("audio branch: %w", err)
		}
		results <- models.BranchResult{Kind: models.BranchAudio, Audio: audio}
		return nil
	})

	if err := g.Wait(); err != nil {
		c.logger.Warn("Evidence collection failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return models.Evidence{}, err
	}
	close(results)

	var ev models.Evidence
	for r := range results {
		switch r.Kind {
		case models.BranchPhotos:
			ev.Photos = r.Photos
		case models.BranchAudio:
			ev.Audio = r.Audio
		}
	}

	c.logger.Info("Evidence collected",
		zap.Int("photo_count", len(ev.Photos)),
		zap.Int("audio_bytes", len(ev.Audio)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ev, nil
}

// takePhotos 连拍，每张之后等待 ShotInterval
func (c *Collector) takePhotos(ctx context.Context) ([][]byte, error) {
	photos := make([][]byte, 0, c.config.PhotoCount)
	for i := 0; i < c.config.PhotoCount; i++ {
		photo, err := c.camera.CapturePhoto(ctx)
		if err != nil {
			return nil, models.NewError(models.KindCapture, fmt.Sprintf("capture photo %d", i), err)
		}
		if len(photo) == 0 {
			return nil, models.NewError(models.KindCapture, fmt.Sprintf("capture photo %d", i), fmt.Errorf("no usable image"))
		}
		photos = append(photos, photo)

		if err := sleep(ctx, c.config.ShotInterval); err != nil {
			return nil, err
		}
	}
	return photos, nil
}

// recordAudio 录音固定时长后取回缓冲区，录音总会被停止
func (c *Collector) recordAudio(ctx context.Context) ([]byte, error) {
	if err := c.recorder.StartRecording(ctx); err != nil {
		return nil, models.NewError(models.KindCapture, "start recording", err)
	}

	holdErr := sleep(ctx, c.config.RecordDuration)
	if err := c.recorder.StopRecording(); err != nil && holdErr == nil {
		return nil, models.NewError(models.KindCapture, "stop recording", err)
	}
	if holdErr != nil {
		return nil, holdErr
	}

	audio, err := c.recorder.RecordedAudio()
	if err != nil {
		return nil, models.NewError(models.KindCapture, "retrieve recording", err)
	}
	return audio, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
