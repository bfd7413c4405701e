package monitor

import (
	"context"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/evidence"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"
)

// SampleSource 加速度样本来源
// 返回的通道在 ctx 结束时关闭
type SampleSource interface {
	Subscribe(ctx context.Context) (<-chan models.Sample, error)
}

// LocationProvider 定位来源
type LocationProvider interface {
	StartUpdates(ctx context.Context) error
	StopUpdates() error
	CurrentLocation(ctx context.Context) (models.Location, error)
}

// Camera 拍照设备
type Camera = evidence.Camera

// AudioRecorder 录音设备
type AudioRecorder = evidence.AudioRecorder

// ReportSender 报告上传
type ReportSender interface {
	Upload(ctx context.Context, report models.IncidentReport) error
}
