// Package capture provides the camera and microphone backends used for
// evidence collection on the agent host.
package capture

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SnapshotCamera 通过 HTTP 快照地址取 JPEG 的网络摄像头
type SnapshotCamera struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewSnapshotCamera 创建快照相机
func NewSnapshotCamera(url string, timeout time.Duration, logger *zap.Logger) *SnapshotCamera {
	return &SnapshotCamera{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		logger: logger,
	}
}

// Open 探测快照地址是否可用
func (c *SnapshotCamera) Open(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return models.NewError(models.KindDeviceUnavailable, "open camera", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return models.NewError(models.KindPermission, "open camera", fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode()))
	case !resp.IsSuccess():
		return models.NewError(models.KindDeviceUnavailable, "open camera", fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode()))
	}
	c.logger.Info("Camera ready", zap.String("url", c.url))
	return nil
}

// CapturePhoto 取一张快照，响应体为空时返回 nil
func (c *SnapshotCamera) CapturePhoto(ctx context.Context) ([]byte, error) {
	resp, err := c.client.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to fetch snapshot: status %d", resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, nil
	}
	return resp.Body(), nil
}

func (c *SnapshotCamera) Close() error {
	return nil
}
