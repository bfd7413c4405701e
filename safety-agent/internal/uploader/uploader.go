// Package uploader sends incident reports to the collection server as a
// single multipart/form-data request.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// IncidentIDHeader 事故 ID 请求头
	IncidentIDHeader = "X-Incident-ID"

	DefaultScheme  = "http"
	DefaultPort    = 5000
	DefaultPath    = "/api/v1/incidents"
	DefaultTimeout = 30 * time.Second
)

// EndpointURL 组装上传地址 <scheme>://<host>:<port><path>
func EndpointURL(scheme, host string, port int, path string) string {
	if scheme == "" {
		scheme = DefaultScheme
	}
	if port <= 0 {
		port = DefaultPort
	}
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, port, path)
}

// Uploader 事故报告上传器
// 不做自动重试，失败由调用方决定是否重传
type Uploader struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
}

// New 创建上传器
func New(endpoint string, timeout time.Duration, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)

	return &Uploader{
		client:   client,
		endpoint: endpoint,
		logger:   logger,
	}
}

// Endpoint 返回上传地址
func (u *Uploader) Endpoint() string {
	return u.endpoint
}

// Upload 上传一份报告
// 字段顺序：timestamp, latitude, longitude, photos（每张一个 part）, audio
// 传输失败返回 ErrNetwork，非 2xx 返回 ErrServer（含状态码），请求构建失败返回 ErrEncoding
func (u *Uploader) Upload(ctx context.Context, report models.IncidentReport) error {
	fields := make([]*resty.MultipartField, 0, 4+len(report.Photos))
	fields = append(fields,
		textField("timestamp", report.Timestamp),
		textField("latitude", report.Location.Latitude),
		textField("longitude", report.Location.Longitude),
	)
	for i, photo := range report.Photos {
		fields = append(fields, &resty.MultipartField{
			Param:       "photos",
			FileName:    fmt.Sprintf("photo-%d.jpg", i),
			ContentType: "image/jpeg",
			Reader:      bytes.NewReader(photo),
		})
	}
	fields = append(fields, &resty.MultipartField{
		Param:       "audio",
		FileName:    "audio.wav",
		ContentType: "audio/wav",
		Reader:      bytes.NewReader(report.Audio),
	})

	req := u.client.R().
		SetContext(ctx).
		SetMultipartFields(fields...)
	if report.ID != "" {
		req.SetHeader(IncidentIDHeader, report.ID)
	}

	start := time.Now()
	resp, err := req.Post(u.endpoint)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			u.logger.Warn("Report upload failed",
				zap.String("endpoint", u.endpoint),
				zap.Error(err),
			)
			return models.NewError(models.KindNetwork, "upload report", err)
		}
		return models.NewError(models.KindEncoding, "upload report", err)
	}

	if !resp.IsSuccess() {
		u.logger.Warn("Report rejected by server",
			zap.String("endpoint", u.endpoint),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", truncate(resp.Body(), 256)),
		)
		return models.NewServerError("upload report", resp.StatusCode())
	}

	u.logger.Info("Report uploaded",
		zap.String("incident_id", report.ID),
		zap.Int("photo_count", len(report.Photos)),
		zap.Int("audio_bytes", len(report.Audio)),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func textField(name string, v float64) *resty.MultipartField {
	return &resty.MultipartField{
		Param:  name,
		Reader: strings.NewReader(strconv.FormatFloat(v, 'f', -1, 64)),
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
