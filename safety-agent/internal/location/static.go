package location

import (
	"context"
	"time"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"
)

// Static 固定坐标，未配置定位主题时使用
type Static struct {
	Latitude  float64
	Longitude float64
}

// NewStatic 创建固定位置
func NewStatic(latitude, longitude float64) *Static {
	return &Static{Latitude: latitude, Longitude: longitude}
}

func (s *Static) StartUpdates(context.Context) error { return nil }

func (s *Static) StopUpdates() error { return nil }

// CurrentLocation 返回固定坐标，时间戳为当前时间
func (s *Static) CurrentLocation(context.Context) (models.Location, error) {
	return models.Location{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Timestamp: time.Now(),
	}, nil
}
