package models

import (
	"fmt"
	"math"
	"time"
)

// EventIncidentReceived 收到事故报告的事件类型
const EventIncidentReceived = "incident.received"

// Incident 已入库的事故
type Incident struct {
	ID          string    `json:"incident_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	PhotoCount  int       `json:"photo_count"`
	AudioBytes  int64     `json:"audio_bytes"`
	StoragePath string    `json:"storage_path"`
	MapsLink    string    `json:"maps_link"`
	CreatedAt   time.Time `json:"created_at"`
}

// File 上传的单个文件
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Upload 一次事故上传的解析结果
type Upload struct {
	ID        string  // 来自 X-Incident-ID，可为空
	Timestamp float64 // Unix 秒
	Latitude  float64
	Longitude float64
	Photos    []File
	Audio     File
}

// OccurredAt 将上传的时间戳转换为 UTC 时间
func (u Upload) OccurredAt() time.Time {
	sec := math.Floor(u.Timestamp)
	nsec := math.Round((u.Timestamp - sec) * float64(time.Second))
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// IncidentEvent 发布到事件流的事故摘要
type IncidentEvent struct {
	IncidentID string    `json:"incident_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	PhotoCount int       `json:"photo_count"`
	AudioBytes int64     `json:"audio_bytes"`
	MapsLink   string    `json:"maps_link"`
}

// NewIncidentEvent 由事故生成事件
func NewIncidentEvent(inc *Incident) IncidentEvent {
	return IncidentEvent{
		IncidentID: inc.ID,
		OccurredAt: inc.OccurredAt,
		Latitude:   inc.Latitude,
		Longitude:  inc.Longitude,
		PhotoCount: inc.PhotoCount,
		AudioBytes: inc.AudioBytes,
		MapsLink:   inc.MapsLink,
	}
}

// MapsLink Google 地图搜索链接
func MapsLink(latitude, longitude float64) string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v,%v", latitude, longitude)
}
