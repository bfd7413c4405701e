package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/metrics"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/notifier"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/publisher"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound 事故不存在
var ErrNotFound = repository.ErrNotFound

// 列表分页限制
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// sideEffectTimeout 发布与通知的单步超时，与请求上下文解耦
const sideEffectTimeout = 15 * time.Second

// IncidentStore 事故持久化
type IncidentStore interface {
	Create(ctx context.Context, inc *models.Incident) (bool, error)
	Get(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, limit int) ([]*models.Incident, error)
}

// EvidenceStore 证据文件存储
type EvidenceStore interface {
	Save(id string, upload *models.Upload) (string, error)
}

// IncidentService 事故入库与查询
type IncidentService struct {
	store     IncidentStore
	files     EvidenceStore
	publisher publisher.EventPublisher
	notifier  notifier.Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewIncidentService 创建事故服务，publisher/notifier 为 nil 时不执行对应步骤
func NewIncidentService(
	store IncidentStore,
	files EvidenceStore,
	pub publisher.EventPublisher,
	n notifier.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IncidentService {
	if pub == nil {
		pub = publisher.NopPublisher{}
	}
	if n == nil {
		n = notifier.NopNotifier{}
	}
	return &IncidentService{
		store:     store,
		files:     files,
		publisher: pub,
		notifier:  n,
		metrics:   m,
		logger:    logger,
	}
}

// Ingest 保存一次上传
// 带合法 X-Incident-ID 的重复上传返回已有记录，created 为 false
func (s *IncidentService) Ingest(ctx context.Context, upload *models.Upload) (inc *models.Incident, created bool, err error) {
	id := normalizeID(upload.ID)
	if id != "" {
		existing, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			s.metrics.IncidentReceived(metrics.ResultDuplicate, 0)
			s.logger.Info("Duplicate incident upload ignored", zap.String("incident_id", id))
			return existing, false, nil
		case !errors.Is(err, repository.ErrNotFound):
			s.metrics.IncidentReceived(metrics.ResultFailed, 0)
			return nil, false, err
		}
	} else {
		id = uuid.NewString()
	}

	dir, err := s.files.Save(id, upload)
	if err != nil {
		s.metrics.IncidentReceived(metrics.ResultFailed, 0)
		return nil, false, fmt.Errorf("failed to store evidence: %w", err)
	}

	inc = &models.Incident{
		ID:          id,
		OccurredAt:  upload.OccurredAt(),
		Latitude:    upload.Latitude,
		Longitude:   upload.Longitude,
		PhotoCount:  len(upload.Photos),
		AudioBytes:  int64(len(upload.Audio.Data)),
		StoragePath: dir,
		MapsLink:    models.MapsLink(upload.Latitude, upload.Longitude),
	}

	created, err = s.store.Create(ctx, inc)
	if err != nil {
		_ = os.RemoveAll(dir)
		s.metrics.IncidentReceived(metrics.ResultFailed, 0)
		return nil, false, err
	}
	if !created {
		// 并发重复上传，以先入库的为准
		existing, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		s.metrics.IncidentReceived(metrics.ResultDuplicate, 0)
		return existing, false, nil
	}

	s.metrics.IncidentReceived(metrics.ResultCreated, uploadSize(upload))
	s.logger.Info("Incident stored",
		zap.String("incident_id", inc.ID),
		zap.Time("occurred_at", inc.OccurredAt),
		zap.Int("photos", inc.PhotoCount),
		zap.Int64("audio_bytes", inc.AudioBytes),
	)

	s.afterCreate(ctx, inc)
	return inc, true, nil
}

// afterCreate 发布事件并发送通知，失败只记录日志
func (s *IncidentService) afterCreate(ctx context.Context, inc *models.Incident) {
	base := context.WithoutCancel(ctx)

	pubCtx, cancel := context.WithTimeout(base, sideEffectTimeout)
	if err := s.publisher.Publish(pubCtx, models.NewIncidentEvent(inc)); err != nil {
		s.metrics.SideEffectFailed("publish")
		s.logger.Warn("Failed to publish incident event", zap.String("incident_id", inc.ID), zap.Error(err))
	}
	cancel()

	notifyCtx, cancel := context.WithTimeout(base, sideEffectTimeout)
	if err := s.notifier.Notify(notifyCtx, inc); err != nil {
		s.metrics.SideEffectFailed("notify")
		s.logger.Warn("Failed to send incident notification", zap.String("incident_id", inc.ID), zap.Error(err))
	}
	cancel()
}

// Reject 记录一次被拒绝的上传
func (s *IncidentService) Reject(reason string) {
	s.metrics.IncidentReceived(metrics.ResultRejected, 0)
	s.logger.Warn("Incident upload rejected", zap.String("reason", reason))
}

// Get 查询事故
func (s *IncidentService) Get(ctx context.Context, id string) (*models.Incident, error) {
	if normalizeID(id) == "" {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, normalizeID(id))
}

// List 最近的事故，limit 超出范围时截断
func (s *IncidentService) List(ctx context.Context, limit int) ([]*models.Incident, error) {
	return s.store.List(ctx, ClampLimit(limit))
}

// ClampLimit 将 limit 限制在 [1, MaxListLimit]，非正数取默认值
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// normalizeID 合法 UUID 返回规范形式，否则返回空串
func normalizeID(id string) string {
	if id == "" {
		return ""
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ""
	}
	return parsed.String()
}

func uploadSize(upload *models.Upload) int64 {
	n := int64(len(upload.Audio.Data))
	for _, p := range upload.Photos {
		n += int64(len(p.Data))
	}
	return n
}
